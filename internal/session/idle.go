package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/timax-console/internal/activity"
	"github.com/wolfeidau/timax-console/internal/clock"
	"github.com/wolfeidau/timax-console/internal/telemetry"
)

// InactivityMonitor forces a logout after a period without user activity.
// It only listens for activity between Start and Stop.
type InactivityMonitor struct {
	clock    clock.Clock
	source   activity.Source
	timeout  time.Duration
	debounce time.Duration
	onIdle   func(gen uint64)

	mu           sync.Mutex
	active       bool
	gen          uint64
	seq          uint64
	timer        clock.Timer
	unsubscribe  func()
	lastActivity time.Time
	lastArm      time.Time
}

// NewInactivityMonitor creates a stopped monitor.
func NewInactivityMonitor(clk clock.Clock, source activity.Source, timeout, debounce time.Duration, onIdle func(gen uint64)) *InactivityMonitor {
	return &InactivityMonitor{
		clock:    clk,
		source:   source,
		timeout:  timeout,
		debounce: debounce,
		onIdle:   onIdle,
	}
}

// Start subscribes to activity and arms the idle timer for generation gen.
func (m *InactivityMonitor) Start(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopLocked()

	m.active = true
	m.gen = gen
	m.lastActivity = m.clock.Now()
	m.armLocked(m.timeout)
	m.unsubscribe = m.source.OnActivity(m.record)

	log.Debug().Uint64("generation", gen).Dur("timeout", m.timeout).Msg("Inactivity monitor started")
}

// Stop unsubscribes from activity and cancels the idle timer.
func (m *InactivityMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

// Armed reports whether the idle timer is pending.
func (m *InactivityMonitor) Armed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timer != nil
}

// Remaining returns how long until the session is considered idle.
func (m *InactivityMonitor) Remaining() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return 0
	}
	remaining := m.timeout - m.clock.Now().Sub(m.lastActivity)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// LastActivity returns the time of the most recent recognised signal.
func (m *InactivityMonitor) LastActivity() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastActivity
}

func (m *InactivityMonitor) record(sig activity.Signal) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.active {
		return
	}

	now := m.clock.Now()
	m.lastActivity = now

	// coalesce bursts; fire() re-checks lastActivity before logging out
	if now.Sub(m.lastArm) >= m.debounce {
		m.armLocked(m.timeout)
	}

	telemetry.GetMetrics().RecordActivity(context.Background(), sig.Kind.String())
}

func (m *InactivityMonitor) armLocked(d time.Duration) {
	if m.timer != nil {
		m.timer.Stop()
	}
	m.seq++
	seq := m.seq
	m.lastArm = m.clock.Now()
	m.timer = m.clock.AfterFunc(d, func() { m.fire(seq) })
}

func (m *InactivityMonitor) stopLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	m.active = false
	m.seq++
}

func (m *InactivityMonitor) fire(seq uint64) {
	m.mu.Lock()
	if !m.active || seq != m.seq {
		m.mu.Unlock()
		return
	}
	m.timer = nil

	idle := m.clock.Now().Sub(m.lastActivity)
	if idle < m.timeout {
		m.armLocked(m.timeout - idle)
		m.mu.Unlock()
		return
	}

	gen := m.gen
	m.mu.Unlock()

	log.Debug().Uint64("generation", gen).Dur("idle", idle).Msg("Inactivity timeout reached")

	m.onIdle(gen)
}
