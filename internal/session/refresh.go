package session

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/timax-console/internal/clock"
)

// RefreshScheduler holds the single one-shot timer that re-validates the
// credential pair before it expires.
type RefreshScheduler struct {
	clock clock.Clock
	onDue func(gen uint64)

	mu    sync.Mutex
	timer clock.Timer
	seq   uint64
	due   time.Time
}

// NewRefreshScheduler creates a scheduler that calls onDue with the
// generation it was armed for.
func NewRefreshScheduler(clk clock.Clock, onDue func(gen uint64)) *RefreshScheduler {
	return &RefreshScheduler{clock: clk, onDue: onDue}
}

// Schedule arms the timer to fire after interval, replacing any pending timer.
func (r *RefreshScheduler) Schedule(gen uint64, interval time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopLocked()

	seq := r.seq
	r.due = r.clock.Now().Add(interval)
	r.timer = r.clock.AfterFunc(interval, func() { r.fire(seq, gen) })

	log.Debug().
		Uint64("generation", gen).
		Dur("interval", interval).
		Time("due", r.due).
		Msg("Refresh scheduled")
}

// Cancel stops the pending timer. A callback that is already running is
// invalidated and will not reach onDue.
func (r *RefreshScheduler) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
}

// Armed reports whether a refresh is pending.
func (r *RefreshScheduler) Armed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timer != nil
}

// Due returns when the pending refresh fires.
func (r *RefreshScheduler) Due() (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer == nil {
		return time.Time{}, false
	}
	return r.due, true
}

func (r *RefreshScheduler) stopLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.due = time.Time{}
	r.seq++
}

func (r *RefreshScheduler) fire(seq, gen uint64) {
	r.mu.Lock()
	if seq != r.seq || r.timer == nil {
		r.mu.Unlock()
		return
	}
	r.timer = nil
	r.due = time.Time{}
	r.mu.Unlock()

	r.onDue(gen)
}
