// Package broadcast provides the one-way channel used to request a forced
// logout without holding a reference to the session store.
package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// EventName identifies forced logout events.
const EventName = "session:forced-logout"

// Reason explains why a session was torn down.
type Reason string

const (
	ReasonTokenExpired   Reason = "tokenExpired"
	ReasonInactivity     Reason = "inactivity"
	ReasonServerRejected Reason = "serverRejected"
	ReasonUserInitiated  Reason = "userInitiated"
)

// Valid reports whether r is one of the known reasons.
func (r Reason) Valid() bool {
	switch r {
	case ReasonTokenExpired, ReasonInactivity, ReasonServerRejected, ReasonUserInitiated:
		return true
	}
	return false
}

// Event is the payload delivered for a forced logout.
type Event struct {
	Name   string
	Reason Reason
	At     time.Time
	// Generation is the session generation the broadcaster was armed for.
	// Zero means the arming was not scoped to a generation.
	Generation uint64
}

// Handler receives forced logout events.
type Handler func(ctx context.Context, evt Event)

// Broadcaster delivers at most one forced logout per armed session. The first
// emission disarms it; later emissions are no-ops until Arm is called again.
type Broadcaster struct {
	mu        sync.Mutex
	armed     bool
	armedFor  uint64
	teardown  Handler
	observers map[string]Handler
	order     []string
	now       func() time.Time
}

// New creates a disarmed Broadcaster.
func New() *Broadcaster {
	return &Broadcaster{
		observers: make(map[string]Handler),
		now:       time.Now,
	}
}

// Handle binds the teardown routine, the channel's sole consumer. It runs
// before any observer. Passing nil unbinds it.
func (b *Broadcaster) Handle(fn Handler) {
	b.mu.Lock()
	b.teardown = fn
	b.mu.Unlock()
}

// Subscribe registers an observer notified after teardown completes.
func (b *Broadcaster) Subscribe(fn Handler) (unsubscribe func()) {
	id := uuid.NewString()

	b.mu.Lock()
	b.observers[id] = fn
	b.order = append(b.order, id)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.observers[id]; !ok {
			return
		}
		delete(b.observers, id)
		for i, o := range b.order {
			if o == id {
				b.order = append(b.order[:i], b.order[i+1:]...)
				break
			}
		}
	}
}

// Arm enables delivery of the next emission.
func (b *Broadcaster) Arm() {
	b.ArmFor(0)
}

// ArmFor enables delivery of the next emission for session generation gen.
func (b *Broadcaster) ArmFor(gen uint64) {
	b.mu.Lock()
	b.armed = true
	b.armedFor = gen
	b.mu.Unlock()
}

// Disarm drops any future emission until the next Arm.
func (b *Broadcaster) Disarm() {
	b.mu.Lock()
	b.armed = false
	b.armedFor = 0
	b.mu.Unlock()
}

// Armed reports whether the next emission would be delivered.
func (b *Broadcaster) Armed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.armed
}

// Emit requests a forced logout. It returns true if this call delivered the
// event and false if the broadcaster was not armed.
func (b *Broadcaster) Emit(ctx context.Context, reason Reason) bool {
	return b.emit(ctx, reason, func(uint64) bool { return true })
}

// EmitFor requests a forced logout on behalf of session generation gen. It
// is dropped, and the broadcaster stays armed, unless the current arming was
// made for gen.
func (b *Broadcaster) EmitFor(ctx context.Context, gen uint64, reason Reason) bool {
	return b.emit(ctx, reason, func(armedFor uint64) bool { return armedFor == gen })
}

func (b *Broadcaster) emit(ctx context.Context, reason Reason, matches func(armedFor uint64) bool) bool {
	b.mu.Lock()
	if !b.armed {
		b.mu.Unlock()
		log.Debug().Str("reason", string(reason)).Msg("Forced logout already in progress, ignoring")
		return false
	}
	if !matches(b.armedFor) {
		armedFor := b.armedFor
		b.mu.Unlock()
		log.Debug().Str("reason", string(reason)).Uint64("armed_for", armedFor).Msg("Forced logout for a previous session, ignoring")
		return false
	}
	gen := b.armedFor
	b.armed = false
	b.armedFor = 0

	teardown := b.teardown
	observers := make([]Handler, 0, len(b.order))
	for _, id := range b.order {
		observers = append(observers, b.observers[id])
	}
	b.mu.Unlock()

	evt := Event{Name: EventName, Reason: reason, At: b.now(), Generation: gen}

	log.Info().Str("event", evt.Name).Str("reason", string(reason)).Uint64("generation", gen).Msg("Forced logout")

	if teardown != nil {
		teardown(ctx, evt)
	}
	for _, fn := range observers {
		fn(ctx, evt)
	}

	return true
}
