// Package activity reports user activity to interested listeners without
// tying them to a particular event dispatch mechanism.
package activity

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Kind is a recognised user activity signal.
type Kind int

const (
	KindUnknown Kind = iota
	KindPointerDown
	KindPointerMove
	KindKeyPress
	KindScroll
	KindTouchStart
	KindClick
)

var kindNames = map[Kind]string{
	KindPointerDown: "mousedown",
	KindPointerMove: "mousemove",
	KindKeyPress:    "keypress",
	KindScroll:      "scroll",
	KindTouchStart:  "touchstart",
	KindClick:       "click",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Recognized reports whether k counts as user activity.
func (k Kind) Recognized() bool {
	_, ok := kindNames[k]
	return ok
}

// ParseKind maps a DOM style event name onto a Kind.
func ParseKind(name string) Kind {
	name = strings.ToLower(strings.TrimSpace(name))
	for k, n := range kindNames {
		if n == name {
			return k
		}
	}
	return KindUnknown
}

// Signal is a single observation of user activity.
type Signal struct {
	Kind Kind
	At   time.Time
}

// Source delivers activity signals. The returned function removes the handler
// and must be safe to call more than once.
type Source interface {
	OnActivity(handler func(Signal)) (unsubscribe func())
}

// Hub fans activity reported by producers out to every registered handler.
type Hub struct {
	mu       sync.RWMutex
	handlers map[string]func(Signal)
	now      func() time.Time
}

var _ Source = (*Hub)(nil)

// NewHub creates a Hub. now stamps reported signals; nil uses time.Now.
func NewHub(now func() time.Time) *Hub {
	if now == nil {
		now = time.Now
	}
	return &Hub{
		handlers: make(map[string]func(Signal)),
		now:      now,
	}
}

// OnActivity registers handler and returns a function that removes it.
func (h *Hub) OnActivity(handler func(Signal)) func() {
	id := uuid.NewString()

	h.mu.Lock()
	h.handlers[id] = handler
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.handlers, id)
			h.mu.Unlock()
		})
	}
}

// Report publishes an activity signal of the given kind. Unrecognised kinds
// are dropped. It returns false when the signal was dropped.
func (h *Hub) Report(kind Kind) bool {
	if !kind.Recognized() {
		log.Debug().Int("kind", int(kind)).Msg("Ignoring unrecognised activity")
		return false
	}

	sig := Signal{Kind: kind, At: h.now()}

	h.mu.RLock()
	handlers := make([]func(Signal), 0, len(h.handlers))
	for _, fn := range h.handlers {
		handlers = append(handlers, fn)
	}
	h.mu.RUnlock()

	for _, fn := range handlers {
		fn(sig)
	}
	return true
}

// Len returns the number of registered handlers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.handlers)
}
