package terminal

import (
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/termhub/internal/shared/id"
)

// EventKind names a lifecycle event
type EventKind string

const (
	EventCreated EventKind = "session.created"
	EventData    EventKind = "session.data"
	EventPaused  EventKind = "session.paused"
	EventResumed EventKind = "session.resumed"
	EventClosed  EventKind = "session.closed"
)

// Event is published for every session state change and output chunk
type Event struct {
	Kind      EventKind
	SessionID id.SessionID
	Owner     string

	// RequestID is set on created
	RequestID string
	// Info is set on created
	Info *Info
	// Data is set on data
	Data string
	// Buffer is set on resumed
	Buffer string
	// ExitCode is set on closed when known
	ExitCode *int
}

// Listener receives events
type Listener func(Event)

type subscription struct {
	id       uint64
	kinds    map[EventKind]bool
	listener Listener
}

// Bus fans events out to subscribers. Listeners run synchronously on the
// publishing goroutine, under the session's lock; they must not call back
// into the Manager.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID uint64
	logger *zap.Logger
}

// NewBus creates an event bus
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{logger: logger}
}

// Subscribe registers a listener for the given kinds, or all kinds when none
// are named. The returned func removes it.
func (b *Bus) Subscribe(listener Listener, kinds ...EventKind) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := subscription{id: b.nextID, listener: listener}
	if len(kinds) > 0 {
		sub.kinds = make(map[EventKind]bool, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = true
		}
	}
	b.subs = append(b.subs, sub)

	subID := sub.id
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == subID {
				b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers an event to every matching listener
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()

	for _, s := range subs {
		if s.kinds != nil && !s.kinds[ev.Kind] {
			continue
		}
		b.deliver(s.listener, ev)
	}
}

func (b *Bus) deliver(listener Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Event listener panicked",
				zap.String("event", string(ev.Kind)),
				zap.String("session_id", ev.SessionID.String()),
				zap.Any("panic", r))
		}
	}()
	listener(ev)
}
