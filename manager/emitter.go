package manager

import (
	"fmt"
	"os"
	"sync"
)

// Events emitted by the manager.
const (
	EventWorkerMessage    = "worker:message"
	EventWorkerError      = "worker:error"
	EventWorkerCreated    = "worker:created"
	EventWorkerTerminated = "worker:terminated"
	EventModuleDelivered  = "module:delivered"
)

// A Handler observes one event.
type Handler func(args ...any)

// An Emitter fans events out to registered observers. A handler panicking
// does not prevent the remaining handlers from running and never crashes the
// emitter.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

// NewEmitter creates an emitter with no observers.
func NewEmitter() *Emitter {
	return &Emitter{handlers: make(map[string][]Handler)}
}

// On registers a handler for an event name.
func (e *Emitter) On(event string, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.handlers[event] = append(e.handlers[event], h)
}

// Emit invokes every handler registered for the event.
func (e *Emitter) Emit(event string, args ...any) {
	e.mu.RLock()
	handlers := make([]Handler, len(e.handlers[event]))
	copy(handlers, e.handlers[event])
	e.mu.RUnlock()

	for _, h := range handlers {
		invoke(h, event, args)
	}
}

func invoke(h Handler, event string, args []any) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr,
				"handler for %s panicked: %v\n", event, r)
		}
	}()

	h(args...)
}
