package eventsource

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// EventHandlerRegistry routes published events through the middleware chain
// to their registered handlers. It is an explicit object constructed once by
// the composition root and passed by reference; there is no process-wide
// registry.
type EventHandlerRegistry struct {
	mu          sync.RWMutex
	handlers    map[string][]Handler
	middlewares []Middleware
	log         *slog.Logger
}

// NewEventHandlerRegistry creates an empty registry. A nil logger falls back
// to slog.Default().
func NewEventHandlerRegistry(log *slog.Logger) *EventHandlerRegistry {
	if log == nil {
		log = slog.Default()
	}
	return &EventHandlerRegistry{
		handlers: make(map[string][]Handler),
		log:      log,
	}
}

// RegisterHandler registers a handler for an event type. Multiple handlers
// per event type are supported; they run in registration order.
func (r *EventHandlerRegistry) RegisterHandler(eventType string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[eventType] = append(r.handlers[eventType], handler)
}

// Handlers returns the handlers registered for an event type.
func (r *EventHandlerRegistry) Handlers(eventType string) []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handlers := make([]Handler, len(r.handlers[eventType]))
	copy(handlers, r.handlers[eventType])
	return handlers
}

// RegisterMiddleware appends a middleware to the single globally ordered
// list. The first registered middleware is outermost in every chain.
func (r *EventHandlerRegistry) RegisterMiddleware(mw Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middlewares = append(r.middlewares, mw)
}

// MiddlewareChain returns the middleware list used for an event type.
// Currently that is the full registered list regardless of event type;
// middleware that cares about specific event types self-filters inside
// Process.
func (r *EventHandlerRegistry) MiddlewareChain(eventType string) []Middleware {
	r.mu.RLock()
	defer r.mu.RUnlock()

	middlewares := make([]Middleware, len(r.middlewares))
	copy(middlewares, r.middlewares)
	return middlewares
}

// Publish routes the event to every registered handler through the
// middleware chain. Publishing an event with no handlers is a no-op. All
// handlers run even when an earlier one fails; their failures are joined.
func (r *EventHandlerRegistry) Publish(ctx context.Context, env *Envelope) error {
	eventType := env.Event.EventType()

	handlers := r.Handlers(eventType)
	if len(handlers) == 0 {
		r.log.Debug("no handlers registered", slog.String("event_type", eventType))
		return nil
	}

	middlewares := r.MiddlewareChain(eventType)
	hctx := NewEventHandlerContext(env, env.Metadata)
	ctx = WithEnvelope(ctx, env)

	var errs []error
	for _, handler := range handlers {
		chain := BuildChain(handler, middlewares...)
		if _, err := chain(ctx, hctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
