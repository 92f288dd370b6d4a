package eventsource

// ApplyHandler binds one event type to an apply function.
type ApplyHandler interface {
	NewEvent() Event
	Apply(event Event)
}

type genericApplyHandler[T Event] struct {
	applyFunc func(event T)
}

// OnApply creates an ApplyHandler for a specific event type. The event type
// is inferred from the function argument.
func OnApply[T Event](applyFunc func(event T)) ApplyHandler {
	return &genericApplyHandler[T]{
		applyFunc: applyFunc,
	}
}

func (h genericApplyHandler[T]) NewEvent() Event {
	tVar := new(T)
	return *tVar
}

func (h genericApplyHandler[T]) Apply(e Event) {
	h.applyFunc(e.(T))
}

// NewApplier builds an ApplyEvent implementation from typed apply handlers.
// Events without a matching handler are ignored, so an aggregate stays
// forward compatible with event types added later.
//
// Example:
//
//	type Cart struct {
//	    *eventsource.AggregateBase
//	    items int
//	    apply func(env *eventsource.Envelope) error
//	}
//
//	func NewCart(id string) *Cart {
//	    c := &Cart{AggregateBase: eventsource.NewAggregateBase(id)}
//	    c.apply = eventsource.NewApplier(
//	        eventsource.OnApply(func(ev ItemAdded) { c.items++ }),
//	    )
//	    return c
//	}
//
//	func (c *Cart) ApplyEvent(env *eventsource.Envelope) error { return c.apply(env) }
func NewApplier(handlers ...ApplyHandler) func(env *Envelope) error {
	eventHandlers := make(map[string]ApplyHandler)

	for _, handler := range handlers {
		eventHandlers[TypeName(handler.NewEvent())] = handler
	}

	return func(env *Envelope) error {
		// Keyed on the Go type name, not EventType(): events may carry a
		// custom discriminator while handlers are registered by type.
		if handler, ok := eventHandlers[TypeName(env.Event)]; ok {
			handler.Apply(env.Event)
		}
		return nil
	}
}
