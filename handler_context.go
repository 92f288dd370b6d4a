package eventsource

import "sort"

// EventHandlerContext carries one event through the middleware chain to a
// handler. The event and metadata are read-only after creation; middleware
// that needs to attach data derives a new context with WithExtra. The
// underlying envelope is shared by reference and must not be mutated.
type EventHandlerContext struct {
	envelope     *Envelope
	metadata     map[string]any
	metadataKeys []string
	extra        map[string]any
}

// NewEventHandlerContext creates a context for the given envelope. metadata
// is copied; key iteration order (MetadataKeys) is deterministic.
func NewEventHandlerContext(env *Envelope, metadata map[string]any) *EventHandlerContext {
	md := make(map[string]any, len(metadata))
	keys := make([]string, 0, len(metadata))
	for k, v := range metadata {
		md[k] = v
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return &EventHandlerContext{
		envelope:     env,
		metadata:     md,
		metadataKeys: keys,
	}
}

// Envelope returns the event envelope.
func (c *EventHandlerContext) Envelope() *Envelope {
	return c.envelope
}

// Event returns the untyped event. Use EventAs for typed access.
func (c *EventHandlerContext) Event() Event {
	return c.envelope.Event
}

// EventType returns the event-type discriminator.
func (c *EventHandlerContext) EventType() string {
	return c.envelope.Event.EventType()
}

// Metadata returns the request-scoped metadata value for key.
func (c *EventHandlerContext) Metadata(key string) (any, bool) {
	v, ok := c.metadata[key]
	return v, ok
}

// MetadataKeys returns the metadata keys in deterministic order.
func (c *EventHandlerContext) MetadataKeys() []string {
	keys := make([]string, len(c.metadataKeys))
	copy(keys, c.metadataKeys)
	return keys
}

// Extra returns a value attached by middleware further out in the chain.
func (c *EventHandlerContext) Extra(key string) (any, bool) {
	v, ok := c.extra[key]
	return v, ok
}

// WithExtra returns a new context carrying the extra entry. The receiver is
// left unchanged.
func (c *EventHandlerContext) WithExtra(key string, value any) *EventHandlerContext {
	extra := make(map[string]any, len(c.extra)+1)
	for k, v := range c.extra {
		extra[k] = v
	}
	extra[key] = value

	clone := *c
	clone.extra = extra
	return &clone
}

// EventAs returns the context event as T, or a *TypeMismatchError when the
// event is of a different type.
func EventAs[T Event](c *EventHandlerContext) (T, error) {
	ev, ok := c.envelope.Event.(T)
	if !ok {
		var zero T
		return zero, &TypeMismatchError{
			Requested: TypeName(zero),
			Actual:    c.EventType(),
		}
	}
	return ev, nil
}
