package eventsource

import (
	"reflect"
	"time"

	"github.com/google/uuid"
)

// InstrumentationVersion is reported by the telemetry decorators.
const InstrumentationVersion = "0.3.0"

// Event is a domain event describing a change that has happened to an aggregate.
type Event interface {
	AggregateID() string
	EventType() string
}

// Envelope wraps an Event with the persistence metadata the store needs.
// Envelopes are immutable once appended: stores may copy them but must never
// rewrite version, ID or payload.
type Envelope struct {
	EventID     uuid.UUID
	AggregateID string
	Metadata    map[string]any
	Event       Event
	// Data holds the serialized payload for adapters that persist events
	// out of process. In-memory stores leave it empty and keep Event as-is.
	Data       []byte
	Version    uint64
	OccurredAt time.Time
}

// EventOption mutates an envelope while it is being built by AppendEvent.
type EventOption func(env *Envelope)

// WithMetadata attaches a metadata entry to the envelope.
func WithMetadata(key string, value any) EventOption {
	return func(env *Envelope) {
		if env.Metadata == nil {
			env.Metadata = make(map[string]any)
		}
		env.Metadata[key] = value
	}
}

// WithEventID overrides the generated event ID.
func WithEventID(id uuid.UUID) EventOption {
	return func(env *Envelope) {
		env.EventID = id
	}
}

// WithOccurredAt overrides the envelope timestamp.
func WithOccurredAt(t time.Time) EventOption {
	return func(env *Envelope) {
		env.OccurredAt = t
	}
}

// TypeName returns the unqualified type name of v, dereferencing pointers.
// It is the default event-type discriminator.
func TypeName(v any) string {
	t := reflect.TypeOf(v)
	if t == nil {
		return ""
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}
