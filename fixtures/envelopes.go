package fixtures

import (
	"time"

	"github.com/google/uuid"
	es "github.com/tidemark/eventsource"
)

// EnvelopeOption is a functional option for configuring an Envelope.
type EnvelopeOption func(*es.Envelope)

// NewEnvelope creates an Envelope with the given event and options.
func NewEnvelope(event es.Event, opts ...EnvelopeOption) *es.Envelope {
	env := &es.Envelope{
		EventID:     uuid.New(),
		AggregateID: event.AggregateID(),
		Event:       event,
		Version:     1,
		OccurredAt:  time.Now(),
		Metadata:    make(map[string]any),
	}

	for _, opt := range opts {
		opt(env)
	}

	return env
}

// WithEventID sets a specific event ID.
func WithEventID(id uuid.UUID) EnvelopeOption {
	return func(e *es.Envelope) {
		e.EventID = id
	}
}

// WithAggregateID overrides the aggregate ID (defaults to the event's).
func WithAggregateID(id string) EnvelopeOption {
	return func(e *es.Envelope) {
		e.AggregateID = id
	}
}

// WithVersion sets the stream version.
func WithVersion(v uint64) EnvelopeOption {
	return func(e *es.Envelope) {
		e.Version = v
	}
}

// WithTimestamp sets the occurred-at timestamp.
func WithTimestamp(t time.Time) EnvelopeOption {
	return func(e *es.Envelope) {
		e.OccurredAt = t
	}
}

// WithMetadata sets a metadata entry.
func WithMetadata(key string, value any) EnvelopeOption {
	return func(e *es.Envelope) {
		if e.Metadata == nil {
			e.Metadata = make(map[string]any)
		}
		e.Metadata[key] = value
	}
}

// EnvelopesFromEvents wraps events into envelopes with contiguous versions
// starting at 1.
func EnvelopesFromEvents(events ...es.Event) []*es.Envelope {
	envelopes := make([]*es.Envelope, len(events))
	for i, event := range events {
		envelopes[i] = NewEnvelope(event, WithVersion(uint64(i+1)))
	}
	return envelopes
}
