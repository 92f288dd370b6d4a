package eventsource

import (
	"time"

	"github.com/google/uuid"
)

var now = time.Now

// Aggregate is the interface that all aggregates must implement.
//
// An aggregate's state is derived entirely from its ordered event history:
// callers never mutate state directly, they append events and the aggregate
// applies them. The Repository owns the aggregate during a load/save cycle.
type Aggregate interface {

	// EntityID returns the unique identifier of the aggregate.
	EntityID() string

	// AggregateVersion returns the persisted version of the aggregate, i.e.
	// the version before any uncommitted events.
	AggregateVersion() uint64

	// SetAggregateVersion sets the version of the aggregate.
	SetAggregateVersion(version uint64)

	// UncommittedEvents returns all the events that are currently uncommitted.
	UncommittedEvents() []Envelope

	// ClearUncommittedEvents clears all uncommitted events from the aggregate.
	ClearUncommittedEvents()

	// AppendEvent appends a new event to the aggregate's event list.
	AppendEvent(event Event, options ...EventOption)

	// ApplyEvent transitions the aggregate state with the given event.
	// It must be a pure function of current state and event.
	ApplyEvent(env *Envelope) error
}

// AggregateBase provides the bookkeeping half of the Aggregate interface.
// Domain types embed it and implement ApplyEvent themselves.
type AggregateBase struct {
	id     string
	v      uint64
	events []Envelope
}

// NewAggregateBase creates an aggregate.
func NewAggregateBase(id string) *AggregateBase {
	return &AggregateBase{
		id:     id,
		events: make([]Envelope, 0),
	}
}

// EntityID implements the EntityID method of the Aggregate interface.
func (a *AggregateBase) EntityID() string {
	return a.id
}

// AggregateVersion implements the AggregateVersion method of the Aggregate interface.
func (a *AggregateBase) AggregateVersion() uint64 {
	return a.v
}

// SetAggregateVersion implements the SetAggregateVersion method of the Aggregate interface.
func (a *AggregateBase) SetAggregateVersion(v uint64) {
	a.v = v
}

// UncommittedEvents implements the UncommittedEvents method of the Aggregate interface.
func (a *AggregateBase) UncommittedEvents() []Envelope {
	return a.events
}

// ClearUncommittedEvents implements the ClearUncommittedEvents method of the Aggregate interface.
func (a *AggregateBase) ClearUncommittedEvents() {
	a.events = nil
}

// AppendEvent appends an event for later retrieval by UncommittedEvents().
// Versions continue the persisted sequence: the first event of a fresh
// aggregate gets version 1.
func (a *AggregateBase) AppendEvent(event Event, options ...EventOption) {

	envelope := Envelope{
		EventID:     uuid.New(),
		AggregateID: event.AggregateID(),
		Metadata:    make(map[string]any),
		Event:       event,
		Version:     a.v + uint64(len(a.events)) + 1,
		OccurredAt:  now(),
	}

	for _, option := range options {
		option(&envelope)
	}

	a.events = append(a.events, envelope)
}
