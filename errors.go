package eventsource

import (
	"errors"
	"fmt"
)

var (
	// ErrSnapshotNotFound is returned by SnapshotStore.GetSnapshot when no
	// snapshot exists for the aggregate.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrAggregateNotFound is returned by Repository.GetByID when neither a
	// snapshot nor any events exist for the aggregate.
	ErrAggregateNotFound = errors.New("aggregate not found")

	// ErrInvalidEventBatch is returned when an append batch mixes aggregates
	// or carries non-contiguous versions.
	ErrInvalidEventBatch = errors.New("invalid event batch")
)

// ConcurrencyError reports an expected/actual version mismatch on append.
// The store guarantees no partial write happened. Retry-after-reload is a
// caller decision; nothing in this package retries appends automatically.
type ConcurrencyError struct {
	AggregateID string
	Expected    uint64
	Actual      uint64
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("concurrency conflict on aggregate %q: expected version %d, got %d",
		e.AggregateID, e.Expected, e.Actual)
}

// EventStoreError wraps a store-specific persistence failure.
type EventStoreError struct {
	Err error
}

func (e *EventStoreError) Error() string {
	return fmt.Sprintf("eventstore error: %v", e.Err)
}

func (e *EventStoreError) Unwrap() error {
	return e.Err
}

func WrapEventStoreError(err error) error {
	if err == nil {
		return nil
	}
	return &EventStoreError{Err: err}
}

// HandlerError wraps a failure raised inside an event handler. Middleware
// sees it as an ordinary failure: retry may convert it into further
// attempts, the circuit breaker counts it, metrics record it.
type HandlerError struct {
	EventType string
	Err       error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler failed for event %q: %v", e.EventType, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// CircuitOpenError signals that the circuit for an event type is open and
// the handler was never invoked. It is deliberately a distinct type from
// HandlerError so callers can tell "handler failed" from "handler skipped".
type CircuitOpenError struct {
	EventType string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for event %q", e.EventType)
}

// panicError preserves a recovered non-error panic value as an error.
type panicError struct {
	value any
}

func newPanicError(v any) error {
	if err, ok := v.(error); ok {
		return err
	}
	return &panicError{value: v}
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

// TypeMismatchError is returned by EventAs when the context event is not of
// the requested type.
type TypeMismatchError struct {
	Requested string
	Actual    string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("event type mismatch: requested %s, context holds %s", e.Requested, e.Actual)
}
