package eventsource

import (
	"context"
)

// EventStore defines the contract for an append-only event store.
// An EventStore persists events associated with a given aggregate ID in
// sequential order, allowing full reconstruction of aggregate state.
//
// Implementations must guarantee:
//   - Events for a given aggregate are stored in append order, with
//     contiguous, strictly increasing versions starting at 1.
//   - Append is atomic: either every event in the batch is durably recorded
//     or none is.
//   - Optimistic concurrency: Append compares expectedVersion against the
//     current stored version and fails with *ConcurrencyError on mismatch,
//     with no partial write.
//   - Iteration order from the Load methods is deterministic, oldest first.
//
// The returned iterators are finite and restartable reads, not live
// subscriptions. They should be consumed immediately; no assumptions should
// be made about reusability after iteration completes.
type EventStore interface {
	// Append appends all events in the given batch to the stream of a single
	// aggregate. expectedVersion is the version the caller believes the
	// stream is at; a mismatch fails with *ConcurrencyError and leaves the
	// stream unchanged.
	Append(ctx context.Context, events []Envelope, expectedVersion uint64) error

	// LoadStream loads all events for the given aggregate ID in ascending
	// version order. An unknown aggregate yields an empty iterator.
	LoadStream(ctx context.Context, aggregateID string) (*Iterator[*Envelope], error)

	// LoadStreamFrom loads the events for the given aggregate ID with a
	// version strictly greater than version, in ascending order.
	LoadStreamFrom(ctx context.Context, aggregateID string, version uint64) (*Iterator[*Envelope], error)

	// Close releases any resources held by the EventStore. Implementations
	// should make Close idempotent.
	Close() error
}
