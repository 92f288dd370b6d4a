package eventsource

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory EventStore. It enforces the same contract as
// the durable adapters (atomic batches, optimistic concurrency, contiguous
// versions) and is safe for concurrent use.
type MemoryStore struct {
	mu     sync.RWMutex
	events map[string][]*Envelope
}

// NewMemoryStore creates an empty in-memory event store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events: make(map[string][]*Envelope),
	}
}

func (m *MemoryStore) Append(ctx context.Context, events []Envelope, expectedVersion uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	aggregateID := events[0].AggregateID
	for i, env := range events {
		if env.AggregateID != aggregateID {
			return fmt.Errorf("append to %q: %w: event %d targets aggregate %q",
				aggregateID, ErrInvalidEventBatch, i, env.AggregateID)
		}
		if env.Version != expectedVersion+uint64(i)+1 {
			return fmt.Errorf("append to %q: %w: event %d has version %d, want %d",
				aggregateID, ErrInvalidEventBatch, i, env.Version, expectedVersion+uint64(i)+1)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	currentVersion := uint64(len(m.events[aggregateID]))
	if currentVersion != expectedVersion {
		return &ConcurrencyError{
			AggregateID: aggregateID,
			Expected:    expectedVersion,
			Actual:      currentVersion,
		}
	}

	// Validation is complete, the whole batch goes in under one lock.
	for i := range events {
		env := events[i]
		m.events[aggregateID] = append(m.events[aggregateID], &env)
	}

	return nil
}

func (m *MemoryStore) LoadStream(ctx context.Context, aggregateID string) (*Iterator[*Envelope], error) {
	return m.LoadStreamFrom(ctx, aggregateID, 0)
}

func (m *MemoryStore) LoadStreamFrom(ctx context.Context, aggregateID string, version uint64) (*Iterator[*Envelope], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	stream := m.events[aggregateID]
	matched := make([]*Envelope, 0, len(stream))
	for _, env := range stream {
		if env.Version > version {
			matched = append(matched, env)
		}
	}
	m.mu.RUnlock()

	return NewSliceIterator(matched), nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = make(map[string][]*Envelope)
	return nil
}

var _ EventStore = (*MemoryStore)(nil)
