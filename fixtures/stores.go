package fixtures

import (
	"context"
	"sync"

	es "github.com/tidemark/eventsource"
)

// StoreSpy is a configurable mock EventStore for testing.
// It tracks calls and allows injecting custom behavior or failures.
type StoreSpy struct {
	mu sync.Mutex

	// Function overrides for custom behavior
	AppendFn         func(ctx context.Context, events []es.Envelope, expectedVersion uint64) error
	LoadStreamFn     func(ctx context.Context, id string) (*es.Iterator[*es.Envelope], error)
	LoadStreamFromFn func(ctx context.Context, id string, version uint64) (*es.Iterator[*es.Envelope], error)
	CloseFn          func() error

	// Call tracking
	AppendCalls         int
	LoadStreamCalls     int
	LoadStreamFromCalls int
	CloseCalls          int

	// Captured arguments from last call
	LastAppendEvents    []es.Envelope
	LastExpectedVersion uint64
	LastLoadStreamID    string

	// Pre-configured data
	events map[string][]*es.Envelope

	// Error injection
	loadErr   error
	appendErr error
}

// NewStoreSpy creates a new StoreSpy with default behavior.
func NewStoreSpy() *StoreSpy {
	return &StoreSpy{
		events: make(map[string][]*es.Envelope),
	}
}

// WithEvents pre-populates the store with events for an aggregate.
func (s *StoreSpy) WithEvents(aggregateID string, envelopes ...*es.Envelope) *StoreSpy {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[aggregateID] = envelopes
	return s
}

// FailOnLoad configures the store to return an error on load operations.
func (s *StoreSpy) FailOnLoad(err error) *StoreSpy {
	s.loadErr = err
	return s
}

// FailOnAppend configures the store to return an error on append.
func (s *StoreSpy) FailOnAppend(err error) *StoreSpy {
	s.appendErr = err
	return s
}

// Append implements EventStore.Append.
func (s *StoreSpy) Append(ctx context.Context, events []es.Envelope, expectedVersion uint64) error {
	s.mu.Lock()
	s.AppendCalls++
	s.LastAppendEvents = events
	s.LastExpectedVersion = expectedVersion
	s.mu.Unlock()

	if s.AppendFn != nil {
		return s.AppendFn(ctx, events, expectedVersion)
	}
	if s.appendErr != nil {
		return s.appendErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range events {
		env := events[i]
		s.events[env.AggregateID] = append(s.events[env.AggregateID], &env)
	}
	return nil
}

// LoadStream implements EventStore.LoadStream.
func (s *StoreSpy) LoadStream(ctx context.Context, id string) (*es.Iterator[*es.Envelope], error) {
	s.mu.Lock()
	s.LoadStreamCalls++
	s.LastLoadStreamID = id
	s.mu.Unlock()

	if s.LoadStreamFn != nil {
		return s.LoadStreamFn(ctx, id)
	}
	if s.loadErr != nil {
		return nil, s.loadErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return es.NewSliceIterator(s.events[id]), nil
}

// LoadStreamFrom implements EventStore.LoadStreamFrom.
func (s *StoreSpy) LoadStreamFrom(ctx context.Context, id string, version uint64) (*es.Iterator[*es.Envelope], error) {
	s.mu.Lock()
	s.LoadStreamFromCalls++
	s.LastLoadStreamID = id
	s.mu.Unlock()

	if s.LoadStreamFromFn != nil {
		return s.LoadStreamFromFn(ctx, id, version)
	}
	if s.loadErr != nil {
		return nil, s.loadErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var filtered []*es.Envelope
	for _, env := range s.events[id] {
		if env.Version > version {
			filtered = append(filtered, env)
		}
	}
	return es.NewSliceIterator(filtered), nil
}

// Close implements EventStore.Close.
func (s *StoreSpy) Close() error {
	s.mu.Lock()
	s.CloseCalls++
	s.mu.Unlock()

	if s.CloseFn != nil {
		return s.CloseFn()
	}
	return nil
}

var _ es.EventStore = (*StoreSpy)(nil)

// SnapshotStoreSpy is a configurable mock SnapshotStore.
type SnapshotStoreSpy struct {
	mu sync.Mutex

	SaveCalls   int
	GetCalls    int
	DeleteCalls int

	snapshots map[string]*es.Snapshot

	saveErr error
	getErr  error
}

// NewSnapshotStoreSpy creates a new SnapshotStoreSpy.
func NewSnapshotStoreSpy() *SnapshotStoreSpy {
	return &SnapshotStoreSpy{
		snapshots: make(map[string]*es.Snapshot),
	}
}

// FailOnSave configures the spy to return an error on SaveSnapshot.
func (s *SnapshotStoreSpy) FailOnSave(err error) *SnapshotStoreSpy {
	s.saveErr = err
	return s
}

// FailOnGet configures the spy to return an error on GetSnapshot.
func (s *SnapshotStoreSpy) FailOnGet(err error) *SnapshotStoreSpy {
	s.getErr = err
	return s
}

// SaveSnapshot implements SnapshotStore.SaveSnapshot.
func (s *SnapshotStoreSpy) SaveSnapshot(ctx context.Context, snapshot *es.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.SaveCalls++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.snapshots[snapshot.AggregateID] = snapshot
	return nil
}

// GetSnapshot implements SnapshotStore.GetSnapshot.
func (s *SnapshotStoreSpy) GetSnapshot(ctx context.Context, aggregateID string) (*es.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.GetCalls++
	if s.getErr != nil {
		return nil, s.getErr
	}
	snapshot, ok := s.snapshots[aggregateID]
	if !ok {
		return nil, es.ErrSnapshotNotFound
	}
	return snapshot, nil
}

// DeleteSnapshots implements SnapshotStore.DeleteSnapshots.
func (s *SnapshotStoreSpy) DeleteSnapshots(ctx context.Context, aggregateID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.DeleteCalls++
	delete(s.snapshots, aggregateID)
	return nil
}

var _ es.SnapshotStore = (*SnapshotStoreSpy)(nil)
