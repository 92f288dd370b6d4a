package eventsource

import (
	"context"
	"sync"
)

// MemorySnapshotStore is an in-memory SnapshotStore. Only the snapshot with
// the highest version per aggregate is retained.
type MemorySnapshotStore struct {
	mu        sync.Mutex
	snapshots map[string]*Snapshot
}

// NewMemorySnapshotStore creates an empty in-memory snapshot store.
func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{
		snapshots: make(map[string]*Snapshot),
	}
}

func (m *MemorySnapshotStore) SaveSnapshot(ctx context.Context, snapshot *Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.snapshots[snapshot.AggregateID]; ok && existing.Version > snapshot.Version {
		// Keep the newer one visible.
		return nil
	}
	m.snapshots[snapshot.AggregateID] = snapshot
	return nil
}

func (m *MemorySnapshotStore) GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot, ok := m.snapshots[aggregateID]
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	return snapshot, nil
}

func (m *MemorySnapshotStore) DeleteSnapshots(ctx context.Context, aggregateID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snapshots, aggregateID)
	return nil
}

var _ SnapshotStore = (*MemorySnapshotStore)(nil)
