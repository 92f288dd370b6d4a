package eventsource

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Snapshot is a cached materialization of aggregate state at a known version.
// Losing a snapshot only costs replay time, never correctness: the event
// stream stays the single source of truth.
type Snapshot struct {
	AggregateID string    `json:"aggregate_id"`
	Version     uint64    `json:"aggregate_version"`
	State       []byte    `json:"state"`
	CreatedAt   time.Time `json:"created_at"`
}

// SnapshotStore persists aggregate snapshots. A store may retain history
// internally, but GetSnapshot always returns the most recent snapshot by
// version.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snapshot *Snapshot) error

	// GetSnapshot returns the latest snapshot for the aggregate, or
	// ErrSnapshotNotFound.
	GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error)

	DeleteSnapshots(ctx context.Context, aggregateID string) error
}

// Snapshottable lets an aggregate control its own snapshot encoding.
// Aggregates that do not implement it are marshalled as JSON.
type Snapshottable interface {
	SnapshotState() ([]byte, error)
	RestoreSnapshot(state []byte) error
}

// CreateSnapshot captures the aggregate's current state. The aggregate must
// have no uncommitted events, i.e. its version reflects the stored stream.
func CreateSnapshot(agg Aggregate) (*Snapshot, error) {
	var (
		state []byte
		err   error
	)
	if s, ok := any(agg).(Snapshottable); ok {
		state, err = s.SnapshotState()
	} else {
		state, err = json.Marshal(agg)
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot aggregate %q: %w", agg.EntityID(), err)
	}

	return &Snapshot{
		AggregateID: agg.EntityID(),
		Version:     agg.AggregateVersion(),
		State:       state,
		CreatedAt:   now(),
	}, nil
}

// ApplySnapshot restores an aggregate from a snapshot and sets its version.
// A payload that cannot be restored is a fatal, non-retryable condition.
func ApplySnapshot(agg Aggregate, snapshot *Snapshot) error {
	var err error
	if s, ok := any(agg).(Snapshottable); ok {
		err = s.RestoreSnapshot(snapshot.State)
	} else {
		err = json.Unmarshal(snapshot.State, agg)
	}
	if err != nil {
		return fmt.Errorf("restore snapshot for aggregate %q at version %d: %w",
			snapshot.AggregateID, snapshot.Version, err)
	}
	agg.SetAggregateVersion(snapshot.Version)
	return nil
}
