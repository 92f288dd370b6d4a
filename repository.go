package eventsource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// RepositoryOption configures a Repository.
type RepositoryOption[T Aggregate] func(*Repository[T])

// WithSnapshots enables snapshotting: after a successful save the strategy
// is consulted, and approved snapshots are written to the store. Snapshot
// failures are logged and swallowed; the event append remains the source of
// truth.
func WithSnapshots[T Aggregate](store SnapshotStore, strategy SnapshotStrategy) RepositoryOption[T] {
	return func(r *Repository[T]) {
		r.snapshots = store
		r.strategy = strategy
	}
}

// WithRepositoryLogger sets the structured logger. Defaults to slog.Default().
func WithRepositoryLogger[T Aggregate](log *slog.Logger) RepositoryOption[T] {
	return func(r *Repository[T]) {
		r.log = log
	}
}

// Repository rehydrates aggregates and persists new events with optimistic
// concurrency. It owns the aggregate during a load/save cycle.
type Repository[T Aggregate] struct {
	log       *slog.Logger
	store     EventStore
	snapshots SnapshotStore
	strategy  SnapshotStrategy
	factory   func(id string) T

	mu           sync.Mutex
	lastSnapshot map[string]uint64 // aggregate id -> version at last known snapshot
}

// NewRepository creates a repository over the given store. factory builds an
// empty aggregate for an ID; it is called on every load.
func NewRepository[T Aggregate](store EventStore, factory func(id string) T, opts ...RepositoryOption[T]) *Repository[T] {
	r := &Repository[T]{
		log:          slog.Default(),
		store:        store,
		factory:      factory,
		lastSnapshot: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetByID rehydrates the aggregate: latest snapshot first (when snapshotting
// is configured), then replay of every stored event above the snapshot
// version. Returns ErrAggregateNotFound when neither a snapshot nor any
// events exist.
func (r *Repository[T]) GetByID(ctx context.Context, aggregateID string) (T, error) {
	var zero T

	agg := r.factory(aggregateID)
	fromVersion := uint64(0)
	haveSnapshot := false

	if r.snapshots != nil {
		snapshot, err := r.snapshots.GetSnapshot(ctx, aggregateID)
		switch {
		case err == nil:
			// A snapshot that exists but cannot be restored is fatal:
			// the stored state is malformed, replaying on top of garbage
			// would silently corrupt the aggregate.
			if err := ApplySnapshot(agg, snapshot); err != nil {
				return zero, err
			}
			fromVersion = snapshot.Version
			haveSnapshot = true
			r.recordSnapshotVersion(aggregateID, snapshot.Version)
		case errors.Is(err, ErrSnapshotNotFound):
			// Full replay below.
		default:
			// A snapshot store that cannot be read only costs replay time.
			r.log.Warn("snapshot load failed, replaying full history",
				slog.String("aggregate_id", aggregateID),
				slog.Any("error", err),
			)
		}
	}

	iter, err := r.store.LoadStreamFrom(ctx, aggregateID, fromVersion)
	if err != nil {
		return zero, fmt.Errorf("load aggregate %q: %w", aggregateID, err)
	}

	applied := 0
	for iter.Next(ctx) {
		env := iter.Value()

		expect := agg.AggregateVersion() + 1
		if env.Version != expect {
			return zero, fmt.Errorf("load aggregate %q: %w: got version %d, want %d",
				aggregateID, ErrInvalidEventBatch, env.Version, expect)
		}
		if err := agg.ApplyEvent(env); err != nil {
			return zero, fmt.Errorf("apply event %q at version %d: %w",
				env.Event.EventType(), env.Version, err)
		}
		agg.SetAggregateVersion(env.Version)
		applied++
	}
	if err := iter.Err(); err != nil {
		return zero, fmt.Errorf("load aggregate %q: %w", aggregateID, err)
	}

	if !haveSnapshot && applied == 0 {
		return zero, ErrAggregateNotFound
	}

	r.log.Debug("aggregate loaded",
		slog.String("aggregate_id", aggregateID),
		slog.Uint64("version", agg.AggregateVersion()),
		slog.Bool("snapshot", haveSnapshot),
		slog.Int("events_replayed", applied),
	)

	return agg, nil
}

// Save appends the aggregate's uncommitted events with an expected version
// equal to the version before those events, then consults the snapshot
// strategy. A *ConcurrencyError from the store is propagated unchanged.
func (r *Repository[T]) Save(ctx context.Context, agg T) error {
	uncommitted := agg.UncommittedEvents()
	if len(uncommitted) == 0 {
		return nil
	}

	aggregateID := agg.EntityID()
	expectedVersion := agg.AggregateVersion()

	if err := r.store.Append(ctx, uncommitted, expectedVersion); err != nil {
		return err
	}

	newVersion := expectedVersion + uint64(len(uncommitted))
	agg.SetAggregateVersion(newVersion)
	agg.ClearUncommittedEvents()

	r.log.Debug("aggregate saved",
		slog.String("aggregate_id", aggregateID),
		slog.Uint64("version", newVersion),
		slog.Int("num_events", len(uncommitted)),
	)

	r.maybeSnapshot(ctx, agg, aggregateID, newVersion)

	return nil
}

func (r *Repository[T]) maybeSnapshot(ctx context.Context, agg T, aggregateID string, version uint64) {
	if r.snapshots == nil || r.strategy == nil {
		return
	}

	since := version - r.snapshotVersion(aggregateID)
	if !r.strategy.ShouldSnapshot(aggregateID, int(since)) {
		return
	}

	snapshot, err := CreateSnapshot(agg)
	if err != nil {
		r.log.Warn("snapshot creation failed",
			slog.String("aggregate_id", aggregateID),
			slog.Uint64("version", version),
			slog.Any("error", err),
		)
		return
	}
	if err := r.snapshots.SaveSnapshot(ctx, snapshot); err != nil {
		r.log.Warn("snapshot save failed",
			slog.String("aggregate_id", aggregateID),
			slog.Uint64("version", version),
			slog.Any("error", err),
		)
		return
	}

	r.recordSnapshotVersion(aggregateID, version)
	r.log.Debug("snapshot saved",
		slog.String("aggregate_id", aggregateID),
		slog.Uint64("version", version),
		slog.Int("size", len(snapshot.State)),
	)
}

func (r *Repository[T]) snapshotVersion(aggregateID string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSnapshot[aggregateID]
}

func (r *Repository[T]) recordSnapshotVersion(aggregateID string, version uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if version > r.lastSnapshot[aggregateID] {
		r.lastSnapshot[aggregateID] = version
	}
}
