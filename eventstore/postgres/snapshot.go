package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/tidemark/eventsource"
)

// SnapshotStore is a PostgreSQL-backed SnapshotStore keeping one row per
// aggregate: the highest-version snapshot seen so far. A stale save (lower
// version than the stored row) is silently ignored.
type SnapshotStore struct {
	db    Querier
	table string
}

// NewSnapshotStore creates a snapshot store bound to db. An empty table name
// defaults to "snapshots".
func NewSnapshotStore(db Querier, table string) *SnapshotStore {
	if table == "" {
		table = "snapshots"
	}
	return &SnapshotStore{db: db, table: table}
}

// WithTx returns a copy of the store bound to tx.
func (s *SnapshotStore) WithTx(tx pgx.Tx) *SnapshotStore {
	bound := *s
	bound.db = tx
	return &bound
}

func (s *SnapshotStore) SaveSnapshot(ctx context.Context, snapshot *eventsource.Snapshot) error {
	query := fmt.Sprintf(`
		INSERT INTO %[1]s (aggregate_id, version, state, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (aggregate_id)
		DO UPDATE SET version = $2, state = $3, created_at = $4
		WHERE %[1]s.version < $2
	`, s.table)

	_, err := s.db.Exec(ctx, query,
		snapshot.AggregateID,
		snapshot.Version,
		snapshot.State,
		snapshot.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save snapshot for aggregate %q: %w", snapshot.AggregateID, err)
	}
	return nil
}

func (s *SnapshotStore) GetSnapshot(ctx context.Context, aggregateID string) (*eventsource.Snapshot, error) {
	query := fmt.Sprintf(`
		SELECT aggregate_id, version, state, created_at
		FROM %s
		WHERE aggregate_id = $1
	`, s.table)

	var snapshot eventsource.Snapshot
	err := s.db.QueryRow(ctx, query, aggregateID).Scan(
		&snapshot.AggregateID,
		&snapshot.Version,
		&snapshot.State,
		&snapshot.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eventsource.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot for aggregate %q: %w", aggregateID, err)
	}
	return &snapshot, nil
}

func (s *SnapshotStore) DeleteSnapshots(ctx context.Context, aggregateID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE aggregate_id = $1`, s.table)
	if _, err := s.db.Exec(ctx, query, aggregateID); err != nil {
		return fmt.Errorf("delete snapshots for aggregate %q: %w", aggregateID, err)
	}
	return nil
}

var _ eventsource.SnapshotStore = (*SnapshotStore)(nil)
