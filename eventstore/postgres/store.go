// Package postgres provides a PostgreSQL adapter for the event store,
// snapshot store and unit of work, built on pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tidemark/eventsource"
)

// Querier is the minimal pgx surface the adapter needs. It is satisfied by
// both *pgxpool.Pool and pgx.Tx, so callers control transaction boundaries:
// bind a store to a pool for standalone use or to a transaction through a
// unit of work.
type Querier interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ Querier = (*pgxpool.Pool)(nil)

// StoreConfig names the tables the store uses. Immutable after construction.
type StoreConfig struct {
	EventsTable string

	// AggregateHeadsTable tracks the current version per aggregate for O(1)
	// optimistic concurrency checks.
	AggregateHeadsTable string
}

// DefaultStoreConfig returns the default table names.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		EventsTable:         "events",
		AggregateHeadsTable: "aggregate_heads",
	}
}

// Store is a PostgreSQL-backed EventStore. Appends run inside a transaction
// on the bound Querier; binding the store to an existing transaction makes
// the inner Begin a savepoint, so event persistence can join a larger unit
// of work.
type Store struct {
	db       Querier
	config   StoreConfig
	registry *eventsource.EventRegistry
}

// NewStore creates a store bound to db. The registry decodes persisted
// payloads back into concrete events on load.
func NewStore(db Querier, registry *eventsource.EventRegistry, config StoreConfig) *Store {
	return &Store{
		db:       db,
		config:   config,
		registry: registry,
	}
}

// WithTx returns a copy of the store bound to tx, so appends and loads
// participate in the caller's transaction.
func (s *Store) WithTx(tx pgx.Tx) *Store {
	bound := *s
	bound.db = tx
	return &bound
}

func (s *Store) Append(ctx context.Context, events []eventsource.Envelope, expectedVersion uint64) error {
	if len(events) == 0 {
		return nil
	}
	if err := validateBatch(events, expectedVersion); err != nil {
		return err
	}
	aggregateID := events[0].AggregateID

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return eventsource.WrapEventStoreError(err)
	}
	defer tx.Rollback(ctx)

	actual, err := s.currentVersion(ctx, tx, aggregateID)
	if err != nil {
		return eventsource.WrapEventStoreError(err)
	}
	if actual != expectedVersion {
		return &eventsource.ConcurrencyError{
			AggregateID: aggregateID,
			Expected:    expectedVersion,
			Actual:      actual,
		}
	}

	insertSQL := fmt.Sprintf(`
		INSERT INTO %s (event_id, aggregate_id, event_type, version, payload, metadata, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, s.config.EventsTable)

	for i := range events {
		env := &events[i]

		payload := env.Data
		if payload == nil {
			payload, err = json.Marshal(env.Event)
			if err != nil {
				return fmt.Errorf("marshal event %q: %w", env.Event.EventType(), err)
			}
		}
		metadata, err := json.Marshal(env.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for event %q: %w", env.Event.EventType(), err)
		}

		_, err = tx.Exec(ctx, insertSQL,
			env.EventID,
			env.AggregateID,
			env.Event.EventType(),
			env.Version,
			payload,
			metadata,
			env.OccurredAt,
		)
		if err != nil {
			// A concurrent writer slipped in between our version check and
			// the insert; the unique (aggregate_id, version) index catches it.
			if isUniqueViolation(err) {
				return &eventsource.ConcurrencyError{
					AggregateID: aggregateID,
					Expected:    expectedVersion,
					Actual:      expectedVersion + uint64(i) + 1,
				}
			}
			return eventsource.WrapEventStoreError(err)
		}
	}

	headSQL := fmt.Sprintf(`
		INSERT INTO %s (aggregate_id, version, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (aggregate_id)
		DO UPDATE SET version = $2, updated_at = NOW()
	`, s.config.AggregateHeadsTable)

	latest := expectedVersion + uint64(len(events))
	if _, err := tx.Exec(ctx, headSQL, aggregateID, latest); err != nil {
		return eventsource.WrapEventStoreError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return eventsource.WrapEventStoreError(err)
	}
	return nil
}

func (s *Store) LoadStream(ctx context.Context, aggregateID string) (*eventsource.Iterator[*eventsource.Envelope], error) {
	return s.LoadStreamFrom(ctx, aggregateID, 0)
}

func (s *Store) LoadStreamFrom(ctx context.Context, aggregateID string, version uint64) (*eventsource.Iterator[*eventsource.Envelope], error) {
	query := fmt.Sprintf(`
		SELECT event_id, aggregate_id, event_type, version, payload, metadata, occurred_at
		FROM %s
		WHERE aggregate_id = $1 AND version > $2
		ORDER BY version ASC
	`, s.config.EventsTable)

	rows, err := s.db.Query(ctx, query, aggregateID, version)
	if err != nil {
		return nil, eventsource.WrapEventStoreError(err)
	}
	defer rows.Close()

	var envelopes []*eventsource.Envelope
	for rows.Next() {
		var (
			env       eventsource.Envelope
			eventType string
			metadata  []byte
		)
		err := rows.Scan(
			&env.EventID,
			&env.AggregateID,
			&eventType,
			&env.Version,
			&env.Data,
			&metadata,
			&env.OccurredAt,
		)
		if err != nil {
			return nil, eventsource.WrapEventStoreError(err)
		}

		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &env.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata for event %q: %w", eventType, err)
			}
		}
		env.Event, err = s.registry.Decode(eventType, env.Data)
		if err != nil {
			return nil, err
		}
		envelopes = append(envelopes, &env)
	}
	if err := rows.Err(); err != nil {
		return nil, eventsource.WrapEventStoreError(err)
	}

	return eventsource.NewSliceIterator(envelopes), nil
}

// Close is a no-op; the pool's lifecycle belongs to the caller.
func (s *Store) Close() error {
	return nil
}

func (s *Store) currentVersion(ctx context.Context, tx pgx.Tx, aggregateID string) (uint64, error) {
	query := fmt.Sprintf(`
		SELECT version FROM %s WHERE aggregate_id = $1 FOR UPDATE
	`, s.config.AggregateHeadsTable)

	var version uint64
	err := tx.QueryRow(ctx, query, aggregateID).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return version, nil
}

func validateBatch(events []eventsource.Envelope, expectedVersion uint64) error {
	aggregateID := events[0].AggregateID
	for i := range events {
		env := &events[i]
		if env.AggregateID != aggregateID {
			return fmt.Errorf("%w: event %d belongs to aggregate %q, batch is for %q",
				eventsource.ErrInvalidEventBatch, i, env.AggregateID, aggregateID)
		}
		if want := expectedVersion + uint64(i) + 1; env.Version != want {
			return fmt.Errorf("%w: event %d has version %d, want %d",
				eventsource.ErrInvalidEventBatch, i, env.Version, want)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ eventsource.EventStore = (*Store)(nil)
