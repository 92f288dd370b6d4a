package postgres

import (
	"context"
	"fmt"
)

// Schema returns the DDL for the adapter's tables, parameterized on the
// config's table names. Run it once at deploy time or from a migration tool.
func Schema(config StoreConfig) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	event_id     UUID PRIMARY KEY,
	aggregate_id TEXT NOT NULL,
	event_type   TEXT NOT NULL,
	version      BIGINT NOT NULL,
	payload      JSONB NOT NULL,
	metadata     JSONB,
	occurred_at  TIMESTAMPTZ NOT NULL,
	UNIQUE (aggregate_id, version)
);

CREATE TABLE IF NOT EXISTS %[2]s (
	aggregate_id TEXT PRIMARY KEY,
	version      BIGINT NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshots (
	aggregate_id TEXT PRIMARY KEY,
	version      BIGINT NOT NULL,
	state        JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL
);
`, config.EventsTable, config.AggregateHeadsTable)
}

// Migrate applies the schema on db.
func Migrate(ctx context.Context, db Querier, config StoreConfig) error {
	_, err := db.Exec(ctx, Schema(config))
	return err
}
