package database

import (
	"context"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS profiles (
	id         TEXT PRIMARY KEY,
	record     JSONB NOT NULL DEFAULT '{}'::jsonb,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS activity_events (
	id         BIGSERIAL PRIMARY KEY,
	user_id    TEXT NOT NULL,
	event_type TEXT NOT NULL,
	data       JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS activity_events_user_type_idx
	ON activity_events (user_id, event_type, created_at DESC);
`

// Migrate creates the tables used by the profile store and activity log.
// It is safe to run on every start.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}
