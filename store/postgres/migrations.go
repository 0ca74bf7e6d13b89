package postgres

import (
	"context"

	_ "github.com/xraph/grove/drivers/pgdriver/pgmigrate" // registers the migration executor
	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Beacon store.
// It can be registered with the grove extension for orchestrated migration
// management (locking, version tracking, rollback support).
var Migrations = migrate.NewGroup("beacon")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_beacon_events",
			Version: "20240101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS beacon_events (
    id          BIGSERIAL PRIMARY KEY,
    event_type  TEXT NOT NULL,
    event_data  JSONB NOT NULL DEFAULT '{}',
    page_url    TEXT NOT NULL DEFAULT '',
    referrer    TEXT NOT NULL DEFAULT '',
    session_id  TEXT NOT NULL DEFAULT '',
    user_agent  TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_beacon_events_type_created ON beacon_events (event_type, created_at);
CREATE INDEX IF NOT EXISTS idx_beacon_events_created ON beacon_events (created_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS beacon_events`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "add_beacon_events_session_index",
			Version: "20240101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE INDEX IF NOT EXISTS idx_beacon_events_session ON beacon_events (session_id, created_at);
CREATE INDEX IF NOT EXISTS idx_beacon_events_data ON beacon_events USING GIN (event_data jsonb_path_ops);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP INDEX IF EXISTS idx_beacon_events_data;
DROP INDEX IF EXISTS idx_beacon_events_session;
`)
				return err
			},
		},
	)
}
