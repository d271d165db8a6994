package persistence

import (
	"context"
	"database/sql"
	"fmt"
)

const currentSchemaVersion = 1

// migrate brings db up to currentSchemaVersion using PRAGMA user_version as
// the applied-migration marker, matching the step-by-step style the repo's
// upsert/list layer already expects.
func migrate(ctx context.Context, db *sql.DB) error {
	version, err := schemaVersion(ctx, db)
	if err != nil {
		return err
	}

	if version < 1 {
		if err := migrateToV1(ctx, db); err != nil {
			return err
		}
	}

	return nil
}

func schemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRowContext(ctx, `PRAGMA user_version;`).Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}

	return version, nil
}

func migrateToV1(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS subscriptions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			handle_id TEXT NOT NULL,
			message_id INTEGER NULL,
			source_system INTEGER NOT NULL DEFAULT 0,
			source_component INTEGER NOT NULL DEFAULT 0,
			target_system INTEGER NOT NULL DEFAULT 0,
			target_component INTEGER NOT NULL DEFAULT 0,
			deliver_as_frame INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS subscriptions_handle_id_idx ON subscriptions(handle_id);`,
		`PRAGMA user_version = 1;`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate to schema v1: %w", err)
		}
	}

	return nil
}
