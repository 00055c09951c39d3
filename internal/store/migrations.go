package store

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaVersion is bumped whenever migrations gains an entry.
const schemaVersion = 1

// Keys in the meta table.
const (
	metaKeySchemaVersion = "schema_version"
	metaKeyDimensions    = "embedding_dimensions"
	metaKeyModel         = "embedding_model"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS passages (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		source_id  TEXT    NOT NULL,
		filename   TEXT    NOT NULL,
		position   INTEGER NOT NULL,
		text       TEXT    NOT NULL,
		length     INTEGER NOT NULL,
		embedding  BLOB    NOT NULL,
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_passages_source ON passages(source_id)`,
}

func migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range migrations {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO meta(key, value) VALUES(?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		metaKeySchemaVersion, fmt.Sprint(schemaVersion)); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return tx.Commit()
}
