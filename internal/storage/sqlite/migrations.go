package sqlite

import (
	"database/sql"
	"fmt"
)

// migrations are applied in order; user_version tracks progress.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS processing_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		data TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS processing_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		step TEXT NOT NULL,
		ts INTEGER NOT NULL,
		data TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS split_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		split_id TEXT NOT NULL,
		ts INTEGER NOT NULL,
		data TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS receipts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		receipt_id TEXT NOT NULL UNIQUE,
		ts INTEGER NOT NULL,
		data TEXT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_history_ts ON processing_history (ts);
	CREATE INDEX IF NOT EXISTS idx_splits_ts ON split_history (ts);`,
}

func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for i := version; i < len(migrations); i++ {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", i+1, err)
		}
		if _, err := tx.Exec(migrations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to bump schema version: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", i+1, err)
		}
	}
	return nil
}
