// Package sqlite provides the default SQLite-backed implementation of
// storage.Store using the pure Go driver (no CGO).
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"billfold/internal/models"
	"billfold/internal/storage"
)

var _ storage.Store = (*Store)(nil)

// Store implements storage.Store on a SQLite database. Records are
// stored as JSON documents in per-collection tables; SQLite's
// transactional writes give the required reader/writer atomicity.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at path and runs migrations.
// Use ":memory:" for an ephemeral store in tests.
func New(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection avoids table-lock contention between the
	// pooled connections modernc/sqlite would otherwise open.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// LoadState returns the current processing state, or a default empty
// state when none has been saved yet.
func (s *Store) LoadState(ctx context.Context) (*models.ProcessingState, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM processing_state WHERE id = 1").Scan(&raw)
	if err == sql.ErrNoRows {
		return models.NewProcessingState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load processing state: %w", err)
	}

	var state models.ProcessingState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, &storage.CorruptionError{Collection: "processing_state", Err: err}
	}
	return &state, nil
}

// SaveState overwrites the processing state in a single upsert.
func (s *Store) SaveState(ctx context.Context, state *models.ProcessingState) error {
	state.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode processing state: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO processing_state (id, data, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		raw, state.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save processing state: %w", err)
	}
	return nil
}

// AppendHistory appends one immutable processing history entry.
func (s *Store) AppendHistory(ctx context.Context, entry models.HistoryEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode history entry: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO processing_history (step, ts, data) VALUES (?, ?, ?)",
		string(entry.Step), entry.Timestamp.UnixNano(), raw,
	)
	if err != nil {
		return fmt.Errorf("failed to append history entry: %w", err)
	}
	return nil
}

// History returns all history entries ordered by time.
func (s *Store) History(ctx context.Context) ([]models.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT data FROM processing_history ORDER BY ts, id")
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []models.HistoryEntry
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		var entry models.HistoryEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, &storage.CorruptionError{Collection: "processing_history", Err: err}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// AppendSplit appends one immutable split record.
func (s *Store) AppendSplit(ctx context.Context, record *models.SplitRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode split record: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO split_history (split_id, ts, data) VALUES (?, ?, ?)",
		record.SplitID, record.Timestamp.UnixNano(), raw,
	)
	if err != nil {
		return fmt.Errorf("failed to append split record: %w", err)
	}
	return nil
}

// Splits returns all split records ordered by time.
func (s *Store) Splits(ctx context.Context) ([]*models.SplitRecord, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT data FROM split_history ORDER BY ts, id")
	if err != nil {
		return nil, fmt.Errorf("failed to query splits: %w", err)
	}
	defer rows.Close()

	var records []*models.SplitRecord
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan split record: %w", err)
		}
		var record models.SplitRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			return nil, &storage.CorruptionError{Collection: "split_history", Err: err}
		}
		records = append(records, &record)
	}
	return records, rows.Err()
}

// LatestSplit returns the most recently appended split record.
func (s *Store) LatestSplit(ctx context.Context) (*models.SplitRecord, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM split_history ORDER BY ts DESC, id DESC LIMIT 1").Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest split: %w", err)
	}

	var record models.SplitRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, &storage.CorruptionError{Collection: "split_history", Err: err}
	}
	return &record, nil
}

// AppendReceipt appends one receipt to the permanent collection.
func (s *Store) AppendReceipt(ctx context.Context, receipt *models.Receipt) error {
	raw, err := json.Marshal(receipt)
	if err != nil {
		return fmt.Errorf("failed to encode receipt: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO receipts (receipt_id, ts, data) VALUES (?, ?, ?)",
		receipt.ID, receipt.ProcessedAt.UnixNano(), raw,
	)
	if err != nil {
		return fmt.Errorf("failed to append receipt: %w", err)
	}
	return nil
}

// Receipts returns all stored receipts ordered by processing time.
func (s *Store) Receipts(ctx context.Context) ([]*models.Receipt, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT data FROM receipts ORDER BY ts, id")
	if err != nil {
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}
	defer rows.Close()

	var receipts []*models.Receipt
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan receipt: %w", err)
		}
		var receipt models.Receipt
		if err := json.Unmarshal(raw, &receipt); err != nil {
			return nil, &storage.CorruptionError{Collection: "receipts", Err: err}
		}
		receipts = append(receipts, &receipt)
	}
	return receipts, rows.Err()
}

// ReceiptByID returns one receipt by its identifier.
func (s *Store) ReceiptByID(ctx context.Context, id string) (*models.Receipt, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM receipts WHERE receipt_id = ?", id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load receipt %s: %w", id, err)
	}

	var receipt models.Receipt
	if err := json.Unmarshal(raw, &receipt); err != nil {
		return nil, &storage.CorruptionError{Collection: "receipts", Err: err}
	}
	return &receipt, nil
}
