// Package postgres provides a PostgreSQL implementation of
// storage.Store, selected with DB_DRIVER=postgres.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"billfold/internal/models"
	"billfold/internal/storage"
	"billfold/pkg/config"
)

var _ storage.Store = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS processing_state (
	id INT PRIMARY KEY CHECK (id = 1),
	data JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS processing_history (
	id BIGSERIAL PRIMARY KEY,
	step TEXT NOT NULL,
	ts BIGINT NOT NULL,
	data JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS split_history (
	id BIGSERIAL PRIMARY KEY,
	split_id TEXT NOT NULL,
	ts BIGINT NOT NULL,
	data JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS receipts (
	id BIGSERIAL PRIMARY KEY,
	receipt_id TEXT NOT NULL UNIQUE,
	ts BIGINT NOT NULL,
	data JSONB NOT NULL
);
`

// Store implements storage.Store on a pgx connection pool.
type Store struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// New connects to PostgreSQL, verifies the connection and ensures the
// schema exists.
func New(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (*Store, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	logger.Info("Database connection established",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.DBName),
	)

	return &Store{db: pool, logger: logger}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.db.Close()
	return nil
}

func (s *Store) LoadState(ctx context.Context) (*models.ProcessingState, error) {
	query := squirrel.Select("data").
		From("processing_state").
		Where(squirrel.Eq{"id": 1}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	var raw []byte
	err = s.db.QueryRow(ctx, sql, args...).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
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

func (s *Store) SaveState(ctx context.Context, state *models.ProcessingState) error {
	state.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode processing state: %w", err)
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO processing_state (id, data, updated_at) VALUES (1, $1, $2)
		 ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		raw, state.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save processing state: %w", err)
	}
	return nil
}

func (s *Store) AppendHistory(ctx context.Context, entry models.HistoryEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode history entry: %w", err)
	}
	return s.insert(ctx, squirrel.Insert("processing_history").
		Columns("step", "ts", "data").
		Values(string(entry.Step), entry.Timestamp.UnixNano(), raw))
}

func (s *Store) History(ctx context.Context) ([]models.HistoryEntry, error) {
	rows, err := s.queryData(ctx, "processing_history")
	if err != nil {
		return nil, err
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

func (s *Store) AppendSplit(ctx context.Context, record *models.SplitRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode split record: %w", err)
	}
	return s.insert(ctx, squirrel.Insert("split_history").
		Columns("split_id", "ts", "data").
		Values(record.SplitID, record.Timestamp.UnixNano(), raw))
}

func (s *Store) Splits(ctx context.Context) ([]*models.SplitRecord, error) {
	rows, err := s.queryData(ctx, "split_history")
	if err != nil {
		return nil, err
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

func (s *Store) LatestSplit(ctx context.Context) (*models.SplitRecord, error) {
	query := squirrel.Select("data").
		From("split_history").
		OrderBy("ts DESC", "id DESC").
		Limit(1).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	var raw []byte
	err = s.db.QueryRow(ctx, sql, args...).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
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

func (s *Store) AppendReceipt(ctx context.Context, receipt *models.Receipt) error {
	raw, err := json.Marshal(receipt)
	if err != nil {
		return fmt.Errorf("failed to encode receipt: %w", err)
	}
	return s.insert(ctx, squirrel.Insert("receipts").
		Columns("receipt_id", "ts", "data").
		Values(receipt.ID, receipt.ProcessedAt.UnixNano(), raw))
}

func (s *Store) Receipts(ctx context.Context) ([]*models.Receipt, error) {
	rows, err := s.queryData(ctx, "receipts")
	if err != nil {
		return nil, err
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

func (s *Store) ReceiptByID(ctx context.Context, id string) (*models.Receipt, error) {
	query := squirrel.Select("data").
		From("receipts").
		Where(squirrel.Eq{"receipt_id": id}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	var raw []byte
	err = s.db.QueryRow(ctx, sql, args...).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
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

func (s *Store) insert(ctx context.Context, builder squirrel.InsertBuilder) error {
	sql, args, err := builder.PlaceholderFormat(squirrel.Dollar).ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert failed: %w", err)
	}
	return nil
}

func (s *Store) queryData(ctx context.Context, table string) (pgx.Rows, error) {
	query := squirrel.Select("data").
		From(table).
		OrderBy("ts", "id").
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	return rows, nil
}
