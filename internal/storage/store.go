// Package storage provides the persistence abstraction owning all
// pipeline state: the current processing state, the receipt
// collection, the processing history and the split history.
package storage

import (
	"context"
	"errors"
	"fmt"

	"billfold/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// CorruptionError reports stored data that could not be decoded. The
// store never repairs corrupt records on its own; recovery requires an
// explicit caller decision (the /reload endpoint).
type CorruptionError struct {
	Collection string
	Err        error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("corrupt %s record: %v", e.Collection, e.Err)
}

func (e *CorruptionError) Unwrap() error { return e.Err }

// IsCorruption reports whether err indicates unreadable stored state.
func IsCorruption(err error) bool {
	var ce *CorruptionError
	return errors.As(err, &ce)
}

// Store is the single source of truth for persisted pipeline data.
// All writes are atomic with respect to concurrent readers: a reader
// observes either the previous or the new fully committed value, never
// a torn record. History, split and receipt collections are
// append-only; the processing state is a single overwritten record.
type Store interface {
	// LoadState returns the last committed processing state, or the
	// default empty state on first run.
	LoadState(ctx context.Context) (*models.ProcessingState, error)
	// SaveState overwrites the processing state.
	SaveState(ctx context.Context, state *models.ProcessingState) error

	AppendHistory(ctx context.Context, entry models.HistoryEntry) error
	History(ctx context.Context) ([]models.HistoryEntry, error)

	AppendSplit(ctx context.Context, record *models.SplitRecord) error
	Splits(ctx context.Context) ([]*models.SplitRecord, error)
	// LatestSplit returns the most recently appended split record, or
	// ErrNotFound when no split has been recorded yet.
	LatestSplit(ctx context.Context) (*models.SplitRecord, error)

	AppendReceipt(ctx context.Context, receipt *models.Receipt) error
	Receipts(ctx context.Context) ([]*models.Receipt, error)
	ReceiptByID(ctx context.Context, id string) (*models.Receipt, error)

	Close() error
}
