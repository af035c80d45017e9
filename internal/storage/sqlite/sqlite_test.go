package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"billfold/internal/models"
	"billfold/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestLoadStateFirstRun(t *testing.T) {
	store := newTestStore(t)

	state, err := store.LoadState(context.Background())
	if err != nil {
		t.Fatalf("LoadState() error = %v", err)
	}
	if state.State != models.StateEmpty {
		t.Errorf("state = %q, want %q", state.State, models.StateEmpty)
	}
	if state.CurrentReceipt != nil {
		t.Error("fresh state carries a receipt")
	}
}

func TestSaveAndLoadState(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	state := models.NewProcessingState()
	state.SessionID = "session-1"
	state.State = models.StateExtracted
	state.CurrentPDF = "uploads/receipt_1.pdf"
	state.CurrentReceipt = &models.Receipt{
		ID:        "receipt_1",
		StoreName: "Fresh Mart",
		Total:     882.00,
		Currency:  "₹",
	}

	if err := store.SaveState(ctx, state); err != nil {
		t.Fatalf("SaveState() error = %v", err)
	}

	loaded, err := store.LoadState(ctx)
	if err != nil {
		t.Fatalf("LoadState() error = %v", err)
	}
	if loaded.SessionID != "session-1" || loaded.State != models.StateExtracted {
		t.Errorf("loaded state = %+v", loaded)
	}
	if loaded.CurrentReceipt == nil || loaded.CurrentReceipt.StoreName != "Fresh Mart" {
		t.Errorf("loaded receipt = %+v", loaded.CurrentReceipt)
	}

	// Saving again overwrites the single record.
	state.State = models.StatePassGenerated
	if err := store.SaveState(ctx, state); err != nil {
		t.Fatalf("second SaveState() error = %v", err)
	}
	loaded, err = store.LoadState(ctx)
	if err != nil {
		t.Fatalf("LoadState() error = %v", err)
	}
	if loaded.State != models.StatePassGenerated {
		t.Errorf("state = %q, want %q", loaded.State, models.StatePassGenerated)
	}
}

func TestHistoryAppendOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	steps := []models.Stage{models.StageUpload, models.StageExtract, models.StagePassGen}
	for i, step := range steps {
		entry := models.HistoryEntry{
			Step:      step,
			SessionID: "session-1",
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Success:   true,
		}
		if err := store.AppendHistory(ctx, entry); err != nil {
			t.Fatalf("AppendHistory() error = %v", err)
		}
	}

	entries, err := store.History(ctx)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(entries) != len(steps) {
		t.Fatalf("got %d entries, want %d", len(entries), len(steps))
	}
	for i, step := range steps {
		if entries[i].Step != step {
			t.Errorf("entries[%d].Step = %q, want %q", i, entries[i].Step, step)
		}
	}
}

func TestLatestSplit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.LatestSplit(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("LatestSplit() on empty store error = %v, want ErrNotFound", err)
	}

	base := time.Now().UTC()
	for i, id := range []string{"split_aaa", "split_bbb"} {
		record := &models.SplitRecord{
			SplitID:   id,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}
		if err := store.AppendSplit(ctx, record); err != nil {
			t.Fatalf("AppendSplit() error = %v", err)
		}
	}

	latest, err := store.LatestSplit(ctx)
	if err != nil {
		t.Fatalf("LatestSplit() error = %v", err)
	}
	if latest.SplitID != "split_bbb" {
		t.Errorf("SplitID = %q, want split_bbb", latest.SplitID)
	}

	splits, err := store.Splits(ctx)
	if err != nil {
		t.Fatalf("Splits() error = %v", err)
	}
	if len(splits) != 2 || splits[0].SplitID != "split_aaa" {
		t.Errorf("unexpected splits: %+v", splits)
	}
}

func TestReceiptRoundtrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	receipt := &models.Receipt{
		ID:          "receipt_1",
		StoreName:   "Cafe Azzurro",
		Category:    models.ItemCategoryFood,
		Currency:    "₹",
		Total:       1402.00,
		ProcessedAt: time.Now().UTC(),
		Items: []models.LineItem{
			{Name: "Pizza", Quantity: 2, UnitPrice: 420, TotalPrice: 840, Category: models.ItemCategoryFood},
		},
	}
	if err := store.AppendReceipt(ctx, receipt); err != nil {
		t.Fatalf("AppendReceipt() error = %v", err)
	}

	loaded, err := store.ReceiptByID(ctx, "receipt_1")
	if err != nil {
		t.Fatalf("ReceiptByID() error = %v", err)
	}
	if loaded.StoreName != "Cafe Azzurro" || len(loaded.Items) != 1 {
		t.Errorf("loaded receipt = %+v", loaded)
	}

	if _, err := store.ReceiptByID(ctx, "receipt_missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("ReceiptByID(missing) error = %v, want ErrNotFound", err)
	}

	all, err := store.Receipts(ctx)
	if err != nil {
		t.Fatalf("Receipts() error = %v", err)
	}
	if len(all) != 1 {
		t.Errorf("got %d receipts, want 1", len(all))
	}
}

func TestCorruptStateReported(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveState(ctx, models.NewProcessingState()); err != nil {
		t.Fatalf("SaveState() error = %v", err)
	}
	if _, err := store.db.Exec("UPDATE processing_state SET data = 'not json' WHERE id = 1"); err != nil {
		t.Fatalf("failed to corrupt state: %v", err)
	}

	_, err := store.LoadState(ctx)
	if !storage.IsCorruption(err) {
		t.Fatalf("LoadState() error = %v, want CorruptionError", err)
	}
	var corruptionErr *storage.CorruptionError
	if errors.As(err, &corruptionErr) && corruptionErr.Collection != "processing_state" {
		t.Errorf("Collection = %q, want processing_state", corruptionErr.Collection)
	}
}

func TestCorruptSplitReported(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.AppendSplit(ctx, &models.SplitRecord{SplitID: "split_x", Timestamp: time.Now()}); err != nil {
		t.Fatalf("AppendSplit() error = %v", err)
	}
	if _, err := store.db.Exec("UPDATE split_history SET data = '{broken'"); err != nil {
		t.Fatalf("failed to corrupt split: %v", err)
	}

	if _, err := store.LatestSplit(ctx); !storage.IsCorruption(err) {
		t.Errorf("LatestSplit() error = %v, want CorruptionError", err)
	}
	if _, err := store.Splits(ctx); !storage.IsCorruption(err) {
		t.Errorf("Splits() error = %v, want CorruptionError", err)
	}
}

func TestDuplicateReceiptIDRejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	receipt := &models.Receipt{ID: "receipt_dup", ProcessedAt: time.Now()}
	if err := store.AppendReceipt(ctx, receipt); err != nil {
		t.Fatalf("AppendReceipt() error = %v", err)
	}
	if err := store.AppendReceipt(ctx, receipt); err == nil {
		t.Error("duplicate receipt id accepted")
	}
}
