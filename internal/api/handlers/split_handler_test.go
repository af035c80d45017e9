package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"billfold/internal/dto"
	"billfold/internal/models"
	"billfold/internal/service"
	"billfold/internal/storage"
	"billfold/internal/storage/sqlite"
	"billfold/pkg/config"
)

func newHandlerStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func storedReceipt(t *testing.T, store storage.Store, id, date string, total float64) {
	t.Helper()
	err := store.AppendReceipt(context.Background(), &models.Receipt{
		ID:        id,
		StoreName: "Fresh Mart",
		Date:      date,
		Category:  models.ItemCategoryGroceries,
		Currency:  "₹",
		Subtotal:  total,
		Total:     total,
	})
	if err != nil {
		t.Fatalf("failed to store receipt: %v", err)
	}
}

func newSplitApp(t *testing.T, store storage.Store) *fiber.App {
	t.Helper()
	handler := NewSplitHandler(
		service.NewSplitService(store, zap.NewNop()),
		config.UPIConfig{PayeeVPA: "9205704825@ptsbi", PayeeName: "Maisha"},
		zap.NewNop(),
	)
	app := fiber.New()
	app.Post("/split-bill", handler.SplitBill)
	app.Post("/generate-upi", handler.GenerateUPI)
	return app
}

func postJSON(t *testing.T, app *fiber.App, path string, body interface{}) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}
	req := httptest.NewRequest("POST", path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func TestSplitBillUsesRequestPayee(t *testing.T) {
	store := newHandlerStore(t)
	storedReceipt(t, store, "receipt_1", "2026-08-20", 100.00)
	app := newSplitApp(t, store)

	resp := postJSON(t, app, "/split-bill", map[string]interface{}{
		"receipt_id": "receipt_1",
		"contacts": []models.Contact{
			{Name: "Alice", Phone: "+919000000001", Email: "alice@example.com"},
			{Name: "Bob", Phone: "+919000000002", Email: "bob@example.com"},
		},
		"upi_payee_vpa":  "friend@okicici",
		"upi_payee_name": "Friend",
	})
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, fiber.StatusOK)
	}

	var parsed dto.SplitBillResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(parsed.SplitData.UPILinks) != 2 {
		t.Fatalf("got %d links, want 2", len(parsed.SplitData.UPILinks))
	}
	for i, link := range parsed.SplitData.UPILinks {
		if !strings.Contains(link.Link, "pa=friend%40okicici") {
			t.Errorf("link[%d] = %q, want payee from the request body", i, link.Link)
		}
		if strings.Contains(link.Link, "9205704825") {
			t.Errorf("link[%d] = %q, default payee leaked in", i, link.Link)
		}
	}
}

func TestGenerateUPIRejectsStaleReceiptID(t *testing.T) {
	store := newHandlerStore(t)
	storedReceipt(t, store, "receipt_1", "2026-08-20", 100.00)
	app := newSplitApp(t, store)

	resp := postJSON(t, app, "/split-bill", map[string]interface{}{
		"receipt_id": "receipt_1",
		"contacts": []models.Contact{
			{Name: "Alice", Phone: "+919000000001", Email: "alice@example.com"},
		},
	})
	resp.Body.Close()
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("split status = %d, want %d", resp.StatusCode, fiber.StatusOK)
	}

	resp = postJSON(t, app, "/generate-upi", map[string]interface{}{"receipt_id": "receipt_gone"})
	defer resp.Body.Close()
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, fiber.StatusBadRequest)
	}

	resp2 := postJSON(t, app, "/generate-upi", map[string]interface{}{"receipt_id": "receipt_1"})
	defer resp2.Body.Close()
	if resp2.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want %d for the matching receipt", resp2.StatusCode, fiber.StatusOK)
	}
}
