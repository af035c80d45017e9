package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"go.uber.org/zap"

	"billfold/internal/models"
	"billfold/internal/storage"
)

func TestSplitSharesSumToTotal(t *testing.T) {
	tests := []struct {
		name         string
		total        float64
		contacts     []string
		wantAmounts  []float64
		validateFunc func(t *testing.T, record *models.SplitRecord)
	}{
		{
			name:        "even split",
			total:       100.00,
			contacts:    []string{"Alice", "Bob", "Carol", "Dave"},
			wantAmounts: []float64{25.00, 25.00, 25.00, 25.00},
		},
		{
			name:        "remainder goes to first contact",
			total:       10.00,
			contacts:    []string{"Alice", "Bob", "Carol"},
			wantAmounts: []float64{3.34, 3.33, 3.33},
		},
		{
			name:        "negative remainder reduces first share",
			total:       99.98,
			contacts:    []string{"Alice", "Bob", "Carol"},
			wantAmounts: []float64{33.32, 33.33, 33.33},
		},
		{
			// Per-person rounding overshoots (1 paisa rounds up to 1
			// each), so the first share absorbs a negative remainder.
			name:        "one paisa among two",
			total:       0.01,
			contacts:    []string{"Alice", "Bob"},
			wantAmounts: []float64{0.00, 0.01},
		},
		{
			name:        "single contact gets everything",
			total:       882.00,
			contacts:    []string{"Alice"},
			wantAmounts: []float64{882.00},
		},
		{
			name:     "seven way split of awkward total",
			total:    99.99,
			contacts: []string{"A", "B", "C", "D", "E", "F", "G"},
			validateFunc: func(t *testing.T, record *models.SplitRecord) {
				var sumMinor int64
				for _, split := range record.Details.Splits {
					sumMinor += models.MinorUnits(split.Amount)
				}
				if sumMinor != models.MinorUnits(99.99) {
					t.Errorf("shares sum to %d minor units, want %d", sumMinor, models.MinorUnits(99.99))
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t)
			svc := NewSplitService(store, zap.NewNop())

			receipt := testReceipt(tt.total)
			receipt.ID = "receipt_test"
			if err := store.AppendReceipt(context.Background(), receipt); err != nil {
				t.Fatalf("failed to store receipt: %v", err)
			}

			record, err := svc.Split(context.Background(), "receipt_test", testContacts(tt.contacts...), "payee@upi", "Payee")
			if err != nil {
				t.Fatalf("Split() error = %v", err)
			}

			if record.Details.TotalPeople != len(tt.contacts) {
				t.Errorf("TotalPeople = %d, want %d", record.Details.TotalPeople, len(tt.contacts))
			}
			if len(record.Details.Splits) != len(tt.contacts) {
				t.Fatalf("got %d splits, want %d", len(record.Details.Splits), len(tt.contacts))
			}

			for i, want := range tt.wantAmounts {
				got := record.Details.Splits[i].Amount
				if math.Abs(got-want) > 1e-9 {
					t.Errorf("split[%d] amount = %v, want %v", i, got, want)
				}
			}

			var sum int64
			for _, split := range record.Details.Splits {
				sum += models.MinorUnits(split.Amount)
			}
			if sum != models.MinorUnits(tt.total) {
				t.Errorf("shares sum to %d minor units, want %d", sum, models.MinorUnits(tt.total))
			}

			if tt.validateFunc != nil {
				tt.validateFunc(t, record)
			}
		})
	}
}

func TestSplitValidation(t *testing.T) {
	tests := []struct {
		name      string
		contacts  []models.Contact
		payeeVPA  string
		payeeName string
	}{
		{
			name:      "no contacts",
			contacts:  nil,
			payeeVPA:  "payee@upi",
			payeeName: "Payee",
		},
		{
			name:      "contact missing phone",
			contacts:  []models.Contact{{Name: "Alice", Email: "alice@example.com"}},
			payeeVPA:  "payee@upi",
			payeeName: "Payee",
		},
		{
			name:      "contact missing email",
			contacts:  []models.Contact{{Name: "Alice", Phone: "+919000000001"}},
			payeeVPA:  "payee@upi",
			payeeName: "Payee",
		},
		{
			name:      "missing payee vpa",
			contacts:  testContacts("Alice"),
			payeeVPA:  "",
			payeeName: "Payee",
		},
		{
			name:      "missing payee name",
			contacts:  testContacts("Alice"),
			payeeVPA:  "payee@upi",
			payeeName: " ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t)
			svc := NewSplitService(store, zap.NewNop())

			receipt := testReceipt(50)
			receipt.ID = "receipt_test"
			if err := store.AppendReceipt(context.Background(), receipt); err != nil {
				t.Fatalf("failed to store receipt: %v", err)
			}

			_, err := svc.Split(context.Background(), "receipt_test", tt.contacts, tt.payeeVPA, tt.payeeName)
			var validationErr *models.ValidationError
			if !errors.As(err, &validationErr) {
				t.Errorf("Split() error = %v, want ValidationError", err)
			}

			// A rejected split must leave no record behind.
			splits, serr := store.Splits(context.Background())
			if serr != nil {
				t.Fatalf("Splits() error = %v", serr)
			}
			if len(splits) != 0 {
				t.Errorf("got %d stored splits after rejected request, want 0", len(splits))
			}
		})
	}
}

func TestSplitWithoutReceipt(t *testing.T) {
	store := newTestStore(t)
	svc := NewSplitService(store, zap.NewNop())

	_, err := svc.Split(context.Background(), "", testContacts("Alice"), "payee@upi", "Payee")
	var validationErr *models.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("Split() error = %v, want ValidationError", err)
	}
}

func TestSplitUsesCurrentReceiptWhenNoIDGiven(t *testing.T) {
	store := newTestStore(t)
	svc := NewSplitService(store, zap.NewNop())

	state := models.NewProcessingState()
	state.State = models.StateExtracted
	state.CurrentReceipt = testReceipt(60)
	if err := store.SaveState(context.Background(), state); err != nil {
		t.Fatalf("SaveState() error = %v", err)
	}

	record, err := svc.Split(context.Background(), "", testContacts("Alice", "Bob"), "payee@upi", "Payee")
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if got := record.ReceiptInfo.Total; got != 60 {
		t.Errorf("ReceiptInfo.Total = %v, want 60", got)
	}
}

func TestUPILinkFormat(t *testing.T) {
	store := newTestStore(t)
	svc := NewSplitService(store, zap.NewNop())

	receipt := testReceipt(10.00)
	receipt.ID = "receipt_test"
	if err := store.AppendReceipt(context.Background(), receipt); err != nil {
		t.Fatalf("failed to store receipt: %v", err)
	}

	record, err := svc.Split(context.Background(), "receipt_test", testContacts("Alice", "Bob", "Carol"), "payee@upi", "Split Payee")
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}

	if len(record.UPILinks) != 3 {
		t.Fatalf("got %d UPI links, want 3", len(record.UPILinks))
	}

	first := record.UPILinks[0].Link
	if !strings.HasPrefix(first, "upi://pay?pa=payee%40upi&pn=Split+Payee&am=3.34&tr=") {
		t.Errorf("unexpected link prefix: %s", first)
	}
	if !strings.HasSuffix(first, "&cu=INR") {
		t.Errorf("link does not end with cu=INR: %s", first)
	}

	// Parameter order is fixed: pa, pn, am, tr, tn, cu.
	query := strings.TrimPrefix(first, "upi://pay?")
	var keys []string
	for _, pair := range strings.Split(query, "&") {
		keys = append(keys, strings.SplitN(pair, "=", 2)[0])
	}
	want := []string{"pa", "pn", "am", "tr", "tn", "cu"}
	if len(keys) != len(want) {
		t.Fatalf("got %d query params, want %d", len(keys), len(want))
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("param[%d] = %s, want %s", i, keys[i], want[i])
		}
	}
}

func TestTransactionRefsUniquePerContact(t *testing.T) {
	store := newTestStore(t)
	svc := NewSplitService(store, zap.NewNop())

	receipt := testReceipt(30.00)
	receipt.ID = "receipt_test"
	if err := store.AppendReceipt(context.Background(), receipt); err != nil {
		t.Fatalf("failed to store receipt: %v", err)
	}

	// Two contacts share a name; their refs must still differ.
	contacts := []models.Contact{
		{Name: "Alex", Phone: "+919000000001", Email: "alex1@example.com"},
		{Name: "Alex", Phone: "+919000000002", Email: "alex2@example.com"},
		{Name: "Bob", Phone: "+919000000003", Email: "bob@example.com"},
	}
	record, err := svc.Split(context.Background(), "receipt_test", contacts, "payee@upi", "Payee")
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}

	seen := map[string]bool{}
	for _, link := range record.UPILinks {
		if link.TxnRef == "" {
			t.Fatal("empty transaction ref")
		}
		if seen[link.TxnRef] {
			t.Errorf("duplicate transaction ref %q", link.TxnRef)
		}
		seen[link.TxnRef] = true
	}
}

func TestRegenerateUPIIsStable(t *testing.T) {
	store := newTestStore(t)
	svc := NewSplitService(store, zap.NewNop())

	receipt := testReceipt(10.00)
	receipt.ID = "receipt_test"
	if err := store.AppendReceipt(context.Background(), receipt); err != nil {
		t.Fatalf("failed to store receipt: %v", err)
	}

	original, err := svc.Split(context.Background(), "receipt_test", testContacts("Alice", "Bob", "Carol"), "payee@upi", "Payee")
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}

	first, err := svc.RegenerateUPI(context.Background(), "", "payee@upi", "Payee")
	if err != nil {
		t.Fatalf("RegenerateUPI() error = %v", err)
	}
	second, err := svc.RegenerateUPI(context.Background(), "", "payee@upi", "Payee")
	if err != nil {
		t.Fatalf("RegenerateUPI() error = %v", err)
	}

	if first.SplitID != original.SplitID || second.SplitID != original.SplitID {
		t.Errorf("regenerated split ids %q, %q, want %q", first.SplitID, second.SplitID, original.SplitID)
	}
	for i := range original.UPILinks {
		if first.UPILinks[i].Link != original.UPILinks[i].Link {
			t.Errorf("link[%d] changed on regeneration", i)
		}
		if second.UPILinks[i].TxnRef != original.UPILinks[i].TxnRef {
			t.Errorf("txn ref[%d] changed on regeneration", i)
		}
		if second.UPILinks[i].Amount != original.UPILinks[i].Amount {
			t.Errorf("amount[%d] changed on regeneration", i)
		}
	}
}

func TestRegenerateUPIWithoutSplit(t *testing.T) {
	store := newTestStore(t)
	svc := NewSplitService(store, zap.NewNop())

	_, err := svc.RegenerateUPI(context.Background(), "", "payee@upi", "Payee")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("RegenerateUPI() error = %v, want ErrNotFound", err)
	}
}

func TestRegenerateUPIChecksReceiptID(t *testing.T) {
	store := newTestStore(t)
	svc := NewSplitService(store, zap.NewNop())

	receipt := testReceipt(10.00)
	receipt.ID = "receipt_current"
	if err := store.AppendReceipt(context.Background(), receipt); err != nil {
		t.Fatalf("failed to store receipt: %v", err)
	}
	if _, err := svc.Split(context.Background(), "receipt_current", testContacts("Alice", "Bob"), "payee@upi", "Payee"); err != nil {
		t.Fatalf("Split() error = %v", err)
	}

	if _, err := svc.RegenerateUPI(context.Background(), "receipt_current", "payee@upi", "Payee"); err != nil {
		t.Fatalf("RegenerateUPI() with matching receipt id, error = %v", err)
	}

	_, err := svc.RegenerateUPI(context.Background(), "receipt_other", "payee@upi", "Payee")
	var verr *models.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("RegenerateUPI() with stale receipt id, error = %v, want ValidationError", err)
	}
	if verr.Field != "receipt_id" {
		t.Errorf("ValidationError field = %q, want %q", verr.Field, "receipt_id")
	}
}

func TestShareLink(t *testing.T) {
	svc := NewSplitService(newTestStore(t), zap.NewNop())

	contact := models.Contact{Name: "Alice", Phone: "+91 90000-00001", Email: "alice@example.com"}

	t.Run("whatsapp strips phone formatting", func(t *testing.T) {
		result, err := svc.ShareLink(ShareRequest{
			Contact:   contact,
			Amount:    3.34,
			Currency:  "₹",
			UPILink:   "upi://pay?pa=payee%40upi",
			StoreName: "Fresh Mart",
			Method:    "whatsapp",
		})
		if err != nil {
			t.Fatalf("ShareLink() error = %v", err)
		}
		if !strings.HasPrefix(result.ShareURL, "https://wa.me/919000000001?text=") {
			t.Errorf("unexpected share URL: %s", result.ShareURL)
		}
		if !strings.Contains(result.Message, "3.34") {
			t.Errorf("message does not carry the amount: %s", result.Message)
		}
		if result.Contact != "Alice" {
			t.Errorf("Contact = %q, want Alice", result.Contact)
		}
	})

	t.Run("sms keeps phone as addressed", func(t *testing.T) {
		result, err := svc.ShareLink(ShareRequest{
			Contact:   models.Contact{Name: "Bob", Phone: "+919000000002", Email: "bob@example.com"},
			Amount:    5.00,
			Currency:  "₹",
			UPILink:   "upi://pay?pa=payee%40upi",
			StoreName: "Fresh Mart",
			Method:    "sms",
		})
		if err != nil {
			t.Fatalf("ShareLink() error = %v", err)
		}
		if !strings.HasPrefix(result.ShareURL, "sms:+919000000002?body=") {
			t.Errorf("unexpected share URL: %s", result.ShareURL)
		}
	})

	t.Run("unknown method rejected", func(t *testing.T) {
		_, err := svc.ShareLink(ShareRequest{Contact: contact, Method: "carrier-pigeon"})
		var validationErr *models.ValidationError
		if !errors.As(err, &validationErr) {
			t.Errorf("ShareLink() error = %v, want ValidationError", err)
		}
	})
}
