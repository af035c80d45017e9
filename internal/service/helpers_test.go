package service

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"billfold/internal/models"
	"billfold/internal/storage"
	"billfold/internal/storage/sqlite"
)

const testTimeout = 5 * time.Second

func newTestStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

type fakeConverter struct {
	err   error
	calls int
}

func (f *fakeConverter) Convert(_ context.Context, image []byte, fileName string) (*ConvertResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &ConvertResult{
		ImagePath: "uploads/uploaded_" + fileName,
		PDFPath:   "uploads/receipt_test.pdf",
		FileSize:  int64(len(image)),
	}, nil
}

type fakeExtractor struct {
	receipt       *models.Receipt
	err           error
	calls         int
	lastPDFPath   string
	lastImagePath string
}

func (f *fakeExtractor) ExtractReceipt(_ context.Context, pdfPath, imagePath string) (*models.Receipt, error) {
	f.calls++
	f.lastPDFPath = pdfPath
	f.lastImagePath = imagePath
	if f.err != nil {
		return nil, f.err
	}
	copied := *f.receipt
	return &copied, nil
}

type fakeIssuer struct {
	link          string
	err           error
	shoppingLink  string
	shoppingErr   error
	receiptCalls  int
	shoppingCalls int
}

func (f *fakeIssuer) IssueReceiptPass(_ context.Context, _ *models.Receipt) (string, error) {
	f.receiptCalls++
	if f.err != nil {
		return "", f.err
	}
	return f.link, nil
}

func (f *fakeIssuer) IssueShoppingPass(_ context.Context, _ string, _ []string) (string, error) {
	f.shoppingCalls++
	if f.shoppingErr != nil {
		return "", f.shoppingErr
	}
	return f.shoppingLink, nil
}

type fakeAnalyzer struct {
	analysis *Analysis
	err      error
}

func (f *fakeAnalyzer) Analyze(_ context.Context, _, _, _ string) (*Analysis, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.analysis, nil
}

func testReceipt(total float64) *models.Receipt {
	return &models.Receipt{
		StoreName: "Fresh Mart",
		Date:      "2026-08-20",
		Category:  models.ItemCategoryGroceries,
		Currency:  "₹",
		Subtotal:  total,
		Total:     total,
		Items: []models.LineItem{
			{Name: "Rice", Quantity: 1, UnitPrice: total, TotalPrice: total, Category: models.ItemCategoryGroceries},
		},
	}
}

func testContacts(names ...string) []models.Contact {
	contacts := make([]models.Contact, len(names))
	for i, name := range names {
		contacts[i] = models.Contact{
			Name:  name,
			Phone: "+91900000000" + string(rune('0'+i)),
			Email: name + "@example.com",
		}
	}
	return contacts
}

func newTestPipeline(t *testing.T, store storage.Store, converter DocumentConverter, extractor ReceiptExtractor, issuer PassIssuer) *PipelineService {
	t.Helper()
	return NewPipelineService(store, converter, extractor, issuer, testTimeout, zap.NewNop())
}
