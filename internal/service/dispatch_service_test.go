package service

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"billfold/internal/models"
	"billfold/internal/storage"
)

func TestDispatchWithoutListSkipsPass(t *testing.T) {
	issuer := &fakeIssuer{shoppingLink: "never-used"}
	analyzer := &fakeAnalyzer{analysis: &Analysis{
		Response:           "You spent ₹882 on groceries this week.",
		CategoriesAnalyzed: []string{"Groceries"},
		ReceiptsCount:      1,
	}}
	svc := NewDispatchService(analyzer, issuer, testTimeout, zap.NewNop())

	result, err := svc.Dispatch(context.Background(), "how much did I spend on groceries?", "", "")
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	// No list means the side effect is absent, not failed.
	if result.PassGeneration != nil {
		t.Errorf("PassGeneration = %+v, want nil", result.PassGeneration)
	}
	if issuer.shoppingCalls != 0 {
		t.Errorf("issuer called %d times, want 0", issuer.shoppingCalls)
	}
	if result.Analysis.Response == "" {
		t.Error("empty analysis response")
	}
}

func TestDispatchWithListIssuesPass(t *testing.T) {
	issuer := &fakeIssuer{shoppingLink: "https://pay.google.com/gp/v/save/list"}
	analyzer := &fakeAnalyzer{analysis: &Analysis{
		Response:  "Here is your shopping list.",
		ListType:  "grocery_list",
		ListItems: []string{"Rice", "Dal", "Milk"},
	}}
	svc := NewDispatchService(analyzer, issuer, testTimeout, zap.NewNop())

	result, err := svc.Dispatch(context.Background(), "make me a grocery list", "", "")
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if result.PassGeneration == nil {
		t.Fatal("PassGeneration is nil, want attempted outcome")
	}
	if !result.PassGeneration.Success {
		t.Errorf("pass generation failed: %s", result.PassGeneration.Error)
	}
	if result.PassGeneration.WalletLink != issuer.shoppingLink {
		t.Errorf("WalletLink = %q, want %q", result.PassGeneration.WalletLink, issuer.shoppingLink)
	}
	if issuer.shoppingCalls != 1 {
		t.Errorf("issuer called %d times, want 1", issuer.shoppingCalls)
	}
}

func TestDispatchPassFailureDoesNotFailAnalysis(t *testing.T) {
	issuer := &fakeIssuer{shoppingErr: errors.New("wallet api down")}
	analyzer := &fakeAnalyzer{analysis: &Analysis{
		Response:  "Here is your shopping list.",
		ListType:  "grocery_list",
		ListItems: []string{"Rice"},
	}}
	svc := NewDispatchService(analyzer, issuer, testTimeout, zap.NewNop())

	result, err := svc.Dispatch(context.Background(), "make me a grocery list", "", "")
	if err != nil {
		t.Fatalf("Dispatch() error = %v, pass failure must not fail the dispatch", err)
	}
	if result.Analysis.Response == "" {
		t.Error("analysis got lost on pass failure")
	}
	if result.PassGeneration == nil {
		t.Fatal("PassGeneration is nil, want failed outcome")
	}
	if result.PassGeneration.Success {
		t.Error("pass generation marked successful despite issuer error")
	}
	if result.PassGeneration.Error == "" {
		t.Error("pass failure carries no error message")
	}
}

func TestDispatchAnalyzerFailure(t *testing.T) {
	analyzer := &fakeAnalyzer{err: errors.New("model unavailable")}
	svc := NewDispatchService(analyzer, &fakeIssuer{}, testTimeout, zap.NewNop())

	_, err := svc.Dispatch(context.Background(), "anything", "", "")
	if !models.IsRetryable(err) {
		t.Fatalf("Dispatch() error = %v, want retryable CollaboratorError", err)
	}
}

func TestDispatchSurfacesCorruptStorage(t *testing.T) {
	corrupt := &storage.CorruptionError{Collection: "receipts", Err: errors.New("invalid character 'n'")}
	analyzer := &fakeAnalyzer{err: corrupt}
	svc := NewDispatchService(analyzer, &fakeIssuer{}, testTimeout, zap.NewNop())

	_, err := svc.Dispatch(context.Background(), "how much did I spend?", "", "")
	if !storage.IsCorruption(err) {
		t.Fatalf("Dispatch() error = %v, want corruption error", err)
	}
	var collabErr *models.CollaboratorError
	if errors.As(err, &collabErr) {
		t.Errorf("corruption wrapped as collaborator outage: %v", err)
	}
}

func TestDispatchRejectsEmptyQuery(t *testing.T) {
	svc := NewDispatchService(&fakeAnalyzer{}, &fakeIssuer{}, testTimeout, zap.NewNop())

	_, err := svc.Dispatch(context.Background(), "   ", "", "")
	var validationErr *models.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("Dispatch() error = %v, want ValidationError", err)
	}
}

func TestListTitle(t *testing.T) {
	tests := []struct {
		listType string
		want     string
	}{
		{"grocery_list", "Grocery List"},
		{"todo", "Todo"},
		{"", "Shopping List"},
		{"weekly_meal_plan", "Weekly Meal Plan"},
	}
	for _, tt := range tests {
		if got := listTitle(tt.listType); got != tt.want {
			t.Errorf("listTitle(%q) = %q, want %q", tt.listType, got, tt.want)
		}
	}
}
