package service

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"billfold/internal/models"
	"billfold/internal/storage"
)

type corruptReceiptsStore struct {
	storage.Store
}

func (s *corruptReceiptsStore) Receipts(_ context.Context) ([]*models.Receipt, error) {
	return nil, &storage.CorruptionError{Collection: "receipts", Err: errors.New("invalid character 'n'")}
}

func TestAnalyzeSurfacesCorruptReceipts(t *testing.T) {
	svc := &LLMService{
		store:  &corruptReceiptsStore{Store: newTestStore(t)},
		logger: zap.NewNop(),
	}

	// Unreadable stored receipts must abort the analysis, not degrade
	// it to an empty-history answer.
	_, err := svc.Analyze(context.Background(), "how much did I spend?", "", "")
	if !storage.IsCorruption(err) {
		t.Fatalf("Analyze() error = %v, want corruption error", err)
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		wantErr bool
	}{
		{"bare object", `{"a":1}`, `{"a":1}`, false},
		{"markdown fence", "```json\n{\"a\":1}\n```", `{"a":1}`, false},
		{"surrounding prose", `Here you go: {"a":1}. Anything else?`, `{"a":1}`, false},
		{"no object", "sorry, I cannot help with that", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractJSON(tt.content)
			if (err != nil) != tt.wantErr {
				t.Fatalf("extractJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("extractJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}
