package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"billfold/internal/models"
	"billfold/internal/storage"
	"billfold/pkg/metrics"
)

// Analysis is the structured result of the assistant's query analysis.
type Analysis struct {
	Response           string
	CategoriesAnalyzed []string
	ReceiptsCount      int
	ListType           string
	ListItems          []string
}

// QueryAnalyzer is the conversational assistant collaborator.
type QueryAnalyzer interface {
	Analyze(ctx context.Context, query, userID, language string) (*Analysis, error)
}

// PassOutcome reports the shopping-pass side effect of a dispatch. It
// only exists when pass generation was actually attempted.
type PassOutcome struct {
	Success    bool
	WalletLink string
	Error      string
}

// CombinedResult merges the analysis with the optional pass outcome.
// PassGeneration is nil when the analysis produced no list items: the
// side effect was skipped, which is not an error.
type CombinedResult struct {
	Analysis       *Analysis
	PassGeneration *PassOutcome
}

// DispatchService resolves a natural-language query into the analysis
// call plus, when the analysis yields list items, a shopping-pass
// generation side effect.
type DispatchService struct {
	analyzer QueryAnalyzer
	passes   PassIssuer
	timeout  time.Duration
	logger   *zap.Logger
}

func NewDispatchService(analyzer QueryAnalyzer, passes PassIssuer, timeout time.Duration, logger *zap.Logger) *DispatchService {
	return &DispatchService{
		analyzer: analyzer,
		passes:   passes,
		timeout:  timeout,
		logger:   logger,
	}
}

// Dispatch forwards the query to the analysis collaborator and, if and
// only if it returned list items, issues a shopping pass for them.
//
// Failure isolation: a pass generation failure never discards the
// analysis result; the combined result reports both outcomes with
// their own success flags.
func (s *DispatchService) Dispatch(ctx context.Context, query, userID, language string) (*CombinedResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &models.ValidationError{Field: "query", Reason: "query is required"}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	analysis, err := s.analyzer.Analyze(callCtx, query, userID, language)
	cancel()
	if err != nil {
		// Corrupt stored data is a server-side fault, not an outage of
		// the collaborator. It surfaces as-is so the caller can tell
		// the two apart.
		if storage.IsCorruption(err) {
			return nil, err
		}
		return nil, &models.CollaboratorError{Service: "query analyzer", Err: err}
	}

	result := &CombinedResult{Analysis: analysis}

	if len(analysis.ListItems) == 0 {
		metrics.ChatTotal.WithLabelValues(metrics.PassSkipped).Inc()
		return result, nil
	}

	title := listTitle(analysis.ListType)
	passCtx, cancel := context.WithTimeout(ctx, s.timeout)
	link, err := s.passes.IssueShoppingPass(passCtx, title, analysis.ListItems)
	cancel()
	if err != nil {
		s.logger.Warn("Shopping pass generation failed",
			zap.String("list_type", analysis.ListType),
			zap.Int("items", len(analysis.ListItems)),
			zap.Error(err),
		)
		result.PassGeneration = &PassOutcome{Error: err.Error()}
		metrics.ChatTotal.WithLabelValues(metrics.PassFailed).Inc()
		return result, nil
	}

	result.PassGeneration = &PassOutcome{Success: true, WalletLink: link}
	metrics.ChatTotal.WithLabelValues(metrics.PassIssued).Inc()

	s.logger.Info("Shopping pass issued from chat query",
		zap.String("list_type", analysis.ListType),
		zap.Int("items", len(analysis.ListItems)),
	)

	return result, nil
}

// listTitle turns a snake_case list type into a display title.
func listTitle(listType string) string {
	if listType == "" {
		return "Shopping List"
	}
	words := strings.Split(listType, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
