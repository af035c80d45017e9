// Package metrics exposes Prometheus counters for the receipt
// pipeline, bill splitting and chat dispatch paths.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StageTotal counts pipeline stage executions by outcome.
	StageTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "billfold",
		Name:      "pipeline_stage_total",
		Help:      "Pipeline stage executions by stage and outcome.",
	}, []string{"stage", "outcome"})

	// SplitTotal counts bill splits by outcome.
	SplitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "billfold",
		Name:      "bill_split_total",
		Help:      "Bill split operations by outcome.",
	}, []string{"outcome"})

	// ChatTotal counts chat dispatches by whether a shopping pass was
	// attempted and its outcome.
	ChatTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "billfold",
		Name:      "chat_dispatch_total",
		Help:      "Chat dispatches by pass attempt result.",
	}, []string{"pass"})
)

// Outcome labels.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
	PassSkipped  = "skipped"
	PassIssued   = "issued"
	PassFailed   = "failed"
)
