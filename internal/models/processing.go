package models

import "time"

// Stage is one step of the receipt pipeline.
type Stage string

const (
	StageUpload    Stage = "upload"
	StageExtract   Stage = "extract"
	StagePassGen   Stage = "passgen"
	StageSplitBill Stage = "split_bill"
)

// SessionState is the pipeline state machine position of the current
// processing session.
type SessionState string

const (
	StateEmpty         SessionState = "empty"
	StateUploaded      SessionState = "uploaded"
	StateConverted     SessionState = "converted"
	StateExtracted     SessionState = "extracted"
	StatePassGenerated SessionState = "pass_generated"
	StateError         SessionState = "error"
)

// ProcessingState is the single overwritten record describing the
// current work in progress. It is mutated by the pipeline orchestrator
// only; every upload mints a fresh SessionID so stale artifacts from a
// prior session cannot be consumed by mistake.
type ProcessingState struct {
	SessionID      string       `json:"session_id,omitempty"`
	State          SessionState `json:"state"`
	CurrentImage   string       `json:"current_image,omitempty"`
	CurrentPDF     string       `json:"current_pdf,omitempty"`
	CurrentReceipt *Receipt     `json:"current_receipt_data,omitempty"`
	LastWalletLink string       `json:"last_wallet_link,omitempty"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// NewProcessingState returns the default state used on first run.
func NewProcessingState() *ProcessingState {
	return &ProcessingState{State: StateEmpty, UpdatedAt: time.Now().UTC()}
}

// HistoryEntry is one append-only record of a pipeline step. Entries
// are immutable once written and ordered by timestamp.
type HistoryEntry struct {
	Step       Stage             `json:"step"`
	SessionID  string            `json:"session_id,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	InputFile  string            `json:"input_file,omitempty"`
	OutputFile string            `json:"output_file,omitempty"`
	Success    bool              `json:"success"`
	Error      string            `json:"error,omitempty"`
	Meta       map[string]string `json:"meta,omitempty"`
}
