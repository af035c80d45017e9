package dto

import "billfold/internal/models"

type UploadResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"session_id"`
	InputFile string `json:"input_file"`
	OutputPDF string `json:"output_pdf"`
	FileSize  int64  `json:"file_size"`
	Timestamp string `json:"timestamp"`
}

type ExtractResponse struct {
	Success     bool            `json:"success"`
	PDFFile     string          `json:"pdf_file"`
	ReceiptData *models.Receipt `json:"receipt_data"`
	Timestamp   string          `json:"timestamp"`
}

type PassGenResponse struct {
	Success    bool   `json:"success"`
	WalletLink string `json:"wallet_link"`
	Timestamp  string `json:"timestamp"`
}

type StepResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type ProcessCompleteResponse struct {
	Success     bool                  `json:"success"`
	WalletLink  string                `json:"wallet_link,omitempty"`
	ReceiptData *models.Receipt       `json:"receipt_data,omitempty"`
	Steps       map[string]StepResult `json:"steps"`
	FailedStage string                `json:"failed_stage,omitempty"`
	Timestamp   string                `json:"timestamp"`
}

type StatusResponse struct {
	SessionID    string `json:"session_id,omitempty"`
	State        string `json:"state"`
	CurrentImage string `json:"current_image,omitempty"`
	CurrentPDF   string `json:"current_pdf,omitempty"`
	HasReceipt   bool   `json:"has_receipt"`
	WalletLink   string `json:"wallet_link,omitempty"`
	UpdatedAt    string `json:"updated_at"`
}

type HistoryResponse struct {
	Success bool                  `json:"success"`
	Count   int                   `json:"count"`
	History []models.HistoryEntry `json:"history"`
}

type ReloadResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	State   string `json:"state"`
}
