package dto

import "billfold/internal/models"

type SplitBillRequest struct {
	Contacts  []models.Contact `json:"contacts"`
	ReceiptID string           `json:"receipt_id,omitempty"`
	PayeeVPA  string           `json:"upi_payee_vpa,omitempty"`
	PayeeName string           `json:"upi_payee_name,omitempty"`
}

type SplitData struct {
	SplitID      string              `json:"split_id"`
	ReceiptInfo  models.ReceiptInfo  `json:"receipt_info"`
	SplitDetails models.SplitDetails `json:"split_details"`
	UPILinks     []models.UPILink    `json:"upi_links"`
	Timestamp    string              `json:"timestamp"`
}

type SplitBillResponse struct {
	Success   bool      `json:"success"`
	SplitData SplitData `json:"split_data"`
}

type GenerateUPIRequest struct {
	ReceiptID string `json:"receipt_id,omitempty"`
	PayeeVPA  string `json:"upi_payee_vpa,omitempty"`
	PayeeName string `json:"upi_payee_name,omitempty"`
}

type GenerateUPIResponse struct {
	Success   bool             `json:"success"`
	SplitID   string           `json:"split_id"`
	UPILinks  []models.UPILink `json:"upi_links"`
	Timestamp string           `json:"timestamp"`
}

type ShareUPIRequest struct {
	Contact   models.Contact `json:"contact"`
	Amount    float64        `json:"amount"`
	Currency  string         `json:"currency,omitempty"`
	UPILink   string         `json:"upi_link"`
	StoreName string         `json:"store_name,omitempty"`
	Method    string         `json:"method"`
}

type ShareUPIResponse struct {
	Success  bool   `json:"success"`
	ShareURL string `json:"share_url"`
	Message  string `json:"message"`
	Contact  string `json:"contact"`
}

type SplitHistoryResponse struct {
	Success bool                  `json:"success"`
	Count   int                   `json:"count"`
	Splits  []*models.SplitRecord `json:"splits"`
}
