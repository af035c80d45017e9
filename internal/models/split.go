package models

import (
	"math"
	"strconv"
	"time"
)

// Contact is a person a bill can be split with. Phone and email are
// opaque strings; they are only required to be non-empty so a UPI
// payment request can be addressed.
type Contact struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

// ContactSplit is one contact's share of a split bill.
type ContactSplit struct {
	Name     string  `json:"name"`
	Phone    string  `json:"phone"`
	Email    string  `json:"email"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// UPILink is a generated payment deep link for one contact's share.
type UPILink struct {
	Contact  ContactSplit `json:"contact"`
	Link     string       `json:"upi_link"`
	Amount   float64      `json:"amount"`
	Currency string       `json:"currency"`
	TxnRef   string       `json:"transaction_ref"`
}

// ReceiptInfo is the receipt summary snapshotted into a split record.
type ReceiptInfo struct {
	ReceiptID string       `json:"receipt_id,omitempty"`
	StoreName string       `json:"store_name"`
	Date      string       `json:"date"`
	Total     float64      `json:"total_amount"`
	Currency  string       `json:"currency"`
	Category  ItemCategory `json:"category"`
}

// SplitDetails holds the per-person breakdown of a split.
type SplitDetails struct {
	TotalPeople     int            `json:"total_people"`
	AmountPerPerson float64        `json:"amount_per_person"`
	Splits          []ContactSplit `json:"splits"`
}

// SplitRecord is an append-only snapshot of one bill split, including
// the generated UPI links. Invariant: the contact amounts sum to the
// receipt total exactly.
type SplitRecord struct {
	SplitID     string       `json:"split_id"`
	ReceiptInfo ReceiptInfo  `json:"receipt_info"`
	Details     SplitDetails `json:"split_details"`
	UPILinks    []UPILink    `json:"upi_links"`
	Timestamp   time.Time    `json:"timestamp"`
}

// MinorUnits converts a currency amount to integer minor units
// (paise, cents) with half-away-from-zero rounding.
func MinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// FromMinorUnits converts integer minor units back to a float amount.
func FromMinorUnits(minor int64) float64 {
	return float64(minor) / 100
}

// formatAmount renders an amount with exactly two decimal places.
func formatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', 2, 64)
}

// FormatAmount renders an amount with exactly two decimal places, as
// required by the UPI `am` parameter.
func FormatAmount(amount float64) string {
	return formatAmount(amount)
}
