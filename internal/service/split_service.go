package service

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"billfold/internal/models"
	"billfold/internal/storage"
	"billfold/pkg/metrics"
)

// SplitService divides a receipt total among contacts and builds UPI
// payment deep links for each share.
type SplitService struct {
	store  storage.Store
	logger *zap.Logger
}

func NewSplitService(store storage.Store, logger *zap.Logger) *SplitService {
	return &SplitService{store: store, logger: logger}
}

// Split divides receipt.Total equally among contacts and persists an
// append-only split record with one UPI link per contact.
//
// Amounts are computed in minor currency units; the rounding remainder
// (positive or negative) goes to the first contact in input order so
// the shares always sum to the receipt total exactly.
func (s *SplitService) Split(ctx context.Context, receiptID string, contacts []models.Contact, payeeVPA, payeeName string) (*models.SplitRecord, error) {
	if len(contacts) == 0 {
		return nil, &models.ValidationError{Field: "contacts", Reason: "at least one contact is required"}
	}
	for i, c := range contacts {
		if strings.TrimSpace(c.Name) == "" || strings.TrimSpace(c.Phone) == "" || strings.TrimSpace(c.Email) == "" {
			return nil, &models.ValidationError{
				Field:  fmt.Sprintf("contacts[%d]", i),
				Reason: "name, phone and email are required",
			}
		}
	}
	if strings.TrimSpace(payeeVPA) == "" || strings.TrimSpace(payeeName) == "" {
		return nil, &models.ValidationError{Field: "upi_payee", Reason: "payee VPA and name are required"}
	}

	receipt, err := s.resolveReceipt(ctx, receiptID)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(receipt.Total) || math.IsInf(receipt.Total, 0) || receipt.Total < 0 {
		return nil, &models.ValidationError{Field: "receipt", Reason: "total amount is not a finite non-negative number"}
	}

	record := buildSplit(receipt, contacts)
	record.UPILinks = buildUPILinks(record, payeeVPA, payeeName)

	if err := s.store.AppendSplit(ctx, record); err != nil {
		metrics.SplitTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, err
	}
	s.recordStep(ctx, models.HistoryEntry{
		Step:      models.StageSplitBill,
		Timestamp: record.Timestamp,
		Success:   true,
		Meta: map[string]string{
			"split_id":       record.SplitID,
			"contacts_count": fmt.Sprintf("%d", len(contacts)),
		},
	})
	metrics.SplitTotal.WithLabelValues(metrics.OutcomeOK).Inc()

	s.logger.Info("Bill split recorded",
		zap.String("split_id", record.SplitID),
		zap.String("store", record.ReceiptInfo.StoreName),
		zap.Int("contacts", len(contacts)),
		zap.Float64("total", record.ReceiptInfo.Total),
	)

	return record, nil
}

// RegenerateUPI rebuilds payment links from the most recent split
// record. Amounts, contacts and transaction references are reused
// unchanged, so repeated calls are stable for an unchanged split. A
// non-empty receiptID must match the receipt the latest split was
// built from; regeneration never reaches back to older splits.
func (s *SplitService) RegenerateUPI(ctx context.Context, receiptID, payeeVPA, payeeName string) (*models.SplitRecord, error) {
	if strings.TrimSpace(payeeVPA) == "" || strings.TrimSpace(payeeName) == "" {
		return nil, &models.ValidationError{Field: "upi_payee", Reason: "payee VPA and name are required"}
	}

	latest, err := s.store.LatestSplit(ctx)
	if err != nil {
		return nil, err
	}
	if receiptID != "" && latest.ReceiptInfo.ReceiptID != receiptID {
		return nil, &models.ValidationError{
			Field:  "receipt_id",
			Reason: fmt.Sprintf("latest split was built from %q, not %q", latest.ReceiptInfo.ReceiptID, receiptID),
		}
	}

	latest.UPILinks = buildUPILinks(latest, payeeVPA, payeeName)
	return latest, nil
}

// History returns all recorded splits in append order.
func (s *SplitService) History(ctx context.Context) ([]*models.SplitRecord, error) {
	return s.store.Splits(ctx)
}

// ShareRequest describes one payment link to turn into a share URL.
type ShareRequest struct {
	Contact   models.Contact
	Amount    float64
	Currency  string
	UPILink   string
	StoreName string
	Method    string // "whatsapp" or "sms"
}

// ShareResult carries the generated share URL; nothing is sent
// server-side.
type ShareResult struct {
	ShareURL string
	Message  string
	Contact  string
}

// ShareLink builds a WhatsApp or SMS share URL carrying the payment
// request message for one contact.
func (s *SplitService) ShareLink(req ShareRequest) (*ShareResult, error) {
	switch req.Method {
	case "whatsapp":
		phone := strings.NewReplacer("+", "", "-", "", " ", "").Replace(req.Contact.Phone)
		message := fmt.Sprintf(
			"Hi %s!\n\nHere's your share from our bill at %s:\nAmount: %s%s\n\nPay via UPI:\n%s\n\nTap the link or copy it into any UPI app and the payment details will auto-fill.\n\nThanks!",
			req.Contact.Name, req.StoreName, req.Currency, models.FormatAmount(req.Amount), req.UPILink,
		)
		return &ShareResult{
			ShareURL: "https://wa.me/" + phone + "?text=" + url.QueryEscape(message),
			Message:  message,
			Contact:  req.Contact.Name,
		}, nil
	case "sms":
		message := fmt.Sprintf(
			"Hi %s! Your share from %s: %s%s. Pay via UPI: %s",
			req.Contact.Name, req.StoreName, req.Currency, models.FormatAmount(req.Amount), req.UPILink,
		)
		return &ShareResult{
			ShareURL: "sms:" + req.Contact.Phone + "?body=" + url.QueryEscape(message),
			Message:  message,
			Contact:  req.Contact.Name,
		}, nil
	default:
		return nil, &models.ValidationError{Field: "method", Reason: `must be "whatsapp" or "sms"`}
	}
}

// resolveReceipt returns the receipt to split: a stored one when an id
// is given, otherwise the current in-progress receipt.
func (s *SplitService) resolveReceipt(ctx context.Context, receiptID string) (*models.Receipt, error) {
	if receiptID != "" {
		return s.store.ReceiptByID(ctx, receiptID)
	}

	state, err := s.store.LoadState(ctx)
	if err != nil {
		return nil, err
	}
	if state.CurrentReceipt == nil {
		return nil, &models.ValidationError{Field: "receipt", Reason: "no receipt data available, process a receipt first"}
	}
	return state.CurrentReceipt, nil
}

func (s *SplitService) recordStep(ctx context.Context, entry models.HistoryEntry) {
	if err := s.store.AppendHistory(ctx, entry); err != nil {
		s.logger.Error("Failed to append history entry",
			zap.String("step", string(entry.Step)),
			zap.Error(err),
		)
	}
}

// buildSplit computes the per-contact shares in minor currency units.
func buildSplit(receipt *models.Receipt, contacts []models.Contact) *models.SplitRecord {
	n := int64(len(contacts))
	totalMinor := models.MinorUnits(receipt.Total)
	perMinor := int64(math.Round(float64(totalMinor) / float64(n)))
	remainder := totalMinor - perMinor*n

	splits := make([]models.ContactSplit, len(contacts))
	for i, c := range contacts {
		amountMinor := perMinor
		if i == 0 {
			amountMinor += remainder
		}
		splits[i] = models.ContactSplit{
			Name:     c.Name,
			Phone:    c.Phone,
			Email:    c.Email,
			Amount:   models.FromMinorUnits(amountMinor),
			Currency: receipt.Currency,
		}
	}

	return &models.SplitRecord{
		SplitID: "split_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:12],
		ReceiptInfo: models.ReceiptInfo{
			ReceiptID: receipt.ID,
			StoreName: receipt.StoreName,
			Date:      receipt.Date,
			Total:     receipt.Total,
			Currency:  receipt.Currency,
			Category:  receipt.Category,
		},
		Details: models.SplitDetails{
			TotalPeople:     len(contacts),
			AmountPerPerson: models.FromMinorUnits(perMinor),
			Splits:          splits,
		},
		Timestamp: time.Now().UTC(),
	}
}

// buildUPILinks builds one payment deep link per contact share. The
// transaction reference is derived from the split id and the contact's
// position, so it stays unique even when two contacts share a name and
// stable across regenerations of the same split.
func buildUPILinks(record *models.SplitRecord, payeeVPA, payeeName string) []models.UPILink {
	note := "Bill split - " + record.ReceiptInfo.StoreName
	links := make([]models.UPILink, len(record.Details.Splits))
	for i, split := range record.Details.Splits {
		txnRef := fmt.Sprintf("BILLSPLIT-%s-%02d-%s",
			strings.TrimPrefix(record.SplitID, "split_"), i+1, sanitizeRef(split.Name))
		links[i] = models.UPILink{
			Contact:  split,
			Link:     buildUPIURI(payeeVPA, payeeName, split.Amount, txnRef, note, split.Currency),
			Amount:   split.Amount,
			Currency: split.Currency,
			TxnRef:   txnRef,
		}
	}
	return links
}

// buildUPIURI renders the upi://pay deep link. Parameter order follows
// the convention UPI apps expect: pa, pn, am, tr, tn, cu.
func buildUPIURI(payeeVPA, payeeName string, amount float64, txnRef, note, currency string) string {
	// cu takes an ISO 4217 code; receipts usually carry a currency
	// symbol instead, so anything that is not one falls back to INR.
	if !isCurrencyCode(currency) {
		currency = "INR"
	}
	return "upi://pay?" +
		"pa=" + url.QueryEscape(payeeVPA) +
		"&pn=" + url.QueryEscape(payeeName) +
		"&am=" + models.FormatAmount(amount) +
		"&tr=" + url.QueryEscape(txnRef) +
		"&tn=" + url.QueryEscape(note) +
		"&cu=" + url.QueryEscape(currency)
}

func isCurrencyCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// sanitizeRef strips characters that are not safe inside a UPI
// transaction reference.
func sanitizeRef(name string) string {
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
