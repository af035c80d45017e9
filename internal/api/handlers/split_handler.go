package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"billfold/internal/dto"
	"billfold/internal/models"
	"billfold/internal/service"
	"billfold/pkg/config"
)

type SplitHandler struct {
	splits *service.SplitService
	upi    config.UPIConfig
	logger *zap.Logger
}

func NewSplitHandler(splits *service.SplitService, upi config.UPIConfig, logger *zap.Logger) *SplitHandler {
	return &SplitHandler{
		splits: splits,
		upi:    upi,
		logger: logger,
	}
}

// SplitBill divides a receipt total equally among the given contacts
// and returns a UPI payment link per share.
func (h *SplitHandler) SplitBill(c *fiber.Ctx) error {
	var req dto.SplitBillRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, h.logger, &models.ValidationError{Field: "body", Reason: "malformed JSON"})
	}

	payeeVPA, payeeName := h.payee(req.PayeeVPA, req.PayeeName)
	record, err := h.splits.Split(c.Context(), req.ReceiptID, req.Contacts, payeeVPA, payeeName)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.JSON(dto.SplitBillResponse{
		Success:   true,
		SplitData: splitData(record),
	})
}

// GenerateUPI rebuilds payment links for the most recent split.
// Amounts and transaction references are reused unchanged.
func (h *SplitHandler) GenerateUPI(c *fiber.Ctx) error {
	var req dto.GenerateUPIRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return respondError(c, h.logger, &models.ValidationError{Field: "body", Reason: "malformed JSON"})
		}
	}

	payeeVPA, payeeName := h.payee(req.PayeeVPA, req.PayeeName)
	record, err := h.splits.RegenerateUPI(c.Context(), req.ReceiptID, payeeVPA, payeeName)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.JSON(dto.GenerateUPIResponse{
		Success:   true,
		SplitID:   record.SplitID,
		UPILinks:  record.UPILinks,
		Timestamp: timestamp(),
	})
}

// ShareUPI builds a WhatsApp or SMS share URL for one contact's
// payment link. Nothing is sent server-side.
func (h *SplitHandler) ShareUPI(c *fiber.Ctx) error {
	var req dto.ShareUPIRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, h.logger, &models.ValidationError{Field: "body", Reason: "malformed JSON"})
	}

	result, err := h.splits.ShareLink(service.ShareRequest{
		Contact:   req.Contact,
		Amount:    req.Amount,
		Currency:  req.Currency,
		UPILink:   req.UPILink,
		StoreName: req.StoreName,
		Method:    req.Method,
	})
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.JSON(dto.ShareUPIResponse{
		Success:  true,
		ShareURL: result.ShareURL,
		Message:  result.Message,
		Contact:  result.Contact,
	})
}

// SplitHistory lists all recorded splits, oldest first.
func (h *SplitHandler) SplitHistory(c *fiber.Ctx) error {
	records, err := h.splits.History(c.Context())
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.JSON(dto.SplitHistoryResponse{
		Success: true,
		Count:   len(records),
		Splits:  records,
	})
}

func (h *SplitHandler) payee(vpa, name string) (string, string) {
	if vpa == "" {
		vpa = h.upi.PayeeVPA
	}
	if name == "" {
		name = h.upi.PayeeName
	}
	return vpa, name
}

func splitData(record *models.SplitRecord) dto.SplitData {
	return dto.SplitData{
		SplitID:      record.SplitID,
		ReceiptInfo:  record.ReceiptInfo,
		SplitDetails: record.Details,
		UPILinks:     record.UPILinks,
		Timestamp:    record.Timestamp.UTC().Format(time.RFC3339),
	}
}
