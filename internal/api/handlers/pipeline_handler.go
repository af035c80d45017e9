package handlers

import (
	"io"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"billfold/internal/dto"
	"billfold/internal/service"
)

type PipelineHandler struct {
	pipeline *service.PipelineService
	logger   *zap.Logger
}

func NewPipelineHandler(pipeline *service.PipelineService, logger *zap.Logger) *PipelineHandler {
	return &PipelineHandler{
		pipeline: pipeline,
		logger:   logger,
	}
}

// Upload accepts a receipt photo and converts it to a PDF, starting a
// fresh processing session.
func (h *PipelineHandler) Upload(c *fiber.Ctx) error {
	image, fileName, err := readUploadedFile(c)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	result, err := h.pipeline.Upload(c.Context(), image, fileName)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.JSON(dto.UploadResponse{
		Success:   true,
		SessionID: result.SessionID,
		InputFile: result.InputFile,
		OutputPDF: result.OutputPDF,
		FileSize:  result.FileSize,
		Timestamp: timestamp(),
	})
}

// Extract runs structured data extraction over the current session's
// PDF.
func (h *PipelineHandler) Extract(c *fiber.Ctx) error {
	receipt, err := h.pipeline.Extract(c.Context())
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.JSON(dto.ExtractResponse{
		Success:     true,
		PDFFile:     receipt.SourceFile,
		ReceiptData: receipt,
		Timestamp:   timestamp(),
	})
}

// GeneratePass issues a wallet pass for the current receipt.
func (h *PipelineHandler) GeneratePass(c *fiber.Ctx) error {
	link, err := h.pipeline.GeneratePass(c.Context())
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.JSON(dto.PassGenResponse{
		Success:    true,
		WalletLink: link,
		Timestamp:  timestamp(),
	})
}

// ProcessComplete runs upload, extract and passgen in one call. A
// mid-run failure reports per-stage outcomes; completed stages keep
// their effects so the caller can resume from the failed one.
func (h *PipelineHandler) ProcessComplete(c *fiber.Ctx) error {
	image, fileName, err := readUploadedFile(c)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	result, runErr := h.pipeline.RunComplete(c.Context(), image, fileName)

	steps := make(map[string]dto.StepResult, len(result.Steps))
	for stage, outcome := range result.Steps {
		steps[string(stage)] = dto.StepResult{Success: outcome.Success, Error: outcome.Error}
	}

	resp := dto.ProcessCompleteResponse{
		Success:     runErr == nil,
		WalletLink:  result.WalletLink,
		ReceiptData: result.Receipt,
		Steps:       steps,
		FailedStage: string(result.FailedStage),
		Timestamp:   timestamp(),
	}
	if runErr != nil {
		// Partial progress is a reportable outcome, not a transport
		// failure: the per-stage breakdown carries the error.
		return c.Status(fiber.StatusBadGateway).JSON(resp)
	}
	return c.JSON(resp)
}

// Status reports the current session state snapshot.
func (h *PipelineHandler) Status(c *fiber.Ctx) error {
	state, err := h.pipeline.Status(c.Context())
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.JSON(dto.StatusResponse{
		SessionID:    state.SessionID,
		State:        string(state.State),
		CurrentImage: state.CurrentImage,
		CurrentPDF:   state.CurrentPDF,
		HasReceipt:   state.CurrentReceipt != nil,
		WalletLink:   state.LastWalletLink,
		UpdatedAt:    state.UpdatedAt.UTC().Format(time.RFC3339),
	})
}

// Reload resets a corrupt or stale session state to the default.
func (h *PipelineHandler) Reload(c *fiber.Ctx) error {
	if err := h.pipeline.ResetState(c.Context()); err != nil {
		return respondError(c, h.logger, err)
	}

	state, err := h.pipeline.Status(c.Context())
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.JSON(dto.ReloadResponse{
		Success: true,
		Message: "Processing state reloaded",
		State:   string(state.State),
	})
}

// readUploadedFile pulls the multipart "file" field into memory.
func readUploadedFile(c *fiber.Ctx) ([]byte, string, error) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return nil, "", fiber.NewError(fiber.StatusBadRequest, "file is required")
	}

	src, err := fileHeader.Open()
	if err != nil {
		return nil, "", fiber.NewError(fiber.StatusBadRequest, "failed to open uploaded file")
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, "", fiber.NewError(fiber.StatusBadRequest, "failed to read uploaded file")
	}
	return data, fileHeader.Filename, nil
}
