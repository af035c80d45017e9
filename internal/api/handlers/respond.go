package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"billfold/internal/dto"
	"billfold/internal/models"
	"billfold/internal/storage"
)

// respondError maps domain error types to HTTP statuses and renders
// the error envelope. Input rejections map to 400, out-of-order stage
// calls to 409, unreachable collaborators to 503.
func respondError(c *fiber.Ctx, logger *zap.Logger, err error) error {
	status := fiber.StatusInternalServerError

	var (
		validationErr *models.ValidationError
		sequenceErr   *models.StageSequenceError
		collabErr     *models.CollaboratorError
		fiberErr      *fiber.Error
	)
	switch {
	case errors.As(err, &validationErr):
		status = fiber.StatusBadRequest
	case errors.As(err, &sequenceErr):
		status = fiber.StatusConflict
	case errors.As(err, &collabErr):
		status = fiber.StatusServiceUnavailable
	case errors.Is(err, storage.ErrNotFound):
		status = fiber.StatusNotFound
	case errors.As(err, &fiberErr):
		status = fiberErr.Code
	}

	if status >= fiber.StatusInternalServerError {
		logger.Error("Request failed", zap.Int("status", status), zap.Error(err))
	} else {
		logger.Warn("Request rejected", zap.Int("status", status), zap.Error(err))
	}

	return c.Status(status).JSON(dto.ErrorResponse{Success: false, Message: err.Error()})
}

// timestamp renders the response timestamp in RFC 3339 UTC.
func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
