package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"billfold/internal/dto"
	"billfold/internal/models"
	"billfold/internal/service"
)

type ChatHandler struct {
	dispatch *service.DispatchService
	passes   service.PassIssuer
	logger   *zap.Logger
}

func NewChatHandler(dispatch *service.DispatchService, passes service.PassIssuer, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		dispatch: dispatch,
		passes:   passes,
		logger:   logger,
	}
}

// Chat answers a natural-language question about stored receipts. When
// the answer contains a generated list, a shopping pass link is
// attached on success.
func (h *ChatHandler) Chat(c *fiber.Ctx) error {
	req, err := parseChatRequest(c)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	result, err := h.dispatch.Dispatch(c.Context(), req.Query, req.UserID, req.Language)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.JSON(chatResponse(result))
}

// Process is the combined endpoint: it returns the chat analysis plus
// the pass generation outcome as separate results. A pass failure is
// reported inside pass_generation_result, never as a request failure;
// when no list was generated the field is absent.
func (h *ChatHandler) Process(c *fiber.Ctx) error {
	req, err := parseChatRequest(c)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	result, err := h.dispatch.Dispatch(c.Context(), req.Query, req.UserID, req.Language)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	resp := dto.ProcessResponse{ChatbotResponse: chatResponse(result)}
	if result.PassGeneration != nil {
		resp.PassGenerationResult = &dto.PassGenerationResult{
			Success:    result.PassGeneration.Success,
			WalletLink: result.PassGeneration.WalletLink,
			Error:      result.PassGeneration.Error,
		}
	}
	return c.JSON(resp)
}

// GenerateShoppingPass issues a wallet pass directly from a caller
// supplied item list, without going through the assistant.
func (h *ChatHandler) GenerateShoppingPass(c *fiber.Ctx) error {
	var req dto.ShoppingPassRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, h.logger, &models.ValidationError{Field: "body", Reason: "malformed JSON"})
	}
	if req.Title == "" {
		req.Title = "Shopping List"
	}

	link, err := h.passes.IssueShoppingPass(c.Context(), req.Title, req.Items)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.JSON(dto.ShoppingPassResponse{
		Success:    true,
		WalletLink: link,
		ItemsCount: len(req.Items),
		Timestamp:  timestamp(),
	})
}

func parseChatRequest(c *fiber.Ctx) (*dto.ChatRequest, error) {
	var req dto.ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, &models.ValidationError{Field: "body", Reason: "malformed JSON"}
	}
	return &req, nil
}

func chatResponse(result *service.CombinedResult) dto.ChatResponse {
	resp := dto.ChatResponse{
		Response:           result.Analysis.Response,
		CategoriesAnalyzed: result.Analysis.CategoriesAnalyzed,
		ReceiptsCount:      result.Analysis.ReceiptsCount,
		ListType:           result.Analysis.ListType,
		ListItems:          result.Analysis.ListItems,
		Timestamp:          timestamp(),
	}
	if result.PassGeneration != nil && result.PassGeneration.Success {
		resp.WalletPassLink = result.PassGeneration.WalletLink
	}
	return resp
}
