package handlers

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"billfold/internal/dto"
	"billfold/internal/models"
	"billfold/internal/storage"
)

type SystemHandler struct {
	store     storage.Store
	uploadDir string
	logger    *zap.Logger
}

func NewSystemHandler(store storage.Store, uploadDir string, logger *zap.Logger) *SystemHandler {
	return &SystemHandler{
		store:     store,
		uploadDir: uploadDir,
		logger:    logger,
	}
}

// Root describes the service and its endpoints.
func (h *SystemHandler) Root(c *fiber.Ctx) error {
	return c.JSON(dto.RootResponse{
		Service: "billfold",
		Version: "1.0.0",
		Endpoints: map[string]string{
			"POST /upload":                 "upload a receipt photo and convert it to PDF",
			"POST /extract":                "extract structured receipt data from the current PDF",
			"POST /passgen":                "generate a wallet pass for the current receipt",
			"POST /process-complete":       "run upload, extract and passgen in one call",
			"POST /split-bill":             "split the receipt total among contacts",
			"POST /generate-upi":           "regenerate UPI links for the latest split",
			"POST /share-upi":              "build a WhatsApp or SMS share link",
			"POST /chat":                   "ask about stored receipts",
			"POST /process":                "chat plus shopping pass generation",
			"POST /generate-shopping-pass": "issue a wallet pass from an item list",
			"POST /reload":                 "reset the processing state",
			"GET /status":                  "current session state",
			"GET /history":                 "processing history",
			"GET /split-history":           "recorded splits",
			"GET /dashboard":               "spending summary",
			"GET /receipts/all":            "all stored receipts",
			"GET /categories":              "expense categories",
			"GET /download/:filename":      "download a generated artifact",
			"GET /health":                  "liveness probe",
			"GET /metrics":                 "prometheus metrics",
		},
	})
}

// Health is the liveness probe.
func (h *SystemHandler) Health(c *fiber.Ctx) error {
	return c.JSON(dto.HealthResponse{
		Status:    "healthy",
		Timestamp: timestamp(),
	})
}

// Categories lists the fixed expense category set.
func (h *SystemHandler) Categories(c *fiber.Ctx) error {
	return c.JSON(dto.CategoriesResponse{
		Categories: models.ExpenseCategories,
		Count:      len(models.ExpenseCategories),
	})
}

// Receipts lists every stored receipt.
func (h *SystemHandler) Receipts(c *fiber.Ctx) error {
	receipts, err := h.store.Receipts(c.Context())
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.JSON(dto.ReceiptsResponse{
		Success:  true,
		Count:    len(receipts),
		Receipts: receipts,
	})
}

// History lists the full processing history in append order.
func (h *SystemHandler) History(c *fiber.Ctx) error {
	entries, err := h.store.History(c.Context())
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.JSON(dto.HistoryResponse{
		Success: true,
		Count:   len(entries),
		History: entries,
	})
}

// Dashboard computes a spending summary from stored data. Nothing is
// cached; every call reflects the current store contents.
func (h *SystemHandler) Dashboard(c *fiber.Ctx) error {
	receipts, err := h.store.Receipts(c.Context())
	if err != nil {
		return respondError(c, h.logger, err)
	}
	splits, err := h.store.Splits(c.Context())
	if err != nil {
		return respondError(c, h.logger, err)
	}
	history, err := h.store.History(c.Context())
	if err != nil {
		return respondError(c, h.logger, err)
	}

	var totalSpent float64
	byCategory := map[models.ItemCategory]*dto.CategoryBreakdown{}
	byMonth := map[string]*dto.MonthlySpend{}
	for _, r := range receipts {
		totalSpent += r.Total
		category := r.Category
		if category == "" {
			category = models.ItemCategoryOthers
		}
		entry, ok := byCategory[category]
		if !ok {
			entry = &dto.CategoryBreakdown{Category: category}
			byCategory[category] = entry
		}
		entry.Count++
		entry.Total += r.Total

		month := receiptMonth(r)
		monthEntry, ok := byMonth[month]
		if !ok {
			monthEntry = &dto.MonthlySpend{Month: month}
			byMonth[month] = monthEntry
		}
		monthEntry.Count++
		monthEntry.Total += r.Total
	}

	categories := make([]dto.CategoryBreakdown, 0, len(byCategory))
	for _, entry := range byCategory {
		categories = append(categories, *entry)
	}
	sort.Slice(categories, func(i, j int) bool {
		if categories[i].Total != categories[j].Total {
			return categories[i].Total > categories[j].Total
		}
		return categories[i].Category < categories[j].Category
	})

	monthly := make([]dto.MonthlySpend, 0, len(byMonth))
	for _, entry := range byMonth {
		monthly = append(monthly, *entry)
	}
	sort.Slice(monthly, func(i, j int) bool {
		return monthly[i].Month < monthly[j].Month
	})

	recent := history
	if len(recent) > 10 {
		recent = recent[len(recent)-10:]
	}

	return c.JSON(dto.DashboardResponse{
		Success:       true,
		ReceiptsCount: len(receipts),
		TotalSpent:    totalSpent,
		SplitsCount:   len(splits),
		Categories:    categories,
		MonthlySpend:  monthly,
		RecentSteps:   recent,
		Timestamp:     timestamp(),
	})
}

// receiptMonth buckets a receipt into a YYYY-MM month key. The printed
// receipt date wins; receipts with a malformed date fall back to the
// processing time.
func receiptMonth(r *models.Receipt) string {
	if len(r.Date) >= 7 && r.Date[4] == '-' {
		return r.Date[:7]
	}
	return r.ProcessedAt.UTC().Format("2006-01")
}

// Download serves a generated artifact from the upload directory. The
// name is reduced to its base so the handler cannot be walked out of
// the directory.
func (h *SystemHandler) Download(c *fiber.Ctx) error {
	name := filepath.Base(c.Params("filename"))
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return respondError(c, h.logger, &models.ValidationError{Field: "filename", Reason: "invalid file name"})
	}

	path := filepath.Join(h.uploadDir, name)
	if err := c.SendFile(path); err != nil {
		return respondError(c, h.logger, fiber.NewError(fiber.StatusNotFound, "file not found"))
	}
	return nil
}
