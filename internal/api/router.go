package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"billfold/internal/api/handlers"
	"billfold/internal/dto"
)

func SetupRouter(
	pipelineHandler *handlers.PipelineHandler,
	splitHandler *handlers.SplitHandler,
	chatHandler *handlers.ChatHandler,
	systemHandler *handlers.SystemHandler,
	appLogger *zap.Logger,
) *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit: 20 * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(dto.ErrorResponse{
				Success: false,
				Message: err.Error(),
			})
		},
	})

	// Middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))
	app.Use(logger.New())

	// Service surface
	app.Get("/", systemHandler.Root)
	app.Get("/health", systemHandler.Health)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Receipt pipeline
	app.Post("/upload", pipelineHandler.Upload)
	app.Post("/extract", pipelineHandler.Extract)
	app.Post("/passgen", pipelineHandler.GeneratePass)
	app.Post("/process-complete", pipelineHandler.ProcessComplete)
	app.Get("/status", pipelineHandler.Status)
	app.Get("/history", systemHandler.History)
	app.Post("/reload", pipelineHandler.Reload)

	// Bill splitting
	app.Post("/split-bill", splitHandler.SplitBill)
	app.Post("/generate-upi", splitHandler.GenerateUPI)
	app.Post("/share-upi", splitHandler.ShareUPI)
	app.Get("/split-history", splitHandler.SplitHistory)

	// Assistant
	app.Post("/chat", chatHandler.Chat)
	app.Post("/process", chatHandler.Process)
	app.Post("/generate-shopping-pass", chatHandler.GenerateShoppingPass)

	// Data access
	app.Get("/dashboard", systemHandler.Dashboard)
	app.Get("/receipts/all", systemHandler.Receipts)
	app.Get("/categories", systemHandler.Categories)
	app.Get("/download/:filename", systemHandler.Download)

	appLogger.Info("Router configured")

	return app
}
