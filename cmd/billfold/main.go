package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"billfold/internal/api"
	"billfold/internal/api/handlers"
	"billfold/internal/models"
	"billfold/internal/service"
	"billfold/internal/storage"
	"billfold/internal/storage/postgres"
	"billfold/internal/storage/sqlite"
	"billfold/pkg/config"
	"billfold/pkg/logger"

	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	if err := logger.Init(cfg.Logger.Level); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	appLogger := logger.Get()
	appLogger.Info("Starting billfold service")

	// Initialize storage
	ctx := context.Background()
	store, err := newStore(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to open store", zap.Error(err))
	}
	defer store.Close()

	// Initialize collaborators
	llmService, err := service.NewLLMService(&cfg.GigaChat, store, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize LLM service", zap.Error(err))
	}
	defer llmService.Close()

	convertService := service.NewConvertService(cfg.Pipeline.UploadDir, appLogger)
	passIssuer := newPassIssuer(ctx, cfg, appLogger)

	// Initialize services
	pipelineService := service.NewPipelineService(
		store, convertService, llmService, passIssuer,
		cfg.Pipeline.CollaboratorTimeout, appLogger,
	)
	splitService := service.NewSplitService(store, appLogger)
	dispatchService := service.NewDispatchService(llmService, passIssuer, cfg.Pipeline.CollaboratorTimeout, appLogger)

	// Initialize handlers
	pipelineHandler := handlers.NewPipelineHandler(pipelineService, appLogger)
	splitHandler := handlers.NewSplitHandler(splitService, cfg.UPI, appLogger)
	chatHandler := handlers.NewChatHandler(dispatchService, passIssuer, appLogger)
	systemHandler := handlers.NewSystemHandler(store, cfg.Pipeline.UploadDir, appLogger)

	// Setup router
	app := api.SetupRouter(pipelineHandler, splitHandler, chatHandler, systemHandler, appLogger)

	// Start server
	go func() {
		addr := ":" + cfg.Server.Port
		appLogger.Info("Server starting", zap.String("address", addr))
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server")
	if err := app.Shutdown(); err != nil {
		appLogger.Error("Server shutdown error", zap.Error(err))
	}
}

func newStore(ctx context.Context, cfg *config.Config, appLogger *zap.Logger) (storage.Store, error) {
	switch cfg.Database.Driver {
	case "postgres":
		return postgres.New(ctx, &cfg.Database, appLogger)
	case "sqlite", "":
		return sqlite.New(cfg.Database.Path)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

// newPassIssuer builds the wallet collaborator. Without wallet
// credentials the service still starts; pass generation then reports
// the issuer as unavailable instead of failing at boot.
func newPassIssuer(ctx context.Context, cfg *config.Config, appLogger *zap.Logger) service.PassIssuer {
	if cfg.Wallet.IssuerID == "" || cfg.Wallet.ServiceAccountFile == "" {
		appLogger.Warn("Wallet credentials not configured, pass generation disabled")
		return unavailableIssuer{}
	}

	walletService, err := service.NewWalletService(ctx, &cfg.Wallet, appLogger)
	if err != nil {
		appLogger.Warn("Failed to initialize wallet service, pass generation disabled", zap.Error(err))
		return unavailableIssuer{}
	}
	return walletService
}

type unavailableIssuer struct{}

func (unavailableIssuer) IssueReceiptPass(context.Context, *models.Receipt) (string, error) {
	return "", errNoWallet
}

func (unavailableIssuer) IssueShoppingPass(context.Context, string, []string) (string, error) {
	return "", errNoWallet
}

var errNoWallet = fmt.Errorf("wallet issuer is not configured")
