package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"billfold/internal/models"
	"billfold/internal/storage"
	"billfold/internal/storage/postgres"
	"billfold/internal/storage/sqlite"
	"billfold/pkg/config"
	"billfold/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Seeds the store with a handful of demo receipts so the dashboard and
// chat endpoints have data to work with on a fresh install.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.Logger.Level); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	appLogger := logger.Get()

	ctx := context.Background()
	store, err := newStore(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to open store", zap.Error(err))
	}
	defer store.Close()

	appLogger.Info("Seeding demo receipts...")

	for _, receipt := range demoReceipts() {
		if err := store.AppendReceipt(ctx, receipt); err != nil {
			appLogger.Fatal("Failed to insert receipt",
				zap.String("store", receipt.StoreName),
				zap.Error(err),
			)
		}
		appLogger.Info("Inserted receipt",
			zap.String("receipt_id", receipt.ID),
			zap.String("store", receipt.StoreName),
			zap.Float64("total", receipt.Total),
		)
	}

	appLogger.Info("Seeding completed")
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

func demoReceipts() []*models.Receipt {
	now := time.Now().UTC()
	return []*models.Receipt{
		{
			ID:        "receipt_" + uuid.New().String(),
			StoreName: "Fresh Mart",
			Date:      now.AddDate(0, 0, -7).Format("2006-01-02"),
			Category:  models.ItemCategoryGroceries,
			Currency:  "₹",
			Subtotal:  840.00,
			Tax:       42.00,
			Total:     882.00,
			Items: []models.LineItem{
				{Name: "Basmati Rice 5kg", Quantity: 1, UnitPrice: 450, TotalPrice: 450, Category: models.ItemCategoryGroceries},
				{Name: "Toor Dal 1kg", Quantity: 2, UnitPrice: 140, TotalPrice: 280, Category: models.ItemCategoryGroceries},
				{Name: "Milk 1L", Quantity: 2, UnitPrice: 55, TotalPrice: 110, Category: models.ItemCategoryGroceries},
			},
			PaymentMethod: "UPI",
			ProcessedAt:   now.AddDate(0, 0, -7),
		},
		{
			ID:        "receipt_" + uuid.New().String(),
			StoreName: "Cafe Azzurro",
			Date:      now.AddDate(0, 0, -3).Format("2006-01-02"),
			Category:  models.ItemCategoryFood,
			Currency:  "₹",
			Subtotal:  1240.00,
			Tax:       62.00,
			Tip:       100.00,
			Total:     1402.00,
			Items: []models.LineItem{
				{Name: "Margherita Pizza", Quantity: 2, UnitPrice: 420, TotalPrice: 840, Category: models.ItemCategoryFood},
				{Name: "Iced Latte", Quantity: 2, UnitPrice: 200, TotalPrice: 400, Category: models.ItemCategoryFood},
			},
			PaymentMethod: "Card",
			ProcessedAt:   now.AddDate(0, 0, -3),
		},
		{
			ID:        "receipt_" + uuid.New().String(),
			StoreName: "City Cab",
			Date:      now.AddDate(0, 0, -1).Format("2006-01-02"),
			Category:  models.ItemCategoryTransport,
			Currency:  "₹",
			Subtotal:  320.00,
			Total:     320.00,
			Items: []models.LineItem{
				{Name: "Airport drop", Quantity: 1, UnitPrice: 320, TotalPrice: 320, Category: models.ItemCategoryTransport},
			},
			PaymentMethod: "Cash",
			ProcessedAt:   now.AddDate(0, 0, -1),
		},
	}
}
