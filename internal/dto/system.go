package dto

import "billfold/internal/models"

type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type RootResponse struct {
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Endpoints map[string]string `json:"endpoints"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type CategoriesResponse struct {
	Categories []models.ItemCategory `json:"categories"`
	Count      int                   `json:"count"`
}

type ReceiptsResponse struct {
	Success  bool              `json:"success"`
	Count    int               `json:"count"`
	Receipts []*models.Receipt `json:"receipts"`
}

type CategoryBreakdown struct {
	Category models.ItemCategory `json:"category"`
	Count    int                 `json:"count"`
	Total    float64             `json:"total_amount"`
}

type MonthlySpend struct {
	Month string  `json:"month"`
	Count int     `json:"count"`
	Total float64 `json:"total_amount"`
}

type DashboardResponse struct {
	Success       bool                  `json:"success"`
	ReceiptsCount int                   `json:"receipts_count"`
	TotalSpent    float64               `json:"total_spent"`
	SplitsCount   int                   `json:"splits_count"`
	Categories    []CategoryBreakdown   `json:"categories"`
	MonthlySpend  []MonthlySpend        `json:"monthly_spend"`
	RecentSteps   []models.HistoryEntry `json:"recent_steps"`
	Timestamp     string                `json:"timestamp"`
}
