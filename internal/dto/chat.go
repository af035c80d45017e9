package dto

type ChatRequest struct {
	Query    string `json:"query"`
	UserID   string `json:"user_id,omitempty"`
	Language string `json:"language,omitempty"`
}

type ChatResponse struct {
	Response           string   `json:"response"`
	CategoriesAnalyzed []string `json:"categories_analyzed"`
	ReceiptsCount      int      `json:"receipts_count"`
	WalletPassLink     string   `json:"wallet_pass_link,omitempty"`
	ListType           string   `json:"list_type,omitempty"`
	ListItems          []string `json:"list_items,omitempty"`
	Timestamp          string   `json:"timestamp"`
}

type PassGenerationResult struct {
	Success    bool   `json:"success"`
	WalletLink string `json:"wallet_link,omitempty"`
	Error      string `json:"error,omitempty"`
}

type ProcessResponse struct {
	ChatbotResponse      ChatResponse          `json:"chatbot_response"`
	PassGenerationResult *PassGenerationResult `json:"pass_generation_result,omitempty"`
}

type ShoppingPassRequest struct {
	Title string   `json:"title,omitempty"`
	Items []string `json:"items"`
}

type ShoppingPassResponse struct {
	Success    bool   `json:"success"`
	WalletLink string `json:"wallet_link"`
	ItemsCount int    `json:"items_count"`
	Timestamp  string `json:"timestamp"`
}
