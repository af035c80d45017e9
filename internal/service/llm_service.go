package service

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/Role1776/gigago"
	"github.com/gen2brain/go-fitz"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"billfold/internal/models"
	"billfold/internal/storage"
	"billfold/pkg/config"
)

// LLMService wraps the GigaChat client behind the extraction and
// chat-analysis collaborator interfaces. Receipt PDFs are reduced to
// text with go-fitz; when the PDF carries no text layer (scanned or
// photographed receipts) the source image is read through the
// GigaChat Vision API instead.
type LLMService struct {
	client      *gigago.Client
	model       *gigago.GenerativeModel
	config      *config.GigaChatConfig
	httpClient  *http.Client
	accessToken string
	baseURL     string
	store       storage.Store
	logger      *zap.Logger
}

var (
	_ ReceiptExtractor = (*LLMService)(nil)
	_ QueryAnalyzer    = (*LLMService)(nil)
)

func NewLLMService(cfg *config.GigaChatConfig, store storage.Store, logger *zap.Logger) (*LLMService, error) {
	ctx := context.Background()

	opts := []gigago.Option{
		gigago.WithCustomScope(cfg.Scope),
	}
	if cfg.InsecureSkipVerify {
		opts = append(opts, gigago.WithCustomInsecureSkipVerify(true))
		logger.Warn("GigaChat TLS certificate verification is disabled")
	}

	client, err := gigago.NewClient(ctx, cfg.APIKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GigaChat client: %w", err)
	}

	model := client.GenerativeModel("GigaChat")
	model.SystemInstruction = systemInstruction
	model.Temperature = 0.2

	// The gigago client covers text generation only. File uploads and
	// vision completions go through the REST API directly.
	httpClient := &http.Client{}
	if cfg.InsecureSkipVerify {
		httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	accessToken, err := getAccessToken(ctx, cfg, httpClient, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}

	return &LLMService{
		client:      client,
		model:       model,
		config:      cfg,
		httpClient:  httpClient,
		accessToken: accessToken,
		baseURL:     "https://gigachat.devices.sberbank.ru/api/v1",
		store:       store,
		logger:      logger,
	}, nil
}

// getAccessToken obtains an OAuth token for direct REST calls. The API
// key is already Base64-encoded as issued by the GigaChat console.
func getAccessToken(ctx context.Context, cfg *config.GigaChatConfig, httpClient *http.Client, logger *zap.Logger) (string, error) {
	oauthURL := "https://ngw.devices.sberbank.ru:9443/api/v2/oauth"

	formData := url.Values{}
	formData.Set("scope", cfg.Scope)

	req, err := http.NewRequestWithContext(ctx, "POST", oauthURL, strings.NewReader(formData.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create OAuth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("RqUID", uuid.New().String())
	req.Header.Set("Authorization", "Basic "+cfg.APIKey)

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to get access token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("OAuth failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var oauthResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&oauthResp); err != nil {
		return "", fmt.Errorf("failed to decode OAuth response: %w", err)
	}
	if oauthResp.AccessToken == "" {
		return "", fmt.Errorf("empty access token in OAuth response")
	}

	logger.Info("GigaChat access token obtained", zap.Int("expires_in", oauthResp.ExpiresIn))
	return oauthResp.AccessToken, nil
}

func (s *LLMService) Close() error {
	if s.client != nil {
		s.client.Close()
	}
	return nil
}

const systemInstruction = `You are a receipt processing assistant. You extract structured data from retail receipts and answer questions about a user's spending. You always reply with exactly the JSON shape requested, with no markdown fences and no commentary before or after the JSON.`

// ExtractReceipt pulls the text out of the PDF and asks the model to
// structure it as a receipt. PDFs built from a receipt photo have no
// text layer, so an empty layer falls back to reading the source
// image with the Vision API.
func (s *LLMService) ExtractReceipt(ctx context.Context, pdfPath, imagePath string) (*models.Receipt, error) {
	text, err := s.extractTextFromPDF(pdfPath)
	if err != nil {
		return nil, err
	}
	if text == "" {
		if imagePath == "" {
			return nil, fmt.Errorf("PDF %s has no text layer and no source image is available", pdfPath)
		}
		text, err = s.extractTextFromImage(ctx, imagePath)
		if err != nil {
			return nil, err
		}
	}

	prompt := fmt.Sprintf(`Extract the receipt below into JSON.

Receipt text:
%s

Return ONLY a JSON object with this shape:
{
  "store_name": "string",
  "store_address": "string or empty",
  "store_phone": "string or empty",
  "date": "YYYY-MM-DD",
  "time": "HH:MM or empty",
  "bill_no": "string or empty",
  "receipt_category": "one of: %s",
  "summary": "one sentence describing the purchase",
  "payment_method": "string or empty",
  "currency": "ISO 4217 code or currency symbol",
  "subtotal_amount": number,
  "tax_amount": number or 0,
  "tip_amount": number or 0,
  "total_amount": number,
  "items": [
    {"item_name": "string", "quantity": number, "unit_price": number, "total_price": number, "category": "one of: %s"}
  ],
  "tax_breakdown": [
    {"tax_name": "string", "tax_rate": "string", "tax_amount": number}
  ],
  "footer_notes": "string or empty"
}

Rules:
- Extract amounts exactly as printed, do not invent values.
- If a field is absent on the receipt use an empty string or 0.
- Return ONLY the JSON object.`, text, categoryList(), categoryList())

	content, err := s.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	raw, err := extractJSON(content)
	if err != nil {
		return nil, fmt.Errorf("receipt extraction returned no JSON: %w", err)
	}

	var receipt models.Receipt
	if err := json.Unmarshal([]byte(raw), &receipt); err != nil {
		return nil, fmt.Errorf("failed to parse extracted receipt: %w", err)
	}

	s.logger.Info("Receipt data extracted",
		zap.String("pdf", pdfPath),
		zap.String("store", receipt.StoreName),
		zap.Int("items", len(receipt.Items)),
	)

	return &receipt, nil
}

// Analyze answers a chat query over the stored receipts. When the
// query asks for a list (ingredients, shopping, packing) the result
// carries the list type and items so the caller can issue a pass.
func (s *LLMService) Analyze(ctx context.Context, query, userID, language string) (*Analysis, error) {
	receipts, err := s.store.Receipts(ctx)
	if err != nil {
		return nil, err
	}

	contextBlock, categories := receiptContext(receipts)

	prompt := fmt.Sprintf(`The user asked: %q
Answer in language code %q.

Known receipts:
%s

Return ONLY a JSON object:
{
  "response": "your answer to the user",
  "intent": "financial_insight | list_generation | general",
  "list_type": "snake_case list name, only when intent is list_generation",
  "list_items": ["item", ...] // only when intent is list_generation, otherwise []
}

When the user asks what they are missing for a recipe or a trip,
the intent is list_generation: list_items must contain the concrete
items to buy, excluding anything already present on the receipts.`, query, languageOrDefault(language), contextBlock)

	content, err := s.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	raw, err := extractJSON(content)
	if err != nil {
		return nil, fmt.Errorf("query analysis returned no JSON: %w", err)
	}

	var parsed struct {
		Response  string   `json:"response"`
		Intent    string   `json:"intent"`
		ListType  string   `json:"list_type"`
		ListItems []string `json:"list_items"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse analysis: %w", err)
	}

	if parsed.Intent != "list_generation" {
		parsed.ListType = ""
		parsed.ListItems = nil
	}

	return &Analysis{
		Response:           parsed.Response,
		CategoriesAnalyzed: categories,
		ReceiptsCount:      len(receipts),
		ListType:           parsed.ListType,
		ListItems:          parsed.ListItems,
	}, nil
}

func (s *LLMService) generate(ctx context.Context, prompt string) (string, error) {
	messages := []gigago.Message{
		{Role: gigago.RoleUser, Content: prompt},
	}

	resp, err := s.model.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("failed to generate response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from LLM")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (s *LLMService) extractTextFromPDF(pdfPath string) (string, error) {
	doc, err := fitz.New(pdfPath)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	var textBuilder strings.Builder
	for i := 0; i < doc.NumPage(); i++ {
		pageText, err := doc.Text(i)
		if err != nil {
			s.logger.Warn("Failed to extract text from page",
				zap.Int("page", i+1),
				zap.String("file", pdfPath),
				zap.Error(err),
			)
			continue
		}
		if pageText != "" {
			textBuilder.WriteString(pageText)
			textBuilder.WriteString("\n")
		}
	}

	// An empty text layer is not an error: the caller decides whether
	// a vision fallback applies.
	return strings.TrimSpace(textBuilder.String()), nil
}

// extractTextFromImage reads a receipt photo through the GigaChat
// Vision API: the image is uploaded to the Files API and referenced as
// an attachment in a chat completion.
func (s *LLMService) extractTextFromImage(ctx context.Context, imagePath string) (string, error) {
	file, err := os.Open(imagePath)
	if err != nil {
		return "", fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	fileID, err := s.uploadFile(ctx, file, filepath.Base(imagePath))
	if err != nil {
		return "", err
	}

	const prompt = `Extract all text from this retail receipt photo.
Return only the text visible on the receipt, preserving line structure, with no commentary.
If the text is unreadable, return an empty string.`

	text, err := s.visionCompletion(ctx, fileID, prompt)
	if err != nil {
		return "", err
	}

	s.logger.Info("Receipt text read via Vision API",
		zap.String("image", imagePath),
		zap.Int("text_length", len(text)),
	)
	return text, nil
}

// uploadFile pushes a file to the GigaChat Files API and returns its
// id. Purpose "general" makes the file usable as a chat attachment.
func (s *LLMService) uploadFile(ctx context.Context, fileReader io.Reader, fileName string) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("purpose", "general"); err != nil {
		return "", fmt.Errorf("failed to write purpose field: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	mimeType := mime.TypeByExtension(ext)
	if mimeType == "" {
		switch ext {
		case ".pdf":
			mimeType = "application/pdf"
		case ".jpg", ".jpeg":
			mimeType = "image/jpeg"
		case ".png":
			mimeType = "image/png"
		default:
			mimeType = "application/octet-stream"
		}
	}

	part, err := writer.CreatePart(map[string][]string{
		"Content-Type":        {mimeType},
		"Content-Disposition": {fmt.Sprintf(`form-data; name="file"; filename="%s"`, fileName)},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, fileReader); err != nil {
		return "", fmt.Errorf("failed to copy file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/files", &body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.accessToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		// The multipart body is consumed, so the request cannot be
		// replayed here. Refresh the token and report a retryable
		// failure.
		accessToken, err := getAccessToken(ctx, s.config, s.httpClient, s.logger)
		if err != nil {
			return "", fmt.Errorf("upload failed with 401, token refresh also failed: %w", err)
		}
		s.accessToken = accessToken
		return "", fmt.Errorf("access token expired, retry the extraction")
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var uploadResp struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&uploadResp); err != nil {
		return "", fmt.Errorf("failed to decode upload response: %w", err)
	}

	s.logger.Info("File uploaded to GigaChat", zap.String("file_id", uploadResp.ID))
	return uploadResp.ID, nil
}

// visionCompletion runs a chat completion with the uploaded file as an
// attachment. Attachments are nested arrays, one inner array per
// message.
func (s *LLMService) visionCompletion(ctx context.Context, fileID, prompt string) (string, error) {
	requestBody := map[string]interface{}{
		"model": "GigaChat",
		"messages": []map[string]interface{}{
			{
				"role":        "user",
				"content":     prompt,
				"attachments": [][]string{{fileID}},
			},
		},
		"temperature":        0.3,
		"top_p":              0.0,
		"stream":             false,
		"max_tokens":         0,
		"repetition_penalty": 1.0,
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.accessToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("vision API failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var visionResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&visionResp); err != nil {
		return "", fmt.Errorf("failed to decode vision response: %w", err)
	}
	if len(visionResp.Choices) == 0 {
		return "", fmt.Errorf("no response from Vision API")
	}

	text := strings.TrimSpace(visionResp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("Vision API found no readable text")
	}
	return text, nil
}

// receiptContext summarizes stored receipts for the chat prompt and
// collects the distinct categories seen.
func receiptContext(receipts []*models.Receipt) (string, []string) {
	if len(receipts) == 0 {
		return "(no receipts on file)", nil
	}

	seen := map[models.ItemCategory]bool{}
	var b strings.Builder
	for _, r := range receipts {
		fmt.Fprintf(&b, "- %s | %s | %s%s | %s\n",
			r.StoreName, r.Date, r.Currency, models.FormatAmount(r.Total), r.Category)
		for _, item := range r.Items {
			fmt.Fprintf(&b, "    %s x%g\n", item.Name, item.Quantity)
		}
		seen[r.Category] = true
	}

	var categories []string
	for _, c := range models.ExpenseCategories {
		if seen[c] {
			categories = append(categories, string(c))
		}
	}
	return b.String(), categories
}

// extractJSON pulls the outermost JSON object out of a model reply,
// tolerating markdown fences and surrounding prose.
func extractJSON(content string) (string, error) {
	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start == -1 || end == -1 || end <= start {
		return "", fmt.Errorf("no JSON found in %q", content)
	}
	return content[start : end+1], nil
}

func categoryList() string {
	parts := make([]string, len(models.ExpenseCategories))
	for i, c := range models.ExpenseCategories {
		parts[i] = string(c)
	}
	return strings.Join(parts, "|")
}

func languageOrDefault(language string) string {
	if language == "" {
		return "en"
	}
	return language
}
