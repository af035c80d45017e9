package service

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	walletobjects "google.golang.org/api/walletobjects/v1"

	"billfold/internal/models"
	"billfold/pkg/config"
)

const (
	receiptClassSuffix  = "billfold_receipt"
	shoppingClassSuffix = "billfold_shopping"
	saveLinkBase        = "https://pay.google.com/gp/v/save/"
)

// WalletService is the wallet issuance collaborator: it creates
// Google Wallet generic objects for receipts and shopping lists and
// returns signed "save to wallet" links.
type WalletService struct {
	svc         *walletobjects.Service
	issuerID    string
	clientEmail string
	privateKey  *rsa.PrivateKey
	logger      *zap.Logger

	mu             sync.Mutex
	ensuredClasses map[string]bool
}

var _ PassIssuer = (*WalletService)(nil)

func NewWalletService(ctx context.Context, cfg *config.WalletConfig, logger *zap.Logger) (*WalletService, error) {
	if cfg.IssuerID == "" {
		return nil, fmt.Errorf("wallet issuer id is not configured")
	}

	raw, err := os.ReadFile(cfg.ServiceAccountFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read service account file: %w", err)
	}

	var sa struct {
		ClientEmail string `json:"client_email"`
		PrivateKey  string `json:"private_key"`
	}
	if err := json.Unmarshal(raw, &sa); err != nil {
		return nil, fmt.Errorf("failed to parse service account file: %w", err)
	}

	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(sa.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("failed to parse service account key: %w", err)
	}

	svc, err := walletobjects.NewService(ctx,
		option.WithCredentialsFile(cfg.ServiceAccountFile),
		option.WithScopes(walletobjects.WalletObjectIssuerScope),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet client: %w", err)
	}

	return &WalletService{
		svc:            svc,
		issuerID:       cfg.IssuerID,
		clientEmail:    sa.ClientEmail,
		privateKey:     privateKey,
		logger:         logger,
		ensuredClasses: map[string]bool{},
	}, nil
}

// IssueReceiptPass creates a wallet pass carrying the receipt summary
// and returns its save link. Each call issues a fresh pass object.
func (s *WalletService) IssueReceiptPass(ctx context.Context, receipt *models.Receipt) (string, error) {
	classID := s.issuerID + "." + receiptClassSuffix
	if err := s.ensureClass(ctx, classID); err != nil {
		return "", err
	}

	objectID := fmt.Sprintf("%s.receipt_%s", s.issuerID, uuid.New().String())

	modules := []*walletobjects.TextModuleData{
		{
			Id:     "total",
			Header: "Total",
			Body:   receipt.Currency + models.FormatAmount(receipt.Total),
		},
		{
			Id:     "category",
			Header: "Category",
			Body:   string(receipt.Category),
		},
	}
	if len(receipt.Items) > 0 {
		names := make([]string, 0, len(receipt.Items))
		for _, item := range receipt.Items {
			names = append(names, item.Name)
		}
		modules = append(modules, &walletobjects.TextModuleData{
			Id:     "items",
			Header: fmt.Sprintf("Items (%d)", len(receipt.Items)),
			Body:   strings.Join(names, ", "),
		})
	}

	object := &walletobjects.GenericObject{
		Id:                 objectID,
		ClassId:            classID,
		CardTitle:          localized("Billfold Receipt"),
		Header:             localized(receipt.StoreName),
		Subheader:          localized(receipt.Date),
		TextModulesData:    modules,
		HexBackgroundColor: "#1a73e8",
		Barcode: &walletobjects.Barcode{
			Type:  "QR_CODE",
			Value: receipt.ID,
		},
	}

	if _, err := s.svc.Genericobject.Insert(object).Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("failed to insert pass object: %w", err)
	}

	link, err := s.saveLink(objectID)
	if err != nil {
		return "", err
	}

	s.logger.Info("Receipt pass issued",
		zap.String("object_id", objectID),
		zap.String("store", receipt.StoreName),
	)
	return link, nil
}

// IssueShoppingPass creates a wallet pass listing shopping items and
// returns its save link.
func (s *WalletService) IssueShoppingPass(ctx context.Context, title string, items []string) (string, error) {
	if len(items) == 0 {
		return "", &models.ValidationError{Field: "items", Reason: "at least one item is required"}
	}

	classID := s.issuerID + "." + shoppingClassSuffix
	if err := s.ensureClass(ctx, classID); err != nil {
		return "", err
	}

	objectID := fmt.Sprintf("%s.shopping_%s", s.issuerID, uuid.New().String())

	object := &walletobjects.GenericObject{
		Id:        objectID,
		ClassId:   classID,
		CardTitle: localized("Billfold Shopping List"),
		Header:    localized(title),
		Subheader: localized(time.Now().Format("2006-01-02")),
		TextModulesData: []*walletobjects.TextModuleData{
			{
				Id:     "items",
				Header: fmt.Sprintf("Items (%d)", len(items)),
				Body:   strings.Join(items, "\n"),
			},
		},
		HexBackgroundColor: "#0f9d58",
	}

	if _, err := s.svc.Genericobject.Insert(object).Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("failed to insert pass object: %w", err)
	}

	link, err := s.saveLink(objectID)
	if err != nil {
		return "", err
	}

	s.logger.Info("Shopping pass issued",
		zap.String("object_id", objectID),
		zap.Int("items", len(items)),
	)
	return link, nil
}

// ensureClass inserts the pass class on first use; 409 from a
// concurrent insert counts as success.
func (s *WalletService) ensureClass(ctx context.Context, classID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensuredClasses[classID] {
		return nil
	}

	_, err := s.svc.Genericclass.Get(classID).Context(ctx).Do()
	if err != nil {
		var gerr *googleapi.Error
		if !errors.As(err, &gerr) || gerr.Code != 404 {
			return fmt.Errorf("failed to look up pass class: %w", err)
		}
		_, err = s.svc.Genericclass.Insert(&walletobjects.GenericClass{Id: classID}).Context(ctx).Do()
		if err != nil {
			if errors.As(err, &gerr) && gerr.Code == 409 {
				// Someone else created it between Get and Insert.
			} else {
				return fmt.Errorf("failed to create pass class: %w", err)
			}
		}
	}

	s.ensuredClasses[classID] = true
	return nil
}

// saveLink signs the "save to wallet" JWT referencing the object.
func (s *WalletService) saveLink(objectID string) (string, error) {
	claims := jwt.MapClaims{
		"iss": s.clientEmail,
		"aud": "google",
		"typ": "savetowallet",
		"iat": time.Now().Unix(),
		"payload": map[string]any{
			"genericObjects": []map[string]string{{"id": objectID}},
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(s.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign save link: %w", err)
	}
	return saveLinkBase + signed, nil
}

func localized(value string) *walletobjects.LocalizedString {
	if value == "" {
		value = "-"
	}
	return &walletobjects.LocalizedString{
		DefaultValue: &walletobjects.TranslatedString{
			Language: "en-US",
			Value:    value,
		},
	}
}
