package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"billfold/internal/models"
	"billfold/internal/storage"
	"billfold/pkg/metrics"
)

// ConvertResult describes the artifacts produced by image conversion.
type ConvertResult struct {
	ImagePath string
	PDFPath   string
	FileSize  int64
}

// DocumentConverter turns an uploaded image into a PDF document.
type DocumentConverter interface {
	Convert(ctx context.Context, image []byte, fileName string) (*ConvertResult, error)
}

// ReceiptExtractor extracts structured receipt data from a PDF. The
// source image accompanies the PDF so extractors can fall back to it
// when the PDF carries no text layer.
type ReceiptExtractor interface {
	ExtractReceipt(ctx context.Context, pdfPath, imagePath string) (*models.Receipt, error)
}

// PassIssuer issues digital wallet passes and returns the save link.
type PassIssuer interface {
	IssueReceiptPass(ctx context.Context, receipt *models.Receipt) (string, error)
	IssueShoppingPass(ctx context.Context, title string, items []string) (string, error)
}

var supportedImageFormats = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true,
	".bmp": true, ".tiff": true, ".tif": true,
}

// PipelineService drives a receipt through upload, extraction and pass
// generation, one stage at a time, persisting every transition.
//
// Stage transitions are serialized by a mutex: the processing state is
// a single overwritten record, and without serialization one session's
// extract could consume another session's converted artifact.
type PipelineService struct {
	store     storage.Store
	converter DocumentConverter
	extractor ReceiptExtractor
	passes    PassIssuer
	timeout   time.Duration
	logger    *zap.Logger

	mu sync.Mutex
}

func NewPipelineService(
	store storage.Store,
	converter DocumentConverter,
	extractor ReceiptExtractor,
	passes PassIssuer,
	timeout time.Duration,
	logger *zap.Logger,
) *PipelineService {
	return &PipelineService{
		store:     store,
		converter: converter,
		extractor: extractor,
		passes:    passes,
		timeout:   timeout,
		logger:    logger,
	}
}

// UploadResult is the outcome of the upload stage.
type UploadResult struct {
	SessionID string
	InputFile string
	OutputPDF string
	FileSize  int64
}

// Upload starts a fresh session: it saves the image, delegates
// conversion to the converter collaborator and moves the session to
// the converted state. A new upload always replaces the previous
// session's in-flight data; history is preserved.
func (s *PipelineService) Upload(ctx context.Context, image []byte, fileName string) (*UploadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upload(ctx, image, fileName)
}

func (s *PipelineService) upload(ctx context.Context, image []byte, fileName string) (*UploadResult, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	if !supportedImageFormats[ext] {
		return nil, &models.ValidationError{Field: "file", Reason: fmt.Sprintf("unsupported format %q", ext)}
	}
	if len(image) == 0 {
		return nil, &models.ValidationError{Field: "file", Reason: "empty upload"}
	}

	state, err := s.store.LoadState(ctx)
	if err != nil {
		return nil, err
	}

	sessionID := uuid.New().String()

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	result, err := s.converter.Convert(callCtx, image, fileName)
	cancel()
	if err != nil {
		cerr := &models.CollaboratorError{Service: "image converter", Err: err}
		s.recordStep(ctx, models.HistoryEntry{
			Step:      models.StageUpload,
			SessionID: sessionID,
			Timestamp: time.Now().UTC(),
			InputFile: fileName,
			Success:   false,
			Error:     cerr.Error(),
		})
		metrics.StageTotal.WithLabelValues(string(models.StageUpload), metrics.OutcomeError).Inc()
		return nil, cerr
	}

	// The previous session's source image is no longer reachable once
	// its state is overwritten; only the PDF artifact stays downloadable.
	if prev := state.CurrentImage; prev != "" && prev != result.ImagePath {
		if cleaner, ok := s.converter.(interface{ Cleanup(string) }); ok {
			cleaner.Cleanup(prev)
		}
	}

	state.SessionID = sessionID
	state.State = models.StateConverted
	state.CurrentImage = result.ImagePath
	state.CurrentPDF = result.PDFPath
	state.CurrentReceipt = nil
	state.LastWalletLink = ""
	if err := s.store.SaveState(ctx, state); err != nil {
		return nil, err
	}

	s.recordStep(ctx, models.HistoryEntry{
		Step:       models.StageUpload,
		SessionID:  sessionID,
		Timestamp:  time.Now().UTC(),
		InputFile:  result.ImagePath,
		OutputFile: result.PDFPath,
		Success:    true,
	})
	metrics.StageTotal.WithLabelValues(string(models.StageUpload), metrics.OutcomeOK).Inc()

	s.logger.Info("Image uploaded and converted",
		zap.String("session_id", sessionID),
		zap.String("pdf", result.PDFPath),
		zap.Int64("size", result.FileSize),
	)

	return &UploadResult{
		SessionID: sessionID,
		InputFile: result.ImagePath,
		OutputPDF: result.PDFPath,
		FileSize:  result.FileSize,
	}, nil
}

// Extract runs the extraction collaborator over the current session's
// PDF, validates the result and stores it as the current receipt.
// Calling it again after success re-runs extraction: latest wins.
func (s *PipelineService) Extract(ctx context.Context) (*models.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.extract(ctx)
}

func (s *PipelineService) extract(ctx context.Context) (*models.Receipt, error) {
	state, err := s.store.LoadState(ctx)
	if err != nil {
		return nil, err
	}

	if state.CurrentPDF == "" || !stageReached(state.State, models.StateConverted) {
		return nil, &models.StageSequenceError{
			Stage:    models.StageExtract,
			Current:  state.State,
			Required: models.StateConverted,
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	receipt, err := s.extractor.ExtractReceipt(callCtx, state.CurrentPDF, state.CurrentImage)
	cancel()
	if err != nil {
		cerr := &models.CollaboratorError{Service: "data extractor", Err: err}
		s.recordStep(ctx, models.HistoryEntry{
			Step:      models.StageExtract,
			SessionID: state.SessionID,
			Timestamp: time.Now().UTC(),
			InputFile: state.CurrentPDF,
			Success:   false,
			Error:     cerr.Error(),
		})
		metrics.StageTotal.WithLabelValues(string(models.StageExtract), metrics.OutcomeError).Inc()
		return nil, cerr
	}

	// Rounding mismatches are logged, not rejected: extraction noise
	// is expected and the receipt remains usable.
	for _, issue := range receipt.CheckAmounts() {
		s.logger.Warn("Receipt amount check failed", zap.String("issue", issue))
	}

	receipt.ID = "receipt_" + uuid.New().String()
	receipt.ProcessedAt = time.Now().UTC()
	receipt.SourceFile = state.CurrentPDF

	if err := s.store.AppendReceipt(ctx, receipt); err != nil {
		return nil, err
	}

	state.State = models.StateExtracted
	state.CurrentReceipt = receipt
	if err := s.store.SaveState(ctx, state); err != nil {
		return nil, err
	}

	s.recordStep(ctx, models.HistoryEntry{
		Step:      models.StageExtract,
		SessionID: state.SessionID,
		Timestamp: time.Now().UTC(),
		InputFile: state.CurrentPDF,
		Success:   true,
		Meta: map[string]string{
			"receipt_id":      receipt.ID,
			"extracted_items": strconv.Itoa(len(receipt.Items)),
		},
	})
	metrics.StageTotal.WithLabelValues(string(models.StageExtract), metrics.OutcomeOK).Inc()

	s.logger.Info("Receipt extracted",
		zap.String("session_id", state.SessionID),
		zap.String("receipt_id", receipt.ID),
		zap.String("store", receipt.StoreName),
		zap.Int("items", len(receipt.Items)),
	)

	return receipt, nil
}

// GeneratePass issues a wallet pass for the current receipt. On
// failure the session stays extracted so the caller may retry without
// re-extracting. Repeating it after success issues a fresh pass.
func (s *PipelineService) GeneratePass(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generatePass(ctx)
}

func (s *PipelineService) generatePass(ctx context.Context) (string, error) {
	state, err := s.store.LoadState(ctx)
	if err != nil {
		return "", err
	}

	if state.CurrentReceipt == nil || !stageReached(state.State, models.StateExtracted) {
		return "", &models.StageSequenceError{
			Stage:    models.StagePassGen,
			Current:  state.State,
			Required: models.StateExtracted,
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	link, err := s.passes.IssueReceiptPass(callCtx, state.CurrentReceipt)
	cancel()
	if err != nil {
		cerr := &models.CollaboratorError{Service: "wallet issuer", Err: err}
		s.recordStep(ctx, models.HistoryEntry{
			Step:      models.StagePassGen,
			SessionID: state.SessionID,
			Timestamp: time.Now().UTC(),
			Success:   false,
			Error:     cerr.Error(),
		})
		metrics.StageTotal.WithLabelValues(string(models.StagePassGen), metrics.OutcomeError).Inc()
		return "", cerr
	}

	state.State = models.StatePassGenerated
	state.LastWalletLink = link
	if err := s.store.SaveState(ctx, state); err != nil {
		return "", err
	}

	s.recordStep(ctx, models.HistoryEntry{
		Step:      models.StagePassGen,
		SessionID: state.SessionID,
		Timestamp: time.Now().UTC(),
		Success:   true,
		Meta:      map[string]string{"wallet_link": link},
	})
	metrics.StageTotal.WithLabelValues(string(models.StagePassGen), metrics.OutcomeOK).Inc()

	s.logger.Info("Wallet pass generated",
		zap.String("session_id", state.SessionID),
		zap.String("wallet_link", link),
	)

	return link, nil
}

// StepOutcome reports one stage of a complete run.
type StepOutcome struct {
	Success bool
	Error   string
}

// CompleteResult is the outcome of RunComplete.
type CompleteResult struct {
	WalletLink  string
	Receipt     *models.Receipt
	Upload      *UploadResult
	Steps       map[models.Stage]StepOutcome
	FailedStage models.Stage
}

// RunComplete composes upload, extract and passgen as one logical
// operation under a single lock. If a stage fails the run halts there;
// effects of completed stages are kept, never rolled back, so the
// caller can resume from the failed stage.
func (s *PipelineService) RunComplete(ctx context.Context, image []byte, fileName string) (*CompleteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := &CompleteResult{Steps: map[models.Stage]StepOutcome{}}

	upload, err := s.upload(ctx, image, fileName)
	if err != nil {
		result.Steps[models.StageUpload] = StepOutcome{Error: err.Error()}
		result.FailedStage = models.StageUpload
		return result, fmt.Errorf("upload stage failed: %w", err)
	}
	result.Upload = upload
	result.Steps[models.StageUpload] = StepOutcome{Success: true}

	receipt, err := s.extract(ctx)
	if err != nil {
		result.Steps[models.StageExtract] = StepOutcome{Error: err.Error()}
		result.FailedStage = models.StageExtract
		return result, fmt.Errorf("extract stage failed: %w", err)
	}
	result.Receipt = receipt
	result.Steps[models.StageExtract] = StepOutcome{Success: true}

	link, err := s.generatePass(ctx)
	if err != nil {
		result.Steps[models.StagePassGen] = StepOutcome{Error: err.Error()}
		result.FailedStage = models.StagePassGen
		return result, fmt.Errorf("passgen stage failed: %w", err)
	}
	result.WalletLink = link
	result.Steps[models.StagePassGen] = StepOutcome{Success: true}

	return result, nil
}

// Status returns the current processing state snapshot.
func (s *PipelineService) Status(ctx context.Context) (*models.ProcessingState, error) {
	return s.store.LoadState(ctx)
}

// ResetState substitutes the default state for a corrupt or stale one.
// It is only reachable through the explicit /reload confirmation.
func (s *PipelineService) ResetState(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.store.LoadState(ctx)
	if err != nil && !storage.IsCorruption(err) {
		return err
	}
	if err == nil && state.CurrentReceipt != nil {
		// Nothing to recover; keep the committed state.
		return nil
	}
	return s.store.SaveState(ctx, models.NewProcessingState())
}

// recordStep appends a history entry; append failures are logged and
// swallowed so a bookkeeping problem never masks the stage outcome.
func (s *PipelineService) recordStep(ctx context.Context, entry models.HistoryEntry) {
	if err := s.store.AppendHistory(ctx, entry); err != nil {
		s.logger.Error("Failed to append history entry",
			zap.String("step", string(entry.Step)),
			zap.Error(err),
		)
	}
}

// stageReached reports whether current is at or past the required
// state in the Empty→Converted→Extracted→PassGenerated order. Later
// states keep their artifacts, so re-running an earlier stage's
// successor remains valid (latest wins).
func stageReached(current, required models.SessionState) bool {
	order := map[models.SessionState]int{
		models.StateEmpty:         0,
		models.StateUploaded:      1,
		models.StateConverted:     2,
		models.StateExtracted:     3,
		models.StatePassGenerated: 4,
	}
	ci, ok := order[current]
	if !ok {
		return false
	}
	return ci >= order[required]
}

// IsSequenceError reports whether err is a stage ordering rejection.
func IsSequenceError(err error) bool {
	var se *models.StageSequenceError
	return errors.As(err, &se)
}
