package service

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/jung-kurt/gofpdf"
	"go.uber.org/zap"
)

// ConvertService is the image-to-document collaborator: it normalizes
// an uploaded receipt photo and embeds it into a single-page PDF.
type ConvertService struct {
	uploadDir string
	logger    *zap.Logger
}

func NewConvertService(uploadDir string, logger *zap.Logger) *ConvertService {
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		logger.Warn("Failed to create upload directory", zap.Error(err))
	}
	return &ConvertService{uploadDir: uploadDir, logger: logger}
}

var _ DocumentConverter = (*ConvertService)(nil)

// Convert saves the uploaded image, decodes and re-orients it, and
// renders it into an A4 PDF scaled to fit the page.
func (s *ConvertService) Convert(ctx context.Context, image []byte, fileName string) (*ConvertResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fileID := uuid.New().String()
	ext := filepath.Ext(fileName)
	imagePath := filepath.Join(s.uploadDir, "uploaded_"+fileID+ext)
	pdfPath := filepath.Join(s.uploadDir, "receipt_"+fileID+".pdf")

	if err := os.WriteFile(imagePath, image, 0644); err != nil {
		return nil, fmt.Errorf("failed to save uploaded image: %w", err)
	}

	img, err := imaging.Decode(bytes.NewReader(image), imaging.AutoOrientation(true))
	if err != nil {
		os.Remove(imagePath)
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	// Re-encode as JPEG so the PDF embeds a single known format
	// regardless of what was uploaded.
	var jpegBuf bytes.Buffer
	if err := imaging.Encode(&jpegBuf, img, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		os.Remove(imagePath)
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	if err := ctx.Err(); err != nil {
		os.Remove(imagePath)
		return nil, err
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	opts := gofpdf.ImageOptions{ImageType: "JPG"}
	pdf.RegisterImageOptionsReader("receipt", opts, bytes.NewReader(jpegBuf.Bytes()))

	// Fit the image inside the printable area, preserving aspect.
	const pageW, pageH, margin = 210.0, 297.0, 10.0
	availW, availH := pageW-2*margin, pageH-2*margin
	bounds := img.Bounds()
	ratio := float64(bounds.Dy()) / float64(bounds.Dx())
	drawW, drawH := availW, availW*ratio
	if drawH > availH {
		drawH = availH
		drawW = availH / ratio
	}
	pdf.ImageOptions("receipt", margin, margin, drawW, drawH, false, opts, 0, "")

	if err := pdf.OutputFileAndClose(pdfPath); err != nil {
		os.Remove(imagePath)
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}

	s.logger.Info("Image converted to PDF",
		zap.String("image", imagePath),
		zap.String("pdf", pdfPath),
	)

	return &ConvertResult{
		ImagePath: imagePath,
		PDFPath:   pdfPath,
		FileSize:  int64(len(image)),
	}, nil
}

// Cleanup removes the source image once the pipeline no longer needs
// it; the PDF artifact is kept for download.
func (s *ConvertService) Cleanup(imagePath string) {
	if imagePath == "" {
		return
	}
	if err := os.Remove(imagePath); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("Failed to clean up source image",
			zap.String("file", imagePath),
			zap.Error(err),
		)
	}
}
