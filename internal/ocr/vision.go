package ocr

import (
	"bytes"
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/stacklens/catalog-ingest/pkg/inference"
)

// visionConfidenceFloor marks recognized text below this confidence so
// downstream extraction treats every derived field as needing review.
const visionConfidenceFloor = 0.5

// Vision extracts text from scanned page images via the inference service.
type Vision struct {
	client inference.Client
}

// NewVision creates a Vision extractor backed by the given client.
func NewVision(client inference.Client) *Vision {
	return &Vision{client: client}
}

// ExtractText recognizes the text content of a single page image. Only PNG
// and JPEG pages are supported; PDFs must be rendered to images first or
// routed to the local extractor.
func (v *Vision) ExtractText(ctx context.Context, data []byte) (string, error) {
	mediaType := sniffMediaType(data)
	if mediaType == "" {
		return "", eris.New("ocr: unsupported image format, want PNG or JPEG")
	}

	rec, err := v.client.RecognizeDocument(ctx, inference.VisionRequest{
		ImageData: data,
		MediaType: mediaType,
		Page:      1,
	})
	if err != nil {
		return "", eris.Wrap(err, "ocr: recognize document")
	}
	if rec.Confidence < visionConfidenceFloor {
		zap.L().Warn("low confidence text recognition",
			zap.Float64("confidence", rec.Confidence),
			zap.Int("bytes", len(rec.Text)))
	}
	return strings.TrimSpace(rec.Text), nil
}

var (
	pngMagic  = []byte{0x89, 'P', 'N', 'G'}
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
)

func sniffMediaType(data []byte) string {
	switch {
	case bytes.HasPrefix(data, pngMagic):
		return "image/png"
	case bytes.HasPrefix(data, jpegMagic):
		return "image/jpeg"
	default:
		return ""
	}
}
