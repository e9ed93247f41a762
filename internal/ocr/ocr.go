// Package ocr extracts plain text from PDFs and scanned page images so the
// text reader can process them like any other unstructured document.
package ocr

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/stacklens/catalog-ingest/internal/config"
	"github.com/stacklens/catalog-ingest/pkg/inference"
)

// Extractor extracts text content from PDF or image bytes.
type Extractor interface {
	ExtractText(ctx context.Context, data []byte) (string, error)
}

// NewExtractor creates an Extractor based on config.
func NewExtractor(cfg config.OCRConfig, client inference.Client) (Extractor, error) {
	switch cfg.Provider {
	case "local", "":
		return NewPdfToText(cfg.PdfToTextPath), nil
	case "inference":
		if client == nil {
			return nil, eris.New("ocr: inference provider requires an inference client")
		}
		return NewVision(client), nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
}
