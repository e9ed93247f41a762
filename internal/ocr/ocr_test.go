package ocr

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/stacklens/catalog-ingest/internal/config"
	"github.com/stacklens/catalog-ingest/pkg/inference"
)

func TestNewExtractor_Local(t *testing.T) {
	ext, err := NewExtractor(config.OCRConfig{Provider: "local", PdfToTextPath: "/usr/bin/pdftotext"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &PdfToText{}, ext)
}

func TestNewExtractor_LocalDefault(t *testing.T) {
	ext, err := NewExtractor(config.OCRConfig{Provider: ""}, nil)
	require.NoError(t, err)
	assert.IsType(t, &PdfToText{}, ext)
}

func TestNewExtractor_InferenceMissingClient(t *testing.T) {
	_, err := NewExtractor(config.OCRConfig{Provider: "inference"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires an inference client")
}

func TestNewExtractor_Inference(t *testing.T) {
	ext, err := NewExtractor(config.OCRConfig{Provider: "inference"}, &mockVisionClient{})
	require.NoError(t, err)
	assert.IsType(t, &Vision{}, ext)
}

func TestNewExtractor_UnknownProvider(t *testing.T) {
	_, err := NewExtractor(config.OCRConfig{Provider: "unknown"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown provider "unknown"`)
}

func TestPdfToText_BinPath(t *testing.T) {
	p := NewPdfToText("")
	assert.Equal(t, "pdftotext", p.binPath)

	p = NewPdfToText("/custom/pdftotext")
	assert.Equal(t, "/custom/pdftotext", p.binPath)
}

func TestPdfToText_ExtractText_BinaryNotFound(t *testing.T) {
	p := NewPdfToText("/nonexistent/pdftotext")
	_, err := p.ExtractText(context.Background(), []byte("%PDF-1.4 test"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pdftotext failed")
}

func TestPdfToText_ExtractText_Success(t *testing.T) {
	// Fake pdftotext that echoes fixed content.
	tmpDir := t.TempDir()
	fakeBin := filepath.Join(tmpDir, "pdftotext")
	script := "#!/bin/sh\necho 'Extracted text content'\n"
	require.NoError(t, os.WriteFile(fakeBin, []byte(script), 0755))

	p := NewPdfToText(fakeBin)
	text, err := p.ExtractText(context.Background(), []byte("%PDF-1.4 dummy"))
	require.NoError(t, err)
	assert.Contains(t, text, "Extracted text content")
}

func TestVision_ExtractText(t *testing.T) {
	page := append([]byte{0x89, 'P', 'N', 'G'}, []byte("fakepng")...)

	client := &mockVisionClient{}
	client.On("RecognizeDocument", mock.Anything, mock.MatchedBy(func(req inference.VisionRequest) bool {
		return req.MediaType == "image/png" && req.Page == 1
	})).Return(&inference.RecognizedText{Text: "Software: Slack\nKosten: 120\n", Confidence: 0.9}, nil)

	v := NewVision(client)
	text, err := v.ExtractText(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, "Software: Slack\nKosten: 120", text)
	client.AssertExpectations(t)
}

func TestVision_ExtractText_JPEG(t *testing.T) {
	page := append([]byte{0xFF, 0xD8, 0xFF}, []byte("fakejpeg")...)

	client := &mockVisionClient{}
	client.On("RecognizeDocument", mock.Anything, mock.MatchedBy(func(req inference.VisionRequest) bool {
		return req.MediaType == "image/jpeg"
	})).Return(&inference.RecognizedText{Text: "scanned page", Confidence: 0.8}, nil)

	v := NewVision(client)
	text, err := v.ExtractText(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, "scanned page", text)
}

func TestVision_ExtractText_UnsupportedFormat(t *testing.T) {
	v := NewVision(&mockVisionClient{})
	_, err := v.ExtractText(context.Background(), []byte("%PDF-1.4 not an image"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported image format")
}

func TestSniffMediaType(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"png", []byte{0x89, 'P', 'N', 'G', 0x0D}, "image/png"},
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0}, "image/jpeg"},
		{"pdf", []byte("%PDF-1.4"), ""},
		{"empty", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sniffMediaType(tt.data))
		})
	}
}
