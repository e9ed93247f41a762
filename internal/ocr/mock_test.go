package ocr

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/stacklens/catalog-ingest/pkg/inference"
)

type mockVisionClient struct {
	mock.Mock
}

func (m *mockVisionClient) GuessSchema(ctx context.Context, req inference.SchemaRequest) (*inference.SchemaHypothesis, error) {
	args := m.Called(ctx, req)
	if h := args.Get(0); h != nil {
		return h.(*inference.SchemaHypothesis), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockVisionClient) SuggestMapping(ctx context.Context, req inference.MappingRequest) (*inference.MappingSuggestion, error) {
	args := m.Called(ctx, req)
	if s := args.Get(0); s != nil {
		return s.(*inference.MappingSuggestion), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockVisionClient) ConfirmDuplicate(ctx context.Context, req inference.DuplicateRequest) (*inference.DuplicateVerdict, error) {
	args := m.Called(ctx, req)
	if v := args.Get(0); v != nil {
		return v.(*inference.DuplicateVerdict), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockVisionClient) RecognizeDocument(ctx context.Context, req inference.VisionRequest) (*inference.RecognizedText, error) {
	args := m.Called(ctx, req)
	if r := args.Get(0); r != nil {
		return r.(*inference.RecognizedText), args.Error(1)
	}
	return nil, args.Error(1)
}
