package schema

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/stacklens/catalog-ingest/pkg/inference"
)

type mockInferenceClient struct {
	mock.Mock
}

func (m *mockInferenceClient) GuessSchema(ctx context.Context, req inference.SchemaRequest) (*inference.SchemaHypothesis, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inference.SchemaHypothesis), args.Error(1)
}

func (m *mockInferenceClient) SuggestMapping(ctx context.Context, req inference.MappingRequest) (*inference.MappingSuggestion, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inference.MappingSuggestion), args.Error(1)
}

func (m *mockInferenceClient) ConfirmDuplicate(ctx context.Context, req inference.DuplicateRequest) (*inference.DuplicateVerdict, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inference.DuplicateVerdict), args.Error(1)
}

func (m *mockInferenceClient) RecognizeDocument(ctx context.Context, req inference.VisionRequest) (*inference.RecognizedText, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inference.RecognizedText), args.Error(1)
}
