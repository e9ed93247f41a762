package mapping

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/stacklens/catalog-ingest/pkg/inference"
)

type mockMappingClient struct {
	mock.Mock
}

func (m *mockMappingClient) SuggestMapping(ctx context.Context, req inference.MappingRequest) (*inference.MappingSuggestion, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inference.MappingSuggestion), args.Error(1)
}
