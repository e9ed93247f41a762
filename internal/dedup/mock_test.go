package dedup

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/stacklens/catalog-ingest/pkg/inference"
)

type mockArbiter struct {
	mock.Mock
}

func (m *mockArbiter) ConfirmDuplicate(ctx context.Context, req inference.DuplicateRequest) (*inference.DuplicateVerdict, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inference.DuplicateVerdict), args.Error(1)
}
