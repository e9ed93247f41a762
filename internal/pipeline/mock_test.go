package pipeline

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/stacklens/catalog-ingest/internal/model"
	"github.com/stacklens/catalog-ingest/internal/resilience"
	"github.com/stacklens/catalog-ingest/internal/store"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) SaveTemplate(ctx context.Context, tpl *model.ExtractionTemplate) error {
	return m.Called(ctx, tpl).Error(0)
}

func (m *mockStore) GetTemplate(ctx context.Context, id string) (*model.ExtractionTemplate, error) {
	args := m.Called(ctx, id)
	if t := args.Get(0); t != nil {
		return t.(*model.ExtractionTemplate), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) ListTemplates(ctx context.Context, tenantID string) ([]*model.ExtractionTemplate, error) {
	args := m.Called(ctx, tenantID)
	if t := args.Get(0); t != nil {
		return t.([]*model.ExtractionTemplate), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) DeleteTemplate(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockStore) SaveCorrection(ctx context.Context, c *model.Correction) error {
	return m.Called(ctx, c).Error(0)
}

func (m *mockStore) ListCorrections(ctx context.Context, tenantID, sessionID string) ([]model.Correction, error) {
	args := m.Called(ctx, tenantID, sessionID)
	if c := args.Get(0); c != nil {
		return c.([]model.Correction), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) SaveDeadLetter(ctx context.Context, entry *resilience.DLQEntry) error {
	return m.Called(ctx, entry).Error(0)
}

func (m *mockStore) ListDeadLetters(ctx context.Context, tenantID string, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	args := m.Called(ctx, tenantID, filter)
	if e := args.Get(0); e != nil {
		return e.([]resilience.DLQEntry), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) SaveItems(ctx context.Context, items []model.Item) (int, error) {
	args := m.Called(ctx, items)
	return args.Int(0), args.Error(1)
}

func (m *mockStore) ListItems(ctx context.Context, filter store.ItemFilter) ([]model.Item, error) {
	args := m.Called(ctx, filter)
	if it := args.Get(0); it != nil {
		return it.([]model.Item), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) SaveSession(ctx context.Context, sess *model.Session) error {
	return m.Called(ctx, sess).Error(0)
}

func (m *mockStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	args := m.Called(ctx, id)
	if s := args.Get(0); s != nil {
		return s.(*model.Session), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) EnqueueReview(ctx context.Context, entry *model.ReviewQueueItem) error {
	return m.Called(ctx, entry).Error(0)
}

func (m *mockStore) ListReview(ctx context.Context, tenantID string, limit int) ([]model.ReviewQueueItem, error) {
	args := m.Called(ctx, tenantID, limit)
	if r := args.Get(0); r != nil {
		return r.([]model.ReviewQueueItem), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) ResolveReview(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockStore) GetCachedIngestion(ctx context.Context, tenantID, checksum string) (*model.IngestionCache, error) {
	args := m.Called(ctx, tenantID, checksum)
	if c := args.Get(0); c != nil {
		return c.(*model.IngestionCache), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) SetCachedIngestion(ctx context.Context, tenantID, checksum string, items []model.Item, ttl time.Duration) error {
	return m.Called(ctx, tenantID, checksum, items, ttl).Error(0)
}

func (m *mockStore) DeleteExpiredIngestions(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockStore) Close() error {
	return m.Called().Error(0)
}
