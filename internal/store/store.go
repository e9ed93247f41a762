// Package store persists templates, corrections, accepted items, review
// queue entries and the ingestion cache. Two backends exist: SQLite for
// single-node deployments and PostgreSQL for shared ones.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/stacklens/catalog-ingest/internal/model"
	"github.com/stacklens/catalog-ingest/internal/resilience"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = eris.New("store: not found")

// ItemFilter specifies criteria for listing accepted items.
type ItemFilter struct {
	TenantID string `json:"tenant_id"`
	ItemType string `json:"item_type,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}

// Store defines the persistence interface for the ingestion core.
type Store interface {
	// Templates
	SaveTemplate(ctx context.Context, tpl *model.ExtractionTemplate) error
	GetTemplate(ctx context.Context, id string) (*model.ExtractionTemplate, error)
	ListTemplates(ctx context.Context, tenantID string) ([]*model.ExtractionTemplate, error)
	DeleteTemplate(ctx context.Context, id string) error

	// Corrections
	SaveCorrection(ctx context.Context, c *model.Correction) error
	ListCorrections(ctx context.Context, tenantID, sessionID string) ([]model.Correction, error)

	// Accepted items
	SaveItems(ctx context.Context, items []model.Item) (int, error)
	ListItems(ctx context.Context, filter ItemFilter) ([]model.Item, error)

	// Session snapshots. Working state lives in the in-memory repository;
	// terminal sessions are persisted here for audit and learning.
	SaveSession(ctx context.Context, sess *model.Session) error
	GetSession(ctx context.Context, id string) (*model.Session, error)

	// Review queue
	EnqueueReview(ctx context.Context, entry *model.ReviewQueueItem) error
	ListReview(ctx context.Context, tenantID string, limit int) ([]model.ReviewQueueItem, error)
	ResolveReview(ctx context.Context, id string) error

	// Dead letters. Documents whose ingestion failed, parked with the
	// failed stage and error class for operator-driven replay.
	SaveDeadLetter(ctx context.Context, entry *resilience.DLQEntry) error
	ListDeadLetters(ctx context.Context, tenantID string, filter resilience.DLQFilter) ([]resilience.DLQEntry, error)

	// Ingestion cache
	GetCachedIngestion(ctx context.Context, tenantID, checksum string) (*model.IngestionCache, error)
	SetCachedIngestion(ctx context.Context, tenantID, checksum string, items []model.Item, ttl time.Duration) error
	DeleteExpiredIngestions(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
