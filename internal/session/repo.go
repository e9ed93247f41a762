// Package session implements the human-in-the-loop review workflow:
// batching, stratified sampling, feedback processing and bulk actions over
// a per-session serialized state.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/stacklens/catalog-ingest/internal/model"
)

// ErrNotFound marks a lookup for a session id that does not exist. The
// outer service layer maps it to a NotFound response.
var ErrNotFound = eris.New("session: not found")

// Repository persists sessions and serializes all access per session id.
// Update and View run fn under the session's writer lock; the session must
// not escape fn.
type Repository interface {
	Create(ctx context.Context, s *model.Session) error
	Update(ctx context.Context, id string, fn func(*model.Session) error) error
	View(ctx context.Context, id string, fn func(*model.Session) error) error
	Delete(ctx context.Context, id string) error
	// LatestID returns the id of the tenant's most recently updated
	// non-cancelled session, false when the tenant has none.
	LatestID(ctx context.Context, tenantID string) (string, bool)
	// Sweep removes sessions whose ExpiresAt lies before now and returns
	// how many were dropped.
	Sweep(ctx context.Context, now time.Time) int
}

type memoryEntry struct {
	mu   sync.Mutex
	sess *model.Session
}

// MemoryRepository keeps sessions in process memory with one lock per
// session id.
type MemoryRepository struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
}

// NewMemoryRepository returns an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{entries: make(map[string]*memoryEntry)}
}

func (r *MemoryRepository) Create(_ context.Context, s *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[s.ID]; ok {
		return eris.Errorf("session: id %s already exists", s.ID)
	}
	r.entries[s.ID] = &memoryEntry{sess: s}
	return nil
}

func (r *MemoryRepository) Update(_ context.Context, id string, fn func(*model.Session) error) error {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return eris.Wrapf(ErrNotFound, "id %s", id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := fn(e.sess); err != nil {
		return err
	}
	e.sess.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryRepository) View(ctx context.Context, id string, fn func(*model.Session) error) error {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return eris.Wrapf(ErrNotFound, "id %s", id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.sess)
}

func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; !ok {
		return eris.Wrapf(ErrNotFound, "id %s", id)
	}
	delete(r.entries, id)
	return nil
}

func (r *MemoryRepository) LatestID(_ context.Context, tenantID string) (string, bool) {
	r.mu.RLock()
	entries := make([]*memoryEntry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	var id string
	var latest time.Time
	for _, e := range entries {
		e.mu.Lock()
		if e.sess.TenantID == tenantID && e.sess.Status != model.SessionCancelled && e.sess.UpdatedAt.After(latest) {
			id = e.sess.ID
			latest = e.sess.UpdatedAt
		}
		e.mu.Unlock()
	}
	return id, id != ""
}

func (r *MemoryRepository) Sweep(_ context.Context, now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var dropped int
	for id, e := range r.entries {
		if !e.sess.ExpiresAt.IsZero() && e.sess.ExpiresAt.Before(now) {
			delete(r.entries, id)
			dropped++
		}
	}
	if dropped > 0 {
		zap.L().Info("session: expired sessions swept", zap.Int("count", dropped))
	}
	return dropped
}
