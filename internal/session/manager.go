package session

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/stacklens/catalog-ingest/internal/confidence"
	"github.com/stacklens/catalog-ingest/internal/model"
)

// Manager drives the review state machine. All mutation goes through the
// repository's per-session serialization.
type Manager struct {
	repo              Repository
	batchSize         int
	samplingThreshold int
	ttl               time.Duration
	adjuster          *confidence.Adjuster
}

// WithAdjuster attaches a confidence adjuster. Review outcomes feed its
// per-field history and incoming items are flagged for review when their
// field's blended history falls below neutral.
func (m *Manager) WithAdjuster(a *confidence.Adjuster) *Manager {
	m.adjuster = a
	return m
}

// NewManager builds a manager; zero parameters fall back to defaults.
func NewManager(repo Repository, batchSize, samplingThreshold int, ttl time.Duration) *Manager {
	if batchSize <= 0 {
		batchSize = 10
	}
	if samplingThreshold <= 0 {
		samplingThreshold = 50
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Manager{repo: repo, batchSize: batchSize, samplingThreshold: samplingThreshold, ttl: ttl}
}

// Create opens a new active session for the tenant.
func (m *Manager) Create(ctx context.Context, tenantID string) (*model.Session, error) {
	now := time.Now().UTC()
	s := &model.Session{
		ID:                uuid.NewString(),
		TenantID:          tenantID,
		Status:            model.SessionActive,
		BatchSize:         m.batchSize,
		SamplingThreshold: m.samplingThreshold,
		Learning:          model.NewLearningContext(),
		CreatedAt:         now,
		UpdatedAt:         now,
		ExpiresAt:         now.Add(m.ttl),
	}
	if err := m.repo.Create(ctx, s); err != nil {
		return nil, err
	}
	zap.L().Info("session: created",
		zap.String("session", s.ID),
		zap.String("tenant", tenantID),
	)
	return s, nil
}

// Get returns a snapshot of the session state. The snapshot is a deep
// copy taken under the session lock; a concurrent feedback write cannot
// touch its item slices or learning maps.
func (m *Manager) Get(ctx context.Context, id string) (*model.Session, error) {
	var copied *model.Session
	err := m.repo.View(ctx, id, func(s *model.Session) error {
		copied = s.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return copied, nil
}

// Steering returns the learning summary of the tenant's most recently
// updated reviewable session, "" when the tenant has none. It feeds
// reviewer feedback from earlier sessions back into extraction prompts.
func (m *Manager) Steering(ctx context.Context, tenantID string) string {
	id, ok := m.repo.LatestID(ctx, tenantID)
	if !ok {
		return ""
	}
	var summary string
	if err := m.repo.View(ctx, id, func(s *model.Session) error {
		summary = s.Learning.Summary
		return nil
	}); err != nil {
		return ""
	}
	return summary
}

// Cancel moves the session to cancelled. Terminal states stay put.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	return m.repo.Update(ctx, id, func(s *model.Session) error {
		if terminal(s.Status) {
			return eris.Errorf("session: %s is already %s", id, s.Status)
		}
		s.Status = model.SessionCancelled
		return nil
	})
}

// Delete removes the session entirely.
func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.repo.Delete(ctx, id)
}

// AddItems appends extracted items to the pending set. Sampling mode
// latches on once the total item count exceeds the threshold and never
// reverts afterwards.
func (m *Manager) AddItems(ctx context.Context, id string, items []model.Item) error {
	return m.repo.Update(ctx, id, func(s *model.Session) error {
		if terminal(s.Status) {
			return eris.Errorf("session: %s is %s", id, s.Status)
		}
		if m.adjuster != nil {
			for i := range items {
				m.flagByHistory(s.TenantID, &items[i])
			}
		}
		s.Pending = append(s.Pending, items...)
		if !s.SamplingMode && s.TotalItems() > s.SamplingThreshold {
			s.SamplingMode = true
			zap.L().Info("session: sampling mode latched",
				zap.String("session", id),
				zap.Int("total", s.TotalItems()),
			)
		}
		return nil
	})
}

// NextBatch pulls the next review batch out of pending. In sampling mode
// the batch is a stratified representative sample; otherwise the
// lowest-confidence items come first. An empty return with no error means
// the session completed.
func (m *Manager) NextBatch(ctx context.Context, id string) ([]model.Item, error) {
	var batch []model.Item
	err := m.repo.Update(ctx, id, func(s *model.Session) error {
		if terminal(s.Status) {
			return eris.Errorf("session: %s is %s", id, s.Status)
		}
		if len(s.CurrentBatch) > 0 {
			batch = append([]model.Item(nil), s.CurrentBatch...)
			return nil
		}
		if len(s.Pending) == 0 {
			s.Status = model.SessionCompleted
			return nil
		}

		var picked []model.Item
		if s.SamplingMode {
			picked = RepresentativeSample(s.Pending, s.BatchSize)
		} else {
			sorted := append([]model.Item(nil), s.Pending...)
			sortByConfidence(sorted)
			n := s.BatchSize
			if n > len(sorted) {
				n = len(sorted)
			}
			picked = sorted[:n]
		}

		s.Pending = removeByID(s.Pending, idSet(picked))
		s.CurrentBatch = picked
		s.Status = model.SessionBatchMode
		batch = append([]model.Item(nil), picked...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// Skip returns the current batch to the back of pending and stays in
// active state; the reviewer will see different items next pull.
func (m *Manager) Skip(ctx context.Context, id string) error {
	return m.repo.Update(ctx, id, func(s *model.Session) error {
		if terminal(s.Status) {
			return eris.Errorf("session: %s is %s", id, s.Status)
		}
		s.Pending = append(s.Pending, s.CurrentBatch...)
		s.CurrentBatch = nil
		s.Status = model.SessionActive
		return nil
	})
}

// ProcessFeedback applies reviewer decisions to the current batch and
// returns the corrections derived from modify actions, for the caller to
// persist. Confirming an item already confirmed is a no-op, so replayed
// feedback cannot inflate counts. When the batch drains and nothing is
// pending the session completes.
func (m *Manager) ProcessFeedback(ctx context.Context, id string, feedback []model.Feedback) ([]model.Correction, error) {
	var corrections []model.Correction
	err := m.repo.Update(ctx, id, func(s *model.Session) error {
		if terminal(s.Status) {
			return eris.Errorf("session: %s is %s", id, s.Status)
		}

		confirmed := idSet(s.Confirmed)
		rejected := idSet(s.Rejected)

		for _, fb := range feedback {
			if confirmed[fb.ItemID] || rejected[fb.ItemID] {
				continue
			}
			item, ok := takeByID(&s.CurrentBatch, fb.ItemID)
			if !ok {
				item, ok = takeByID(&s.Pending, fb.ItemID)
			}
			if !ok {
				continue
			}

			switch fb.Action {
			case model.FeedbackConfirm:
				recordConfirm(&s.Learning, &item)
				m.recordOutcomes(s.TenantID, &item, true, nil)
				s.Confirmed = append(s.Confirmed, item)
				confirmed[item.ID] = true
			case model.FeedbackModify:
				recordReject(&s.Learning, &item)
				original := item
				if fb.Modified != nil {
					item = *fb.Modified
					item.ID = fb.ItemID
					item.TenantID = s.TenantID
				}
				recordConfirm(&s.Learning, &item)
				changed := changedFields(original, item)
				m.recordOutcomes(s.TenantID, &original, true, changed)
				if len(changed) > 0 {
					corrections = append(corrections, model.Correction{
						ID:        uuid.NewString(),
						TenantID:  s.TenantID,
						SessionID: s.ID,
						Original:  original,
						Corrected: item,
						Changed:   changed,
						Context:   original.Source.Document,
						CreatedAt: time.Now().UTC(),
					})
				}
				s.Confirmed = append(s.Confirmed, item)
				confirmed[item.ID] = true
			case model.FeedbackReject:
				recordReject(&s.Learning, &item)
				m.recordOutcomes(s.TenantID, &item, false, nil)
				s.Rejected = append(s.Rejected, item)
				rejected[item.ID] = true
			default:
				return eris.Errorf("session: unknown feedback action %q", fb.Action)
			}
		}

		rebuildSummary(&s.Learning)

		if len(s.CurrentBatch) == 0 {
			if len(s.Pending) == 0 {
				s.Status = model.SessionCompleted
			} else {
				s.Status = model.SessionActive
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return corrections, nil
}

// BulkConfirm confirms every pending and in-batch item whose overall
// confidence is at or above the threshold. It returns how many moved.
func (m *Manager) BulkConfirm(ctx context.Context, id string, threshold float64) (int, error) {
	var moved int
	err := m.repo.Update(ctx, id, func(s *model.Session) error {
		if terminal(s.Status) {
			return eris.Errorf("session: %s is %s", id, s.Status)
		}
		take := func(items []model.Item) []model.Item {
			var keep []model.Item
			for _, it := range items {
				if it.OverallConfidence() >= threshold {
					recordConfirm(&s.Learning, &it)
					s.Confirmed = append(s.Confirmed, it)
					moved++
					continue
				}
				keep = append(keep, it)
			}
			return keep
		}
		s.Pending = take(s.Pending)
		s.CurrentBatch = take(s.CurrentBatch)
		rebuildSummary(&s.Learning)
		if len(s.Pending) == 0 && len(s.CurrentBatch) == 0 {
			s.Status = model.SessionCompleted
		}
		return nil
	})
	return moved, err
}

// ConfirmAll applies learned corrections to every remaining item, confirms
// them, and force-closes the session.
func (m *Manager) ConfirmAll(ctx context.Context, id string) (int, error) {
	var moved int
	err := m.repo.Update(ctx, id, func(s *model.Session) error {
		if terminal(s.Status) {
			return eris.Errorf("session: %s is %s", id, s.Status)
		}
		remaining := append(s.CurrentBatch, s.Pending...)
		s.CurrentBatch = nil
		s.Pending = nil
		for i := range remaining {
			applyLearnedCorrections(&s.Learning, &remaining[i])
			s.Confirmed = append(s.Confirmed, remaining[i])
			moved++
		}
		s.Status = model.SessionCompleted
		zap.L().Info("session: confirm-all closed session",
			zap.String("session", id),
			zap.Int("confirmed", moved),
		)
		return nil
	})
	return moved, err
}

// ConfidenceDistribution reports the band counts over the whole session.
func (m *Manager) ConfidenceDistribution(ctx context.Context, id string) (model.ConfidenceDistribution, error) {
	var d model.ConfidenceDistribution
	err := m.repo.View(ctx, id, func(s *model.Session) error {
		d = Distribution(s)
		return nil
	})
	return d, err
}

// SweepExpired drops sessions past their expiry and returns how many were
// removed.
func (m *Manager) SweepExpired(ctx context.Context) int {
	n := m.repo.Sweep(ctx, time.Now().UTC())
	if n > 0 {
		zap.L().Info("session: expired sessions swept", zap.Int("count", n))
	}
	return n
}

// Sample returns a representative sample of pending items without
// mutating the session.
func (m *Manager) Sample(ctx context.Context, id string, n int) ([]model.Item, error) {
	var out []model.Item
	err := m.repo.View(ctx, id, func(s *model.Session) error {
		out = RepresentativeSample(s.Pending, n)
		return nil
	})
	return out, err
}

func terminal(st model.SessionStatus) bool {
	return st == model.SessionCompleted || st == model.SessionCancelled
}

func idSet(items []model.Item) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, it := range items {
		set[it.ID] = true
	}
	return set
}

func removeByID(items []model.Item, drop map[string]bool) []model.Item {
	var keep []model.Item
	for _, it := range items {
		if !drop[it.ID] {
			keep = append(keep, it)
		}
	}
	return keep
}

// flagByHistory marks fields whose blended correction history fell below
// neutral, so historically unreliable fields reach a reviewer even when
// extraction was confident.
func (m *Manager) flagByHistory(tenantID string, it *model.Item) {
	for key, f := range it.Fields {
		b := m.adjuster.Blended(confidence.ContextKey{TenantID: tenantID, Field: key})
		if b < 0.5 && !f.NeedsReview {
			f.NeedsReview = true
			it.Fields[key] = f
		}
	}
}

// recordOutcomes feeds one reviewed item's per-field outcomes into the
// adjuster. changed lists the fields the reviewer corrected; for a plain
// confirm or reject the whole item shares one verdict.
func (m *Manager) recordOutcomes(tenantID string, it *model.Item, correct bool, changed []string) {
	if m.adjuster == nil {
		return
	}
	wrong := make(map[string]bool, len(changed))
	for _, f := range changed {
		wrong[f] = true
	}
	mctx := confidence.MatchContext{Tenant: true, Field: true}
	for key, f := range it.Fields {
		if f.Value == nil {
			continue
		}
		m.adjuster.Record(confidence.ContextKey{TenantID: tenantID, Field: key}, correct && !wrong[key], mctx)
	}
}

// changedFields lists the field names whose values differ between the
// original and corrected item, sorted for stable output.
func changedFields(original, corrected model.Item) []string {
	var changed []string
	for key, after := range corrected.Fields {
		before, ok := original.Fields[key]
		if !ok || before.Value != after.Value {
			changed = append(changed, key)
		}
	}
	for key := range original.Fields {
		if _, ok := corrected.Fields[key]; !ok {
			changed = append(changed, key)
		}
	}
	sort.Strings(changed)
	return changed
}

func takeByID(items *[]model.Item, id string) (model.Item, bool) {
	for i, it := range *items {
		if it.ID == id {
			*items = append((*items)[:i], (*items)[i+1:]...)
			return it, true
		}
	}
	return model.Item{}, false
}
