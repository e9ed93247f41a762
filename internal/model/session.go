package model

import "time"

// SessionStatus is the review workflow state.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionBatchMode SessionStatus = "batch_mode"
	SessionCompleted SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
)

// LearningContext accumulates immediate learning signals inside one session.
// It is rebuilt deterministically from feedback and steers later extraction.
type LearningContext struct {
	// ConfirmedPatterns maps field key -> value pattern -> confidence.
	ConfirmedPatterns map[string]map[string]float64 `json:"confirmed_patterns"`
	// RejectedPatterns maps field key -> value pattern -> occurrence count.
	RejectedPatterns map[string]map[string]int `json:"rejected_patterns"`
	// CategoryFrequency counts confirmed categories.
	CategoryFrequency map[string]int `json:"category_frequency"`
	// TypeDistribution counts confirmed item types.
	TypeDistribution map[string]int `json:"type_distribution"`
	// Summary is a deterministic textual digest of the above, fed to the
	// inference collaborator as steering context.
	Summary string `json:"summary"`
}

// NewLearningContext returns an empty, initialized learning context.
func NewLearningContext() LearningContext {
	return LearningContext{
		ConfirmedPatterns: make(map[string]map[string]float64),
		RejectedPatterns:  make(map[string]map[string]int),
		CategoryFrequency: make(map[string]int),
		TypeDistribution:  make(map[string]int),
	}
}

// Session is the working state of one HITL review session. The pending,
// current-batch, confirmed and rejected sets stay pairwise disjoint; moves
// between them happen only under the per-session writer lock.
type Session struct {
	ID       string        `json:"id"`
	TenantID string        `json:"tenant_id"`
	Status   SessionStatus `json:"status"`

	Pending      []Item `json:"pending"`
	CurrentBatch []Item `json:"current_batch"`
	Confirmed    []Item `json:"confirmed"`
	Rejected     []Item `json:"rejected"`

	BatchSize int `json:"batch_size"`

	// SamplingMode latches true once total item count crosses the sampling
	// threshold. It never reverts within a session.
	SamplingMode      bool `json:"sampling_mode"`
	SamplingThreshold int  `json:"sampling_threshold"`

	Learning LearningContext `json:"learning"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TotalItems counts every item across all sets.
func (s *Session) TotalItems() int {
	return len(s.Pending) + len(s.CurrentBatch) + len(s.Confirmed) + len(s.Rejected)
}

// Clone returns a deep copy of the session. The item sets and learning
// maps share nothing with the original, so a snapshot taken under the
// session's writer lock stays consistent after the lock is released.
func (s *Session) Clone() *Session {
	out := *s
	out.Pending = cloneItems(s.Pending)
	out.CurrentBatch = cloneItems(s.CurrentBatch)
	out.Confirmed = cloneItems(s.Confirmed)
	out.Rejected = cloneItems(s.Rejected)
	out.Learning = s.Learning.clone()
	return &out
}

func cloneItems(items []Item) []Item {
	if items == nil {
		return nil
	}
	out := make([]Item, len(items))
	for i := range items {
		out[i] = items[i].Clone()
	}
	return out
}

func (lc LearningContext) clone() LearningContext {
	out := lc
	out.ConfirmedPatterns = make(map[string]map[string]float64, len(lc.ConfirmedPatterns))
	for k, inner := range lc.ConfirmedPatterns {
		m := make(map[string]float64, len(inner))
		for pk, v := range inner {
			m[pk] = v
		}
		out.ConfirmedPatterns[k] = m
	}
	out.RejectedPatterns = make(map[string]map[string]int, len(lc.RejectedPatterns))
	for k, inner := range lc.RejectedPatterns {
		m := make(map[string]int, len(inner))
		for pk, v := range inner {
			m[pk] = v
		}
		out.RejectedPatterns[k] = m
	}
	out.CategoryFrequency = make(map[string]int, len(lc.CategoryFrequency))
	for k, v := range lc.CategoryFrequency {
		out.CategoryFrequency[k] = v
	}
	out.TypeDistribution = make(map[string]int, len(lc.TypeDistribution))
	for k, v := range lc.TypeDistribution {
		out.TypeDistribution[k] = v
	}
	return out
}

// FeedbackAction is a reviewer decision on one item.
type FeedbackAction string

const (
	FeedbackConfirm FeedbackAction = "confirm"
	FeedbackModify  FeedbackAction = "modify"
	FeedbackReject  FeedbackAction = "reject"
)

// Feedback is one reviewer decision, optionally carrying a modified item.
type Feedback struct {
	ItemID   string         `json:"item_id"`
	Action   FeedbackAction `json:"action"`
	Modified *Item          `json:"modified,omitempty"`
}

// ConfidenceDistribution buckets session items by confidence band.
type ConfidenceDistribution struct {
	Low    int `json:"low"`    // < 0.6
	Medium int `json:"medium"` // [0.6, 0.8)
	High   int `json:"high"`   // >= 0.8
}
