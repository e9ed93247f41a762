package learn

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/stacklens/catalog-ingest/internal/model"
)

// ValuePattern is one recurring correction: reviewers repeatedly rewrote
// From into To for the given field.
type ValuePattern struct {
	Field string `json:"field"`
	From  string `json:"from"`
	To    string `json:"to"`
	Count int    `json:"count"`
}

// BatchResult is the outcome of learning over one completed session.
type BatchResult struct {
	// Patterns lists value rewrites with at least MinPatternSupport
	// occurrences, most frequent first.
	Patterns []ValuePattern `json:"patterns"`
	// Baselines holds the recalibrated per-field baseline confidence. A
	// high correction rate lowers the baseline, a low rate raises it.
	Baselines map[string]float64 `json:"baselines"`
	// Reviewed is the number of corrections considered.
	Reviewed int `json:"reviewed"`
}

// Learner aggregates session corrections into reusable patterns.
type Learner struct {
	MinPatternSupport int // default 3
}

// NewLearner builds a learner; a non-positive support falls back to 3.
func NewLearner(minSupport int) *Learner {
	if minSupport <= 0 {
		minSupport = 3
	}
	return &Learner{MinPatternSupport: minSupport}
}

// Learn aggregates all corrections of a completed session. itemsReviewed
// is the total number of items a human looked at and anchors the
// correction rate.
func (l *Learner) Learn(corrections []model.Correction, itemsReviewed int) *BatchResult {
	type patternKey struct{ field, from, to string }
	counts := map[patternKey]int{}
	fieldCorrections := map[string]int{}

	for _, c := range corrections {
		for _, field := range c.Changed {
			fieldCorrections[field]++
			from, okF := c.Original.Fields[field]
			to, okT := c.Corrected.Fields[field]
			if !okF || !okT {
				continue
			}
			fromS, okF := from.Value.(string)
			toS, okT := to.Value.(string)
			if !okF || !okT || fromS == toS {
				continue
			}
			counts[patternKey{field, fromS, toS}]++
		}
	}

	result := &BatchResult{
		Baselines: make(map[string]float64),
		Reviewed:  len(corrections),
	}
	for key, n := range counts {
		if n < l.MinPatternSupport {
			continue
		}
		result.Patterns = append(result.Patterns, ValuePattern{
			Field: key.field, From: key.from, To: key.to, Count: n,
		})
	}
	sort.Slice(result.Patterns, func(i, j int) bool {
		a, b := result.Patterns[i], result.Patterns[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		if a.Field != b.Field {
			return a.Field < b.Field
		}
		return a.From < b.From
	})

	if itemsReviewed > 0 {
		for field, n := range fieldCorrections {
			rate := float64(n) / float64(itemsReviewed)
			result.Baselines[field] = clampBaseline(1 - rate)
		}
	}

	zap.L().Info("learn: session aggregated",
		zap.Int("corrections", len(corrections)),
		zap.Int("patterns", len(result.Patterns)),
	)
	return result
}

// UpdateTemplate folds a learning result into a stored template: usage and
// accuracy bookkeeping, plus mapping-confidence recalibration for fields
// whose baseline moved.
func (l *Learner) UpdateTemplate(tpl *model.ExtractionTemplate, result *BatchResult, accuracy float64) {
	tpl.UsageCount++
	tpl.AccuracySum += accuracy
	tpl.AccuracyCount++
	tpl.UpdatedAt = time.Now().UTC()

	for i := range tpl.Mappings {
		baseline, ok := result.Baselines[tpl.Mappings[i].TargetField]
		if !ok {
			continue
		}
		// Template confidence drifts halfway toward the observed baseline.
		tpl.Mappings[i].Confidence = clampBaseline((tpl.Mappings[i].Confidence + baseline) / 2)
	}
}

// NewTemplate builds a fresh template from a document's resolved headers
// and mapping result.
func NewTemplate(id, tenantID, name string, headers []string, mappings []model.FieldMapping, filenamePattern string) *model.ExtractionTemplate {
	now := time.Now().UTC()
	return &model.ExtractionTemplate{
		ID:        id,
		TenantID:  tenantID,
		Name:      name,
		Signature: BuildSignature(headers, filenamePattern),
		Mappings:  append([]model.FieldMapping(nil), mappings...),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// SessionAccuracy is the share of reviewed items confirmed without
// modification.
func SessionAccuracy(s *model.Session) float64 {
	reviewed := len(s.Confirmed) + len(s.Rejected)
	if reviewed == 0 {
		return 0
	}
	return float64(len(s.Confirmed)) / float64(reviewed)
}

func clampBaseline(v float64) float64 {
	if v < 0.1 {
		return 0.1
	}
	if v > 0.99 {
		return 0.99
	}
	return v
}

// PatternID is a stable identifier for a learned pattern, useful as a
// storage key.
func (p ValuePattern) PatternID() string {
	return fmt.Sprintf("%s|%s|%s", p.Field, p.From, p.To)
}
