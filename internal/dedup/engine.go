package dedup

import (
	"context"

	"go.uber.org/zap"

	"github.com/stacklens/catalog-ingest/internal/model"
	"github.com/stacklens/catalog-ingest/pkg/inference"
)

// Arbiter is the subset of the inference client used for the arbitration
// band.
type Arbiter interface {
	ConfirmDuplicate(ctx context.Context, req inference.DuplicateRequest) (*inference.DuplicateVerdict, error)
}

// Engine clusters duplicate items.
type Engine struct {
	AutoMergeThreshold   float64 // default 0.85
	ArbitrationThreshold float64 // default 0.70
	Strategy             model.MergeStrategy
	Arbiter              Arbiter // may be nil; band pairs then stay distinct
}

// NewEngine builds an engine with the given thresholds. A zero threshold
// falls back to the default.
func NewEngine(autoMerge, arbitration float64, strategy model.MergeStrategy, arb Arbiter) *Engine {
	if autoMerge <= 0 {
		autoMerge = 0.85
	}
	if arbitration <= 0 {
		arbitration = 0.70
	}
	if strategy == "" {
		strategy = model.MergeKeepMostComplete
	}
	return &Engine{
		AutoMergeThreshold:   autoMerge,
		ArbitrationThreshold: arbitration,
		Strategy:             strategy,
		Arbiter:              arb,
	}
}

// Result is the outcome of one dedup pass.
type Result struct {
	Unique []model.Item
	Groups []model.DuplicateGroup
}

// Run clusters the batch. Each item joins at most one group; group
// membership is decided against the group's canonical item so clusters do
// not drift.
func (e *Engine) Run(ctx context.Context, items []model.Item) *Result {
	result := &Result{}
	assigned := make([]bool, len(items))

	for i := range items {
		if assigned[i] {
			continue
		}
		assigned[i] = true
		group := model.DuplicateGroup{Canonical: items[i], Strategy: e.Strategy}

		for j := i + 1; j < len(items); j++ {
			if assigned[j] {
				continue
			}
			sim := Similarity(&group.Canonical, &items[j])
			switch {
			case sim >= e.AutoMergeThreshold:
				assigned[j] = true
				group.Duplicates = append(group.Duplicates, items[j])
				if sim > group.Similarity {
					group.Similarity = sim
				}
			case sim >= e.ArbitrationThreshold:
				dup, reviewed := e.arbitrate(ctx, &group.Canonical, &items[j], sim)
				if dup {
					assigned[j] = true
					group.Duplicates = append(group.Duplicates, items[j])
					if sim > group.Similarity {
						group.Similarity = sim
					}
				}
				if reviewed {
					group.NeedsReview = true
				}
			}
		}

		if len(group.Duplicates) == 0 && !group.NeedsReview {
			result.Unique = append(result.Unique, items[i])
			continue
		}
		group.Canonical = Merge(&group, e.Strategy)
		result.Groups = append(result.Groups, group)
	}

	zap.L().Debug("dedup: pass complete",
		zap.Int("items", len(items)),
		zap.Int("unique", len(result.Unique)),
		zap.Int("groups", len(result.Groups)),
	)
	return result
}

// arbitrate asks inference about a band pair. The second return marks the
// group for review when arbitration was unavailable or indecisive.
func (e *Engine) arbitrate(ctx context.Context, a, b *model.Item, sim float64) (duplicate, review bool) {
	if e.Arbiter == nil {
		return false, true
	}
	verdict, err := e.Arbiter.ConfirmDuplicate(ctx, inference.DuplicateRequest{
		ItemA:      fieldValues(a),
		ItemB:      fieldValues(b),
		Similarity: sim,
	})
	if err != nil {
		// Treat the pair as distinct but surface it for review.
		zap.L().Warn("dedup: arbitration failed", zap.Error(err))
		return false, true
	}
	return verdict.Duplicate, false
}

func fieldValues(it *model.Item) map[string]any {
	out := make(map[string]any, len(it.Fields))
	for k, f := range it.Fields {
		out[k] = f.Value
	}
	return out
}
