// Package dedup detects and resolves near-duplicate items using a weighted
// field similarity. Pairs above the auto-merge threshold collapse without
// review; pairs inside the arbitration band are escalated to inference and
// treated as distinct when arbitration is unavailable.
package dedup

import (
	"github.com/stacklens/catalog-ingest/internal/model"
	"github.com/stacklens/catalog-ingest/pkg/textmatch"
)

// Field weights for pair similarity. Weights of absent fields are dropped
// and the remainder renormalized, so sparse items still compare fairly.
var fieldWeights = []struct {
	key    string
	weight float64
}{
	{model.FieldName, 0.40},
	{model.FieldIdentifier, 0.25},
	{model.FieldDescription, 0.15},
	{model.FieldVendor, 0.10},
	{model.FieldCategory, 0.05},
	{model.FieldCostMonthly, 0.05},
	{model.FieldTags, 0.05},
}

// Similarity scores a pair of items in [0,1]. The score is symmetric.
func Similarity(a, b *model.Item) float64 {
	var score, total float64
	for _, fw := range fieldWeights {
		s, ok := fieldSimilarity(a, b, fw.key)
		if !ok {
			continue
		}
		score += s * fw.weight
		total += fw.weight
	}
	if total == 0 {
		return 0
	}
	return score / total
}

func fieldSimilarity(a, b *model.Item, key string) (float64, bool) {
	if key == model.FieldCostMonthly {
		va, okA := a.FloatValue(key)
		vb, okB := b.FloatValue(key)
		if !okA || !okB {
			return 0, false
		}
		return textmatch.NumericSimilarity(va, vb), true
	}
	if key == model.FieldTags {
		la := a.ListValue(key)
		lb := b.ListValue(key)
		if len(la) == 0 || len(lb) == 0 {
			return 0, false
		}
		return textmatch.JaccardIndex(la, lb), true
	}

	sa := a.StringValue(key)
	sb := b.StringValue(key)
	if sa == "" || sb == "" {
		return 0, false
	}
	return textmatch.StringSimilarity(sa, sb), true
}
