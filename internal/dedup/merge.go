package dedup

import (
	"fmt"

	"github.com/stacklens/catalog-ingest/internal/model"
)

// Merge resolves a duplicate group into one canonical item.
//
// keep_most_complete keeps the member with the most populated fields and
// fills its gaps from the others. best_value rebuilds the item field by
// field, taking the highest-confidence value for each key.
func Merge(group *model.DuplicateGroup, strategy model.MergeStrategy) model.Item {
	members := append([]model.Item{group.Canonical}, group.Duplicates...)
	if len(members) == 1 {
		return members[0]
	}

	switch strategy {
	case model.MergeBestValue:
		return mergeBestValue(members)
	default:
		return mergeMostComplete(members)
	}
}

func mergeMostComplete(members []model.Item) model.Item {
	best := 0
	for i := 1; i < len(members); i++ {
		if completeness(&members[i]) > completeness(&members[best]) {
			best = i
		}
	}

	merged := members[best]
	merged.Fields = cloneFields(merged.Fields)
	for i := range members {
		if i == best {
			continue
		}
		for k, f := range members[i].Fields {
			if existing, ok := merged.Fields[k]; !ok || isEmpty(existing.Value) {
				merged.Fields[k] = f
			}
		}
	}
	return merged
}

func mergeBestValue(members []model.Item) model.Item {
	merged := members[0]
	merged.Fields = cloneFields(merged.Fields)
	for i := 1; i < len(members); i++ {
		for k, f := range members[i].Fields {
			existing, ok := merged.Fields[k]
			if !ok || isEmpty(existing.Value) || f.Confidence > existing.Confidence {
				merged.Fields[k] = f
			}
		}
	}
	return merged
}

// completeness scores an item by its populated fields, each weighted by
// the field's extraction confidence. A field with no recorded confidence
// still counts a little so sparse heuristic extractions are comparable.
func completeness(it *model.Item) float64 {
	var score float64
	for _, f := range it.Fields {
		if isEmpty(f.Value) {
			continue
		}
		c := f.Confidence
		if c <= 0 {
			c = 0.1
		}
		score += c
	}
	return score
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	return fmt.Sprint(v) == ""
}

func cloneFields(fields map[string]model.Field) map[string]model.Field {
	out := make(map[string]model.Field, len(fields))
	for k, f := range fields {
		out[k] = f
	}
	return out
}
