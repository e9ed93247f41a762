package session

import (
	"fmt"
	"sort"
	"strings"

	"github.com/stacklens/catalog-ingest/internal/model"
)

// patternAlpha is the step a confirmed pattern's confidence moves toward 1
// on each confirmation, starting from the neutral 0.5.
const patternAlpha = 0.3

// substitutionThreshold is the minimum pattern confidence for confirm-all
// value substitution.
const substitutionThreshold = 0.6

// typeSkewThreshold is the confirmed type-distribution skew above which
// confirm-all rewrites low-confidence item types.
const typeSkewThreshold = 0.7

// recordConfirm folds a confirmed item into the session's learning tables.
func recordConfirm(lc *model.LearningContext, it *model.Item) {
	for key, f := range it.Fields {
		v, ok := f.Value.(string)
		if !ok || v == "" {
			continue
		}
		if lc.ConfirmedPatterns[key] == nil {
			lc.ConfirmedPatterns[key] = make(map[string]float64)
		}
		p, seen := lc.ConfirmedPatterns[key][v]
		if !seen {
			p = 0.5
		}
		lc.ConfirmedPatterns[key][v] = p + patternAlpha*(1-p)
	}
	if cat := it.StringValue(model.FieldCategory); cat != "" {
		lc.CategoryFrequency[cat]++
	}
	if typ := it.StringValue(model.FieldItemType); typ != "" {
		lc.TypeDistribution[typ]++
	}
}

// recordReject counts the rejected item's values.
func recordReject(lc *model.LearningContext, it *model.Item) {
	for key, f := range it.Fields {
		v, ok := f.Value.(string)
		if !ok || v == "" {
			continue
		}
		if lc.RejectedPatterns[key] == nil {
			lc.RejectedPatterns[key] = make(map[string]int)
		}
		lc.RejectedPatterns[key][v]++
	}
}

// rebuildSummary regenerates the steering digest. The output is fully
// deterministic: every table is walked in sorted order.
func rebuildSummary(lc *model.LearningContext) {
	var parts []string

	if len(lc.TypeDistribution) > 0 {
		parts = append(parts, "types: "+joinCounts(lc.TypeDistribution))
	}
	if len(lc.CategoryFrequency) > 0 {
		parts = append(parts, "categories: "+joinCounts(lc.CategoryFrequency))
	}

	fields := make([]string, 0, len(lc.ConfirmedPatterns))
	for f := range lc.ConfirmedPatterns {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		if v, p, ok := dominantPattern(lc.ConfirmedPatterns[f]); ok && p >= substitutionThreshold {
			parts = append(parts, fmt.Sprintf("confirmed %s=%s", f, v))
		}
	}

	lc.Summary = strings.Join(parts, "; ")
}

func joinCounts(m map[string]int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, m[k])
	}
	return strings.Join(parts, ", ")
}

// dominantPattern returns the highest-confidence pattern value, ties
// broken lexicographically.
func dominantPattern(patterns map[string]float64) (string, float64, bool) {
	var bestV string
	var bestP float64
	for v, p := range patterns {
		if p > bestP || (p == bestP && (bestV == "" || v < bestV)) {
			bestV, bestP = v, p
		}
	}
	return bestV, bestP, bestV != ""
}

// dominantType returns the most frequent confirmed type and its share of
// all confirmations.
func dominantType(dist map[string]int) (string, float64) {
	var total, best int
	var bestT string
	keys := make([]string, 0, len(dist))
	for t := range dist {
		keys = append(keys, t)
	}
	sort.Strings(keys)
	for _, t := range keys {
		total += dist[t]
		if dist[t] > best {
			best, bestT = dist[t], t
		}
	}
	if total == 0 {
		return "", 0
	}
	return bestT, float64(best) / float64(total)
}

// applyLearnedCorrections rewrites one remaining item during confirm-all.
func applyLearnedCorrections(lc *model.LearningContext, it *model.Item) {
	// Type-distribution bias correction.
	if it.OverallConfidence() < 0.7 {
		if typ, share := dominantType(lc.TypeDistribution); typ != "" && share > typeSkewThreshold {
			if it.StringValue(model.FieldItemType) != typ {
				it.Fields[model.FieldItemType] = model.Field{
					Value:      typ,
					Confidence: share,
					Provenance: model.ProvenanceLearned,
				}
			}
		}
	}

	// Value substitution: a rejected value with a strong confirmed
	// counterpart is replaced.
	for key, f := range it.Fields {
		v, ok := f.Value.(string)
		if !ok || lc.RejectedPatterns[key][v] == 0 {
			continue
		}
		repl, p, ok := dominantPattern(lc.ConfirmedPatterns[key])
		if !ok || p < substitutionThreshold || repl == v {
			continue
		}
		it.Fields[key] = model.Field{
			Value:      repl,
			Raw:        f.Raw,
			Confidence: p,
			Provenance: model.ProvenanceLearned,
		}
	}
}
