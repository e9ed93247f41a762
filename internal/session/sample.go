package session

import (
	"sort"

	"github.com/stacklens/catalog-ingest/internal/model"
)

// Band quotas for representative sampling.
const (
	lowBandShare    = 0.40 // confidence < 0.6
	mediumBandShare = 0.35 // [0.6, 0.8)
	highBandShare   = 0.25 // >= 0.8
)

// RepresentativeSample picks n items from pending, stratified by
// confidence band. Within each band the lowest-confidence item of every
// category is taken first, then remaining band slots fill by ascending
// confidence. Band shortfalls are redistributed by ascending confidence
// over the leftovers. Selection is deterministic.
func RepresentativeSample(pending []model.Item, n int) []model.Item {
	if n <= 0 || len(pending) == 0 {
		return nil
	}
	if n >= len(pending) {
		out := append([]model.Item(nil), pending...)
		sortByConfidence(out)
		return out
	}

	var low, medium, high []model.Item
	for _, it := range pending {
		switch c := it.OverallConfidence(); {
		case c < 0.6:
			low = append(low, it)
		case c < 0.8:
			medium = append(medium, it)
		default:
			high = append(high, it)
		}
	}

	quotaLow := int(float64(n) * lowBandShare)
	quotaMedium := int(float64(n) * mediumBandShare)
	quotaHigh := n - quotaLow - quotaMedium

	picked := make([]model.Item, 0, n)
	taken := map[string]bool{}
	pick := func(band []model.Item, quota int) {
		for _, it := range sampleBand(band, quota) {
			picked = append(picked, it)
			taken[it.ID] = true
		}
	}
	pick(low, quotaLow)
	pick(medium, quotaMedium)
	pick(high, quotaHigh)

	// Redistribute unfilled slots across everything left.
	if len(picked) < n {
		var rest []model.Item
		for _, it := range pending {
			if !taken[it.ID] {
				rest = append(rest, it)
			}
		}
		sortByConfidence(rest)
		for _, it := range rest {
			if len(picked) == n {
				break
			}
			picked = append(picked, it)
		}
	}
	return picked
}

// sampleBand takes up to quota items: first the lowest-confidence item per
// category, categories in sorted order, then ascending confidence.
func sampleBand(band []model.Item, quota int) []model.Item {
	if quota <= 0 || len(band) == 0 {
		return nil
	}
	sorted := append([]model.Item(nil), band...)
	sortByConfidence(sorted)
	if quota >= len(sorted) {
		return sorted
	}

	lowestPerCategory := map[string]model.Item{}
	for _, it := range sorted {
		cat := it.StringValue(model.FieldCategory)
		if _, ok := lowestPerCategory[cat]; !ok {
			lowestPerCategory[cat] = it
		}
	}
	categories := make([]string, 0, len(lowestPerCategory))
	for cat := range lowestPerCategory {
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	var out []model.Item
	taken := map[string]bool{}
	for _, cat := range categories {
		if len(out) == quota {
			break
		}
		it := lowestPerCategory[cat]
		out = append(out, it)
		taken[it.ID] = true
	}
	for _, it := range sorted {
		if len(out) == quota {
			break
		}
		if !taken[it.ID] {
			out = append(out, it)
		}
	}
	return out
}

// sortByConfidence orders ascending, with the item id as a deterministic
// tie-breaker.
func sortByConfidence(items []model.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		ci, cj := items[i].OverallConfidence(), items[j].OverallConfidence()
		if ci != cj {
			return ci < cj
		}
		return items[i].ID < items[j].ID
	})
}

// Distribution buckets items by confidence band.
func Distribution(s *model.Session) model.ConfidenceDistribution {
	var d model.ConfidenceDistribution
	count := func(items []model.Item) {
		for _, it := range items {
			switch c := it.OverallConfidence(); {
			case c < 0.6:
				d.Low++
			case c < 0.8:
				d.Medium++
			default:
				d.High++
			}
		}
	}
	count(s.Pending)
	count(s.CurrentBatch)
	count(s.Confirmed)
	count(s.Rejected)
	return d
}
