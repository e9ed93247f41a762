package textmatch

import (
	"math"
	"strings"

	"github.com/agext/levenshtein"
)

// LevenshteinRatio returns the normalized Levenshtein similarity of two
// strings in [0,1], where 1 means identical.
func LevenshteinRatio(a, b string) float64 {
	return levenshtein.Similarity(a, b, nil)
}

// ContainmentRatio returns the fraction of the shorter string contained in
// the longer one: 1.0 for a full substring match, otherwise the longest
// common token overlap relative to the shorter token set.
func ContainmentRatio(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	short, long := a, b
	if len(short) > len(long) {
		short, long = long, short
	}
	if strings.Contains(long, short) {
		return 1.0
	}
	shortTokens := strings.Fields(short)
	if len(shortTokens) == 0 {
		return 0
	}
	var hits int
	for _, t := range shortTokens {
		if strings.Contains(long, t) {
			hits++
		}
	}
	return float64(hits) / float64(len(shortTokens))
}

// JaroWinkler returns the Jaro-Winkler similarity of two strings in [0,1].
// Standard prefix scale 0.1 with a 4-rune prefix cap.
func JaroWinkler(a, b string) float64 {
	j := jaro(a, b)
	if j == 0 {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	prefix := 0
	for prefix < len(ra) && prefix < len(rb) && prefix < 4 && ra[prefix] == rb[prefix] {
		prefix++
	}
	return j + float64(prefix)*0.1*(1-j)
}

func jaro(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)
	if la == 0 && lb == 0 {
		return 1
	}
	if la == 0 || lb == 0 {
		return 0
	}

	window := la
	if lb > window {
		window = lb
	}
	window = window/2 - 1
	if window < 0 {
		window = 0
	}

	matchA := make([]bool, la)
	matchB := make([]bool, lb)
	var matches int
	for i := 0; i < la; i++ {
		lo := i - window
		if lo < 0 {
			lo = 0
		}
		hi := i + window + 1
		if hi > lb {
			hi = lb
		}
		for j := lo; j < hi; j++ {
			if matchB[j] || ra[i] != rb[j] {
				continue
			}
			matchA[i] = true
			matchB[j] = true
			matches++
			break
		}
	}
	if matches == 0 {
		return 0
	}

	var transpositions int
	k := 0
	for i := 0; i < la; i++ {
		if !matchA[i] {
			continue
		}
		for !matchB[k] {
			k++
		}
		if ra[i] != rb[k] {
			transpositions++
		}
		k++
	}

	m := float64(matches)
	return (m/float64(la) + m/float64(lb) + (m-float64(transpositions)/2)/m) / 3
}

// NgramCosine returns the cosine similarity of two strings over character
// bigram frequency vectors.
func NgramCosine(a, b string) float64 {
	va := ngramVector(a, 2)
	vb := ngramVector(b, 2)
	if len(va) == 0 || len(vb) == 0 {
		return 0
	}
	var dot, na, nb float64
	for g, ca := range va {
		if cb, ok := vb[g]; ok {
			dot += float64(ca) * float64(cb)
		}
		na += float64(ca) * float64(ca)
	}
	for _, cb := range vb {
		nb += float64(cb) * float64(cb)
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func ngramVector(s string, n int) map[string]int {
	runes := []rune(s)
	out := make(map[string]int)
	if len(runes) < n {
		if len(runes) > 0 {
			out[string(runes)]++
		}
		return out
	}
	for i := 0; i+n <= len(runes); i++ {
		out[string(runes[i:i+n])]++
	}
	return out
}

// StringSimilarity is the composite string metric used by deduplication:
// the maximum of Jaro-Winkler, bigram cosine, and Levenshtein ratio over
// normalized inputs.
func StringSimilarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	best := JaroWinkler(na, nb)
	if c := NgramCosine(na, nb); c > best {
		best = c
	}
	if l := LevenshteinRatio(na, nb); l > best {
		best = l
	}
	return best
}

// NumericSimilarity returns 1 minus the relative difference of two numbers,
// clamped to [0,1]. Two zeros are identical.
func NumericSimilarity(a, b float64) float64 {
	if a == b {
		return 1
	}
	denom := math.Max(math.Abs(a), math.Abs(b))
	if denom == 0 {
		return 1
	}
	sim := 1 - math.Abs(a-b)/denom
	if sim < 0 {
		return 0
	}
	return sim
}

// JaccardIndex returns the Jaccard index of two string sets after
// normalization.
func JaccardIndex(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[string]struct{}, len(a))
	for _, s := range a {
		setA[Normalize(s)] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, s := range b {
		setB[Normalize(s)] = struct{}{}
	}
	var inter int
	for s := range setA {
		if _, ok := setB[s]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 1
	}
	return float64(inter) / float64(union)
}
