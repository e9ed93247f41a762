// Package confidence maintains per-field confidence history and adjusts
// scores from human correction outcomes.
package confidence

import (
	"sync"

	"go.uber.org/zap"
)

// ContextKey identifies one confidence history bucket.
type ContextKey struct {
	TenantID string
	Field    string
	Context  string // free-form discriminator, typically industry or format
}

// MatchContext describes the situation of a prediction. Matching
// dimensions add their weight to the adjustment.
type MatchContext struct {
	Tenant   bool
	Industry bool
	Format   bool
	Field    bool
}

// weight returns the summed indicator weight of the matching dimensions.
func (c MatchContext) weight() float64 {
	var w float64
	if c.Tenant {
		w += 0.40
	}
	if c.Industry {
		w += 0.25
	}
	if c.Format {
		w += 0.20
	}
	if c.Field {
		w += 0.15
	}
	return w
}

// history is one bucket's running state.
type history struct {
	confidence float64
	correct    int
	total      int
}

// Adjuster tunes field confidence from correction outcomes. Safe for
// concurrent use.
type Adjuster struct {
	LearningRate float64 // default 0.05
	DecayRate    float64 // default 0.10
	Min          float64 // default 0.10
	Max          float64 // default 0.99

	mu      sync.Mutex
	buckets map[ContextKey]*history
}

// NewAdjuster builds an adjuster; zero parameters fall back to defaults.
func NewAdjuster(learningRate, decayRate, min, max float64) *Adjuster {
	if learningRate <= 0 {
		learningRate = 0.05
	}
	if decayRate <= 0 {
		decayRate = 0.10
	}
	if min <= 0 {
		min = 0.10
	}
	if max <= 0 || max > 1 {
		max = 0.99
	}
	return &Adjuster{
		LearningRate: learningRate,
		DecayRate:    decayRate,
		Min:          min,
		Max:          max,
		buckets:      make(map[ContextKey]*history),
	}
}

// Record feeds one correction outcome into the bucket for key. A correct
// prediction raises confidence by learningRate x contextWeight; a wrong
// one lowers it by decayRate x (1 + contextWeight). The result is clamped.
func (a *Adjuster) Record(key ContextKey, correct bool, mctx MatchContext) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	h := a.buckets[key]
	if h == nil {
		h = &history{confidence: 0.5}
		a.buckets[key] = h
	}

	w := mctx.weight()
	if correct {
		h.confidence += a.LearningRate * w
		h.correct++
	} else {
		h.confidence -= a.DecayRate * (1 + w)
	}
	h.total++
	h.confidence = a.clamp(h.confidence)

	zap.L().Debug("confidence: outcome recorded",
		zap.String("tenant", key.TenantID),
		zap.String("field", key.Field),
		zap.Bool("correct", correct),
		zap.Float64("confidence", h.confidence),
	)
	return h.confidence
}

// Historical returns the bucket's adjusted confidence, or the neutral 0.5
// when no history exists.
func (a *Adjuster) Historical(key ContextKey) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if h, ok := a.buckets[key]; ok {
		return h.confidence
	}
	return 0.5
}

// Blended combines the bucket's historical confidence with its raw
// observed accuracy, 70/30. With no recorded outcomes it returns the
// historical value alone.
func (a *Adjuster) Blended(key ContextKey) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	h, ok := a.buckets[key]
	if !ok {
		return 0.5
	}
	if h.total == 0 {
		return h.confidence
	}
	accuracy := float64(h.correct) / float64(h.total)
	return a.clamp(0.7*h.confidence + 0.3*accuracy)
}

func (a *Adjuster) clamp(v float64) float64 {
	if v < a.Min {
		return a.Min
	}
	if v > a.Max {
		return a.Max
	}
	return v
}

// EMA folds a new observation into a running exponential moving average
// with smoothing factor alpha in (0,1].
func EMA(current, observation, alpha float64) float64 {
	return alpha*observation + (1-alpha)*current
}
