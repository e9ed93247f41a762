package confidence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func key() ContextKey {
	return ContextKey{TenantID: "t1", Field: "vendor", Context: "saas"}
}

func fullMatch() MatchContext {
	return MatchContext{Tenant: true, Industry: true, Format: true, Field: true}
}

func TestRecordCorrectRaisesConfidence(t *testing.T) {
	t.Parallel()

	a := NewAdjuster(0.05, 0.10, 0.10, 0.99)
	got := a.Record(key(), true, fullMatch())
	// 0.5 + 0.05 * (0.40+0.25+0.20+0.15)
	assert.InDelta(t, 0.55, got, 1e-9)
}

func TestRecordWrongDropsHarder(t *testing.T) {
	t.Parallel()

	a := NewAdjuster(0.05, 0.10, 0.10, 0.99)
	got := a.Record(key(), false, fullMatch())
	// 0.5 - 0.10 * (1 + 1.0)
	assert.InDelta(t, 0.30, got, 1e-9)
}

func TestRecordPartialContextWeight(t *testing.T) {
	t.Parallel()

	a := NewAdjuster(0.05, 0.10, 0.10, 0.99)
	got := a.Record(key(), true, MatchContext{Tenant: true, Field: true})
	// weight 0.55
	assert.InDelta(t, 0.5+0.05*0.55, got, 1e-9)
}

func TestRecordClamps(t *testing.T) {
	t.Parallel()

	a := NewAdjuster(0.05, 0.10, 0.10, 0.99)
	for i := 0; i < 20; i++ {
		a.Record(key(), false, fullMatch())
	}
	assert.InDelta(t, 0.10, a.Historical(key()), 1e-9)

	for i := 0; i < 200; i++ {
		a.Record(key(), true, fullMatch())
	}
	assert.InDelta(t, 0.99, a.Historical(key()), 1e-9)
}

func TestBlended(t *testing.T) {
	t.Parallel()

	a := NewAdjuster(0.05, 0.10, 0.10, 0.99)
	a.Record(key(), true, fullMatch())  // confidence 0.55, accuracy 1/1
	a.Record(key(), false, fullMatch()) // confidence 0.35, accuracy 1/2

	want := 0.7*0.35 + 0.3*0.5
	assert.InDelta(t, want, a.Blended(key()), 1e-9)
}

func TestBlendedUnknownKeyIsNeutral(t *testing.T) {
	t.Parallel()

	a := NewAdjuster(0, 0, 0, 0)
	assert.InDelta(t, 0.5, a.Blended(ContextKey{TenantID: "nope"}), 1e-9)
}

func TestHistoricalIsolatedPerKey(t *testing.T) {
	t.Parallel()

	a := NewAdjuster(0.05, 0.10, 0.10, 0.99)
	a.Record(key(), false, fullMatch())

	other := key()
	other.Field = "category"
	assert.InDelta(t, 0.5, a.Historical(other), 1e-9)
}

func TestEMA(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 0.55, EMA(0.5, 0.6, 0.5), 1e-9)
	assert.InDelta(t, 0.6, EMA(0.5, 0.6, 1.0), 1e-9)
	got := EMA(EMA(0.5, 1.0, 0.2), 1.0, 0.2)
	assert.Greater(t, got, 0.5)
	assert.Less(t, got, 1.0)
}
