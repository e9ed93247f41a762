package learn

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklens/catalog-ingest/internal/model"
)

func template(id string, headers []string, filenamePattern string) *model.ExtractionTemplate {
	return &model.ExtractionTemplate{
		ID:        id,
		TenantID:  "t1",
		Signature: BuildSignature(headers, filenamePattern),
		Mappings: []model.FieldMapping{
			{SourceColumn: headers[0], TargetField: model.FieldName, Confidence: 0.95},
		},
	}
}

func TestMatchTemplateExactHeaders(t *testing.T) {
	t.Parallel()

	headers := []string{"Produktname", "Anbieter", "Kosten pro Monat"}
	tpl := template("tpl-1", headers, `^katalog_\d+\.csv$`)

	got, score := MatchTemplate([]*model.ExtractionTemplate{tpl}, headers, "katalog_2025.csv")
	require.NotNil(t, got)
	assert.Equal(t, "tpl-1", got.ID)
	// Full column overlap, full keyword overlap, filename hit.
	assert.InDelta(t, 1.0, score, 1e-9)
}

func TestMatchTemplateBelowThreshold(t *testing.T) {
	t.Parallel()

	tpl := template("tpl-1", []string{"Produktname", "Anbieter", "Kosten pro Monat"}, "")
	got, score := MatchTemplate([]*model.ExtractionTemplate{tpl}, []string{"completely", "different"}, "other.csv")
	assert.Nil(t, got)
	assert.Less(t, score, MatchThreshold)
}

func TestMatchTemplatePartialOverlap(t *testing.T) {
	t.Parallel()

	headers := []string{"Produktname", "Anbieter", "Kosten pro Monat", "Status"}
	tpl := template("tpl-1", headers, `^katalog.*\.csv$`)

	// Three of four columns survive a layout change; the filename pattern
	// still matches and lifts the score over the threshold.
	newHeaders := []string{"Produktname", "Anbieter", "Status", "Notizen"}
	got, score := MatchTemplate([]*model.ExtractionTemplate{tpl}, newHeaders, "katalog_q3.csv")
	require.NotNil(t, got)
	assert.InDelta(t, 0.5*0.75+0.3*0.75+0.2, score, 1e-9)

	// Without the filename contribution the same overlap falls short.
	bare := template("tpl-2", headers, "")
	got, _ = MatchTemplate([]*model.ExtractionTemplate{bare}, newHeaders, "other.csv")
	assert.Nil(t, got)
}

func TestMatchTemplatePicksBest(t *testing.T) {
	t.Parallel()

	headers := []string{"Name", "Vendor"}
	weak := template("weak", []string{"Name", "Other", "Third", "Fourth"}, "")
	strong := template("strong", headers, "")

	got, _ := MatchTemplate([]*model.ExtractionTemplate{weak, strong}, headers, "f.csv")
	require.NotNil(t, got)
	assert.Equal(t, "strong", got.ID)
}

func correction(field, from, to string) model.Correction {
	return model.Correction{
		TenantID: "t1",
		Original: model.Item{Fields: map[string]model.Field{
			field: {Value: from},
		}},
		Corrected: model.Item{Fields: map[string]model.Field{
			field: {Value: to},
		}},
		Changed: []string{field},
	}
}

func TestLearnKeepsSupportedPatterns(t *testing.T) {
	t.Parallel()

	var corrections []model.Correction
	for i := 0; i < 3; i++ {
		corrections = append(corrections, correction(model.FieldVendor, "Acme?", "Acme GmbH"))
	}
	corrections = append(corrections, correction(model.FieldVendor, "Foo", "Bar")) // support 1

	result := NewLearner(3).Learn(corrections, 20)
	require.Len(t, result.Patterns, 1)
	p := result.Patterns[0]
	assert.Equal(t, model.FieldVendor, p.Field)
	assert.Equal(t, "Acme?", p.From)
	assert.Equal(t, "Acme GmbH", p.To)
	assert.Equal(t, 3, p.Count)
}

func TestLearnBaselineTracksCorrectionRate(t *testing.T) {
	t.Parallel()

	var corrections []model.Correction
	for i := 0; i < 10; i++ {
		corrections = append(corrections, correction(model.FieldVendor, fmt.Sprintf("v%d", i), "x"))
	}
	corrections = append(corrections, correction(model.FieldCategory, "a", "b"))

	result := NewLearner(3).Learn(corrections, 20)
	// vendor corrected 10/20 times, category 1/20.
	assert.InDelta(t, 0.5, result.Baselines[model.FieldVendor], 1e-9)
	assert.InDelta(t, 0.95, result.Baselines[model.FieldCategory], 1e-9)
	assert.Greater(t, result.Baselines[model.FieldCategory], result.Baselines[model.FieldVendor])
}

func TestUpdateTemplateRecalibratesMappings(t *testing.T) {
	t.Parallel()

	tpl := template("tpl-1", []string{"Produktname"}, "")
	result := &BatchResult{Baselines: map[string]float64{model.FieldName: 0.5}}

	NewLearner(3).UpdateTemplate(tpl, result, 0.8)
	assert.Equal(t, 1, tpl.UsageCount)
	assert.InDelta(t, 0.8, tpl.Accuracy(), 1e-9)
	// Confidence drifts halfway from 0.95 toward 0.5.
	assert.InDelta(t, 0.725, tpl.Mappings[0].Confidence, 1e-9)
}

func TestSessionAccuracy(t *testing.T) {
	t.Parallel()

	s := &model.Session{
		Confirmed: make([]model.Item, 8),
		Rejected:  make([]model.Item, 2),
	}
	assert.InDelta(t, 0.8, SessionAccuracy(s), 1e-9)
	assert.Zero(t, SessionAccuracy(&model.Session{}))
}

func TestBuildSignatureDeterministic(t *testing.T) {
	t.Parallel()

	a := BuildSignature([]string{"Name", "Vendor"}, "f.csv")
	b := BuildSignature([]string{"Vendor", "Name"}, "f.csv")
	assert.Equal(t, a, b)
}
