package dedup

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/stacklens/catalog-ingest/internal/model"
	"github.com/stacklens/catalog-ingest/pkg/inference"
)

func item(id string, fields map[string]any) model.Item {
	it := model.Item{ID: id, TenantID: "t1", Fields: map[string]model.Field{}}
	for k, v := range fields {
		it.Fields[k] = model.Field{Value: v, Confidence: 0.9}
	}
	return it
}

func TestSimilaritySymmetric(t *testing.T) {
	t.Parallel()

	a := item("a", map[string]any{
		model.FieldName:   "Adobe Photoshop",
		model.FieldVendor: "Adobe",
	})
	b := item("b", map[string]any{
		model.FieldName:   "Photoshop",
		model.FieldVendor: "Adobe Inc.",
	})
	assert.InDelta(t, Similarity(&a, &b), Similarity(&b, &a), 1e-12)
}

func TestSimilarityIdenticalNames(t *testing.T) {
	t.Parallel()

	a := item("a", map[string]any{model.FieldName: "Photoshop Suite"})
	b := item("b", map[string]any{model.FieldName: "photoshop   suite"})
	assert.InDelta(t, 1.0, Similarity(&a, &b), 1e-9)
}

func TestSimilarityAbsentFieldsRenormalized(t *testing.T) {
	t.Parallel()

	// Only name is comparable; a perfect name match must still score 1.
	a := item("a", map[string]any{model.FieldName: "CRM Pro", model.FieldVendor: "Acme"})
	b := item("b", map[string]any{model.FieldName: "CRM Pro"})
	assert.InDelta(t, 1.0, Similarity(&a, &b), 1e-9)
}

func TestRunAutoMerge(t *testing.T) {
	t.Parallel()

	items := []model.Item{
		item("a", map[string]any{model.FieldName: "Slack", model.FieldVendor: "Salesforce"}),
		item("b", map[string]any{model.FieldName: "slack", model.FieldVendor: "Salesforce"}),
		item("c", map[string]any{model.FieldName: "PostgreSQL", model.FieldVendor: "PGDG"}),
	}

	result := NewEngine(0.85, 0.70, model.MergeKeepMostComplete, nil).Run(context.Background(), items)
	require.Len(t, result.Groups, 1)
	assert.Len(t, result.Groups[0].Duplicates, 1)
	assert.Len(t, result.Unique, 1)
	assert.Equal(t, "c", result.Unique[0].ID)
	assert.GreaterOrEqual(t, result.Groups[0].Similarity, 0.85)
}

func TestRunArbitrationBandConfirmed(t *testing.T) {
	t.Parallel()

	arb := &mockArbiter{}
	arb.On("ConfirmDuplicate", mock.Anything, mock.Anything).
		Return(&inference.DuplicateVerdict{Duplicate: true, Confidence: 0.9}, nil)

	items := bandPair()
	sim := Similarity(&items[0], &items[1])
	require.GreaterOrEqual(t, sim, 0.70)
	require.Less(t, sim, 0.85)

	result := NewEngine(0.85, 0.70, model.MergeKeepMostComplete, arb).Run(context.Background(), items)
	require.Len(t, result.Groups, 1)
	assert.Len(t, result.Groups[0].Duplicates, 1)
	assert.False(t, result.Groups[0].NeedsReview)
}

func TestRunArbitrationFailureKeepsDistinct(t *testing.T) {
	t.Parallel()

	arb := &mockArbiter{}
	arb.On("ConfirmDuplicate", mock.Anything, mock.Anything).Return(nil, eris.New("unavailable"))

	items := bandPair()
	result := NewEngine(0.85, 0.70, model.MergeKeepMostComplete, arb).Run(context.Background(), items)

	// The pair stays distinct but the group surfaces for review.
	require.Len(t, result.Groups, 1)
	assert.Empty(t, result.Groups[0].Duplicates)
	assert.True(t, result.Groups[0].NeedsReview)
	assert.Len(t, result.Unique, 1)
}

func TestRunNoArbiterFlagsBandPairs(t *testing.T) {
	t.Parallel()

	items := bandPair()
	result := NewEngine(0.85, 0.70, model.MergeKeepMostComplete, nil).Run(context.Background(), items)
	require.Len(t, result.Groups, 1)
	assert.True(t, result.Groups[0].NeedsReview)
	assert.Empty(t, result.Groups[0].Duplicates)
}

// bandPair builds two items whose similarity lands inside [0.70, 0.85):
// identical names with unrelated identifiers score just under 0.80.
func bandPair() []model.Item {
	return []model.Item{
		item("a", map[string]any{
			model.FieldName:       "CRM Pro",
			model.FieldIdentifier: "alpha",
		}),
		item("b", map[string]any{
			model.FieldName:       "CRM Pro",
			model.FieldIdentifier: "omega",
		}),
	}
}

func TestMergeKeepMostComplete(t *testing.T) {
	t.Parallel()

	sparse := item("a", map[string]any{model.FieldName: "CRM Pro"})
	rich := item("b", map[string]any{
		model.FieldName:   "CRM Pro",
		model.FieldVendor: "Acme",
		model.FieldNotes:  "renewed 2025",
	})
	sparse.Fields[model.FieldCategory] = model.Field{Value: "Sales", Confidence: 0.8}

	group := &model.DuplicateGroup{Canonical: sparse, Duplicates: []model.Item{rich}}
	merged := Merge(group, model.MergeKeepMostComplete)

	assert.Equal(t, "b", merged.ID, "richer member wins")
	assert.Equal(t, "Acme", merged.Fields[model.FieldVendor].Value)
	// Gaps are filled from the sparser member.
	assert.Equal(t, "Sales", merged.Fields[model.FieldCategory].Value)
}

func TestSimilarityTagsOverlap(t *testing.T) {
	t.Parallel()

	a := item("a", map[string]any{model.FieldName: "CRM Pro"})
	a.Fields[model.FieldTags] = model.Field{Value: []string{"sales", "crm"}, Confidence: 0.9}
	b := item("b", map[string]any{model.FieldName: "CRM Pro"})
	b.Fields[model.FieldTags] = model.Field{Value: []string{"sales", "crm"}, Confidence: 0.9}
	c := item("c", map[string]any{model.FieldName: "CRM Pro"})
	c.Fields[model.FieldTags] = model.Field{Value: []string{"hr", "payroll"}, Confidence: 0.9}

	same := Similarity(&a, &b)
	disjoint := Similarity(&a, &c)
	assert.Greater(t, same, disjoint, "tag overlap raises pair similarity")
	assert.InDelta(t, 1.0, same, 1e-9)
}

func TestMergeKeepMostCompleteWeighsConfidence(t *testing.T) {
	t.Parallel()

	// More fields, but every one a shaky extraction.
	shaky := item("shaky", nil)
	for _, k := range []string{model.FieldName, model.FieldVendor, model.FieldNotes} {
		shaky.Fields[k] = model.Field{Value: "guess", Confidence: 0.2}
	}
	solid := item("solid", nil)
	for _, k := range []string{model.FieldName, model.FieldVendor} {
		solid.Fields[k] = model.Field{Value: "CRM Pro", Confidence: 0.9}
	}

	group := &model.DuplicateGroup{Canonical: shaky, Duplicates: []model.Item{solid}}
	merged := Merge(group, model.MergeKeepMostComplete)
	assert.Equal(t, "solid", merged.ID, "confident member outweighs field count")
}

func TestMergeBestValue(t *testing.T) {
	t.Parallel()

	a := item("a", map[string]any{model.FieldName: "CRM Pro"})
	a.Fields[model.FieldVendor] = model.Field{Value: "Acme?", Confidence: 0.4}
	b := item("b", map[string]any{model.FieldName: "CRM Pro"})
	b.Fields[model.FieldVendor] = model.Field{Value: "Acme GmbH", Confidence: 0.95}

	group := &model.DuplicateGroup{Canonical: a, Duplicates: []model.Item{b}}
	merged := Merge(group, model.MergeBestValue)
	assert.Equal(t, "Acme GmbH", merged.Fields[model.FieldVendor].Value)
}
