package mapping

import (
	"context"

	"go.uber.org/zap"

	"github.com/stacklens/catalog-ingest/internal/model"
	"github.com/stacklens/catalog-ingest/pkg/inference"
	"github.com/stacklens/catalog-ingest/pkg/textmatch"
)

// TemplateMatcher resolves columns against a matched tenant template.
type TemplateMatcher struct{}

func (m *TemplateMatcher) Name() string { return "template" }

func (m *TemplateMatcher) Attempt(_ context.Context, col model.SchemaColumn, mctx *Context) (*model.FieldMapping, bool) {
	if mctx.Template == nil {
		return nil, false
	}
	for _, cached := range mctx.Template.Mappings {
		if textmatch.Normalize(cached.SourceColumn) == textmatch.Normalize(col.SourceName) {
			return &model.FieldMapping{
				SourceColumn: col.SourceName,
				TargetField:  cached.TargetField,
				Confidence:   0.95,
				Method:       model.ResolutionTemplate,
			}, true
		}
	}
	return nil, false
}

// AliasMatcher resolves columns by exact lookup in the curated multilingual
// alias dictionary after normalization.
type AliasMatcher struct{}

func (m *AliasMatcher) Name() string { return "alias" }

func (m *AliasMatcher) Attempt(_ context.Context, col model.SchemaColumn, mctx *Context) (*model.FieldMapping, bool) {
	if mctx.Aliases == nil {
		return nil, false
	}
	target, ok := mctx.Aliases.Lookup(col.SourceName)
	if !ok {
		return nil, false
	}
	return &model.FieldMapping{
		SourceColumn: col.SourceName,
		TargetField:  target,
		Confidence:   0.98,
		Method:       model.ResolutionAlias,
	}, true
}

// FuzzyMatcher scores columns against every alias of every target field
// with a weighted combination of containment, Jaro-Winkler and Levenshtein
// similarity.
type FuzzyMatcher struct {
	Threshold float64 // minimum qualifying score, default 0.6
}

func (m *FuzzyMatcher) Name() string { return "fuzzy" }

// fuzzyCap bounds the confidence a fuzzy match can claim.
const fuzzyCap = 0.85

func (m *FuzzyMatcher) Attempt(_ context.Context, col model.SchemaColumn, mctx *Context) (*model.FieldMapping, bool) {
	threshold := m.Threshold
	if threshold <= 0 {
		threshold = 0.6
	}

	source := textmatch.Normalize(col.SourceName)
	if source == "" {
		return nil, false
	}

	var bestTarget string
	var bestScore float64
	for _, target := range model.CanonicalFields {
		candidates := []string{textmatch.Normalize(target)}
		if mctx.Aliases != nil {
			candidates = append(candidates, mctx.Aliases.AliasesFor(target)...)
		}
		for _, cand := range candidates {
			if score := fuzzyScore(source, cand); score > bestScore {
				bestScore, bestTarget = score, target
			}
		}
	}

	if bestScore < threshold {
		return nil, false
	}
	if bestScore > fuzzyCap {
		bestScore = fuzzyCap
	}

	return &model.FieldMapping{
		SourceColumn: col.SourceName,
		TargetField:  bestTarget,
		Confidence:   bestScore,
		Method:       model.ResolutionFuzzy,
	}, true
}

// fuzzyScore combines containment ratio, Jaro-Winkler and Levenshtein
// similarity into one score in [0,1].
func fuzzyScore(a, b string) float64 {
	return 0.3*textmatch.ContainmentRatio(a, b) +
		0.4*textmatch.JaroWinkler(a, b) +
		0.3*textmatch.LevenshteinRatio(a, b)
}

// InferenceMatcherClient is the subset of the inference client used by the
// semantic tier.
type InferenceMatcherClient interface {
	SuggestMapping(ctx context.Context, req inference.MappingRequest) (*inference.MappingSuggestion, error)
}

// InferenceMatcher is the last-resort semantic tier. Failures and malformed
// responses simply disqualify the tier for the column.
type InferenceMatcher struct {
	Client InferenceMatcherClient
}

func (m *InferenceMatcher) Name() string { return "inference" }

// inferenceCap bounds the confidence a semantic suggestion can claim.
const inferenceCap = 0.75

func (m *InferenceMatcher) Attempt(ctx context.Context, col model.SchemaColumn, mctx *Context) (*model.FieldMapping, bool) {
	sug, err := m.Client.SuggestMapping(ctx, inference.MappingRequest{
		Column:       col.SourceName,
		Samples:      col.Samples,
		TargetFields: model.CanonicalFields,
		Context:      mctx.Steering,
	})
	if err != nil {
		zap.L().Warn("mapping: inference tier failed",
			zap.String("column", col.SourceName),
			zap.Error(err),
		)
		return nil, false
	}
	if sug.TargetField == "" || !isCanonical(sug.TargetField) {
		return nil, false
	}

	conf := sug.Confidence
	if conf > inferenceCap {
		conf = inferenceCap
	}
	return &model.FieldMapping{
		SourceColumn: col.SourceName,
		TargetField:  sug.TargetField,
		Confidence:   conf,
		Method:       model.ResolutionInference,
	}, true
}

func isCanonical(field string) bool {
	for _, f := range model.CanonicalFields {
		if f == field {
			return true
		}
	}
	return false
}
