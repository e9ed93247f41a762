// Package mapping resolves source columns onto canonical target fields via
// an ordered cascade of matcher strategies: tenant template, curated alias
// dictionary, fuzzy matching, and external semantic inference.
package mapping

import (
	"context"

	"go.uber.org/zap"

	"github.com/stacklens/catalog-ingest/internal/model"
)

// Context carries the shared state for one document's cascade run. Target
// fields are claimed greedily: once claimed, later columns cannot map to
// the same field.
type Context struct {
	TenantID string
	Template *model.ExtractionTemplate // matched template, may be nil
	Aliases  AliasDictionary
	// Steering is the session learning summary forwarded to inference.
	Steering string

	claimed map[string]bool
}

// Claimed reports whether a target field has already been claimed.
func (c *Context) Claimed(target string) bool {
	return c.claimed[target]
}

func (c *Context) claim(target string) {
	if c.claimed == nil {
		c.claimed = make(map[string]bool)
	}
	c.claimed[target] = true
}

// Matcher is one cascade tier. Attempt returns a mapping and true when the
// tier qualifies for the column; tiers must not claim fields themselves.
type Matcher interface {
	Name() string
	Attempt(ctx context.Context, col model.SchemaColumn, mctx *Context) (*model.FieldMapping, bool)
}

// Cascade runs matchers in order; the first qualifying match wins.
type Cascade struct {
	matchers []Matcher
}

// NewCascade builds the standard four-tier cascade. inf may be nil, which
// disables the inference tier.
func NewCascade(fuzzyThreshold float64, inf InferenceMatcherClient) *Cascade {
	matchers := []Matcher{
		&TemplateMatcher{},
		&AliasMatcher{},
		&FuzzyMatcher{Threshold: fuzzyThreshold},
	}
	if inf != nil {
		matchers = append(matchers, &InferenceMatcher{Client: inf})
	}
	return &Cascade{matchers: matchers}
}

// Resolve maps every schema column. Unresolved columns are recorded, never
// fatal. Transforms are attached per target field and column type.
func (c *Cascade) Resolve(ctx context.Context, sch *model.Schema, mctx *Context) *model.MappingResult {
	result := &model.MappingResult{}

	for _, col := range sch.Columns {
		mapped := false
		for _, m := range c.matchers {
			fm, ok := m.Attempt(ctx, col, mctx)
			if !ok {
				continue
			}
			if mctx.Claimed(fm.TargetField) {
				// Greedy claiming: this tier's target is taken; a later
				// tier may still find a different free field.
				continue
			}
			fm.Transforms = transformsFor(fm.TargetField, col.Type)
			mctx.claim(fm.TargetField)
			result.Mappings = append(result.Mappings, *fm)
			mapped = true

			zap.L().Debug("mapping: column resolved",
				zap.String("column", col.SourceName),
				zap.String("target", fm.TargetField),
				zap.String("method", string(fm.Method)),
				zap.Float64("confidence", fm.Confidence),
			)
			break
		}
		if !mapped {
			result.UnmappedColumns = append(result.UnmappedColumns, col.SourceName)
			zap.L().Debug("mapping: column unresolved", zap.String("column", col.SourceName))
		}
	}

	return result
}

// transformsFor attaches value transforms per target field and source type.
func transformsFor(target string, colType model.ColumnType) []model.TransformKind {
	switch target {
	case model.FieldCostMonthly, model.FieldCostAnnual, model.FieldBudget:
		return []model.TransformKind{model.TransformCurrency}
	case model.FieldRenewalDate, model.FieldStartDate, model.FieldEndDate:
		return []model.TransformKind{model.TransformDate}
	case model.FieldTags:
		return []model.TransformKind{model.TransformList}
	case model.FieldLicenseCount:
		return []model.TransformKind{model.TransformInteger}
	case model.FieldStatus, model.FieldPriority:
		return []model.TransformKind{model.TransformTrim, model.TransformEnum}
	default:
		if colType == model.ColumnCurrency {
			return []model.TransformKind{model.TransformCurrency}
		}
		return []model.TransformKind{model.TransformTrim}
	}
}
