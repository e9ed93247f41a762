package extract

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stacklens/catalog-ingest/internal/mapping"
	"github.com/stacklens/catalog-ingest/internal/model"
)

// Confidence levels assigned during item construction. A failed transform
// keeps the raw value at low confidence; defaults sit lower still.
const (
	failedTransformConfidence = 0.3
	defaultFieldConfidence    = 0.2
)

// DefaultItemType is assumed when a document never states the item type.
const DefaultItemType = "software"

// RowExtractor builds items from table rows under a resolved mapping.
type RowExtractor struct {
	TenantID string
	Headers  []string // resolved header names aligned to column positions
	Mappings []model.FieldMapping
	Opts     mapping.TransformOptions
	Method   model.ExtractionStrategy

	index map[string]int // header name -> column position
}

// NewRowExtractor pairs a mapping result with the table's header layout.
func NewRowExtractor(tenantID string, headers []string, result *model.MappingResult, strategy model.ExtractionStrategy, opts mapping.TransformOptions) *RowExtractor {
	index := make(map[string]int, len(headers))
	for i, h := range headers {
		index[h] = i
	}
	return &RowExtractor{
		TenantID: tenantID,
		Headers:  headers,
		Mappings: result.Mappings,
		Opts:     opts,
		Method:   strategy,
		index:    index,
	}
}

// Items converts every data row of a table. Rows that are entirely empty
// after mapping are dropped; rows missing required fields are kept with
// low-confidence defaults and flagged for review.
func (e *RowExtractor) Items(table *Table, doc string) []model.Item {
	items := make([]model.Item, 0, len(table.Rows))
	for i, row := range table.Rows {
		item := e.item(row, model.SourceLocation{
			Document: doc,
			Sheet:    table.Sheet,
			Row:      i + len(table.HeaderRows) + 1,
		})
		if item == nil {
			continue
		}
		items = append(items, *item)
	}
	zap.L().Debug("extract: table converted",
		zap.String("document", doc),
		zap.String("sheet", table.Sheet),
		zap.Int("rows", len(table.Rows)),
		zap.Int("items", len(items)),
	)
	return items
}

func (e *RowExtractor) item(row []string, src model.SourceLocation) *model.Item {
	fields := make(map[string]model.Field, len(e.Mappings))
	populated := false

	for _, fm := range e.Mappings {
		idx, ok := e.index[fm.SourceColumn]
		if !ok || idx >= len(row) {
			continue
		}
		raw := strings.TrimSpace(row[idx])
		if raw == "" {
			continue
		}
		populated = true
		fields[fm.TargetField] = e.field(fm, raw)
	}
	if !populated {
		return nil
	}

	ensureRequired(fields, row)

	return &model.Item{
		ID:        uuid.NewString(),
		TenantID:  e.TenantID,
		Fields:    fields,
		Source:    src,
		Method:    string(e.Method),
		CreatedAt: time.Now().UTC(),
	}
}

func (e *RowExtractor) field(fm model.FieldMapping, raw string) model.Field {
	value, err := mapping.Apply(raw, fm.Transforms, e.Opts)
	if err != nil {
		return model.Field{
			Value:       raw,
			Raw:         raw,
			Confidence:  failedTransformConfidence,
			Provenance:  model.ProvenanceExplicit,
			NeedsReview: true,
		}
	}

	prov := model.ProvenanceExplicit
	if transformed(fm.Transforms) {
		prov = model.ProvenanceInferred
	}
	return model.Field{
		Value:      value,
		Raw:        raw,
		Confidence: fm.Confidence,
		Provenance: prov,
	}
}

// transformed reports whether the chain does more than whitespace cleanup.
func transformed(kinds []model.TransformKind) bool {
	for _, k := range kinds {
		if k != model.TransformTrim {
			return true
		}
	}
	return false
}

// ensureRequired backfills name and item_type when the source never
// supplied them. Defaults carry low confidence and a review flag.
func ensureRequired(fields map[string]model.Field, row []string) {
	if f, ok := fields[model.FieldName]; !ok || f.Value == "" {
		name := firstNonEmpty(row)
		fields[model.FieldName] = model.Field{
			Value:       name,
			Confidence:  defaultFieldConfidence,
			Provenance:  model.ProvenanceDefault,
			NeedsReview: true,
		}
	}
	if _, ok := fields[model.FieldItemType]; !ok {
		fields[model.FieldItemType] = model.Field{
			Value:       DefaultItemType,
			Confidence:  defaultFieldConfidence,
			Provenance:  model.ProvenanceDefault,
			NeedsReview: true,
		}
	}
}

func firstNonEmpty(row []string) string {
	for _, cell := range row {
		if v := strings.TrimSpace(cell); v != "" {
			return v
		}
	}
	return "unknown item"
}
