// Package schema derives a column schema and an extraction strategy from a
// raw document grid, escalating to the inference collaborator only when the
// structure is ambiguous.
package schema

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/stacklens/catalog-ingest/internal/model"
	"github.com/stacklens/catalog-ingest/pkg/inference"
	"github.com/stacklens/catalog-ingest/pkg/textmatch"
)

// Table is a raw grid produced by a format reader.
type Table struct {
	Name       string
	HeaderRows [][]string
	Rows       [][]string
}

// DocumentInfo carries structural hints for strategy selection.
type DocumentInfo struct {
	Filename  string
	Tables    int
	Sections  int
	PageCount int
}

// Analyzer produces schemas from raw tables.
type Analyzer struct {
	inf        inference.Client // may be nil: heuristics only
	sampleRows int
}

// NewAnalyzer creates a schema analyzer. inf may be nil to disable the
// inference escalation path.
func NewAnalyzer(inf inference.Client, sampleRows int) *Analyzer {
	if sampleRows <= 0 {
		sampleRows = 50
	}
	return &Analyzer{inf: inf, sampleRows: sampleRows}
}

// ambiguityThreshold is the header-quality score below which the analyzer
// asks the inference collaborator for a schema hypothesis.
const ambiguityThreshold = 0.5

// Analyze derives the schema for one table. A failed or malformed inference
// escalation degrades to the heuristic schema; it never fails the document.
func (a *Analyzer) Analyze(ctx context.Context, table Table, info DocumentInfo) (*model.Schema, error) {
	if len(table.HeaderRows) == 0 && len(table.Rows) == 0 {
		return nil, eris.New("schema: empty table")
	}

	headerRows := table.HeaderRows
	rows := table.Rows

	// Headerless grid: synthesize positional columns, then let the
	// escalation path try to improve on them.
	if len(headerRows) == 0 {
		headerRows = [][]string{syntheticHeaders(len(rows[0]))}
	}

	cols := ResolveHeaders(headerRows)
	sample := rows
	if len(sample) > a.sampleRows {
		sample = sample[:a.sampleRows]
	}

	for i := range cols {
		values := columnValues(sample, i)
		cols[i].Type, cols[i].NullRatio = inferColumnType(values)
		cols[i].Samples = firstN(values, 5)
	}

	sch := &model.Schema{
		Columns:  cols,
		Strategy: ChooseStrategy(info),
		Sections: info.Sections,
	}

	quality := headerQuality(headerRows[len(headerRows)-1])
	if quality < ambiguityThreshold && a.inf != nil {
		a.escalate(ctx, table, info, sch)
	}

	return sch, nil
}

// escalate asks the inference collaborator for a schema hypothesis and
// overlays confident guesses onto the heuristic columns. Any failure leaves
// the heuristic schema in place, marked degraded.
func (a *Analyzer) escalate(ctx context.Context, table Table, info DocumentInfo, sch *model.Schema) {
	var headers []string
	if len(table.HeaderRows) > 0 {
		headers = table.HeaderRows[len(table.HeaderRows)-1]
	}

	hyp, err := a.inf.GuessSchema(ctx, inference.SchemaRequest{
		Filename: info.Filename,
		Headers:  headers,
		Rows:     firstNRows(table.Rows, 10),
	})
	if err != nil {
		zap.L().Warn("schema: inference escalation failed, using heuristic schema",
			zap.String("table", table.Name),
			zap.Error(err),
		)
		sch.Degraded = true
		return
	}

	for i := range sch.Columns {
		if i >= len(hyp.Columns) {
			break
		}
		guess := hyp.Columns[i]
		if guess.Confidence < 0.5 || guess.Name == "" {
			continue
		}
		sch.Columns[i].SourceName = guess.Name
		sch.Columns[i].NormalizedName = normalizedOrKeep(guess.Name, sch.Columns[i].NormalizedName)
		if ct := columnTypeFromString(guess.Type); ct != "" {
			sch.Columns[i].Type = ct
		}
	}
}

// ChooseStrategy picks the extraction strategy by priority: table-focused
// when relevant tables exist; section-targeted for clearly sectioned
// documents; skip for large structureless documents; full-document otherwise.
func ChooseStrategy(info DocumentInfo) model.ExtractionStrategy {
	switch {
	case info.Tables > 0:
		return model.StrategyTableFocused
	case info.Sections >= 2:
		return model.StrategySectionTargeted
	case info.PageCount > 50:
		return model.StrategySkip
	default:
		return model.StrategyFullDocument
	}
}

func syntheticHeaders(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "column_" + string(rune('a'+i%26))
	}
	return out
}

func columnValues(rows [][]string, col int) []string {
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		if col < len(row) {
			out = append(out, row[col])
		} else {
			out = append(out, "")
		}
	}
	return out
}

func firstN(values []string, n int) []string {
	var out []string
	for _, v := range values {
		if v == "" {
			continue
		}
		out = append(out, v)
		if len(out) == n {
			break
		}
	}
	return out
}

func firstNRows(rows [][]string, n int) [][]string {
	if len(rows) > n {
		return rows[:n]
	}
	return rows
}

func normalizedOrKeep(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return textmatch.NormalizeKey(name)
}

func columnTypeFromString(s string) model.ColumnType {
	switch model.ColumnType(s) {
	case model.ColumnString, model.ColumnInteger, model.ColumnDecimal,
		model.ColumnCurrency, model.ColumnDate, model.ColumnBool, model.ColumnList:
		return model.ColumnType(s)
	default:
		return ""
	}
}
