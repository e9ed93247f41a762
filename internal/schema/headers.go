package schema

import (
	"strings"

	"github.com/stacklens/catalog-ingest/internal/model"
	"github.com/stacklens/catalog-ingest/pkg/textmatch"
)

// ResolveHeaders flattens one or more header rows into schema columns.
// Multi-level headers concatenate the parent path ("Costs > Monthly");
// merged cells are propagated so every covered column sees the value.
func ResolveHeaders(headerRows [][]string) []model.SchemaColumn {
	if len(headerRows) == 0 {
		return nil
	}

	width := 0
	for _, row := range headerRows {
		if len(row) > width {
			width = len(row)
		}
	}

	// Propagate merged cells: an empty cell in an upper level inherits the
	// value to its left, which is how spreadsheet readers surface merges.
	levels := make([][]string, len(headerRows))
	for lvl, row := range headerRows {
		cells := make([]string, width)
		copy(cells, row)
		if lvl < len(headerRows)-1 {
			for i := 1; i < width; i++ {
				if strings.TrimSpace(cells[i]) == "" {
					cells[i] = cells[i-1]
				}
			}
		}
		levels[lvl] = cells
	}

	leaf := len(levels) - 1
	cols := make([]model.SchemaColumn, 0, width)
	for i := 0; i < width; i++ {
		name := strings.TrimSpace(levels[leaf][i])

		var parents []string
		for lvl := 0; lvl < leaf; lvl++ {
			p := strings.TrimSpace(levels[lvl][i])
			if p != "" && !strings.EqualFold(p, name) {
				parents = append(parents, p)
			}
		}

		source := name
		if len(parents) > 0 {
			source = strings.Join(append(parents, name), " > ")
		}

		cols = append(cols, model.SchemaColumn{
			SourceName:     source,
			NormalizedName: textmatch.NormalizeKey(source),
			HeaderLevel:    leaf,
			ParentPath:     strings.Join(parents, " > "),
		})
	}
	return cols
}

// headerQuality scores how label-like a candidate header row is: the ratio
// of cells that are non-empty, non-numeric and reasonably short.
func headerQuality(row []string) float64 {
	if len(row) == 0 {
		return 0
	}
	var good int
	for _, cell := range row {
		cell = strings.TrimSpace(cell)
		if cell == "" || len(cell) > 64 {
			continue
		}
		if looksNumeric(cell) {
			continue
		}
		good++
	}
	return float64(good) / float64(len(row))
}
