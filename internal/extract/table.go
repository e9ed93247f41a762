// Package extract turns detected documents into extracted catalog items.
// Format readers produce tables or section records; the row extractor
// applies resolved field mappings and value transforms to build items with
// per-field confidence and provenance.
package extract

import "strings"

// Table is a rectangular slice of a source document. HeaderRows holds the
// raw header grid before resolution; Rows are data rows only.
type Table struct {
	Sheet      string
	HeaderRows [][]string
	Rows       [][]string
}

// headerRowCount guesses how many leading rows are headers. A row is
// header-like while it has no cell that parses as a pure number and the
// following row exists.
func headerRowCount(rows [][]string) int {
	count := 0
	for i, row := range rows {
		if i >= 3 || i == len(rows)-1 {
			break
		}
		if rowLooksNumeric(row) {
			break
		}
		count++
		// One header row is the norm. Only continue when the next row
		// still has no numeric cells and has gaps typical of merged cells.
		if !hasGaps(row) {
			break
		}
	}
	if count == 0 && len(rows) > 0 {
		count = 1
	}
	return count
}

func rowLooksNumeric(row []string) bool {
	for _, cell := range row {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		numeric := true
		for _, r := range cell {
			if (r < '0' || r > '9') && r != '.' && r != ',' && r != '-' && r != '€' && r != '$' {
				numeric = false
				break
			}
		}
		if numeric {
			return true
		}
	}
	return false
}

func hasGaps(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) == "" {
			return true
		}
	}
	return false
}

// Split separates a raw row grid into header rows and data rows.
func Split(rows [][]string) *Table {
	if len(rows) == 0 {
		return &Table{}
	}
	n := headerRowCount(rows)
	return &Table{HeaderRows: rows[:n], Rows: rows[n:]}
}
