package extract

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// ReadXLSX parses workbook bytes into one table per non-empty sheet.
func ReadXLSX(data []byte) ([]*Table, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "extract: open xlsx")
	}

	var tables []*Table
	for _, sheet := range f.Sheets {
		rows := sheetRows(sheet)
		if len(rows) == 0 {
			continue
		}
		t := Split(rows)
		t.Sheet = sheet.Name
		tables = append(tables, t)
	}
	if len(tables) == 0 {
		return nil, eris.New("extract: workbook has no data")
	}
	return tables, nil
}

func sheetRows(sheet *xlsx.Sheet) [][]string {
	var rows [][]string
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		empty := true
		for j, cell := range row.Cells {
			cells[j] = cell.String()
			if cells[j] != "" {
				empty = false
			}
		}
		if empty {
			continue
		}
		rows = append(rows, cells)
	}
	return rows
}
