package extract

import (
	"bufio"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// SectionRecord is one key-value block parsed from free text.
type SectionRecord struct {
	Section string
	Fields  map[string]string
}

// ReadText parses loosely structured text into section records. A short
// line without a colon opens a section; "key: value" lines accumulate into
// the current record; a blank line closes it.
func ReadText(data []byte) ([]SectionRecord, error) {
	var records []SectionRecord
	var current map[string]string
	section := ""

	flush := func() {
		if len(current) > 0 {
			records = append(records, SectionRecord{Section: section, Fields: current})
		}
		current = nil
	}

	sc := bufio.NewScanner(strings.NewReader(string(data)))
	sc.Buffer(make([]byte, 1024*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			flush()
			continue
		}

		key, value, found := strings.Cut(line, ":")
		if found && strings.TrimSpace(key) != "" && len(strings.TrimSpace(key)) < 60 {
			if current == nil {
				current = map[string]string{}
			}
			current[strings.TrimSpace(key)] = strings.TrimSpace(value)
			continue
		}

		if len(line) < 80 {
			flush()
			section = strings.TrimRight(line, ":")
		}
	}
	flush()

	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "extract: scan text")
	}
	if len(records) == 0 {
		return nil, eris.New("extract: no records in text document")
	}
	return records, nil
}

// SectionTable flattens section records into a table. The section name is
// carried as a synthetic Category column so it can map onto category.
func SectionTable(records []SectionRecord) *Table {
	var columns []string
	seen := map[string]bool{}
	hasSection := false
	for _, rec := range records {
		if rec.Section != "" {
			hasSection = true
		}
		for k := range rec.Fields {
			if !seen[k] {
				seen[k] = true
				columns = append(columns, k)
			}
		}
	}
	sort.Strings(columns)
	if hasSection && !seen["Category"] {
		columns = append(columns, "Category")
	} else {
		hasSection = false
	}

	table := &Table{HeaderRows: [][]string{columns}}
	for _, rec := range records {
		row := make([]string, len(columns))
		for i, col := range columns {
			if hasSection && col == "Category" && i == len(columns)-1 {
				row[i] = rec.Section
				continue
			}
			row[i] = rec.Fields[col]
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}
