package extract

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// Envelope is the optional wrapper object around a JSON item array.
type Envelope struct {
	CatalogName string `json:"catalog_name"`
	Items       []map[string]any
}

// ReadJSON parses either a bare array of objects or an envelope object
// holding one. The records are flattened into a table so the same schema
// analysis and mapping cascade applies to JSON documents.
func ReadJSON(data []byte) (*Envelope, *Table, error) {
	env, err := parseEnvelope(data)
	if err != nil {
		return nil, nil, err
	}
	if len(env.Items) == 0 {
		return nil, nil, eris.New("extract: json document has no items")
	}

	// Column order is the union of keys, first-seen order with a sorted
	// tail for keys missing from the first record.
	var columns []string
	seen := map[string]bool{}
	for k := range env.Items[0] {
		columns = append(columns, k)
		seen[k] = true
	}
	sort.Strings(columns)
	var tail []string
	for _, rec := range env.Items[1:] {
		for k := range rec {
			if !seen[k] {
				tail = append(tail, k)
				seen[k] = true
			}
		}
	}
	sort.Strings(tail)
	columns = append(columns, tail...)

	table := &Table{HeaderRows: [][]string{columns}}
	for _, rec := range env.Items {
		row := make([]string, len(columns))
		for i, col := range columns {
			row[i] = stringify(rec[col])
		}
		table.Rows = append(table.Rows, row)
	}
	return env, table, nil
}

func parseEnvelope(data []byte) (*Envelope, error) {
	var arr []map[string]any
	if err := json.Unmarshal(data, &arr); err == nil {
		return &Envelope{Items: arr}, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, eris.Wrap(err, "extract: parse json")
	}

	env := &Envelope{}
	if raw, ok := obj["catalog_name"]; ok {
		_ = json.Unmarshal(raw, &env.CatalogName)
	}
	// The item array may live under any key; take the first that decodes.
	var keys []string
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		var items []map[string]any
		if err := json.Unmarshal(obj[k], &items); err == nil && len(items) > 0 {
			env.Items = items
			return env, nil
		}
	}
	return nil, eris.New("extract: json object holds no item array")
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		s := fmt.Sprintf("%f", t)
		s = strings.TrimRight(s, "0")
		return strings.TrimSuffix(s, ".")
	case bool:
		if t {
			return "true"
		}
		return "false"
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = stringify(e)
		}
		return strings.Join(parts, ", ")
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}
