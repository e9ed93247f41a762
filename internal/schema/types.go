package schema

import (
	"strconv"
	"strings"
	"time"

	"github.com/stacklens/catalog-ingest/internal/model"
)

var dateLayouts = []string{
	"2006-01-02", "02.01.2006", "01/02/2006", "2006/01/02",
	"Jan 2, 2006", "2 Jan 2006", time.RFC3339,
}

var currencyMarkers = []string{"€", "$", "£", "EUR", "USD", "GBP", "CHF"}

// inferColumnType classifies a column from its sampled values. Empty values
// are excluded; the dominant interpretation above 80% of non-null samples
// wins, with string as the fallback.
func inferColumnType(samples []string) (model.ColumnType, float64) {
	var nonNull []string
	for _, s := range samples {
		if t := strings.TrimSpace(s); t != "" {
			nonNull = append(nonNull, t)
		}
	}
	nullRatio := 0.0
	if len(samples) > 0 {
		nullRatio = float64(len(samples)-len(nonNull)) / float64(len(samples))
	}
	if len(nonNull) == 0 {
		return model.ColumnString, nullRatio
	}

	counts := map[model.ColumnType]int{}
	for _, s := range nonNull {
		counts[classifyValue(s)]++
	}

	threshold := (len(nonNull)*8 + 9) / 10 // ceil(0.8n)
	for _, ct := range []model.ColumnType{
		model.ColumnCurrency, model.ColumnDate, model.ColumnBool,
		model.ColumnInteger, model.ColumnDecimal, model.ColumnList,
	} {
		// Integers also satisfy decimal.
		n := counts[ct]
		if ct == model.ColumnDecimal {
			n += counts[model.ColumnInteger]
		}
		if n >= threshold {
			return ct, nullRatio
		}
	}
	return model.ColumnString, nullRatio
}

func classifyValue(s string) model.ColumnType {
	for _, m := range currencyMarkers {
		if strings.Contains(s, m) {
			return model.ColumnCurrency
		}
	}

	lower := strings.ToLower(s)
	switch lower {
	case "true", "false", "yes", "no", "ja", "nein", "wahr", "falsch":
		return model.ColumnBool
	}

	if _, err := strconv.ParseInt(strings.ReplaceAll(s, " ", ""), 10, 64); err == nil {
		return model.ColumnInteger
	}
	if _, err := strconv.ParseFloat(strings.NewReplacer(",", ".", " ", "").Replace(s), 64); err == nil {
		return model.ColumnDecimal
	}

	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return model.ColumnDate
		}
	}

	if strings.Count(s, ";") >= 2 || strings.Count(s, "|") >= 1 {
		return model.ColumnList
	}

	return model.ColumnString
}

func looksNumeric(s string) bool {
	switch classifyValue(s) {
	case model.ColumnInteger, model.ColumnDecimal, model.ColumnCurrency:
		return true
	default:
		return false
	}
}
