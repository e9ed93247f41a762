package mapping

import (
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/stacklens/catalog-ingest/internal/model"
	"github.com/stacklens/catalog-ingest/pkg/textmatch"
)

// TransformOptions configures value transforms.
type TransformOptions struct {
	DateFormats    []string
	ListDelimiters []string
}

// DefaultTransformOptions mirror the config defaults.
func DefaultTransformOptions() TransformOptions {
	return TransformOptions{
		DateFormats: []string{
			"2006-01-02", "02.01.2006", "01/02/2006", "2006/01/02",
			"Jan 2, 2006", "2 Jan 2006", time.RFC3339,
		},
		ListDelimiters: []string{",", ";", "|", "/"},
	}
}

// Apply runs the ordered transform chain over a raw string value. The
// returned value is typed according to the final transform.
func Apply(raw string, kinds []model.TransformKind, opts TransformOptions) (any, error) {
	var value any = strings.TrimSpace(raw)
	for _, kind := range kinds {
		s, _ := value.(string)
		var err error
		switch kind {
		case model.TransformTrim:
			value = strings.Join(strings.Fields(s), " ")
		case model.TransformCurrency:
			value, err = ParseCurrency(s)
		case model.TransformDate:
			value, err = ParseDate(s, opts.DateFormats)
		case model.TransformList:
			value = SplitList(s, opts.ListDelimiters)
		case model.TransformInteger:
			value, err = parseInteger(s)
		case model.TransformEnum:
			value = NormalizeEnum(s)
		default:
			err = eris.Errorf("mapping: unknown transform %q", kind)
		}
		if err != nil {
			return nil, err
		}
	}
	return value, nil
}

var currencySymbols = strings.NewReplacer("€", "", "$", "", "£", "", "EUR", "", "USD", "", "GBP", "", "CHF", "", " ", "", " ", "")

// ParseCurrency parses an amount under either decimal-separator convention.
// The convention is detected from the trailing-digit pattern: a final '.'
// or ',' followed by one or two digits is the decimal separator, and the
// other character is treated as a thousands separator. k/M suffixes apply
// multipliers of 1e3/1e6.
func ParseCurrency(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, eris.New("mapping: empty currency value")
	}

	multiplier := 1.0
	switch {
	case strings.HasSuffix(s, "k"), strings.HasSuffix(s, "K"):
		multiplier = 1e3
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "M"):
		multiplier = 1e6
		s = s[:len(s)-1]
	case strings.HasSuffix(strings.ToLower(s), "mio"):
		multiplier = 1e6
		s = s[:len(s)-3]
	}

	s = strings.TrimSpace(currencySymbols.Replace(s))
	if s == "" {
		return 0, eris.New("mapping: no digits in currency value")
	}

	lastDot := strings.LastIndexByte(s, '.')
	lastComma := strings.LastIndexByte(s, ',')

	var decimalSep byte
	switch {
	case lastDot < 0 && lastComma < 0:
		// integer amount
	case lastComma > lastDot:
		if trailingDigits(s, lastComma) <= 2 {
			decimalSep = ','
		}
	default:
		if trailingDigits(s, lastDot) <= 2 {
			decimalSep = '.'
		}
	}

	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9', c == '-':
			b.WriteByte(c)
		case c == decimalSep:
			b.WriteByte('.')
		case c == '.' || c == ',':
			// thousands separator, dropped
		default:
			return 0, eris.Errorf("mapping: unparseable currency %q", s)
		}
	}

	v, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return 0, eris.Wrapf(err, "mapping: parse currency %q", s)
	}
	return v * multiplier, nil
}

// trailingDigits counts digits after the separator at position sep.
func trailingDigits(s string, sep int) int {
	var n int
	for i := sep + 1; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			break
		}
		n++
	}
	return n
}

// ParseDate tries the explicit formats in order, then a generic fallback
// over common layouts.
func ParseDate(s string, formats []string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range formats {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	for _, layout := range []string{
		"2006-01-02", "02.01.2006", "01/02/2006", "January 2, 2006",
		"2006-01-02 15:04:05", time.RFC3339, time.RFC1123,
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, eris.Errorf("mapping: unparseable date %q", s)
}

// SplitList splits a value on any of the configured delimiters, trimming
// and dropping empty entries.
func SplitList(s string, delimiters []string) []string {
	if len(delimiters) == 0 {
		delimiters = []string{",", ";", "|", "/"}
	}
	parts := []string{s}
	for _, d := range delimiters {
		var next []string
		for _, p := range parts {
			next = append(next, strings.Split(p, d)...)
		}
		parts = next
	}
	var out []string
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func parseInteger(s string) (int, error) {
	cleaned := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' || r == '-' {
			return r
		}
		return -1
	}, s)
	if cleaned == "" {
		return 0, eris.Errorf("mapping: unparseable integer %q", s)
	}
	n, err := strconv.Atoi(cleaned)
	if err != nil {
		return 0, eris.Wrapf(err, "mapping: parse integer %q", s)
	}
	return n, nil
}

// enumAliases normalizes locale variants onto canonical enum values for
// status and priority fields.
var enumAliases = map[string]string{
	// status
	"active": "active", "aktiv": "active", "live": "active", "in use": "active",
	"inactive": "inactive", "inaktiv": "inactive", "retired": "inactive",
	"stillgelegt": "inactive", "deprecated": "inactive",
	"planned": "planned", "geplant": "planned", "evaluation": "planned",
	"in evaluierung": "planned", "pilot": "planned",
	// priority
	"high": "high", "hoch": "high", "critical": "high", "kritisch": "high",
	"medium": "medium", "mittel": "medium", "normal": "medium",
	"low": "low", "niedrig": "low", "gering": "low",
}

// NormalizeEnum maps a locale-specific enum variant to its canonical value.
// Unknown values pass through normalized.
func NormalizeEnum(s string) string {
	n := textmatch.Normalize(s)
	if canonical, ok := enumAliases[n]; ok {
		return canonical
	}
	return n
}
