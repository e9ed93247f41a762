package detect

import (
	"strings"

	"github.com/stacklens/catalog-ingest/internal/model"
)

// Keyword sets for language classification. Chosen from header vocabulary
// common in business catalogs rather than general prose.
var (
	englishKeywords = []string{
		"name", "price", "cost", "category", "vendor", "description",
		"quantity", "license", "renewal", "date", "owner", "department",
		"monthly", "annual", "status", "product", "service", "total",
	}
	germanKeywords = []string{
		"name", "preis", "kosten", "kategorie", "anbieter", "beschreibung",
		"anzahl", "lizenz", "verlängerung", "datum", "verantwortlich",
		"abteilung", "monatlich", "jährlich", "status", "produkt", "dienst",
		"gesamt", "und", "der", "die", "das", "für", "pro",
	}
)

// detectLanguage classifies by keyword-frequency ratio. A >2x skew toward
// one language's keyword set wins; anything closer is "mixed".
func detectLanguage(data []byte) model.Language {
	sample := strings.ToLower(string(data))
	if len(sample) > 4096 {
		sample = sample[:4096]
	}

	var en, de int
	for _, kw := range englishKeywords {
		en += strings.Count(sample, kw)
	}
	for _, kw := range germanKeywords {
		de += strings.Count(sample, kw)
	}

	switch {
	case en == 0 && de == 0:
		return model.LanguageMixed
	case float64(en) > 2*float64(de):
		return model.LanguageEnglish
	case float64(de) > 2*float64(en):
		return model.LanguageGerman
	default:
		return model.LanguageMixed
	}
}
