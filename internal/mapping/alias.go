package mapping

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/stacklens/catalog-ingest/internal/model"
	"github.com/stacklens/catalog-ingest/pkg/textmatch"
)

// AliasDictionary maps normalized source-column names to canonical target
// fields. Entries are curated, multilingual (English and German), and
// matched exactly after normalization.
type AliasDictionary map[string]string

// DefaultAliases is the built-in curated dictionary.
func DefaultAliases() AliasDictionary {
	d := AliasDictionary{}
	add := func(target string, names ...string) {
		for _, n := range names {
			d[textmatch.Normalize(n)] = target
		}
	}

	add(model.FieldName, "name", "product name", "product", "item", "item name",
		"title", "tool", "application", "produktname", "produkt", "bezeichnung", "anwendung")
	add(model.FieldDescription, "description", "details", "summary", "beschreibung", "notizen")
	add(model.FieldCategory, "category", "group", "segment", "kategorie", "gruppe", "bereich")
	add(model.FieldItemType, "type", "item type", "kind", "typ", "art")
	add(model.FieldVendor, "vendor", "provider", "supplier", "manufacturer",
		"anbieter", "hersteller", "lieferant")
	add(model.FieldCostMonthly, "monthly cost", "cost per month", "price per month",
		"monthly price", "kosten pro monat", "monatliche kosten", "preis pro monat")
	add(model.FieldCostAnnual, "annual cost", "yearly cost", "cost per year",
		"annual price", "jährliche kosten", "kosten pro jahr", "jahrespreis")
	add(model.FieldLicenseCount, "licenses", "license count", "seats", "users",
		"number of licenses", "lizenzen", "anzahl lizenzen", "nutzer")
	add(model.FieldRenewalDate, "renewal date", "renewal", "renews on",
		"verlängerungsdatum", "verlängerung")
	add(model.FieldStartDate, "start date", "start", "begin", "startdatum", "beginn")
	add(model.FieldEndDate, "end date", "end", "expiry", "expiration date",
		"enddatum", "ablaufdatum")
	add(model.FieldOwner, "owner", "responsible", "contact", "verantwortlich",
		"verantwortlicher", "ansprechpartner")
	add(model.FieldDepartment, "department", "team", "unit", "abteilung", "fachbereich")
	add(model.FieldStatus, "status", "state", "zustand")
	add(model.FieldPriority, "priority", "prio", "priorität")
	add(model.FieldBudget, "budget", "budget amount", "allocated budget", "budgetrahmen")
	add(model.FieldTags, "tags", "labels", "keywords", "schlagworte", "stichworte")
	add(model.FieldIdentifier, "id", "identifier", "sku", "article number",
		"artikelnummer", "kennung")
	add(model.FieldURL, "url", "link", "website", "webseite", "homepage")
	add(model.FieldNotes, "notes", "comments", "remarks", "anmerkungen", "kommentar")

	// Bare "price"/"cost" default to the monthly cost column.
	add(model.FieldCostMonthly, "price", "cost", "preis", "kosten")

	return d
}

// LoadAliases reads an alias dictionary from a YAML file mapping target
// field -> list of source names, merged over the built-in defaults.
func LoadAliases(path string) (AliasDictionary, error) {
	d := DefaultAliases()
	if path == "" {
		return d, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "mapping: read alias file %s", path)
	}

	var raw map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrap(err, "mapping: parse alias file")
	}

	for target, names := range raw {
		for _, n := range names {
			d[textmatch.Normalize(n)] = target
		}
	}
	return d, nil
}

// Lookup returns the target field for a normalized column name.
func (d AliasDictionary) Lookup(column string) (string, bool) {
	target, ok := d[textmatch.Normalize(column)]
	return target, ok
}

// AliasesFor returns all source names mapped to the given target field.
func (d AliasDictionary) AliasesFor(target string) []string {
	var out []string
	for name, t := range d {
		if t == target {
			out = append(out, name)
		}
	}
	return out
}
