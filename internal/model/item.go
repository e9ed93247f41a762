package model

import "time"

// Provenance records how a field value was derived.
type Provenance string

const (
	ProvenanceExplicit Provenance = "explicit" // read directly from the source
	ProvenanceInferred Provenance = "inferred" // produced by transform or inference
	ProvenanceDefault  Provenance = "default"  // low-confidence placeholder
	ProvenanceLearned  Provenance = "learned"  // substituted from a learned pattern
)

// Field is a single extracted value with confidence and provenance.
type Field struct {
	Value       any        `json:"value"`
	Confidence  float64    `json:"confidence"`
	Provenance  Provenance `json:"provenance"`
	NeedsReview bool       `json:"needs_review,omitempty"`
	Raw         string     `json:"raw,omitempty"`
}

// Canonical target field keys. The mapping cascade resolves source columns
// onto exactly these keys; no field is claimed twice within one document.
const (
	FieldName         = "name"
	FieldDescription  = "description"
	FieldCategory     = "category"
	FieldItemType     = "item_type"
	FieldVendor       = "vendor"
	FieldCostMonthly  = "cost_monthly"
	FieldCostAnnual   = "cost_annual"
	FieldLicenseCount = "license_count"
	FieldRenewalDate  = "renewal_date"
	FieldStartDate    = "start_date"
	FieldEndDate      = "end_date"
	FieldOwner        = "owner"
	FieldDepartment   = "department"
	FieldStatus       = "status"
	FieldPriority     = "priority"
	FieldBudget       = "budget"
	FieldTags         = "tags"
	FieldIdentifier   = "identifier"
	FieldURL          = "url"
	FieldNotes        = "notes"
)

// CanonicalFields lists every field key the cascade may claim.
var CanonicalFields = []string{
	FieldName, FieldDescription, FieldCategory, FieldItemType, FieldVendor,
	FieldCostMonthly, FieldCostAnnual, FieldLicenseCount, FieldRenewalDate,
	FieldStartDate, FieldEndDate, FieldOwner, FieldDepartment, FieldStatus,
	FieldPriority, FieldBudget, FieldTags, FieldIdentifier, FieldURL,
	FieldNotes,
}

// SourceLocation points back at where in the source an item came from.
type SourceLocation struct {
	Document string `json:"document"`
	Sheet    string `json:"sheet,omitempty"`
	Row      int    `json:"row,omitempty"`
	Page     int    `json:"page,omitempty"`
	Section  string `json:"section,omitempty"`
}

// Item is one extracted catalog item. Fields are keyed by canonical field
// key; every value carries its own confidence and provenance.
type Item struct {
	ID       string           `json:"id"`
	TenantID string           `json:"tenant_id"`
	Fields   map[string]Field `json:"fields"`
	Source   SourceLocation   `json:"source"`
	Method   string           `json:"method"` // extraction strategy used

	Violations []Violation `json:"violations,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Get returns the field for key and whether it is present.
func (it *Item) Get(key string) (Field, bool) {
	f, ok := it.Fields[key]
	return f, ok
}

// StringValue returns the field value as a string, or "" when absent or not
// a string.
func (it *Item) StringValue(key string) string {
	f, ok := it.Fields[key]
	if !ok {
		return ""
	}
	s, _ := f.Value.(string)
	return s
}

// ListValue returns the field value as a string slice, nil when absent or
// not list-shaped. Extraction stores lists as []string; []any survives a
// JSON round trip.
func (it *Item) ListValue(key string) []string {
	f, ok := it.Fields[key]
	if !ok {
		return nil
	}
	switch v := f.Value.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Clone returns a deep copy of the item. Fields and Violations get fresh
// containers so the copy can outlive any lock guarding the original.
func (it Item) Clone() Item {
	out := it
	if it.Fields != nil {
		out.Fields = make(map[string]Field, len(it.Fields))
		for k, f := range it.Fields {
			out.Fields[k] = f
		}
	}
	if it.Violations != nil {
		out.Violations = append([]Violation(nil), it.Violations...)
	}
	return out
}

// FloatValue returns the field value as a float64 and whether the field is
// present with a numeric value.
func (it *Item) FloatValue(key string) (float64, bool) {
	f, ok := it.Fields[key]
	if !ok {
		return 0, false
	}
	switch n := f.Value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// OverallConfidence is the mean of the item's field confidences, 0 for an
// item with no fields.
func (it *Item) OverallConfidence() float64 {
	if len(it.Fields) == 0 {
		return 0
	}
	var sum float64
	for _, f := range it.Fields {
		sum += f.Confidence
	}
	return sum / float64(len(it.Fields))
}

// FieldsNeedingReview returns the keys of all fields flagged for review,
// in no particular order.
func (it *Item) FieldsNeedingReview() []string {
	var keys []string
	for k, f := range it.Fields {
		if f.NeedsReview {
			keys = append(keys, k)
		}
	}
	return keys
}

// HasErrors reports whether the item carries any error-severity violation.
func (it *Item) HasErrors() bool {
	for _, v := range it.Violations {
		if v.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Severity grades a validation violation.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Violation is one failed validation rule on an item field.
type Violation struct {
	FieldKey string   `json:"field_key"`
	Rule     string   `json:"rule"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	// AutoFixed is set when the engine repaired the value; the violation is
	// retained for audit but no longer blocks acceptance.
	AutoFixed bool `json:"auto_fixed,omitempty"`
}
