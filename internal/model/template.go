package model

import "time"

// TemplateSignature identifies a recurring document shape for one tenant.
type TemplateSignature struct {
	ColumnPatterns  []string `json:"column_patterns"`  // regex per expected column
	HeaderKeywords  []string `json:"header_keywords"`  // normalized keywords
	FilenamePattern string   `json:"filename_pattern"` // regex over filename
}

// ExtractionTemplate caches learned field mappings for a recurring document
// shape. Templates are tenant-scoped.
type ExtractionTemplate struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenant_id"`
	Name      string            `json:"name"`
	Signature TemplateSignature `json:"signature"`
	Mappings  []FieldMapping    `json:"mappings"`

	UsageCount    int     `json:"usage_count"`
	AccuracySum   float64 `json:"accuracy_sum"`
	AccuracyCount int     `json:"accuracy_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Accuracy returns the observed mean accuracy, or 0 with no samples.
func (t *ExtractionTemplate) Accuracy() float64 {
	if t.AccuracyCount == 0 {
		return 0
	}
	return t.AccuracySum / float64(t.AccuracyCount)
}

// Correction captures one human correction of an extracted item. Corrections
// feed the confidence adjuster and the pattern learner.
type Correction struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	SessionID string    `json:"session_id,omitempty"`
	Original  Item      `json:"original"`
	Corrected Item      `json:"corrected"`
	Changed   []string  `json:"changed_fields"`
	Context   string    `json:"context,omitempty"` // document format / industry hints
	CreatedAt time.Time `json:"created_at"`
}
