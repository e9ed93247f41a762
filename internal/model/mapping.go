package model

// ResolutionMethod identifies which cascade tier resolved a mapping.
type ResolutionMethod string

const (
	ResolutionTemplate  ResolutionMethod = "template"
	ResolutionAlias     ResolutionMethod = "alias"
	ResolutionFuzzy     ResolutionMethod = "fuzzy"
	ResolutionInference ResolutionMethod = "inference"
)

// TransformKind names a value transform attached to a field mapping.
type TransformKind string

const (
	TransformCurrency  TransformKind = "currency"
	TransformDate      TransformKind = "date"
	TransformList      TransformKind = "list"
	TransformEnum      TransformKind = "enum"
	TransformTrim      TransformKind = "trim"
	TransformInteger   TransformKind = "integer"
)

// FieldMapping resolves one source column onto a canonical target field.
type FieldMapping struct {
	SourceColumn string           `json:"source_column"`
	TargetField  string           `json:"target_field"`
	Confidence   float64          `json:"confidence"`
	Method       ResolutionMethod `json:"method"`
	Transforms   []TransformKind  `json:"transforms,omitempty"`
}

// MappingResult is the cascade output for one document schema.
type MappingResult struct {
	Mappings        []FieldMapping `json:"mappings"`
	UnmappedColumns []string       `json:"unmapped_columns,omitempty"`
}

// ByTarget returns the mapping claiming the given target field, or nil.
func (r *MappingResult) ByTarget(target string) *FieldMapping {
	for i := range r.Mappings {
		if r.Mappings[i].TargetField == target {
			return &r.Mappings[i]
		}
	}
	return nil
}
