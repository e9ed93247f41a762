// Package model defines the canonical data model shared across the
// ingestion pipeline: detected formats, schemas, field mappings, extracted
// items, duplicate groups, relationships, sessions and templates.
package model

// Format is the structural format of an ingested document.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatXLSX    Format = "xlsx"
	FormatJSON    Format = "json"
	FormatXML     Format = "xml"
	FormatPDF     Format = "pdf"
	FormatImage   Format = "image"
	FormatText    Format = "text"
	FormatUnknown Format = "unknown"
)

// Language is the detected document language.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageGerman  Language = "de"
	LanguageMixed   Language = "mixed"
)

// DetectedFormat is the immutable result of format detection for one document.
type DetectedFormat struct {
	Format     Format   `json:"format"`
	Confidence float64  `json:"confidence"`
	Encoding   string   `json:"encoding"`
	Delimiter  rune     `json:"delimiter,omitempty"`
	PageCount  int      `json:"page_count,omitempty"`
	Scanned    bool     `json:"scanned,omitempty"`
	Language   Language `json:"language"`
}

// ColumnType is the statistically inferred type of a source column.
type ColumnType string

const (
	ColumnString   ColumnType = "string"
	ColumnInteger  ColumnType = "integer"
	ColumnDecimal  ColumnType = "decimal"
	ColumnCurrency ColumnType = "currency"
	ColumnDate     ColumnType = "date"
	ColumnBool     ColumnType = "bool"
	ColumnList     ColumnType = "list"
)

// SchemaColumn describes one source column after structure analysis.
type SchemaColumn struct {
	SourceName     string     `json:"source_name"`
	NormalizedName string     `json:"normalized_name"`
	Type           ColumnType `json:"type"`
	Samples        []string   `json:"samples,omitempty"`
	NullRatio      float64    `json:"null_ratio"`
	HeaderLevel    int        `json:"header_level,omitempty"`
	ParentPath     string     `json:"parent_path,omitempty"`
}

// ExtractionStrategy picks how a document is walked during extraction.
type ExtractionStrategy string

const (
	StrategyTableFocused    ExtractionStrategy = "table_focused"
	StrategySectionTargeted ExtractionStrategy = "section_targeted"
	StrategyFullDocument    ExtractionStrategy = "full_document"
	StrategySkip            ExtractionStrategy = "skip"
)

// Schema is the output of structure analysis for one document.
type Schema struct {
	Columns  []SchemaColumn     `json:"columns"`
	Strategy ExtractionStrategy `json:"strategy"`
	Sections int                `json:"sections,omitempty"`
	// Degraded marks a heuristic fallback schema produced after the
	// inference collaborator failed or returned malformed output.
	Degraded bool `json:"degraded,omitempty"`
}

// Column returns the schema column with the given normalized name, or nil.
func (s *Schema) Column(normalized string) *SchemaColumn {
	for i := range s.Columns {
		if s.Columns[i].NormalizedName == normalized {
			return &s.Columns[i]
		}
	}
	return nil
}
