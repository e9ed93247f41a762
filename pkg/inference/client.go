// Package inference isolates every call to the external inference service
// behind one client interface. The deterministic pipeline core never talks
// to the service directly; each call site has a bounded timeout and a
// heuristic fallback for malformed or failed responses.
package inference

import (
	"context"
	"fmt"
)

// Client defines the inference operations used by the ingestion core.
// Implementations must run at temperature 0; duplicate arbitration relies on
// deterministic output for identical inputs.
type Client interface {
	// GuessSchema proposes column names and types for ambiguous structure.
	GuessSchema(ctx context.Context, req SchemaRequest) (*SchemaHypothesis, error)
	// SuggestMapping proposes a canonical target field for one column.
	SuggestMapping(ctx context.Context, req MappingRequest) (*MappingSuggestion, error)
	// ConfirmDuplicate arbitrates a candidate duplicate pair.
	ConfirmDuplicate(ctx context.Context, req DuplicateRequest) (*DuplicateVerdict, error)
	// RecognizeDocument extracts text from a scanned page image.
	RecognizeDocument(ctx context.Context, req VisionRequest) (*RecognizedText, error)
}

// SchemaRequest carries sampled rows for schema hypothesis.
type SchemaRequest struct {
	Filename string
	Headers  []string
	Rows     [][]string
	Context  string // session learning summary, may be empty
}

// SchemaHypothesis is the service's structured schema guess.
type SchemaHypothesis struct {
	Columns []ColumnGuess `json:"columns"`
}

// ColumnGuess is one proposed column.
type ColumnGuess struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// MappingRequest carries one unresolved column with sample values.
type MappingRequest struct {
	Column       string
	Samples      []string
	TargetFields []string
	Context      string
}

// MappingSuggestion is the proposed target field for a column.
type MappingSuggestion struct {
	TargetField string  `json:"target_field"`
	Confidence  float64 `json:"confidence"`
	Reasoning   string  `json:"reasoning,omitempty"`
}

// DuplicateRequest carries a candidate pair in the arbitration band.
type DuplicateRequest struct {
	ItemA      map[string]any
	ItemB      map[string]any
	Similarity float64
}

// DuplicateVerdict is the arbitration outcome.
type DuplicateVerdict struct {
	Duplicate  bool    `json:"duplicate"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

// VisionRequest carries a page image for text recognition.
type VisionRequest struct {
	ImageData []byte
	MediaType string // "image/png", "image/jpeg"
	Page      int
}

// RecognizedText is the OCR result for one page.
type RecognizedText struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// MalformedError reports a response the service returned that could not be
// decoded into the expected contract. Callers handle it deterministically by
// taking the heuristic path; the raw text is retained for diagnostics only,
// never re-parsed.
type MalformedError struct {
	Operation string
	RawText   string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("inference: malformed %s response (%d bytes)", e.Operation, len(e.RawText))
}

// IsMalformed reports whether err is a MalformedError.
func IsMalformed(err error) bool {
	_, ok := err.(*MalformedError)
	return ok
}
