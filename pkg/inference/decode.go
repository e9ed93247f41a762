package inference

import (
	"encoding/json"
	"strings"
)

// cleanJSON strips markdown fences and leading/trailing prose so the
// remaining text is the innermost JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}

// decode unmarshals a service response into out. On failure it returns a
// MalformedError carrying the raw text; no string salvage is attempted.
func decode(operation, text string, out any) error {
	cleaned := cleanJSON(text)
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return &MalformedError{Operation: operation, RawText: text}
	}
	return nil
}
