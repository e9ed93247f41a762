// Package detect classifies raw document bytes into a structural format,
// encoding and language before any downstream stage runs.
package detect

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/stacklens/catalog-ingest/internal/model"
)

// ErrFormatUndetected is returned when no format can be established. It is
// blocking: no downstream stage can proceed for the document.
var ErrFormatUndetected = eris.New("detect: format undetected")

type signature struct {
	prefix []byte
	format model.Format
}

var signatures = []signature{
	{[]byte("%PDF"), model.FormatPDF},
	{[]byte{0x50, 0x4B, 0x03, 0x04}, model.FormatXLSX}, // zip container
	{[]byte{0x89, 0x50, 0x4E, 0x47}, model.FormatImage}, // png
	{[]byte{0xFF, 0xD8, 0xFF}, model.FormatImage},       // jpeg
	{[]byte{0x49, 0x49, 0x2A, 0x00}, model.FormatImage}, // tiff LE
	{[]byte{0x4D, 0x4D, 0x00, 0x2A}, model.FormatImage}, // tiff BE
}

// Detect classifies data into a DetectedFormat. filename may be empty; the
// extension is only a low-confidence tiebreaker, never authoritative.
func Detect(data []byte, filename string) (*model.DetectedFormat, error) {
	if len(data) == 0 {
		return nil, eris.Wrap(ErrFormatUndetected, "empty input")
	}

	encoding, body := detectEncoding(data)

	// Signature bytes win outright.
	for _, sig := range signatures {
		if bytes.HasPrefix(body, sig.prefix) {
			df := &model.DetectedFormat{
				Format:     sig.format,
				Confidence: 0.95,
				Encoding:   encoding,
				Language:   model.LanguageMixed,
			}
			if sig.format == model.FormatPDF {
				df.PageCount = countPDFPages(body)
				df.Scanned = looksScanned(body)
			}
			if sig.format == model.FormatXLSX && !isXLSXContainer(body) {
				// A bare zip that is not a workbook stays unknown here;
				// the extension tiebreaker below may still claim it.
				df.Confidence = 0.75
			}
			df.Language = detectLanguage(body)
			return df, nil
		}
	}

	text := strings.TrimSpace(string(body))

	// Content-pattern matching.
	if strings.HasPrefix(text, "{") || strings.HasPrefix(text, "[") {
		return &model.DetectedFormat{
			Format:     model.FormatJSON,
			Confidence: 0.9,
			Encoding:   encoding,
			Language:   detectLanguage(body),
		}, nil
	}
	if strings.HasPrefix(text, "<?xml") || strings.HasPrefix(text, "<") {
		return &model.DetectedFormat{
			Format:     model.FormatXML,
			Confidence: 0.85,
			Encoding:   encoding,
			Language:   detectLanguage(body),
		}, nil
	}

	if delim, conf := detectDelimiter(text); delim != 0 {
		return &model.DetectedFormat{
			Format:     model.FormatCSV,
			Confidence: conf,
			Encoding:   encoding,
			Delimiter:  delim,
			Language:   detectLanguage(body),
		}, nil
	}

	// Filename extension as low-confidence tiebreaker.
	if f := formatFromExtension(filename); f != model.FormatUnknown {
		zap.L().Debug("detect: fell back to extension",
			zap.String("filename", filename),
			zap.String("format", string(f)),
		)
		return &model.DetectedFormat{
			Format:     f,
			Confidence: 0.7,
			Encoding:   encoding,
			Language:   detectLanguage(body),
		}, nil
	}

	if isMostlyPrintable(text) {
		return &model.DetectedFormat{
			Format:     model.FormatText,
			Confidence: 0.6,
			Encoding:   encoding,
			Language:   detectLanguage(body),
		}, nil
	}

	return nil, eris.Wrapf(ErrFormatUndetected, "no signature, pattern or extension match for %q", filename)
}

// detectEncoding recognizes BOMs and strips them from the body.
func detectEncoding(data []byte) (string, []byte) {
	switch {
	case bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}):
		return "utf-8", data[3:]
	case bytes.HasPrefix(data, []byte{0xFF, 0xFE}):
		return "utf-16le", data[2:]
	case bytes.HasPrefix(data, []byte{0xFE, 0xFF}):
		return "utf-16be", data[2:]
	default:
		return "utf-8", data
	}
}

// detectDelimiter counts candidate delimiters in the first line and returns
// the most frequent one. Requires at least one occurrence.
func detectDelimiter(text string) (rune, float64) {
	line := text
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}

	counts := map[rune]int{',': 0, ';': 0, '\t': 0, '|': 0}
	for _, r := range line {
		if _, ok := counts[r]; ok {
			counts[r]++
		}
	}

	var best rune
	var bestCount int
	for _, r := range []rune{',', ';', '\t', '|'} {
		if counts[r] > bestCount {
			best, bestCount = r, counts[r]
		}
	}
	if bestCount == 0 {
		return 0, 0
	}

	conf := 0.75
	if bestCount >= 2 && strings.Contains(text, "\n") {
		conf = 0.85
	}
	return best, conf
}

func formatFromExtension(filename string) model.Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".tsv":
		return model.FormatCSV
	case ".xlsx", ".xls":
		return model.FormatXLSX
	case ".json":
		return model.FormatJSON
	case ".xml":
		return model.FormatXML
	case ".pdf":
		return model.FormatPDF
	case ".png", ".jpg", ".jpeg", ".tif", ".tiff":
		return model.FormatImage
	case ".txt", ".md":
		return model.FormatText
	default:
		return model.FormatUnknown
	}
}

// countPDFPages counts page objects. The page-tree node is /Type /Pages,
// which the /Type /Page prefix also matches, so its occurrences are
// subtracted.
func countPDFPages(data []byte) int {
	n := bytes.Count(data, []byte("/Type /Page")) - bytes.Count(data, []byte("/Type /Pages"))
	n += bytes.Count(data, []byte("/Type/Page")) - bytes.Count(data, []byte("/Type/Pages"))
	if n < 0 {
		return 0
	}
	return n
}

// looksScanned reports whether a PDF carries no font resources, which means
// there is no text layer and OCR is required.
func looksScanned(data []byte) bool {
	return !bytes.Contains(data, []byte("/Font"))
}

func isXLSXContainer(data []byte) bool {
	return bytes.Contains(data, []byte("xl/")) || bytes.Contains(data, []byte("[Content_Types].xml"))
}

func isMostlyPrintable(text string) bool {
	if text == "" {
		return false
	}
	var printable int
	for _, r := range text {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 0x20 && r != 0xFFFD) {
			printable++
		}
	}
	return float64(printable)/float64(len([]rune(text))) > 0.9
}
