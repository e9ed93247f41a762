package extract

import (
	"bytes"
	"encoding/csv"
	"io"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/stacklens/catalog-ingest/internal/model"
)

// ReadCSV parses delimiter-separated data using the detected delimiter and
// encoding. Ragged rows are tolerated; quoting follows RFC 4180 loosely.
func ReadCSV(data []byte, det model.DetectedFormat) (*Table, error) {
	body, err := decodeBytes(data, det.Encoding)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(bytes.NewReader(body))
	if det.Delimiter != 0 {
		r.Comma = det.Delimiter
	}
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var rows [][]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "extract: read csv")
		}
		rows = append(rows, record)
	}
	if len(rows) == 0 {
		return nil, eris.New("extract: empty csv")
	}

	return Split(rows), nil
}

func decodeBytes(data []byte, encoding string) ([]byte, error) {
	switch encoding {
	case "utf-16le":
		dec := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
		out, _, err := transform.Bytes(dec, data)
		return out, eris.Wrap(err, "extract: decode utf-16le")
	case "utf-16be":
		dec := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder()
		out, _, err := transform.Bytes(dec, data)
		return out, eris.Wrap(err, "extract: decode utf-16be")
	default:
		return data, nil
	}
}
