package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// Document is one ingestion input.
type Document struct {
	Name string
	Data []byte
}

// Checksum returns the content hash used as the ingestion cache key.
func (d Document) Checksum() string {
	sum := sha256.Sum256(d.Data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// LoadDocument reads a document from disk, keeping only the base name.
func LoadDocument(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, eris.Wrapf(err, "pipeline: read document %s", path)
	}
	if len(data) == 0 {
		return Document{}, eris.Errorf("pipeline: document %s is empty", path)
	}
	return Document{Name: filepath.Base(path), Data: data}, nil
}
