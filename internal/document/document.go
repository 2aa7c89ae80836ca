// Package document defines the corpus record shared by indexing and
// retrieval and the single place document text is read from disk.
package document

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Document is one corpus file. ID is its position in the corpus or index
// ordering that produced it.
type Document struct {
	ID   int    `json:"id"`
	Path string `json:"path"`
	Text string `json:"text"`
}

// Name returns the base name of the document path.
func (d Document) Name() string {
	return filepath.Base(d.Path)
}

// ReadText returns the contents of path. Invalid UTF-8 sequences are
// replaced so downstream rune counting stays well defined.
func ReadText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading document %s: %w", path, err)
	}
	if !utf8.Valid(data) {
		return strings.ToValidUTF8(string(data), "\uFFFD"), nil
	}
	return string(data), nil
}
