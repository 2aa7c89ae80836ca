package indexer

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/doc-rag/internal/document"
)

// LoadCorpus collects every file under dir whose extension is in exts
// (case-insensitive; ".txt" when exts is empty) and returns them sorted by
// path. Directories are walked with an explicit work-list. Files that cannot
// be read are logged and skipped.
func LoadCorpus(dir string, exts []string) ([]document.Document, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("opening corpus directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("corpus path %s is not a directory", dir)
	}

	allowed := make(map[string]bool)
	for _, ext := range exts {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = true
	}
	if len(allowed) == 0 {
		allowed[".txt"] = true
	}

	logger := slog.Default().With("component", "corpus")
	var paths []string
	pending := []string{dir}
	for len(pending) > 0 {
		current := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		entries, err := os.ReadDir(current)
		if err != nil {
			logger.Warn("skipping unreadable directory", "dir", current, "error", err)
			continue
		}
		for _, entry := range entries {
			full := filepath.Join(current, entry.Name())
			switch {
			case entry.IsDir():
				pending = append(pending, full)
			case entry.Type().IsRegular() && allowed[strings.ToLower(filepath.Ext(entry.Name()))]:
				paths = append(paths, full)
			}
		}
	}
	sort.Strings(paths)

	docs := make([]document.Document, 0, len(paths))
	for _, path := range paths {
		text, err := document.ReadText(path)
		if err != nil {
			logger.Warn("skipping unreadable file", "path", path, "error", err)
			continue
		}
		docs = append(docs, document.Document{ID: len(docs), Path: path, Text: text})
	}
	logger.Info("corpus loaded", "dir", dir, "files", len(docs))
	return docs, nil
}
