package document

import (
	"os"
	"path/filepath"
	"testing"
	"unicode/utf8"
)

func TestReadText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	os.WriteFile(path, []byte("hello\xffworld"), 0o644)

	text, err := ReadText(path)
	if err != nil {
		t.Fatalf("ReadText: %v", err)
	}
	if !utf8.ValidString(text) {
		t.Errorf("text not valid UTF-8: %q", text)
	}
	if _, err := ReadText(filepath.Join(dir, "missing.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestName(t *testing.T) {
	d := Document{Path: "data/text/invoices/march.txt"}
	if d.Name() != "march.txt" {
		t.Errorf("Name = %q", d.Name())
	}
}
