package assembler

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/doc-rag/internal/document"
)

func docs(texts ...string) []document.Document {
	out := make([]document.Document, len(texts))
	for i, t := range texts {
		out[i] = document.Document{ID: i, Path: "/corpus/dir/doc" + string(rune('A'+i)) + ".txt", Text: t}
	}
	return out
}

func TestAssembleFormat(t *testing.T) {
	a := New(1000)
	ctx := a.Assemble(docs("  first body \n", "second"), 4000)
	want := "\n--- Document 1: docA.txt ---\nfirst body\n" +
		"\n--- Document 2: docB.txt ---\nsecond\n"
	if ctx.Text != want {
		t.Errorf("context =\n%q\nwant\n%q", ctx.Text, want)
	}
	if ctx.Used != 2 || ctx.Chars != utf8.RuneCountInString(want) {
		t.Errorf("Used=%d Chars=%d", ctx.Used, ctx.Chars)
	}
}

func TestAssembleTruncatesSnippet(t *testing.T) {
	a := New(10)
	ctx := a.Assemble(docs(strings.Repeat("x", 50)), 4000)
	if !strings.Contains(ctx.Text, "\n"+strings.Repeat("x", 10)+"\n") || strings.Contains(ctx.Text, strings.Repeat("x", 11)) {
		t.Errorf("snippet not truncated to 10: %q", ctx.Text)
	}
}

func TestAssembleStopsAtFirstOverflow(t *testing.T) {
	a := New(1000)
	block := func(i int, name, body string) int {
		return utf8.RuneCountInString("\n--- Document " + string(rune('0'+i)) + ": " + name + " ---\n" + body + "\n")
	}
	first := block(1, "docA.txt", "short")
	budget := first + 5
	ctx := a.Assemble(docs("short", strings.Repeat("long ", 40), "tiny"), budget)
	if ctx.Used != 1 {
		t.Fatalf("Used = %d, want 1", ctx.Used)
	}
	if strings.Contains(ctx.Text, "tiny") {
		t.Error("assembly continued after the first overflowing block")
	}
}

func TestAssembleFirstBlockTooLarge(t *testing.T) {
	a := New(1000)
	ctx := a.Assemble(docs(strings.Repeat("word ", 100)), 50)
	if !ctx.Empty() || ctx.Used != 0 {
		t.Fatalf("expected empty context, got %q", ctx.Text)
	}
}

func TestAssembleNeverExceedsBudget(t *testing.T) {
	a := New(1000)
	corpus := docs(
		strings.Repeat("alpha ", 300),
		"béta ünïcode text ✓",
		strings.Repeat("gamma ", 10),
		"",
		strings.Repeat("delta ", 500),
	)
	for budget := 0; budget <= 3000; budget += 37 {
		ctx := a.Assemble(corpus, budget)
		if n := utf8.RuneCountInString(ctx.Text); n > budget {
			t.Fatalf("budget %d: context has %d runes", budget, n)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 3, "hel"},
		{"hello", 10, "hello"},
		{"héllo", 2, "hé"},
		{"abc", 0, ""},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
