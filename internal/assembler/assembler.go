// Package assembler packs ranked document text into a bounded prompt
// context.
package assembler

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/doc-rag/internal/document"
)

const DefaultSnippetChars = 1000

// Context is the assembled prompt context. Used counts the documents whose
// block was included; they are always the first Used documents passed in.
type Context struct {
	Text  string
	Used  int
	Chars int
}

// Empty reports whether no usable context was assembled.
func (c Context) Empty() bool {
	return strings.TrimSpace(c.Text) == ""
}

// Assembler builds contexts. Lengths are counted in runes.
type Assembler struct {
	SnippetChars int
}

func New(snippetChars int) *Assembler {
	if snippetChars <= 0 {
		snippetChars = DefaultSnippetChars
	}
	return &Assembler{SnippetChars: snippetChars}
}

// Assemble appends one labeled block per document in rank order. A block is
// added whole only if the total stays within maxChars; the first block that
// does not fit ends assembly.
func (a *Assembler) Assemble(docs []document.Document, maxChars int) Context {
	var b strings.Builder
	total := 0
	used := 0
	for i, doc := range docs {
		block := fmt.Sprintf("\n--- Document %d: %s ---\n%s\n", i+1, doc.Name(), Snippet(doc.Text, a.SnippetChars))
		n := utf8.RuneCountInString(block)
		if total+n > maxChars {
			break
		}
		b.WriteString(block)
		total += n
		used++
	}
	return Context{Text: b.String(), Used: used, Chars: total}
}

// Snippet returns the first n runes of text with surrounding whitespace
// removed.
func Snippet(text string, n int) string {
	return strings.TrimSpace(Truncate(text, n))
}

// Truncate returns the first n runes of text.
func Truncate(text string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range text {
		if i == n {
			return text[:pos]
		}
		i++
	}
	return text
}
