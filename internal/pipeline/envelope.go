package pipeline

import (
	"math"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/doc-rag/internal/assembler"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/internal/retriever"
)

// NoDocumentsAnswer is returned when retrieval or context assembly yields
// nothing to answer from.
const NoDocumentsAnswer = "I couldn't find any relevant information to answer your question."

const (
	errNoDocuments = "no relevant documents found"
	errNoContext   = "no usable context within budget"
)

// DocumentMeta describes one retrieved document in an Envelope.
type DocumentMeta struct {
	Path     string  `json:"path"`
	FullPath string  `json:"full_path"`
	Score    float64 `json:"score"`
	Text     string  `json:"text"`
	Rank     int     `json:"rank"`
}

// Envelope is the result of one Answer call. Success is false for both the
// designed empty-result outcome and for failures; Error says which.
type Envelope struct {
	Success     bool           `json:"success"`
	Answer      string         `json:"answer,omitempty"`
	Documents   []DocumentMeta `json:"documents"`
	Model       string         `json:"model,omitempty"`
	NumDocsUsed int            `json:"num_docs_used"`
	Error       string         `json:"error,omitempty"`
}

func noDocuments(reason string) *Envelope {
	return &Envelope{
		Success:   false,
		Answer:    NoDocumentsAnswer,
		Documents: []DocumentMeta{},
		Error:     reason,
	}
}

func failure(msg string) *Envelope {
	return &Envelope{Success: false, Error: msg}
}

// documentMeta converts retrieval hits into envelope metadata with 1-based
// ranks, scores rounded to 4 decimals, and previewChars-rune text previews.
func documentMeta(hits []retriever.Hit, previewChars int) []DocumentMeta {
	out := make([]DocumentMeta, len(hits))
	for i, h := range hits {
		out[i] = DocumentMeta{
			Path:     h.Document.Name(),
			FullPath: h.Document.Path,
			Score:    round4(h.Score),
			Text:     preview(h.Document.Text, previewChars),
			Rank:     i + 1,
		}
	}
	return out
}

func round4(x float64) float64 {
	return math.Round(x*1e4) / 1e4
}

func preview(text string, n int) string {
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	return assembler.Truncate(text, n) + "..."
}
