// Package retriever maps a query to ranked, readable corpus documents.
package retriever

import (
	"context"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/doc-rag/internal/document"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/internal/embedder"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/internal/vectorindex"
	apperrors "github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/metrics"
)

// Hit is a retrieved document with its text loaded and its cosine score.
// Document.ID is the index position.
type Hit struct {
	Document document.Document
	Score    float64
}

// Retriever embeds queries and resolves index hits to document text.
type Retriever struct {
	embedder embedder.Embedder
	index    *vectorindex.Index
	metrics  *metrics.Metrics
	readText func(path string) (string, error)
}

// New pairs an embedder with a loaded index. A non-empty index whose
// dimension differs from the embedder's is a configuration error.
func New(emb embedder.Embedder, idx *vectorindex.Index, m *metrics.Metrics) (*Retriever, error) {
	if idx.Len() > 0 && idx.Dimension() != emb.Dimension() {
		return nil, fmt.Errorf("%w: index has dimension %d but embedder %s produces %d",
			apperrors.ErrDimensionMismatch, idx.Dimension(), emb.ModelInfo(), emb.Dimension())
	}
	return &Retriever{
		embedder: emb,
		index:    idx,
		metrics:  m,
		readText: document.ReadText,
	}, nil
}

// Search embeds query and returns raw index hits.
func (r *Retriever) Search(ctx context.Context, query string, k int) ([]vectorindex.Hit, error) {
	start := time.Now()
	vec, err := r.embedder.Encode(ctx, query)
	r.metrics.ObserveStage("embed", time.Since(start))
	if err != nil {
		r.metrics.RecordEmbedding("error", 1)
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	r.metrics.RecordEmbedding("ok", 1)

	start = time.Now()
	hits, err := r.index.Search(vec, k)
	r.metrics.ObserveStage("search", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}
	return hits, nil
}

// SearchWithTexts returns up to k hits in rank order. Hits whose backing
// file is missing or unreadable are dropped; the rest keep their relative
// order. An empty result is not an error.
func (r *Retriever) SearchWithTexts(ctx context.Context, query string, k int) ([]Hit, error) {
	raw, err := r.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}
	log := logger.FromContext(ctx).With("component", "retriever")
	out := make([]Hit, 0, len(raw))
	for _, h := range raw {
		path := r.index.Path(h.Position)
		text, err := r.readText(path)
		if err != nil {
			log.Warn("dropping hit with unreadable document", "path", path, "position", h.Position, "error", err)
			continue
		}
		out = append(out, Hit{
			Document: document.Document{ID: h.Position, Path: path, Text: text},
			Score:    h.Score,
		})
	}
	r.metrics.RecordRetrieval(len(out), len(raw)-len(out))
	return out, nil
}

// Index returns the index this retriever searches.
func (r *Retriever) Index() *vectorindex.Index { return r.index }
