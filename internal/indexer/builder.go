// Package indexer builds the persisted vector index from a directory of
// plain-text documents. The index is always rebuilt in full.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/doc-rag/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/internal/document"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/internal/embedder"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/internal/vectorindex"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// Publisher is the subset of kafka.Producer the builder needs.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Invalidator drops answers derived from a previous index build.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// BuildReport summarizes one index build.
type BuildReport struct {
	Documents    int
	Embedded     int
	Skipped      int
	SkippedPaths []string
	Dimension    int
	BuildID      string
	Elapsed      time.Duration
}

// BuilderConfig configures a Builder. Publisher, Cache and Metrics are
// optional.
type BuilderConfig struct {
	VectorPath  string
	MappingPath string
	Concurrency int
	BatchSize   int
	Publisher   Publisher
	Cache       Invalidator
	Metrics     *metrics.Metrics
}

// Builder embeds a corpus and writes the vector/mapping artifact pair.
type Builder struct {
	embedder embedder.Embedder
	cfg      BuilderConfig
	logger   *slog.Logger
}

func NewBuilder(emb embedder.Embedder, cfg BuilderConfig) *Builder {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}
	return &Builder{
		embedder: emb,
		cfg:      cfg,
		logger:   slog.Default().With("component", "index-builder"),
	}
}

// Build embeds docs, skipping whitespace-only ones, and saves the resulting
// index. Index positions follow the order of docs with skipped documents
// removed.
func (b *Builder) Build(ctx context.Context, docs []document.Document) (*vectorindex.Index, *BuildReport, error) {
	start := time.Now()
	report := &BuildReport{Documents: len(docs)}

	kept := make([]document.Document, 0, len(docs))
	for _, doc := range docs {
		if strings.TrimSpace(doc.Text) == "" {
			b.logger.Warn("skipping empty document", "path", doc.Path)
			report.Skipped++
			report.SkippedPaths = append(report.SkippedPaths, doc.Path)
			continue
		}
		kept = append(kept, doc)
	}

	vectors, err := b.embedAll(ctx, kept)
	if err != nil {
		b.cfg.Metrics.RecordEmbedding("error", len(kept))
		return nil, nil, err
	}
	b.cfg.Metrics.RecordEmbedding("ok", len(kept))

	paths := make([]string, len(kept))
	for i, doc := range kept {
		paths[i] = doc.Path
	}
	idx, err := vectorindex.Build(vectors, paths)
	if err != nil {
		return nil, nil, fmt.Errorf("building index: %w", err)
	}
	if idx.Len() > 0 && idx.Dimension() != b.embedder.Dimension() {
		return nil, nil, fmt.Errorf("embedder reported dimension %d but produced %d", b.embedder.Dimension(), idx.Dimension())
	}
	if err := vectorindex.Save(idx, b.cfg.VectorPath, b.cfg.MappingPath); err != nil {
		return nil, nil, fmt.Errorf("saving index: %w", err)
	}
	b.cfg.Metrics.SetIndexVectors(idx.Len())

	report.Embedded = idx.Len()
	report.Dimension = b.embedder.Dimension()
	report.BuildID = idx.BuildID()
	report.Elapsed = time.Since(start)
	b.logger.Info("index built",
		"build_id", report.BuildID,
		"documents", report.Documents,
		"embedded", report.Embedded,
		"skipped", report.Skipped,
		"dimension", report.Dimension,
		"elapsed", report.Elapsed,
	)

	b.announce(ctx, idx, report)
	return idx, report, nil
}

// embedAll embeds docs in batches across a bounded set of goroutines. Each
// batch writes only its own slice of the result, so the output stays in
// input order.
func (b *Builder) embedAll(ctx context.Context, docs []document.Document) ([][]float32, error) {
	vectors := make([][]float32, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Concurrency)
	for lo := 0; lo < len(docs); lo += b.cfg.BatchSize {
		hi := min(lo+b.cfg.BatchSize, len(docs))
		g.Go(func() error {
			texts := make([]string, hi-lo)
			for i := range texts {
				texts[i] = docs[lo+i].Text
			}
			out, err := b.embedder.EncodeBatch(gctx, texts)
			if err != nil {
				return fmt.Errorf("embedding %s..%s: %w", docs[lo].Path, docs[hi-1].Path, err)
			}
			if len(out) != len(texts) {
				return fmt.Errorf("embedder returned %d vectors for %d texts", len(out), len(texts))
			}
			copy(vectors[lo:hi], out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// announce publishes the completion event and drops cached answers. Both are
// best effort: the artifacts on disk are already authoritative.
func (b *Builder) announce(ctx context.Context, idx *vectorindex.Index, report *BuildReport) {
	if b.cfg.Publisher != nil {
		event := analytics.IndexCompleteEvent{
			Type:        analytics.EventIndexComplete,
			BuildID:     report.BuildID,
			Documents:   report.Embedded,
			Skipped:     report.Skipped,
			Dimension:   report.Dimension,
			Model:       b.embedder.ModelInfo(),
			VectorPath:  b.cfg.VectorPath,
			MappingPath: b.cfg.MappingPath,
			CreatedAt:   idx.CreatedAt(),
		}
		if err := b.cfg.Publisher.Publish(ctx, kafka.Event{Key: report.BuildID, Type: string(analytics.EventIndexComplete), Value: event}); err != nil {
			b.logger.Warn("failed to publish index.complete event", "build_id", report.BuildID, "error", err)
		}
	}
	if b.cfg.Cache != nil {
		if err := b.cfg.Cache.Invalidate(ctx); err != nil {
			b.logger.Warn("failed to invalidate answer cache", "error", err)
		}
	}
}
