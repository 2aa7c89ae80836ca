// Package app wires the query-time components from configuration. It is
// shared by the HTTP server and the one-shot CLI.
package app

import (
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/doc-rag/internal/assembler"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/internal/embedder"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/internal/generator"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/internal/retriever"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/internal/vectorindex"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/metrics"
)

// Options carries the optional adapters. A nil CacheStore disables the
// answer cache.
type Options struct {
	Metrics    *metrics.Metrics
	CacheStore cache.Store
	Tracker    pipeline.Tracker
	Generator  generator.Generator
}

// App holds the wired pipeline and the pieces health checks report on.
type App struct {
	Pipeline  *pipeline.Pipeline
	Index     *vectorindex.Index
	Embedder  embedder.Embedder
	Generator generator.Generator
	Cache     *cache.AnswerCache
}

// Open loads the index pair and builds the pipeline. Every failure here is
// fatal at startup; apperrors.IsConfiguration reports true for missing or
// mismatched artifacts and missing credentials.
func Open(cfg *config.Config, opts Options) (*App, error) {
	emb, err := embedder.New(cfg.Embedder)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	idx, err := vectorindex.Load(cfg.Index.VectorPath, cfg.Index.MappingPath)
	if err != nil {
		return nil, fmt.Errorf("loading index: %w", err)
	}
	opts.Metrics.SetIndexVectors(idx.Len())

	ret, err := retriever.New(emb, idx, opts.Metrics)
	if err != nil {
		return nil, err
	}

	gen := opts.Generator
	if gen == nil {
		g, err := generator.New(cfg.Generator, opts.Metrics)
		if err != nil {
			return nil, fmt.Errorf("creating generator: %w", err)
		}
		gen = g
	}

	a := &App{Index: idx, Embedder: emb, Generator: gen}
	pipeOpts := pipeline.Options{
		Retriever: ret,
		Assembler: assembler.New(cfg.Pipeline.SnippetChars),
		Generator: gen,
		Config:    cfg.Pipeline,
		BuildID:   idx.BuildID(),
		Tracker:   opts.Tracker,
		Metrics:   opts.Metrics,
	}
	if opts.CacheStore != nil {
		a.Cache = cache.New(opts.CacheStore, cfg.Redis.CacheTTL, idx.BuildID(),
			cache.WithComputeTimeout(cfg.Server.RequestTimeout))
		pipeOpts.Cache = a.Cache
	}
	a.Pipeline = pipeline.New(pipeOpts)

	slog.Info("pipeline ready",
		"documents", idx.Len(),
		"dimension", idx.Dimension(),
		"build_id", idx.BuildID(),
		"embedder", emb.ModelInfo(),
		"model", gen.Model(),
		"cache", a.Cache != nil,
	)
	return a, nil
}
