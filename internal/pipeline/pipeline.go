// Package pipeline answers a query by retrieving documents, assembling a
// bounded context and asking the generator. Every call returns an Envelope;
// no failure escapes as an error or panic.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/doc-rag/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/internal/assembler"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/internal/document"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/internal/generator"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/internal/retriever"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/tracing"
	"github.com/google/uuid"
)

// Stage names one step of an Answer call.
type Stage string

const (
	StageRetrieving        Stage = "retrieving"
	StageAssemblingContext Stage = "assembling_context"
	StageGenerating        Stage = "generating"
)

// Retriever returns rank-ordered hits with their text loaded.
type Retriever interface {
	SearchWithTexts(ctx context.Context, query string, k int) ([]retriever.Hit, error)
}

// Source says where an envelope served through a Cache came from.
type Source int

const (
	SourceComputed Source = iota
	SourceCache
	// SourceShared is a successful result computed by a concurrent caller
	// asking the same question.
	SourceShared
)

// Result is an envelope with the numbers that produced it.
type Result struct {
	Envelope *Envelope
	Stats    RunStats
	Source   Source
}

// Cache returns a stored envelope for (query, k) or computes and stores it.
// It returns an error only when ctx ends before a result is available.
type Cache interface {
	GetOrCompute(ctx context.Context, query string, k int, compute func(context.Context) Result) (Result, error)
}

// Tracker receives one event per Answer call.
type Tracker interface {
	Track(event analytics.QueryEvent)
}

// Options wires a Pipeline. Cache, Tracker and Metrics are optional.
type Options struct {
	Retriever Retriever
	Assembler *assembler.Assembler
	Generator generator.Generator
	Config    config.PipelineConfig
	BuildID   string
	Cache     Cache
	Tracker   Tracker
	Metrics   *metrics.Metrics
}

type Pipeline struct {
	opts   Options
	logger *slog.Logger
}

func New(opts Options) *Pipeline {
	if opts.Assembler == nil {
		opts.Assembler = assembler.New(opts.Config.SnippetChars)
	}
	return &Pipeline{
		opts:   opts,
		logger: slog.Default().With("component", "pipeline"),
	}
}

// Model is the generator model reported in successful envelopes.
func (p *Pipeline) Model() string { return p.opts.Generator.Model() }

// BuildID identifies the index the pipeline serves.
func (p *Pipeline) BuildID() string { return p.opts.BuildID }

// RunStats carries per-call numbers that are not part of the envelope.
type RunStats struct {
	ContextChars int
	ContextUsed  int
}

// Answer runs one query through the pipeline. k must lie in [1, MaxK].
func (p *Pipeline) Answer(ctx context.Context, query string, k int) *Envelope {
	start := time.Now()
	traceID := logger.RequestID(ctx)
	if traceID == "" {
		traceID = uuid.NewString()
	}
	ctx, span := tracing.Start(ctx, "answer", traceID)
	span.SetAttr("k", k)

	query = strings.TrimSpace(query)
	var (
		env      *Envelope
		cacheHit bool
		stats    RunStats
		source   = SourceComputed
	)
	switch {
	case query == "":
		env = failure("query must not be empty")
	case k < 1 || k > p.opts.Config.MaxK:
		env = failure(fmt.Sprintf("k must be between 1 and %d, got %d", p.opts.Config.MaxK, k))
	case p.opts.Cache != nil:
		res, err := p.opts.Cache.GetOrCompute(ctx, query, k, func(ctx context.Context) Result {
			var s RunStats
			return Result{Envelope: p.run(ctx, query, k, &s), Stats: s}
		})
		if err != nil {
			env = failure(fmt.Sprintf("answer abandoned: %v", err))
			break
		}
		env, stats, source = res.Envelope, res.Stats, res.Source
		cacheHit = source == SourceCache
		p.opts.Metrics.RecordCache(cacheHit)
	default:
		env = p.run(ctx, query, k, &stats)
	}

	outcome := outcomeOf(env)
	elapsed := time.Since(start)
	span.SetAttr("outcome", string(outcome))
	span.SetAttr("cache_hit", cacheHit)
	span.SetAttr("shared", source == SourceShared)
	span.End()
	span.Log(ctx)

	p.opts.Metrics.RecordAnswer(string(outcome))
	p.opts.Metrics.ObserveStage("answer", elapsed)
	if p.opts.Tracker != nil {
		p.opts.Tracker.Track(analytics.QueryEvent{
			Type:          analytics.EventQuery,
			Query:         query,
			K:             k,
			Outcome:       outcome,
			DocsRetrieved: len(env.Documents),
			DocsUsed:      stats.ContextUsed,
			ContextChars:  stats.ContextChars,
			CacheHit:      cacheHit,
			LatencyMs:     elapsed.Milliseconds(),
			Model:         env.Model,
			BuildID:       p.opts.BuildID,
			Timestamp:     time.Now().UTC(),
			RequestID:     logger.RequestID(ctx),
		})
	}
	logger.FromContext(ctx).Info("answer complete",
		"outcome", outcome,
		"k", k,
		"documents", len(env.Documents),
		"cache_hit", cacheHit,
		"elapsed", elapsed,
	)
	return env
}

// run executes the stages. A panic in any stage becomes an error envelope.
func (p *Pipeline) run(ctx context.Context, query string, k int, stats *RunStats) (env *Envelope) {
	log := logger.FromContext(ctx).With("component", "pipeline")
	stage := StageRetrieving
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic during answer", "stage", stage, "panic", r, "stack", string(debug.Stack()))
			env = failure(fmt.Sprintf("internal error during %s", stage))
		}
	}()

	var hits []retriever.Hit
	err := p.stage(ctx, stage, func(ctx context.Context) error {
		var err error
		hits, err = p.opts.Retriever.SearchWithTexts(ctx, query, k)
		return err
	})
	if err != nil {
		log.Error("retrieval failed", "error", err)
		return failure(fmt.Sprintf("retrieval failed: %v", err))
	}
	if len(hits) == 0 {
		return noDocuments(errNoDocuments)
	}

	stage = StageAssemblingContext
	var assembled assembler.Context
	p.stage(ctx, stage, func(context.Context) error {
		docs := make([]document.Document, len(hits))
		for i, h := range hits {
			docs[i] = h.Document
		}
		assembled = p.opts.Assembler.Assemble(docs, p.opts.Config.MaxContextChars)
		return nil
	})
	stats.ContextChars = assembled.Chars
	stats.ContextUsed = assembled.Used
	p.opts.Metrics.RecordContext(assembled.Chars)
	if assembled.Empty() {
		log.Warn("no document fits the context budget",
			"max_context_chars", p.opts.Config.MaxContextChars,
			"retrieved", len(hits),
		)
		return noDocuments(errNoContext)
	}

	stage = StageGenerating
	var answer string
	err = p.stage(ctx, stage, func(ctx context.Context) error {
		var err error
		answer, err = p.opts.Generator.Generate(ctx, query, assembled.Text)
		return err
	})
	if err != nil {
		log.Error("generation failed", "error", err)
		return failure(err.Error())
	}

	docs := documentMeta(hits, p.opts.Config.PreviewChars)
	return &Envelope{
		Success:     true,
		Answer:      answer,
		Documents:   docs,
		Model:       p.opts.Generator.Model(),
		NumDocsUsed: len(docs),
	}
}

// stage runs fn inside a child span and records its duration.
func (p *Pipeline) stage(ctx context.Context, s Stage, fn func(context.Context) error) error {
	ctx, span := tracing.Start(ctx, string(s), "")
	err := fn(ctx)
	if err != nil {
		span.Fail(err)
	}
	p.opts.Metrics.ObserveStage(string(s), span.End())
	return err
}

func outcomeOf(env *Envelope) analytics.Outcome {
	switch {
	case env.Success:
		return analytics.OutcomeAnswered
	case env.Error == errNoDocuments:
		return analytics.OutcomeNoDocuments
	case env.Error == errNoContext:
		return analytics.OutcomeNoContext
	default:
		return analytics.OutcomeError
	}
}
