// Command indexer embeds every document under index.corpusDir and writes the
// vector/mapping artifact pair that ragserver and ask load. The index is
// rebuilt from scratch on every run.
//
// When Kafka is enabled an index.complete event is published, and when Redis
// is enabled every cached answer is dropped.
//
// Usage:
//
//	go run ./cmd/indexer [-config configs/development.yaml] [-corpus dir]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/doc-rag/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/internal/embedder"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/logger"
	pkgredis "github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/redis"
	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	corpusDir := flag.String("corpus", "", "corpus directory (overrides index.corpusDir)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *corpusDir != "" {
		cfg.Index.CorpusDir = *corpusDir
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting index build",
		"corpus_dir", cfg.Index.CorpusDir,
		"vector_path", cfg.Index.VectorPath,
		"mapping_path", cfg.Index.MappingPath,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	emb, err := embedder.New(cfg.Embedder)
	if err != nil {
		slog.Error("failed to create embedder", "error", err)
		os.Exit(1)
	}

	docs, err := indexer.LoadCorpus(cfg.Index.CorpusDir, cfg.Index.Extensions)
	if err != nil {
		slog.Error("failed to load corpus", "error", err)
		os.Exit(1)
	}

	builderCfg := indexer.BuilderConfig{
		VectorPath:  cfg.Index.VectorPath,
		MappingPath: cfg.Index.MappingPath,
		Concurrency: cfg.Index.BuildConcurrency,
		BatchSize:   cfg.Embedder.BatchSize,
	}

	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
		defer producer.Close()
		builderCfg.Publisher = producer
	}

	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, cached answers will expire by TTL", "error", err)
		} else {
			defer redisClient.Close()
			builderCfg.Cache = cache.New(redisClient, cfg.Redis.CacheTTL, "")
		}
	}

	_, report, err := indexer.NewBuilder(emb, builderCfg).Build(ctx, docs)
	if err != nil {
		slog.Error("index build failed", "error", err)
		os.Exit(1)
	}

	slog.Info("index build complete",
		"documents", report.Documents,
		"embedded", report.Embedded,
		"skipped", report.Skipped,
		"dimension", report.Dimension,
		"build_id", report.BuildID,
		"elapsed", report.Elapsed,
	)
}
