// Command analytics runs the query-analytics service.
//
// It consumes query events and index.complete events from Kafka, aggregates
// them in memory (outcome counts, latency percentiles, cache hit rate, top
// queries, top unanswered queries) and serves the result at
// GET /api/v1/analytics. When Postgres is enabled the stats are snapshotted
// periodically and served at GET /api/v1/analytics/snapshots.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml] [-port 8081]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/doc-rag/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/postgres"
	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	port := flag.Int("port", 8081, "HTTP port for the analytics API")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analytics service", "port", *port)

	if !cfg.Kafka.Enabled {
		slog.Error("analytics service requires kafka.enabled")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	agg := analytics.NewAggregator()
	checker := health.NewChecker()

	queryConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.QueryEvents, agg.HandleQuery)
	indexConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete, agg.HandleIndexBuild)
	checker.Register("kafka-queries", queryConsumer.Check)
	checker.Register("kafka-index", indexConsumer.Check)

	var consumers sync.WaitGroup
	for _, run := range []func(context.Context) error{queryConsumer.Run, indexConsumer.Run} {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			if err := run(ctx); err != nil {
				slog.Error("analytics consumer stopped", "error", err)
			}
		}()
	}
	defer consumers.Wait()
	slog.Info("analytics consumers started",
		"query_topic", cfg.Kafka.Topics.QueryEvents,
		"index_topic", cfg.Kafka.Topics.IndexComplete,
		"group", cfg.Kafka.ConsumerGroup,
	)

	var snapshots analytics.SnapshotLister
	if cfg.Postgres.Enabled {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, snapshots disabled", "error", err)
		} else {
			defer db.Close()
			store := aggregator.NewStore(db, cfg.Postgres.SnapshotRetention)
			if err := store.EnsureSchema(ctx); err != nil {
				slog.Error("failed to create snapshot table", "error", err)
				os.Exit(1)
			}
			snapshots = store
			checker.Register("postgres", health.Ping(db, true))
			go store.RunPeriodicSave(ctx, agg, cfg.Postgres.SnapshotInterval)
		}
	}

	h := analytics.NewHandler(agg, snapshots)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", h.Stats)
	mux.HandleFunc("GET /api/v1/analytics/snapshots", h.Snapshots)
	mux.HandleFunc("GET /health", checker.Handler())
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	chain := middleware.Chain(mux, middleware.RequestID, middleware.Logging)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("analytics service listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("analytics service stopped")
}
