// Command ragserver answers questions over the indexed corpus via HTTP.
//
// It loads the vector/mapping pair written by cmd/indexer, wires the
// retrieval pipeline to an OpenAI-compatible chat endpoint, and serves
// POST /rag. Redis answer caching and Kafka query analytics are enabled by
// config and degrade gracefully when unreachable. A missing or mismatched
// index is fatal.
//
// Usage:
//
//	go run ./cmd/ragserver [-config configs/development.yaml]
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
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/doc-rag/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/internal/app"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/internal/server"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/ratelimit"
	pkgredis "github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/redis"
	"github.com/joho/godotenv"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting rag server", "port", cfg.Server.Port, "version", version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		go func() {
			if err := metrics.Serve(ctx, fmt.Sprintf(":%d", cfg.Metrics.Port), nil); err != nil {
				slog.Error("metrics server stopped", "error", err)
			}
		}()
	}

	opts := app.Options{Metrics: m}

	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, answer caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			opts.CacheStore = redisClient
			slog.Info("answer cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	var collector *analytics.Collector
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.QueryEvents)
		defer producer.Close()
		collector = analytics.NewCollector(producer, 10000, 100, 2*time.Second)
		collector.Start(ctx)
		defer collector.Close()
		opts.Tracker = collector
		slog.Info("analytics collector started", "topic", cfg.Kafka.Topics.QueryEvents)
	}

	a, err := app.Open(cfg, opts)
	if err != nil {
		slog.Error("failed to start pipeline", "error", err, "configuration", apperrors.IsConfiguration(err))
		os.Exit(1)
	}

	checker := health.NewChecker()
	checker.Register("index", server.IndexCheck(a.Index.Len()))
	if g, ok := a.Generator.(interface {
		Check(context.Context) health.ComponentHealth
	}); ok {
		checker.Register("generator", g.Check)
	} else {
		checker.Register("generator", health.Static(a.Pipeline.Model() != "", "no generator model configured"))
	}
	if redisClient != nil {
		checker.Register("redis", health.Ping(redisClient, true))
	}

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.Window)
		go limiter.Run(ctx, 5*time.Minute)
	}

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowOrigins = cfg.Server.AllowOrigins

	var cacheAdmin server.CacheAdmin
	if a.Cache != nil {
		cacheAdmin = a.Cache
	}
	h := server.New(a.Pipeline, cacheAdmin, server.Config{
		Version:   version,
		DefaultK:  cfg.Pipeline.DefaultK,
		MaxK:      cfg.Pipeline.MaxK,
		Documents: a.Index.Len(),
	})
	chain := server.NewRouter(h, checker, server.RouterOptions{
		CORS:           corsCfg,
		Limiter:        limiter,
		Metrics:        m,
		RequestTimeout: cfg.Server.RequestTimeout,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("rag server listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	<-shutdownDone

	if collector != nil && collector.Dropped() > 0 {
		slog.Warn("analytics events dropped", "count", collector.Dropped())
	}
	slog.Info("rag server stopped")
}
