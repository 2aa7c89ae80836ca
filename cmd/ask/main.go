// Command ask answers one question from the command line and prints the
// answer envelope as JSON on stdout. Logs go to stderr. The exit status is 1
// when the envelope reports failure.
//
// Usage:
//
//	go run ./cmd/ask [-config configs/development.yaml] [-k 3] question words...
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/doc-rag/internal/app"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/logger"
	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	k := flag.Int("k", 0, "number of documents to retrieve (default from config)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: ask [-config path] [-k N] question...\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	query := strings.Join(flag.Args(), " ")
	if strings.TrimSpace(query) == "" {
		flag.Usage()
		os.Exit(2)
	}

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.SetupWriter(os.Stderr, cfg.Logging.Level, "text")

	if *k == 0 {
		*k = cfg.Pipeline.DefaultK
	}

	a, err := app.Open(cfg, app.Options{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start pipeline: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Server.RequestTimeout)
	defer cancel()

	env := a.Pipeline.Answer(ctx, query, *k)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(env); err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode envelope: %v\n", err)
		os.Exit(1)
	}
	if !env.Success {
		os.Exit(1)
	}
}
