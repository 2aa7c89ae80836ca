// Package embedder turns text into unit-length vectors. Implementations are
// deterministic for a fixed model and safe for concurrent use; the same
// Embedder instance serves both the offline index build and online queries.
package embedder

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/errors"
)

// Embedder converts text into L2-normalized vectors of a fixed dimension.
type Embedder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
	EncodeBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	ModelInfo() string
}

// New builds the Embedder selected by cfg.Type.
func New(cfg config.EmbedderConfig) (Embedder, error) {
	switch cfg.Type {
	case "hash":
		return NewHash(cfg.Dimension), nil
	case "openai":
		key := os.Getenv(cfg.APIKeyEnv)
		if key == "" {
			return nil, fmt.Errorf("%w: embedder API key env %s is not set", apperrors.ErrConfiguration, cfg.APIKeyEnv)
		}
		return NewOpenAI(OpenAIConfig{
			APIKey:    key,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
			BatchSize: cfg.BatchSize,
			Timeout:   cfg.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("%w: unknown embedder type %q", apperrors.ErrConfiguration, cfg.Type)
	}
}

func validateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: cannot embed empty text", apperrors.ErrInvalidInput)
	}
	return nil
}
