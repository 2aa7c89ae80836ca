package embedder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/doc-rag/internal/vectorindex"
	apperrors "github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/errors"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures the OpenAI-compatible embeddings client.
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	Dimension int
	BatchSize int
	Timeout   time.Duration
}

// OpenAI calls an OpenAI-compatible /embeddings endpoint.
type OpenAI struct {
	client    *openai.Client
	model     string
	dim       int
	batchSize int
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = 1536
		if cfg.Model == "text-embedding-3-large" {
			cfg.Dimension = 3072
		}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	return &OpenAI{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		dim:       cfg.Dimension,
		batchSize: cfg.BatchSize,
	}
}

func (e *OpenAI) Encode(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EncodeBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EncodeBatch embeds texts in requests of at most batchSize inputs. Output
// order follows input order regardless of the order the API returns.
func (e *OpenAI) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	for i, text := range texts {
		if err := validateText(text); err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
	}
	out := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		if err := e.embedRange(ctx, texts[start:end], out[start:end]); err != nil {
			return nil, fmt.Errorf("embedding texts %d-%d: %w", start, end-1, err)
		}
	}
	return out, nil
}

func (e *OpenAI) embedRange(ctx context.Context, texts []string, out [][]float32) error {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: texts,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: embeddings API: %w", apperrors.ErrTimeout, err)
		}
		return fmt.Errorf("embeddings API: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return fmt.Errorf("embeddings API returned %d vectors for %d inputs", len(resp.Data), len(texts))
	}
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(out) {
			return fmt.Errorf("embeddings API returned out-of-range index %d", item.Index)
		}
		if len(item.Embedding) != e.dim {
			return fmt.Errorf("%w: model %s returned %d dimensions, configured %d",
				apperrors.ErrDimensionMismatch, e.model, len(item.Embedding), e.dim)
		}
		v := make([]float32, len(item.Embedding))
		for i, x := range item.Embedding {
			v[i] = float32(x)
		}
		if !vectorindex.Normalize(v) {
			return fmt.Errorf("embeddings API returned a zero vector at index %d", item.Index)
		}
		out[item.Index] = v
	}
	for i := range out {
		if out[i] == nil {
			return fmt.Errorf("embeddings API omitted index %d", i)
		}
	}
	return nil
}

func (e *OpenAI) Dimension() int { return e.dim }

func (e *OpenAI) ModelInfo() string { return "openai-" + e.model }
