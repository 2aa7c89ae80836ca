package embedder

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/doc-rag/internal/embedder/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/internal/vectorindex"
	apperrors "github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/errors"
)

// Hash is an offline embedder using signed feature hashing over stemmed
// terms. Term weights are 1+log(tf). It needs no model weights, so it is
// used for tests, air-gapped builds, and as the fallback when no embedding
// API is configured.
type Hash struct {
	dim int
}

func NewHash(dimension int) *Hash {
	if dimension <= 0 {
		dimension = 384
	}
	return &Hash{dim: dimension}
}

func (h *Hash) Encode(_ context.Context, text string) ([]float32, error) {
	if err := validateText(text); err != nil {
		return nil, err
	}
	terms := tokenizer.Terms(text)
	if len(terms) == 0 {
		// Only stop-words or one-letter tokens: fall back to raw words so
		// the query still gets a direction.
		terms = strings.Fields(strings.ToLower(text))
	}

	counts := make(map[string]int, len(terms))
	for _, term := range terms {
		counts[term]++
	}
	vec := make([]float32, h.dim)
	for term, tf := range counts {
		sum := fnv.New64a()
		sum.Write([]byte(term))
		v := sum.Sum64()
		bucket := int(v % uint64(h.dim))
		weight := float32(1 + math.Log(float64(tf)))
		if v>>63 == 1 {
			weight = -weight
		}
		vec[bucket] += weight
	}
	if !vectorindex.Normalize(vec) {
		return nil, fmt.Errorf("%w: text produced a zero vector", apperrors.ErrInvalidInput)
	}
	return vec, nil
}

func (h *Hash) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := h.Encode(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}

func (h *Hash) Dimension() int { return h.dim }

func (h *Hash) ModelInfo() string { return fmt.Sprintf("hash-fnv64a-%d", h.dim) }
