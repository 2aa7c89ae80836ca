// Package generator asks a remote chat-completion model to answer a question
// from an assembled context.
package generator

import (
	"context"
	"fmt"
	"os"

	"github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/metrics"
)

// Generator produces an answer for query grounded in context.
type Generator interface {
	Generate(ctx context.Context, query, context string) (string, error)
	Model() string
}

const SystemPrompt = `You are a helpful AI assistant that answers questions based on provided documents.
Your task is to:
1. Read the context from the documents carefully
2. Answer the user's question based ONLY on the information in the documents
3. If the documents don't contain enough information, say so clearly
4. Be concise but complete in your answer
5. Cite which document(s) you used when relevant`

// UserPrompt combines the assembled context and the question.
func UserPrompt(context, query string) string {
	return fmt.Sprintf(`Context from documents:
%s

Question: %s

Please provide a clear and accurate answer based on the context above.`, context, query)
}

// New builds the OpenAI-compatible generator described by cfg. The API key
// is read from the environment variable cfg.APIKeyEnv.
func New(cfg config.GeneratorConfig, m *metrics.Metrics) (*OpenAI, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("%w: generator API key env %s is not set", apperrors.ErrConfiguration, cfg.APIKeyEnv)
	}
	return NewOpenAI(cfg, key, m), nil
}
