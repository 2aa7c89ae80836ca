package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/resilience"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAI calls an OpenAI-compatible /chat/completions endpoint (OpenAI,
// Groq, vLLM, Ollama). Calls go through a circuit breaker, an optional retry
// loop, and a per-call timeout.
type OpenAI struct {
	client  *openai.Client
	cfg     config.GeneratorConfig
	breaker *resilience.CircuitBreaker
	retry   resilience.Policy
	logger  *slog.Logger
}

func NewOpenAI(cfg config.GeneratorConfig, apiKey string, m *metrics.Metrics) *OpenAI {
	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	breaker := resilience.NewCircuitBreaker("generator", resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
		ResetTimeout:     cfg.CircuitBreaker.ResetTimeout,
		OnStateChange: func(name string, to resilience.State) {
			m.SetBreakerState(name, int(to))
		},
	})
	return &OpenAI{
		client:  openai.NewClientWithConfig(clientCfg),
		cfg:     cfg,
		breaker: breaker,
		retry: resilience.Policy{
			Attempts:  cfg.Retry.MaxAttempts,
			BaseDelay: cfg.Retry.InitialDelay,
			MaxDelay:  cfg.Retry.MaxDelay,
			Retryable: retryable,
		},
		logger: slog.Default().With("component", "generator", "model", cfg.Model),
	}
}

func (g *OpenAI) Model() string { return g.cfg.Model }

// Generate returns the trimmed answer text. Every failure wraps
// apperrors.ErrGeneration; timeouts additionally wrap apperrors.ErrTimeout.
func (g *OpenAI) Generate(ctx context.Context, query, contextText string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: g.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: UserPrompt(contextText, query)},
		},
		Temperature: g.cfg.Temperature,
		TopP:        g.cfg.TopP,
		MaxTokens:   g.cfg.MaxTokens,
	}

	answer, err := resilience.Call(g.breaker, func() (string, error) {
		return resilience.Do(ctx, g.retry, "chat completion", func(ctx context.Context, _ int) (string, error) {
			return resilience.WithTimeout(ctx, g.cfg.Timeout, "chat completion", func(callCtx context.Context) (string, error) {
				return g.complete(callCtx, req)
			})
		})
	})
	if err != nil {
		g.logger.Error("generation failed", "error", err, "breaker", g.breaker.State().String())
		if errors.Is(err, apperrors.ErrGeneration) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", apperrors.ErrGeneration, err)
	}
	return answer, nil
}

// Check reports the provider as degraded while the breaker is shedding calls.
func (g *OpenAI) Check(context.Context) health.ComponentHealth {
	snap := g.breaker.Snapshot()
	if snap.State == resilience.StateClosed {
		return health.ComponentHealth{Status: health.StatusUp}
	}
	return health.ComponentHealth{
		Status:  health.StatusDegraded,
		Message: fmt.Sprintf("circuit %s after %d failures, retry in %v", snap.State, snap.Failures, snap.RetryIn),
	}
}

func (g *OpenAI) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %w: %w", apperrors.ErrGeneration, apperrors.ErrTimeout, err)
		}
		return "", fmt.Errorf("%w: chat completion: %w", apperrors.ErrGeneration, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: malformed response: no choices", apperrors.ErrGeneration)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("%w: malformed response: empty content (finish reason %q)",
			apperrors.ErrGeneration, resp.Choices[0].FinishReason)
	}
	g.logger.Debug("generation complete",
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return text, nil
}

// retryable treats rate limits, server errors, timeouts and transport
// failures as transient. Other 4xx responses are not.
func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return transientStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return transientStatus(reqErr.HTTPStatusCode)
	}
	return !errors.Is(err, context.Canceled)
}

func transientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500 || code == 0
}
