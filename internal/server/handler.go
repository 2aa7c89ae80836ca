// Package server exposes the pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/doc-rag/internal/pipeline"
	apperrors "github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/logger"
)

const maxBodyBytes = 64 << 10

// Answerer is satisfied by *pipeline.Pipeline.
type Answerer interface {
	Answer(ctx context.Context, query string, k int) *pipeline.Envelope
	Model() string
	BuildID() string
}

// CacheAdmin is satisfied by *cache.AnswerCache.
type CacheAdmin interface {
	Invalidate(ctx context.Context) error
	Stats() (hits, misses int64)
}

// Config holds the request bounds and service info.
type Config struct {
	Service   string
	Version   string
	DefaultK  int
	MaxK      int
	Documents int
}

// QueryRequest is the body of POST /rag. K is a pointer so an omitted k can
// be told apart from k=0.
type QueryRequest struct {
	Query string `json:"query"`
	K     *int   `json:"k,omitempty"`
}

type Handler struct {
	answerer Answerer
	cache    CacheAdmin
	cfg      Config
	logger   *slog.Logger
}

// New creates a Handler. cache may be nil.
func New(answerer Answerer, cache CacheAdmin, cfg Config) *Handler {
	if cfg.Service == "" {
		cfg.Service = "doc-rag"
	}
	return &Handler{
		answerer: answerer,
		cache:    cache,
		cfg:      cfg,
		logger:   slog.Default().With("component", "rag-handler"),
	}
}

// Rag answers one query. Validation failures are 400s; everything after
// validation is a 200 carrying the envelope, whose success field tells the
// client whether an answer was produced.
func (h *Handler) Rag(w http.ResponseWriter, r *http.Request) {
	req, err := h.decode(w, r)
	if err != nil {
		logger.FromContext(r.Context()).Debug("rejected query request", "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), err)
		return
	}
	env := h.answerer.Answer(r.Context(), req.Query, *req.K)
	h.writeJSON(w, http.StatusOK, env)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (QueryRequest, error) {
	var req QueryRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return req, apperrors.Invalid(http.StatusBadRequest, "request body is required")
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return req, apperrors.Invalid(http.StatusRequestEntityTooLarge, "request body too large")
		}
		return req, apperrors.Invalid(http.StatusBadRequest, "invalid JSON body: %v", err)
	}
	if strings.TrimSpace(req.Query) == "" {
		return req, apperrors.Invalid(http.StatusBadRequest, "query must not be empty")
	}
	if req.K == nil {
		k := h.cfg.DefaultK
		req.K = &k
	}
	if *req.K < 1 || *req.K > h.cfg.MaxK {
		return req, apperrors.Invalid(http.StatusBadRequest, "k must be between 1 and %d", h.cfg.MaxK)
	}
	return req, nil
}

// Info describes the running service.
func (h *Handler) Info(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"service":   h.cfg.Service,
		"version":   h.cfg.Version,
		"model":     h.answerer.Model(),
		"build_id":  h.answerer.BuildID(),
		"documents": h.cfg.Documents,
		"cache":     h.cache != nil,
	})
}

// CacheStats reports answer-cache hit and miss counts.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusNotFound, errors.New("answer cache is not enabled"))
		return
	}
	hits, misses := h.cache.Stats()
	ratio := 0.0
	if total := hits + misses; total > 0 {
		ratio = float64(hits) / float64(total)
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":      hits,
		"misses":    misses,
		"hit_ratio": ratio,
	})
}

// InvalidateCache drops every cached answer.
func (h *Handler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusNotFound, errors.New("answer cache is not enabled"))
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		logger.FromContext(r.Context()).Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, fmt.Errorf("cache invalidation failed"))
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, map[string]string{"error": apperrors.PublicMessage(err)})
}
