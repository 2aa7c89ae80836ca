package server

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/ratelimit"
)

// RouterOptions configures the middleware chain. Limiter and Metrics are
// optional.
type RouterOptions struct {
	CORS           middleware.CORSConfig
	Limiter        *ratelimit.Limiter
	Metrics        *metrics.Metrics
	RequestTimeout time.Duration
}

// IndexCheck reports an empty index as degraded. The server still answers
// every query, just without retrieved documents.
func IndexCheck(documents int) health.Check {
	return health.Warn(documents > 0, "index is empty, queries retrieve no documents")
}

// NewRouter builds the full HTTP handler.
//
// Route table:
//
//	GET    /                          service info
//	POST   /rag                       answer a query
//	POST   /api/v1/rag                answer a query
//	GET    /api/v1/cache/stats        answer-cache counters
//	POST   /api/v1/cache/invalidate   drop cached answers
//	GET    /health                    detailed health report
//	GET    /health/live               liveness check
//	GET    /health/ready              readiness check
//
// Middleware chain (outermost first):
//
//	RequestID → Logging → CORS → RateLimit → Timeout → Metrics → mux
func NewRouter(h *Handler, checker *health.Checker, opts RouterOptions) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", h.Info)
	mux.HandleFunc("POST /rag", h.Rag)
	mux.HandleFunc("POST /api/v1/rag", h.Rag)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.InvalidateCache)

	mux.HandleFunc("GET /health", checker.Handler())
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	mws := []func(http.Handler) http.Handler{
		middleware.RequestID,
		middleware.Logging,
		middleware.CORS(opts.CORS),
	}
	if opts.Limiter != nil {
		mws = append(mws, middleware.RateLimit(opts.Limiter))
	}
	mws = append(mws,
		middleware.Timeout(opts.RequestTimeout),
		middleware.Metrics(opts.Metrics),
	)
	return middleware.Chain(mux, mws...)
}
