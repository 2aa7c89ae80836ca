package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/ratelimit"
)

// RateLimit enforces a per-client-IP token bucket. Health checks and the
// service-info route are never limited.
func RateLimit(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(math.Ceil(limiter.RetryAfter().Seconds())))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/" || strings.HasPrefix(r.URL.Path, "/health") {
				next.ServeHTTP(w, r)
				return
			}
			if !limiter.Allow(ClientIP(r)) {
				w.Header().Set("Retry-After", retryAfter)
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
