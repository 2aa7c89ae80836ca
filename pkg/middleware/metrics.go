package middleware

import (
	"net/http"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/metrics"
)

// Metrics records request count, latency and in-flight requests per route.
// It has to be the innermost wrapper around the ServeMux, because r.Pattern
// is only set once the mux has routed the request. A nil m disables it.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			done := m.BeginRequest(r.Method)
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			done(routeLabel(r), sw.status)
		})
	}
}

// routeLabel is the mux pattern without its method, or "unmatched", so
// arbitrary URLs never become label values.
func routeLabel(r *http.Request) string {
	switch _, path, ok := strings.Cut(r.Pattern, " "); {
	case r.Pattern == "":
		return "unmatched"
	case ok:
		return path
	}
	return r.Pattern
}
