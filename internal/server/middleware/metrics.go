package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/leslieo2/go-probe-toggle/internal/observability"
)

const unmatchedRoute = "unmatched"

// MetricsMiddleware records request count, latency and response size. It
// must wrap the ServeMux directly: the route label is read from r.Pattern,
// which the mux sets on the request it receives.
func MetricsMiddleware(metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			metrics.InFlight.Inc()
			defer metrics.InFlight.Dec()

			wrapped := NewResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			metrics.RecordRequest(r.Method, RouteLabel(r), wrapped.StatusCode(), time.Since(start), wrapped.BytesWritten())
		})
	}
}

// RouteLabel returns the path part of the matched mux pattern, or
// "unmatched" for requests that hit no route (404/405).
func RouteLabel(r *http.Request) string {
	if r.Pattern == "" {
		return unmatchedRoute
	}
	if _, path, ok := strings.Cut(r.Pattern, " "); ok {
		return path
	}
	return r.Pattern
}
