package middleware

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/leslieo2/go-probe-toggle/internal/observability"
)

// TracingMiddleware opens a server span per request. The route attribute is
// filled in after the mux has matched, so only MetricsMiddleware may sit
// between this and the mux.
func TracingMiddleware(tracer *observability.Tracer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracer.StartSpan(r.Context(), "HTTP "+r.Method,
				attribute.String("http.request.method", r.Method),
				attribute.String("url.path", r.URL.Path),
			)
			defer span.End()

			wrapped := NewResponseWriter(w)
			req := r.WithContext(ctx)
			next.ServeHTTP(wrapped, req)

			route := RouteLabel(req)
			span.SetName("HTTP " + r.Method + " " + route)
			span.SetAttributes(
				attribute.String("http.route", route),
				attribute.Int("http.response.status_code", wrapped.StatusCode()),
			)
			if wrapped.StatusCode() >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(wrapped.StatusCode()))
			}
		})
	}
}
