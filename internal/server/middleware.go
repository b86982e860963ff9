package server

import (
	"net/http"

	"github.com/leslieo2/go-probe-toggle/internal/server/middleware"
)

// applyMiddleware wraps the mux, innermost first. Metrics and tracing read the
// matched route from the request, so they sit directly around the mux.
func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	handler = middleware.MetricsMiddleware(s.metrics)(handler)
	handler = middleware.TracingMiddleware(s.tracer)(handler)

	handler = middleware.RequestSizeLimitMiddleware(s.config.Server.MaxRequestSize)(handler)

	if s.config.Security.CORS.Enabled {
		handler = middleware.NewCORSMiddleware(s.config.Security.CORS).Handler(handler)
	}

	if s.config.Security.Headers.Enabled {
		handler = middleware.SecurityHeadersMiddleware(s.config.Security.Headers)(handler)
	}

	handler = middleware.LoggingMiddleware(s.logger.Logger)(handler)

	return handler
}
