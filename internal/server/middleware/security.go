package middleware

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"

	"github.com/leslieo2/go-probe-toggle/internal/config"
	"github.com/leslieo2/go-probe-toggle/internal/constants"
)

// SecurityHeadersMiddleware sets hardening headers and, when AllowedHosts is
// non-empty, rejects requests for any other Host.
func SecurityHeadersMiddleware(cfg config.SecurityHeaders) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(cfg.AllowedHosts))
	for _, h := range cfg.AllowedHosts {
		allowed[h] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer")
			if cfg.HSTSMaxAge > 0 {
				w.Header().Set("Strict-Transport-Security", fmt.Sprintf("max-age=%d; includeSubDomains", cfg.HSTSMaxAge))
			}
			if cfg.ContentSecurityPolicy != "" {
				w.Header().Set("Content-Security-Policy", cfg.ContentSecurityPolicy)
			}

			if len(allowed) > 0 && !hostAllowed(allowed, r.Host) {
				w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
				w.WriteHeader(http.StatusForbidden)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error":   "FORBIDDEN",
					"message": "Host not allowed",
					"code":    constants.ErrorCodeHostNotAllowed,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// hostAllowed matches either the full Host header or its hostname part.
func hostAllowed(allowed map[string]struct{}, host string) bool {
	if _, ok := allowed[host]; ok {
		return true
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		_, ok := allowed[h]
		return ok
	}
	return false
}
