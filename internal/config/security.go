package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/leslieo2/go-probe-toggle/internal/constants"
)

// SecurityConfig contains security-related configuration. Auth and rate
// limiting only guard the toggle endpoints; probes must stay reachable by
// the orchestrator without credentials.
type SecurityConfig struct {
	Auth      AuthConfig      `json:"auth" yaml:"auth"`
	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`
	Headers   SecurityHeaders `json:"headers" yaml:"headers"`
	CORS      CORSConfig      `json:"cors" yaml:"cors"`
}

// AuthConfig contains authentication configuration
type AuthConfig struct {
	Enabled        bool           `json:"enabled" yaml:"enabled"`
	HeaderName     string         `json:"header_name" yaml:"header_name"`
	QueryParamName string         `json:"query_param_name" yaml:"query_param_name"`
	Keys           []APIKeyConfig `json:"keys" yaml:"keys"`
}

// APIKeyConfig represents an API key configuration
type APIKeyConfig struct {
	Key       string            `json:"key" yaml:"key"`
	Name      string            `json:"name" yaml:"name"`
	Enabled   bool              `json:"enabled" yaml:"enabled"`
	CreatedAt time.Time         `json:"created_at" yaml:"created_at"`
	ExpiresAt *time.Time        `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled         bool                 `json:"enabled" yaml:"enabled"`
	Strategy        string               `json:"strategy" yaml:"strategy"` // "ip", "api_key", "both"
	Global          RateLimit            `json:"global" yaml:"global"`
	ByIP            *RateLimit           `json:"by_ip,omitempty" yaml:"by_ip,omitempty"`
	ByAPIKey        map[string]RateLimit `json:"by_api_key,omitempty" yaml:"by_api_key,omitempty"`
	CleanupInterval time.Duration        `json:"cleanup_interval" yaml:"cleanup_interval"`
	MaxCacheSize    int                  `json:"max_cache_size" yaml:"max_cache_size"`
}

// RateLimit contains rate limit settings for a specific entity
type RateLimit struct {
	RequestsPerSecond int `json:"requests_per_second" yaml:"requests_per_second"`
	BurstSize         int `json:"burst_size" yaml:"burst_size"`
}

// SecurityHeaders contains security headers configuration
type SecurityHeaders struct {
	Enabled               bool     `json:"enabled" yaml:"enabled"`
	ContentSecurityPolicy string   `json:"content_security_policy" yaml:"content_security_policy"`
	HSTSMaxAge            int      `json:"hsts_max_age" yaml:"hsts_max_age"`
	AllowedHosts          []string `json:"allowed_hosts" yaml:"allowed_hosts"`
}

// CORSConfig contains CORS configuration
type CORSConfig struct {
	Enabled          bool     `json:"enabled" yaml:"enabled"`
	AllowedOrigins   []string `json:"allowed_origins" yaml:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods" yaml:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers" yaml:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials" yaml:"allow_credentials"`
	MaxAge           int      `json:"max_age" yaml:"max_age"`
}

// DefaultSecurityConfig returns default security configuration
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		Auth:      DefaultAuthConfig(),
		RateLimit: DefaultRateLimitConfig(),
		Headers: SecurityHeaders{
			Enabled:               true,
			ContentSecurityPolicy: "default-src 'none'",
			HSTSMaxAge:            31536000, // 1 year
			AllowedHosts:          []string{},
		},
		CORS: DefaultCORSConfig(),
	}
}

// DefaultAuthConfig returns default authentication configuration
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		Enabled:        false,
		HeaderName:     constants.HeaderAPIKey,
		QueryParamName: constants.QueryParamAPIKey,
		Keys:           []APIKeyConfig{},
	}
}

// DefaultRateLimitConfig returns default rate limiting configuration
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:  false,
		Strategy: constants.RateLimitStrategyIP,
		Global: RateLimit{
			RequestsPerSecond: 10,
			BurstSize:         20,
		},
		CleanupInterval: constants.RateLimitCleanupInterval,
		MaxCacheSize:    constants.RateLimitMaxCacheSize,
	}
}

// DefaultCORSConfig returns default CORS configuration
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		Enabled:          true,
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-API-Key", "X-Requested-With"},
		AllowCredentials: false,
		MaxAge:           86400, // 24 hours
	}
}

// Validate validates the security configuration
func (c *SecurityConfig) Validate() error {
	var errs []error

	if c.Auth.Enabled {
		if c.Auth.HeaderName == "" && c.Auth.QueryParamName == "" {
			errs = append(errs, errors.New("auth: either header_name or query_param_name must be set when auth is enabled"))
		}
		for i, key := range c.Auth.Keys {
			if key.Key == "" {
				errs = append(errs, fmt.Errorf("auth: keys[%d].key cannot be empty", i))
			}
		}
	}

	if c.RateLimit.Enabled {
		switch c.RateLimit.Strategy {
		case constants.RateLimitStrategyIP, constants.RateLimitStrategyAPIKey, constants.RateLimitStrategyBoth:
		default:
			errs = append(errs, fmt.Errorf("rate_limit: invalid strategy %q, must be one of: ip, api_key, both", c.RateLimit.Strategy))
		}
		if err := c.RateLimit.Global.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("rate_limit.global: %w", err))
		}
		if c.RateLimit.ByIP != nil {
			if err := c.RateLimit.ByIP.Validate(); err != nil {
				errs = append(errs, fmt.Errorf("rate_limit.by_ip: %w", err))
			}
		}
		for name, limit := range c.RateLimit.ByAPIKey {
			if err := limit.Validate(); err != nil {
				errs = append(errs, fmt.Errorf("rate_limit.by_api_key[%s]: %w", name, err))
			}
		}
	}

	if c.CORS.Enabled {
		if len(c.CORS.AllowedOrigins) == 0 {
			errs = append(errs, errors.New("cors: allowed_origins must not be empty when CORS is enabled"))
		}
		for _, origin := range c.CORS.AllowedOrigins {
			if origin == "" {
				errs = append(errs, errors.New("cors: allowed_origins cannot contain empty strings"))
				break
			}
		}
		if c.CORS.MaxAge < 0 {
			errs = append(errs, errors.New("cors: max_age must be non-negative"))
		}
	}

	if c.Headers.HSTSMaxAge < 0 {
		errs = append(errs, errors.New("headers: hsts_max_age must be non-negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate validates a single rate limit
func (r RateLimit) Validate() error {
	if r.RequestsPerSecond <= 0 {
		return errors.New("requests_per_second must be positive")
	}
	if r.BurstSize <= 0 {
		return errors.New("burst_size must be positive")
	}
	return nil
}
