package constants

import "time"

// ServiceName is reported in the index document, logs and traces
const ServiceName = "probe-toggle"

// Environment variable constants
const (
	// EnvPort is the platform-provided port variable; PROBE_TOGGLE_PORT wins over it
	EnvPort = "PORT"

	EnvHost              = "PROBE_TOGGLE_HOST"
	EnvServicePort       = "PROBE_TOGGLE_PORT"
	EnvMetricsPort       = "PROBE_TOGGLE_METRICS_PORT"
	EnvReadTimeout       = "PROBE_TOGGLE_READ_TIMEOUT"
	EnvWriteTimeout      = "PROBE_TOGGLE_WRITE_TIMEOUT"
	EnvIdleTimeout       = "PROBE_TOGGLE_IDLE_TIMEOUT"
	EnvMaxRequestSize    = "PROBE_TOGGLE_MAX_REQUEST_SIZE"
	EnvShutdownTimeout   = "PROBE_TOGGLE_SHUTDOWN_TIMEOUT"
	EnvMaxDelay          = "PROBE_TOGGLE_MAX_DELAY"
	EnvLogLevel          = "PROBE_TOGGLE_LOG_LEVEL"
	EnvLogFormat         = "PROBE_TOGGLE_LOG_FORMAT"
	EnvAuthEnabled       = "PROBE_TOGGLE_AUTH_ENABLED"
	EnvRateLimitEnabled  = "PROBE_TOGGLE_RATE_LIMIT_ENABLED"
	EnvRateLimitRPS      = "PROBE_TOGGLE_RATE_LIMIT_RPS"
	EnvHotReload         = "PROBE_TOGGLE_HOT_RELOAD"
	EnvHotReloadDebounce = "PROBE_TOGGLE_HOT_RELOAD_DEBOUNCE"
	EnvTracingEnabled    = "PROBE_TOGGLE_TRACING_ENABLED"
	EnvEventsEnabled     = "PROBE_TOGGLE_EVENTS_ENABLED"
)

// Route constants
const (
	PathIndex           = "/"
	PathReadiness       = "/healthz"
	PathLiveness        = "/failcheck"
	PathToggleReadiness = "/toggle-readiness"
	PathToggleLiveness  = "/toggle-liveness"
	PathMetrics         = "/metrics"
	PathAPIDoc          = "/openapi.json"
	PathEvents          = "/events"
)

// Probe status values written to the "status" field
const (
	StatusReady     = "ready"
	StatusNotReady  = "not ready"
	StatusAlive     = "alive"
	StatusUnhealthy = "unhealthy"
)

// Probe names used in metrics labels, events and log fields
const (
	ProbeReadiness = "readiness"
	ProbeLiveness  = "liveness"
)

// TimestampLayout is the wire format of every "timestamp" field.
// Values are always rendered in UTC with microsecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// HTTP header constants
const (
	HeaderAuthorization  = "Authorization"
	HeaderContentType    = "Content-Type"
	HeaderAPIKey         = "X-API-Key"
	HeaderOrigin         = "Origin"
	HeaderXForwardedFor  = "X-Forwarded-For"
	HeaderXRealIP        = "X-Real-IP"
	HeaderCacheControl   = "Cache-Control"
	HeaderAllow          = "Allow"
	HeaderXRequestedWith = "X-Requested-With"
)

// Content type constants
const (
	ContentTypeJSON = "application/json"
)

// CORS headers
const (
	HeaderAccessControlAllowOrigin      = "Access-Control-Allow-Origin"
	HeaderAccessControlAllowMethods     = "Access-Control-Allow-Methods"
	HeaderAccessControlAllowHeaders     = "Access-Control-Allow-Headers"
	HeaderAccessControlAllowCredentials = "Access-Control-Allow-Credentials"
	HeaderAccessControlMaxAge           = "Access-Control-Max-Age"
)

// Authentication constants
const (
	BearerPrefix      = "Bearer "
	QueryParamAPIKey  = "api_key"
	DefaultAPIKeySize = 32
)

// Rate limiting strategy constants
const (
	RateLimitStrategyIP     = "ip"
	RateLimitStrategyAPIKey = "api_key"
	RateLimitStrategyBoth   = "both"
)

// Rate limiting headers
const (
	HeaderXRateLimitLimit     = "X-RateLimit-Limit"
	HeaderXRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderXRateLimitReset     = "X-RateLimit-Reset"
	HeaderRetryAfter          = "Retry-After"
)

// Rate limiter internal constants
const (
	// RateLimitCleanupInterval is the interval for cleaning up rate limit cache
	RateLimitCleanupInterval = 5 * time.Minute
	// RateLimitMaxCacheSize is the maximum size of the rate limit cache
	RateLimitMaxCacheSize = 10000
)

// Error code constants
const (
	ErrorCodeUnauthorized      = "UNAUTHORIZED"
	ErrorCodeInvalidAPIKey     = "INVALID_API_KEY"
	ErrorCodeAPIKeyExpired     = "API_KEY_EXPIRED"
	ErrorCodeAPIKeyDisabled    = "API_KEY_DISABLED"
	ErrorCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	ErrorCodeRequestTooLarge   = "REQUEST_TOO_LARGE"
	ErrorCodeHostNotAllowed    = "HOST_NOT_ALLOWED"
)

// Query parameter constants
const (
	QueryParamDelay  = "__delay"
	QueryParamStream = "stream"
)

// EventStreamProbes is the SSE stream carrying probe state changes
const EventStreamProbes = "probes"
