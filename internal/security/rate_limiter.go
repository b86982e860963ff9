package security

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/leslieo2/go-probe-toggle/internal/config"
	"github.com/leslieo2/go-probe-toggle/internal/constants"
)

type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

// RateLimiter keeps one token bucket per client identifier in an expiring
// cache. Buckets idle for longer than twice the cleanup interval are dropped.
type RateLimiter struct {
	limiters *cache.Cache
	config   config.RateLimitConfig
	clock    Clock
	done     chan struct{}
}

type RateLimitStatus struct {
	Limit      int
	Remaining  int
	Reset      time.Time
	RetryAfter time.Duration
}

func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = constants.RateLimitCleanupInterval
	}
	if cfg.MaxCacheSize <= 0 {
		cfg.MaxCacheSize = constants.RateLimitMaxCacheSize
	}

	rl := &RateLimiter{
		limiters: cache.New(cfg.CleanupInterval, cfg.CleanupInterval*2),
		config:   cfg,
		clock:    RealClock{},
		done:     make(chan struct{}),
	}

	if cfg.Enabled {
		go rl.periodicCleanup()
	}

	return rl
}

// Stop ends the background size enforcement. It is safe to call once.
func (rl *RateLimiter) Stop() {
	select {
	case <-rl.done:
	default:
		close(rl.done)
	}
}

func (rl *RateLimiter) periodicCleanup() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.enforceMaxSize()
		}
	}
}

// enforceMaxSize evicts arbitrary buckets once the cache grows past
// MaxCacheSize, removing an extra 10% so it does not run on every tick.
func (rl *RateLimiter) enforceMaxSize() {
	maxSize := rl.config.MaxCacheSize
	currentSize := rl.limiters.ItemCount()
	if currentSize <= maxSize {
		return
	}

	toRemove := currentSize - maxSize + maxSize/10
	for key := range rl.limiters.Items() {
		if toRemove <= 0 {
			break
		}
		rl.limiters.Delete(key)
		toRemove--
	}
}

func (rl *RateLimiter) limiterFor(identifier string, limit config.RateLimit) *rate.Limiter {
	if item, found := rl.limiters.Get(identifier); found {
		return item.(*rate.Limiter)
	}
	limiter := rate.NewLimiter(rate.Limit(limit.RequestsPerSecond), limit.BurstSize)
	if err := rl.limiters.Add(identifier, limiter, cache.DefaultExpiration); err != nil {
		// Lost a race with a concurrent request for the same identifier.
		if item, found := rl.limiters.Get(identifier); found {
			return item.(*rate.Limiter)
		}
	}
	return limiter
}

// Allow consumes one token for identifier and reports whether the request may
// proceed, along with the bucket state after the attempt.
func (rl *RateLimiter) Allow(identifier string, limit config.RateLimit) (bool, RateLimitStatus) {
	now := rl.clock.Now()
	if !rl.config.Enabled {
		return true, RateLimitStatus{Limit: limit.BurstSize, Remaining: limit.BurstSize, Reset: now}
	}

	limiter := rl.limiterFor(identifier, limit)
	allowed := limiter.AllowN(now, 1)
	tokens := limiter.TokensAt(now)

	status := RateLimitStatus{
		Limit:     limit.BurstSize,
		Remaining: int(math.Max(0, math.Floor(tokens))),
		Reset:     now.Add(secondsToDuration((float64(limit.BurstSize) - tokens) / float64(limit.RequestsPerSecond))),
	}
	if !allowed {
		status.RetryAfter = secondsToDuration((1 - tokens) / float64(limit.RequestsPerSecond))
	}

	return allowed, status
}

func secondsToDuration(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.config.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		identifier := rl.getIdentifier(r)
		limit := rl.getRateLimit(identifier)

		allowed, status := rl.Allow(identifier, limit)

		w.Header().Set(constants.HeaderXRateLimitLimit, strconv.Itoa(status.Limit))
		w.Header().Set(constants.HeaderXRateLimitRemaining, strconv.Itoa(status.Remaining))
		w.Header().Set(constants.HeaderXRateLimitReset, strconv.FormatInt(status.Reset.Unix(), 10))

		if !allowed {
			retryAfter := int(math.Ceil(status.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set(constants.HeaderRetryAfter, strconv.Itoa(retryAfter))
			writeError(w, http.StatusTooManyRequests, errorResponse{
				Error:      constants.ErrorCodeRateLimitExceeded,
				Message:    fmt.Sprintf("Rate limit exceeded. Try again in %ds", retryAfter),
				Code:       constants.ErrorCodeRateLimitExceeded,
				RetryAfter: retryAfter,
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// getIdentifier prefers an API key already authenticated upstream and falls
// back to the raw header or query value.
func (rl *RateLimiter) getIdentifier(r *http.Request) string {
	apiKey := ""
	if key, ok := APIKeyFromContext(r.Context()); ok {
		apiKey = key.Key
	} else if key := r.Header.Get(constants.HeaderAPIKey); key != "" {
		apiKey = key
	} else if key := r.URL.Query().Get(constants.QueryParamAPIKey); key != "" {
		apiKey = key
	}

	switch rl.config.Strategy {
	case constants.RateLimitStrategyAPIKey:
		if apiKey != "" {
			return "api_key:" + apiKey
		}
	case constants.RateLimitStrategyBoth:
		identifier := "ip:" + getClientIP(r)
		if apiKey != "" {
			identifier += "|api_key:" + apiKey
		}
		return identifier
	}

	return "ip:" + getClientIP(r)
}

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get(constants.HeaderXForwardedFor); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get(constants.HeaderXRealIP); xri != "" {
		return strings.TrimSpace(xri)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (rl *RateLimiter) getRateLimit(identifier string) config.RateLimit {
	if rest, ok := strings.CutPrefix(identifier, "api_key:"); ok {
		if limit, exists := rl.config.ByAPIKey[rest]; exists {
			return limit
		}
	} else if _, after, ok := strings.Cut(identifier, "|api_key:"); ok {
		if limit, exists := rl.config.ByAPIKey[after]; exists {
			return limit
		}
	}

	if strings.HasPrefix(identifier, "ip:") && rl.config.ByIP != nil {
		return *rl.config.ByIP
	}

	return rl.config.Global
}
