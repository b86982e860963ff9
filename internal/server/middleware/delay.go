package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/leslieo2/go-probe-toggle/internal/constants"
)

// DelayMiddleware holds the response back for the duration given in the
// __delay query parameter, capped at maxDelay. A zero maxDelay disables it.
func DelayMiddleware(logger *zap.Logger, maxDelay time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			delayParam := r.URL.Query().Get(constants.QueryParamDelay)
			if delayParam == "" || maxDelay <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			delay, err := parseDelay(delayParam, maxDelay)
			if err != nil {
				logger.Warn("Invalid delay parameter",
					zap.String("delay", delayParam),
					zap.String("path", r.URL.Path),
					zap.Error(err),
				)
				next.ServeHTTP(w, r)
				return
			}

			if delay > 0 {
				timer := time.NewTimer(delay)
				select {
				case <-timer.C:
				case <-r.Context().Done():
					timer.Stop()
					logger.Debug("Request cancelled during delay",
						zap.String("path", r.URL.Path),
						zap.Duration("delay", delay),
					)
					return
				}

				logger.Debug("Applied response delay",
					zap.String("path", r.URL.Path),
					zap.Duration("delay", delay),
				)
			}

			next.ServeHTTP(w, r)
		})
	}
}

// parseDelay accepts a bare integer (milliseconds) or a Go duration string.
// Negative values mean no delay.
func parseDelay(delayStr string, maxDelay time.Duration) (time.Duration, error) {
	delayStr = strings.TrimSpace(delayStr)

	var delay time.Duration
	if ms, err := strconv.Atoi(delayStr); err == nil {
		delay = time.Duration(ms) * time.Millisecond
	} else {
		delay, err = time.ParseDuration(delayStr)
		if err != nil {
			return 0, err
		}
	}

	switch {
	case delay < 0:
		return 0, nil
	case delay > maxDelay:
		return maxDelay, nil
	}
	return delay, nil
}
