package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leslieo2/go-probe-toggle/internal/config"
	"github.com/leslieo2/go-probe-toggle/internal/constants"
	"github.com/leslieo2/go-probe-toggle/internal/health"
	"github.com/leslieo2/go-probe-toggle/internal/observability"
)

var fixedTime = time.Date(2026, 3, 1, 12, 30, 45, 123456789, time.UTC)

const fixedStamp = "2026-03-01T12:30:45.123456Z"

func newTestServer(t *testing.T, mutate ...func(*config.Config)) (*Server, http.Handler) {
	t.Helper()

	cfg := config.DefaultConfig()
	for _, m := range mutate {
		m(cfg)
	}

	s, err := New(cfg, health.NewState(),
		WithLogger(observability.NewNopLogger()),
		WithClock(func() time.Time { return fixedTime }),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.shutdown() })

	return s, s.Handler()
}

func do(h http.Handler, method, target string, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for _, m := range mutate {
		m(req)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestNew_RequiresState(t *testing.T) {
	_, err := New(config.DefaultConfig(), nil, WithLogger(observability.NewNopLogger()))
	assert.Error(t, err)
}

func TestReadinessScenario(t *testing.T) {
	_, h := newTestServer(t)

	rr := do(h, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ready","timestamp":"`+fixedStamp+`","message":"Application is ready to serve traffic"}`, rr.Body.String())

	rr = do(h, http.MethodPost, "/toggle-readiness")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"message":"Readiness toggled to: not ready","ready":false,"timestamp":"`+fixedStamp+`"}`, rr.Body.String())

	rr = do(h, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.JSONEq(t, `{"status":"not ready","timestamp":"`+fixedStamp+`","message":"Application is not ready to serve traffic"}`, rr.Body.String())

	rr = do(h, http.MethodGet, "/toggle-readiness")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"message":"Readiness toggled to: ready","ready":true,"timestamp":"`+fixedStamp+`"}`, rr.Body.String())

	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/healthz").Code)
}

func TestLivenessScenario(t *testing.T) {
	_, h := newTestServer(t)

	rr := do(h, http.MethodGet, "/failcheck")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"alive","timestamp":"`+fixedStamp+`","message":"Application is alive and healthy"}`, rr.Body.String())

	rr = do(h, http.MethodGet, "/toggle-liveness")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"message":"Liveness toggled to: unhealthy","alive":false,"timestamp":"`+fixedStamp+`"}`, rr.Body.String())

	rr = do(h, http.MethodGet, "/failcheck")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"status":"unhealthy","timestamp":"`+fixedStamp+`","message":"Application is not healthy"}`, rr.Body.String())

	// readiness is independent of liveness
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/healthz").Code)

	rr = do(h, http.MethodPost, "/toggle-liveness")
	assert.JSONEq(t, `{"message":"Liveness toggled to: alive","alive":true,"timestamp":"`+fixedStamp+`"}`, rr.Body.String())
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/failcheck").Code)
}

func TestToggleParity(t *testing.T) {
	for _, n := range []int{0, 1, 2, 7, 10} {
		s, h := newTestServer(t)
		for i := 0; i < n; i++ {
			require.Equal(t, http.StatusOK, do(h, http.MethodPost, "/toggle-readiness").Code)
		}

		wantReady := n%2 == 0
		assert.Equal(t, wantReady, s.State().Ready(), "after %d toggles", n)
		assert.True(t, s.State().Alive(), "liveness must not move")

		want := http.StatusOK
		if !wantReady {
			want = http.StatusServiceUnavailable
		}
		assert.Equal(t, want, do(h, http.MethodGet, "/healthz").Code, "after %d toggles", n)
	}
}

func TestConcurrentToggles(t *testing.T) {
	s, h := newTestServer(t)

	const n = 100
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = map[bool]int{}
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rr := do(h, http.MethodPost, "/toggle-liveness")
			var body LivenessToggleResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			results[body.Alive]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, n/2, results[true])
	assert.Equal(t, n/2, results[false])
	assert.True(t, s.State().Alive(), "an even number of toggles restores the initial value")
	assert.True(t, s.State().Ready())
}

func TestRouting(t *testing.T) {
	_, h := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{name: "unknown path", method: http.MethodGet, path: "/nope", want: http.StatusNotFound},
		{name: "post to readiness probe", method: http.MethodPost, path: "/healthz", want: http.StatusMethodNotAllowed},
		{name: "put to liveness probe", method: http.MethodPut, path: "/failcheck", want: http.StatusMethodNotAllowed},
		{name: "delete toggle", method: http.MethodDelete, path: "/toggle-readiness", want: http.StatusMethodNotAllowed},
		{name: "head readiness probe", method: http.MethodHead, path: "/healthz", want: http.StatusOK},
		{name: "index", method: http.MethodGet, path: "/", want: http.StatusOK},
		{name: "api document", method: http.MethodGet, path: "/openapi.json", want: http.StatusOK},
		{name: "metrics", method: http.MethodGet, path: "/metrics", want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(h, tt.method, tt.path)
			assert.Equal(t, tt.want, rr.Code)
			if tt.want == http.StatusMethodNotAllowed {
				assert.NotEmpty(t, rr.Header().Get("Allow"))
			}
		})
	}
}

func TestTimestampIsCurrentUTC(t *testing.T) {
	s, err := New(config.DefaultConfig(), health.NewState(), WithLogger(observability.NewNopLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.shutdown() })
	h := s.Handler()

	before := time.Now().UTC().Truncate(time.Microsecond)
	rr := do(h, http.MethodGet, "/failcheck")
	after := time.Now().UTC()

	var body ProbeResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.True(t, strings.HasSuffix(body.Timestamp, "Z"))

	ts, err := time.Parse(constants.TimestampLayout, body.Timestamp)
	require.NoError(t, err)
	assert.False(t, ts.Before(before), "timestamp %s before request", body.Timestamp)
	assert.False(t, ts.After(after), "timestamp %s after request", body.Timestamp)
}

func TestSimulatedDelay(t *testing.T) {
	_, h := newTestServer(t)

	start := time.Now()
	rr := do(h, http.MethodGet, "/healthz?__delay=50")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestToggleAuth(t *testing.T) {
	const key = "test-key-123"
	_, h := newTestServer(t, func(c *config.Config) {
		c.Security.Auth.Enabled = true
		c.Security.Auth.Keys = []config.APIKeyConfig{{Key: key, Name: "ci", Enabled: true}}
	})
	withKey := func(r *http.Request) { r.Header.Set("X-API-Key", key) }

	rr := do(h, http.MethodPost, "/toggle-readiness")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "UNAUTHORIZED")

	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodGet, "/toggle-liveness", func(r *http.Request) {
		r.Header.Set("X-API-Key", "wrong")
	}).Code)

	// probes never require a key
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/healthz").Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/failcheck").Code)

	assert.Equal(t, http.StatusOK, do(h, http.MethodPost, "/toggle-readiness", withKey).Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(h, http.MethodGet, "/healthz").Code)
}

func TestToggleRateLimit(t *testing.T) {
	_, h := newTestServer(t, func(c *config.Config) {
		c.Security.RateLimit.Enabled = true
		c.Security.RateLimit.Strategy = constants.RateLimitStrategyIP
		c.Security.RateLimit.Global = config.RateLimit{RequestsPerSecond: 1, BurstSize: 1}
	})

	assert.Equal(t, http.StatusOK, do(h, http.MethodPost, "/toggle-readiness").Code)

	rr := do(h, http.MethodPost, "/toggle-readiness")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	// a rejected toggle leaves state alone and probes are not limited
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusServiceUnavailable, do(h, http.MethodGet, "/healthz").Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, h := newTestServer(t)

	do(h, http.MethodGet, "/healthz")
	do(h, http.MethodPost, "/toggle-readiness")
	do(h, http.MethodGet, "/healthz")

	rr := do(h, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()

	assert.Contains(t, body, "probe_ready 0")
	assert.Contains(t, body, "probe_alive 1")
	assert.Contains(t, body, `probe_toggles_total{probe="readiness"} 1`)
	assert.Contains(t, body, `http_requests_total{endpoint="/healthz",method="GET",status_code="200"} 1`)
	assert.Contains(t, body, `http_requests_total{endpoint="/healthz",method="GET",status_code="503"} 1`)
	assert.Contains(t, body, `http_requests_total{endpoint="/toggle-readiness",method="POST",status_code="200"} 1`)
}

func TestMetricsDisabled(t *testing.T) {
	_, h := newTestServer(t, func(c *config.Config) {
		c.Observability.Metrics.Enabled = false
	})
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/metrics").Code)
}

func TestIndexDocument(t *testing.T) {
	_, h := newTestServer(t)
	do(h, http.MethodPost, "/toggle-liveness")

	rr := do(h, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, rr.Code)

	var doc indexDocument
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &doc))

	assert.Equal(t, constants.ServiceName, doc.Service)
	assert.NotEmpty(t, doc.Version)
	assert.Equal(t, health.Snapshot{Ready: true, Alive: false}, doc.Probes)
	assert.Equal(t, fixedStamp, doc.StartedAt)
	assert.Equal(t, "0s", doc.Uptime)
	assert.Equal(t, "/metrics", doc.Observability.Metrics)
	assert.Equal(t, "/events", doc.Observability.Events)
	assert.Equal(t, "/openapi.json", doc.Observability.APIDoc)

	paths := map[string]bool{}
	for _, e := range doc.Endpoints {
		paths[e.Method+" "+e.Path] = true
	}
	for _, want := range []string{"GET /healthz", "GET /failcheck", "POST /toggle-readiness", "GET /toggle-liveness"} {
		assert.True(t, paths[want], "index should list %s", want)
	}
}

func TestAPIDocument(t *testing.T) {
	_, h := newTestServer(t)

	rr := do(h, http.MethodGet, "/openapi.json")
	require.Equal(t, http.StatusOK, rr.Code)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &doc))
	assert.Equal(t, "3.0.3", doc["openapi"])
	assert.Contains(t, doc["paths"], "/healthz")
}

func TestSecurityHeadersApplied(t *testing.T) {
	_, h := newTestServer(t)

	rr := do(h, http.MethodGet, "/healthz")
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
}

func TestStart_GracefulShutdown(t *testing.T) {
	s, _ := newTestServer(t, func(c *config.Config) {
		c.Server.Host = "127.0.0.1"
		c.Server.Port = "0"
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancellation")
	}
}

func TestStart_ListenerFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	_, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)

	s, _ := newTestServer(t, func(c *config.Config) {
		c.Server.Host = "127.0.0.1"
		c.Server.Port = port
	})

	done := make(chan error, 1)
	go func() { done <- s.Start(context.Background()) }()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start should fail when the port is taken")
	}
}
