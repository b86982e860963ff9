package events

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/leslieo2/go-probe-toggle/internal/config"
)

func subscribe(t *testing.T, ctx context.Context, url string) *bufio.Reader {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	return bufio.NewReader(resp.Body)
}

func nextData(t *testing.T, r *bufio.Reader) Change {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			var c Change
			require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(data)), &c))
			return c
		}
	}
}

func TestBroker_PublishReachesSubscriber(t *testing.T) {
	broker := NewBroker(config.DefaultEventsConfig(), zap.NewNop())
	srv := httptest.NewServer(broker)
	defer srv.Close()
	defer broker.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reader := subscribe(t, ctx, srv.URL+"/events")

	want := Change{Probe: "readiness", Value: false, Status: "not ready", Timestamp: "2026-01-01T00:00:00.000000Z"}
	require.NoError(t, broker.Publish(want))
	assert.Equal(t, want, nextData(t, reader))

	second := Change{Probe: "liveness", Value: false, Status: "unhealthy", Timestamp: "2026-01-01T00:00:01.000000Z"}
	require.NoError(t, broker.Publish(second))
	assert.Equal(t, second, nextData(t, reader))
}

func TestBroker_ReplaysToLateSubscribers(t *testing.T) {
	broker := NewBroker(config.EventsConfig{Enabled: true, Replay: true}, zap.NewNop())
	srv := httptest.NewServer(broker)
	defer srv.Close()
	defer broker.Close()

	change := Change{Probe: "liveness", Value: true, Status: "alive", Timestamp: "2026-01-01T00:00:00.000000Z"}
	require.NoError(t, broker.Publish(change))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reader := subscribe(t, ctx, srv.URL+"/events")
	assert.Equal(t, change, nextData(t, reader))
}

func TestBroker_UnknownStream(t *testing.T) {
	broker := NewBroker(config.DefaultEventsConfig(), zap.NewNop())
	defer broker.Close()

	rr := httptest.NewRecorder()
	broker.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/events?stream=other", nil))

	assert.NotEqual(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Stream not found")
}
