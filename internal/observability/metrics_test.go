package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeProbeState struct {
	ready, alive bool
}

func (f *fakeProbeState) Ready() bool { return f.ready }
func (f *fakeProbeState) Alive() bool { return f.alive }

func TestNewMetrics(t *testing.T) {
	metrics := NewMetrics()

	if metrics.RequestCount == nil || metrics.RequestDuration == nil || metrics.ResponseSize == nil {
		t.Fatal("request collectors not initialized")
	}
	if metrics.InFlight == nil {
		t.Error("InFlight gauge is nil")
	}
	if metrics.ProbeToggles == nil {
		t.Error("ProbeToggles counter is nil")
	}
	if metrics.Registry() == nil {
		t.Error("Registry() returned nil")
	}
}

func TestMetrics_RecordRequest(t *testing.T) {
	metrics := NewMetrics()

	metrics.RecordRequest("GET", "/healthz", 200, 5*time.Millisecond, 60)
	metrics.RecordRequest("GET", "/healthz", 200, 5*time.Millisecond, 60)
	metrics.RecordRequest("GET", "/healthz", 503, 5*time.Millisecond, 64)

	if got := testutil.ToFloat64(metrics.RequestCount.WithLabelValues("GET", "/healthz", "200")); got != 2 {
		t.Errorf("http_requests_total{200} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.RequestCount.WithLabelValues("GET", "/healthz", "503")); got != 1 {
		t.Errorf("http_requests_total{503} = %v, want 1", got)
	}
}

func TestMetrics_RecordToggle(t *testing.T) {
	metrics := NewMetrics()

	metrics.RecordToggle("readiness")
	metrics.RecordToggle("readiness")
	metrics.RecordToggle("liveness")

	if got := testutil.ToFloat64(metrics.ProbeToggles.WithLabelValues("readiness")); got != 2 {
		t.Errorf("probe_toggles_total{readiness} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.ProbeToggles.WithLabelValues("liveness")); got != 1 {
		t.Errorf("probe_toggles_total{liveness} = %v, want 1", got)
	}
}

func TestMetrics_RegisterProbeState(t *testing.T) {
	metrics := NewMetrics()
	state := &fakeProbeState{ready: true, alive: false}

	if err := metrics.RegisterProbeState(state); err != nil {
		t.Fatalf("RegisterProbeState() error = %v", err)
	}

	expected := `
# HELP probe_alive Liveness flag (1 = alive, 0 = unhealthy)
# TYPE probe_alive gauge
probe_alive 0
# HELP probe_ready Readiness flag (1 = ready, 0 = not ready)
# TYPE probe_ready gauge
probe_ready 1
`
	if err := testutil.GatherAndCompare(metrics.Registry(), strings.NewReader(expected), "probe_ready", "probe_alive"); err != nil {
		t.Errorf("unexpected gauge values: %v", err)
	}

	state.ready = false
	state.alive = true
	expected = `
# HELP probe_alive Liveness flag (1 = alive, 0 = unhealthy)
# TYPE probe_alive gauge
probe_alive 1
# HELP probe_ready Readiness flag (1 = ready, 0 = not ready)
# TYPE probe_ready gauge
probe_ready 0
`
	if err := testutil.GatherAndCompare(metrics.Registry(), strings.NewReader(expected), "probe_ready", "probe_alive"); err != nil {
		t.Errorf("gauges should follow state changes: %v", err)
	}

	if err := metrics.RegisterProbeState(state); err == nil {
		t.Error("Expected duplicate registration to fail")
	}
}

func TestMetrics_Handler(t *testing.T) {
	metrics := NewMetrics()
	metrics.RecordToggle("liveness")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status code 200, got %d", w.Code)
	}

	contentType := w.Header().Get("Content-Type")
	if !strings.Contains(contentType, "text/plain") {
		t.Errorf("Expected Content-Type to contain 'text/plain', got %s", contentType)
	}

	body, _ := io.ReadAll(w.Body)
	for _, want := range []string{`probe_toggles_total{probe="liveness"} 1`, "go_goroutines"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("Expected metrics output to contain %q", want)
		}
	}
}

func TestMetrics_ConcurrentAccess(t *testing.T) {
	metrics := NewMetrics()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				metrics.RecordRequest("POST", "/toggle-readiness", 200, time.Millisecond, 90)
				metrics.RecordToggle("readiness")
			}
		}()
	}
	wg.Wait()

	if got := testutil.ToFloat64(metrics.ProbeToggles.WithLabelValues("readiness")); got != 1000 {
		t.Errorf("probe_toggles_total{readiness} = %v, want 1000", got)
	}
}
