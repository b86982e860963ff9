package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ProbeState is the read side of the probe flags exported as gauges.
type ProbeState interface {
	Ready() bool
	Alive() bool
}

type Metrics struct {
	RequestCount    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec
	InFlight        prometheus.Gauge
	ProbeToggles    *prometheus.CounterVec

	registry *prometheus.Registry
	handler  http.Handler
}

// NewMetrics creates the collectors and registers them on a private registry
// together with the Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		RequestCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint", "status_code"},
		),
		ResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(16, 4, 6),
			},
			[]string{"method", "endpoint", "status_code"},
		),
		InFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being served",
			},
		),
		ProbeToggles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "probe_toggles_total",
				Help: "Number of times a probe flag was flipped",
			},
			[]string{"probe"},
		),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.RequestCount,
		m.RequestDuration,
		m.ResponseSize,
		m.InFlight,
		m.ProbeToggles,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m.handler = promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})

	return m
}

// RegisterProbeState exports the current probe flags as probe_ready and
// probe_alive gauges (1 or 0). The gauges are read at scrape time.
func (m *Metrics) RegisterProbeState(state ProbeState) error {
	ready := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "probe_ready",
			Help: "Readiness flag (1 = ready, 0 = not ready)",
		},
		func() float64 { return boolToFloat(state.Ready()) },
	)
	alive := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "probe_alive",
			Help: "Liveness flag (1 = alive, 0 = unhealthy)",
		},
		func() float64 { return boolToFloat(state.Alive()) },
	)

	if err := m.registry.Register(ready); err != nil {
		return err
	}
	return m.registry.Register(alive)
}

func (m *Metrics) RecordRequest(method, endpoint string, statusCode int, duration time.Duration, responseSize int64) {
	status := strconv.Itoa(statusCode)

	m.RequestCount.WithLabelValues(method, endpoint, status).Inc()
	m.RequestDuration.WithLabelValues(method, endpoint, status).Observe(duration.Seconds())
	m.ResponseSize.WithLabelValues(method, endpoint, status).Observe(float64(responseSize))
}

func (m *Metrics) RecordToggle(probe string) {
	m.ProbeToggles.WithLabelValues(probe).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return m.handler
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
