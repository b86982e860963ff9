package server

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/leslieo2/go-probe-toggle/internal/apidoc"
	"github.com/leslieo2/go-probe-toggle/internal/constants"
	"github.com/leslieo2/go-probe-toggle/internal/events"
	"github.com/leslieo2/go-probe-toggle/internal/health"
)

// readinessHandler answers the readiness probe: 200 while ready, 503 otherwise.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	_, span := s.tracer.StartSpan(r.Context(), "probe.readiness")
	defer span.End()

	ready := s.state.Ready()
	resp := ProbeResponse{
		Status:    readinessStatus(ready),
		Timestamp: formatTimestamp(s.now()),
		Message:   msgReady,
	}
	statusCode := http.StatusOK
	if !ready {
		resp.Message = msgNotReady
		statusCode = http.StatusServiceUnavailable
	}
	span.SetAttributes(attribute.Bool("probe.ready", ready))

	s.sendJSONResponse(w, statusCode, resp)

	s.logger.Debug("Readiness probe served",
		zap.Bool("ready", ready),
		zap.String("remote_addr", r.RemoteAddr),
	)
}

// livenessHandler answers the liveness probe: 200 while alive, 500 otherwise.
func (s *Server) livenessHandler(w http.ResponseWriter, r *http.Request) {
	_, span := s.tracer.StartSpan(r.Context(), "probe.liveness")
	defer span.End()

	alive := s.state.Alive()
	resp := ProbeResponse{
		Status:    livenessStatus(alive),
		Timestamp: formatTimestamp(s.now()),
		Message:   msgAlive,
	}
	statusCode := http.StatusOK
	if !alive {
		resp.Message = msgUnhealthy
		statusCode = http.StatusInternalServerError
	}
	span.SetAttributes(attribute.Bool("probe.alive", alive))

	s.sendJSONResponse(w, statusCode, resp)

	s.logger.Debug("Liveness probe served",
		zap.Bool("alive", alive),
		zap.String("remote_addr", r.RemoteAddr),
	)
}

func (s *Server) toggleReadinessHandler(w http.ResponseWriter, r *http.Request) {
	_, span := s.tracer.StartSpan(r.Context(), "probe.toggle_readiness")
	defer span.End()

	ready := s.state.ToggleReadiness()
	status := readinessStatus(ready)
	timestamp := formatTimestamp(s.now())
	span.SetAttributes(attribute.Bool("probe.ready", ready))

	s.metrics.RecordToggle(constants.ProbeReadiness)
	s.publish(events.Change{Probe: constants.ProbeReadiness, Value: ready, Status: status, Timestamp: timestamp})

	s.logger.Info("Readiness toggled",
		zap.Bool("ready", ready),
		zap.String("method", r.Method),
		zap.String("remote_addr", r.RemoteAddr),
	)

	s.sendJSONResponse(w, http.StatusOK, ReadinessToggleResponse{
		Message:   "Readiness toggled to: " + status,
		Ready:     ready,
		Timestamp: timestamp,
	})
}

func (s *Server) toggleLivenessHandler(w http.ResponseWriter, r *http.Request) {
	_, span := s.tracer.StartSpan(r.Context(), "probe.toggle_liveness")
	defer span.End()

	alive := s.state.ToggleLiveness()
	status := livenessStatus(alive)
	timestamp := formatTimestamp(s.now())
	span.SetAttributes(attribute.Bool("probe.alive", alive))

	s.metrics.RecordToggle(constants.ProbeLiveness)
	s.publish(events.Change{Probe: constants.ProbeLiveness, Value: alive, Status: status, Timestamp: timestamp})

	s.logger.Info("Liveness toggled",
		zap.Bool("alive", alive),
		zap.String("method", r.Method),
		zap.String("remote_addr", r.RemoteAddr),
	)

	s.sendJSONResponse(w, http.StatusOK, LivenessToggleResponse{
		Message:   "Liveness toggled to: " + status,
		Alive:     alive,
		Timestamp: timestamp,
	})
}

func (s *Server) publish(change events.Change) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(change); err != nil {
		s.logger.Warn("Failed to publish probe event", zap.String("probe", change.Probe), zap.Error(err))
	}
}

type indexDocument struct {
	Service       string          `json:"service"`
	Version       string          `json:"version"`
	Probes        health.Snapshot `json:"probes"`
	StartedAt     string          `json:"started_at"`
	Uptime        string          `json:"uptime"`
	Endpoints     []apidoc.Route  `json:"endpoints"`
	Observability struct {
		Metrics string `json:"metrics,omitempty"`
		Events  string `json:"events,omitempty"`
		APIDoc  string `json:"api_doc"`
	} `json:"observability"`
}

// indexHandler serves a JSON overview of the service and current probe state.
func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	_, span := s.tracer.StartSpan(r.Context(), "index")
	defer span.End()

	now := s.now()
	doc := indexDocument{
		Service:   s.apiDoc.Title(),
		Version:   s.apiDoc.Version(),
		Probes:    s.state.Snapshot(),
		StartedAt: formatTimestamp(s.startTime),
		Uptime:    now.Sub(s.startTime).Truncate(time.Second).String(),
		Endpoints: s.apiDoc.Routes(),
	}
	doc.Observability.APIDoc = constants.PathAPIDoc
	if s.config.Observability.Metrics.Enabled {
		doc.Observability.Metrics = s.config.Observability.Metrics.Path
	}
	if s.events != nil {
		doc.Observability.Events = constants.PathEvents
	}

	s.sendJSONResponse(w, http.StatusOK, doc)

	s.logger.Debug("Index served",
		zap.String("path", r.URL.Path),
		zap.Int("routes", len(doc.Endpoints)),
	)
}
