package server

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/leslieo2/go-probe-toggle/internal/constants"
)

// Probe messages
const (
	msgReady     = "Application is ready to serve traffic"
	msgNotReady  = "Application is not ready to serve traffic"
	msgAlive     = "Application is alive and healthy"
	msgUnhealthy = "Application is not healthy"
)

// ProbeResponse is the body of /healthz and /failcheck.
type ProbeResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
}

type ReadinessToggleResponse struct {
	Message   string `json:"message"`
	Ready     bool   `json:"ready"`
	Timestamp string `json:"timestamp"`
}

type LivenessToggleResponse struct {
	Message   string `json:"message"`
	Alive     bool   `json:"alive"`
	Timestamp string `json:"timestamp"`
}

func readinessStatus(ready bool) string {
	if ready {
		return constants.StatusReady
	}
	return constants.StatusNotReady
}

func livenessStatus(alive bool) string {
	if alive {
		return constants.StatusAlive
	}
	return constants.StatusUnhealthy
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(constants.TimestampLayout)
}

// sendJSONResponse encodes body with the given status code
func (s *Server) sendJSONResponse(w http.ResponseWriter, statusCode int, body any) {
	buf, err := json.Marshal(body)
	if err != nil {
		s.logger.Error("Failed to serialize response", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.Header().Set(constants.HeaderCacheControl, "no-store")
	w.WriteHeader(statusCode)
	_, _ = w.Write(buf)
}
