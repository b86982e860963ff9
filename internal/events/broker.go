// Package events publishes probe state changes as server-sent events.
package events

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/r3labs/sse/v2"
	"go.uber.org/zap"

	"github.com/leslieo2/go-probe-toggle/internal/config"
	"github.com/leslieo2/go-probe-toggle/internal/constants"
)

// Change is the payload of one event on the probes stream.
type Change struct {
	Probe     string `json:"probe"`
	Value     bool   `json:"value"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type Broker struct {
	server *sse.Server
	logger *zap.Logger
}

func NewBroker(cfg config.EventsConfig, logger *zap.Logger) *Broker {
	server := sse.New()
	server.AutoStream = false
	server.AutoReplay = cfg.Replay
	server.CreateStream(constants.EventStreamProbes)

	return &Broker{server: server, logger: logger}
}

func (b *Broker) Publish(change Change) error {
	data, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	b.server.Publish(constants.EventStreamProbes, &sse.Event{Data: data})
	b.logger.Debug("Published probe event",
		zap.String("probe", change.Probe),
		zap.Bool("value", change.Value),
	)
	return nil
}

// ServeHTTP subscribes the client to the probes stream unless another stream
// is named in the query. The connection outlives the server write timeout.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get(constants.QueryParamStream) == "" {
		q := r.URL.Query()
		q.Set(constants.QueryParamStream, constants.EventStreamProbes)
		r.URL.RawQuery = q.Encode()
	}

	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		b.logger.Debug("Could not clear write deadline for event stream", zap.Error(err))
	}

	b.logger.Debug("Event stream client connected", zap.String("remote_addr", r.RemoteAddr))
	b.server.ServeHTTP(w, r)
	b.logger.Debug("Event stream client disconnected", zap.String("remote_addr", r.RemoteAddr))
}

// Close ends all open subscriptions.
func (b *Broker) Close() {
	b.server.Close()
}
