package relay

import (
	"net/http"
	"time"

	"github.com/DeBrosOfficial/stream-relay/pkg/bus"
	"github.com/DeBrosOfficial/stream-relay/pkg/errors"
	"github.com/DeBrosOfficial/stream-relay/pkg/httputil"
	"github.com/DeBrosOfficial/stream-relay/pkg/logging"
	"github.com/DeBrosOfficial/stream-relay/pkg/monitoring"
	"go.uber.org/zap"
)

// HealthResponse is served on /health.
type HealthResponse struct {
	Status      string    `json:"status"`
	Name        string    `json:"name"`
	Version     string    `json:"version,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	Uptime      string    `json:"uptime"`
	Connections int       `json:"connections"`
}

// StatusResponse is served on /v1/status.
type StatusResponse struct {
	HealthResponse
	Backend       string            `json:"backend"`
	Channel       string            `json:"channel"`
	SubscribePath string            `json:"subscribe_path"`
	PingInterval  string            `json:"ping_interval"`
	Host          *monitoring.Stats `json:"host,omitempty"`
}

// PublishResponse is returned by POST /v1/publish.
type PublishResponse struct {
	Channel  string `json:"channel"`
	Sequence uint64 `json:"sequence"`
}

func (s *Server) health() HealthResponse {
	return HealthResponse{
		Status:      "ok",
		Name:        s.name,
		Version:     s.version,
		StartedAt:   s.startedAt.UTC(),
		Uptime:      time.Since(s.startedAt).Round(time.Second).String(),
		Connections: s.registry.len(),
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, s.health())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		HealthResponse: s.health(),
		Backend:        s.connector.Name(),
		Channel:        s.cfg.Bus.Channel,
		SubscribePath:  s.cfg.Server.SubscribePath,
		PingInterval:   s.cfg.Server.PingInterval.String(),
	}
	if s.sampler != nil {
		if st := s.sampler.Latest(); !st.SampledAt.IsZero() {
			resp.Host = &st
		}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// handlePublish appends the request body to the configured channel. Only
// backends that accept publishes from the relay support it.
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	pub, ok := s.connector.(bus.Publisher)
	if !ok {
		httputil.WriteStatusError(w, http.StatusNotImplemented, "backend "+s.connector.Name()+" does not accept publishes")
		return
	}

	body, err := httputil.ReadJSONBody(r, httputil.DefaultMaxBody)
	if err != nil {
		if errors.IsValidation(err) {
			s.logger.ComponentDebug(logging.ComponentHTTP, "rejected publish body",
				zap.Error(err))
		} else {
			s.logger.ComponentWarn(logging.ComponentHTTP, "failed to read publish body",
				zap.Error(err))
		}
		httputil.WriteError(w, err)
		return
	}

	channel := s.cfg.Bus.Channel
	seq, err := pub.Publish(channel, body)
	if err != nil {
		s.logger.ComponentError(logging.ComponentBus, "publish failed",
			zap.String("channel", channel),
			zap.Error(err))
		httputil.WriteError(w, errors.NewBusError("publish", channel, err))
		return
	}

	s.logger.ComponentDebug(logging.ComponentBus, "published",
		zap.String("channel", channel),
		zap.Uint64("sequence", seq))
	httputil.WriteJSON(w, http.StatusCreated, PublishResponse{Channel: channel, Sequence: seq})
}
