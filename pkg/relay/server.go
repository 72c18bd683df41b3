package relay

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/DeBrosOfficial/stream-relay/pkg/bus"
	"github.com/DeBrosOfficial/stream-relay/pkg/config"
	"github.com/DeBrosOfficial/stream-relay/pkg/errors"
	"github.com/DeBrosOfficial/stream-relay/pkg/logging"
	"github.com/DeBrosOfficial/stream-relay/pkg/monitoring"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// Server accepts websocket clients and runs one ConnHandler per
// connection, plus a single heartbeat sweep over all of them.
type Server struct {
	cfg       *config.Config
	connector bus.Connector
	logger    *logging.ColoredLogger
	metrics   *Metrics
	sampler   *monitoring.Sampler
	name      string
	version   string

	registry  *registry
	upgrader  websocket.Upgrader
	startedAt time.Time

	mu           sync.Mutex
	baseCtx      context.Context
	addr         net.Addr
	ready        chan struct{}
	shuttingDown bool
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics records connection and message metrics and serves them on
// /metrics when enabled in the configuration.
func WithMetrics(m *Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithSampler reports host usage from s on /v1/status.
func WithSampler(sampler *monitoring.Sampler) Option {
	return func(s *Server) { s.sampler = sampler }
}

// WithVersion sets the name and version reported by the status routes.
func WithVersion(name, version string) Option {
	return func(s *Server) {
		s.name = name
		s.version = version
	}
}

// NewServer creates a relay server. Nothing is bound until ListenAndServe.
func NewServer(cfg *config.Config, connector bus.Connector, logger *logging.ColoredLogger, opts ...Option) *Server {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	s := &Server{
		cfg:       cfg,
		connector: connector,
		logger:    logger,
		name:      "stream-relay",
		registry:  newRegistry(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Clients are public feed consumers from any origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		startedAt: time.Now(),
		baseCtx:   context.Background(),
		ready:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Addr returns the bound listener address, nil before Ready.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Connections returns the number of registered connections.
func (s *Server) Connections() int { return s.registry.len() }

// ListenAndServe binds the configured address and serves until ctx is done.
// A bind failure is returned immediately.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := s.cfg.ListenAddr()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then closes every open
// connection with 1001 and shuts the HTTP server down.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.baseCtx = ctx
	s.addr = ln.Addr()
	s.mu.Unlock()
	close(s.ready)

	srv := &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          s.logger.StdLogger(logging.ComponentHTTP),
	}

	s.logger.ComponentInfo(logging.ComponentRelay, "relay listening",
		zap.String("addr", ln.Addr().String()),
		zap.String("subscribe_path", s.cfg.Server.SubscribePath),
		zap.String("backend", s.connector.Name()),
		zap.String("channel", s.cfg.Bus.Channel),
		zap.Duration("ping_interval", s.cfg.Server.PingInterval))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		s.runSweep(gctx)
		return nil
	})

	if s.sampler != nil {
		g.Go(func() error {
			s.sampler.Run(gctx, s.cfg.Server.PingInterval)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		s.logger.ComponentInfo(logging.ComponentRelay, "shutting down relay",
			zap.Int("connections", s.registry.len()))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		s.CloseAll(CloseGoingAway, ReasonGoingAway)
		return err
	})

	return g.Wait()
}

// CloseAll closes every registered connection with code and stops
// accepting new websocket upgrades.
func (s *Server) CloseAll(code int, reason string) {
	s.mu.Lock()
	s.shuttingDown = true
	s.mu.Unlock()

	// accept checks the flag under s.mu, so nothing registers after this.
	for _, h := range s.registry.handlers() {
		h.Close(code, reason)
	}
}

func (s *Server) runSweep(ctx context.Context) {
	interval := s.cfg.Server.PingInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep runs one heartbeat pass over every registered connection.
func (s *Server) Sweep() {
	res := s.registry.sweep()
	for i := 0; i < res.Terminated; i++ {
		s.metrics.heartbeatTerminated()
	}
	if res.Terminated > 0 || res.PingErrors > 0 {
		s.logger.ComponentInfo(logging.ComponentSweep, "heartbeat sweep",
			zap.Int("probed", res.Probed),
			zap.Int("terminated", res.Terminated),
			zap.Int("ping_errors", res.PingErrors))
		return
	}
	s.logger.ComponentDebug(logging.ComponentSweep, "heartbeat sweep",
		zap.Int("probed", res.Probed),
		zap.Int("skipped", res.Skipped))
}

// Routes builds the HTTP router: auxiliary JSON routes plus the websocket
// endpoint on every other path.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequestID)
		r.Use(s.requestLogger)

		r.Get("/health", s.handleHealth)
		r.Get("/v1/status", s.handleStatus)
		if s.cfg.Server.MetricsEnabled && s.metrics != nil {
			r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
		}
		if s.cfg.Server.PublishEnabled {
			r.Post("/v1/publish", s.handlePublish)
		}
	})

	r.Get("/*", s.handleWebsocket)
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.ComponentDebug(logging.ComponentHTTP, "request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// handleWebsocket upgrades the request and owns the connection until it
// closes. The upgrade is accepted even for an invalid sequence so the client
// receives a 4000 close frame.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "websocket upgrade required", http.StatusUpgradeRequired)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.ComponentWarn(logging.ComponentHTTP, "websocket upgrade failed",
			zap.String("remote", r.RemoteAddr),
			zap.Error(err))
		return
	}

	sock := newWSSocket(ws, s.cfg.Server.WriteTimeout)
	s.logger.ComponentInfo(logging.ComponentRelay, "connection opened",
		zap.String("remote", sock.RemoteAddr()),
		zap.String("url", r.URL.RequestURI()))

	h, st, ctx, ok := s.accept(sock, r.URL.Path)
	if !ok {
		_ = sock.Close(CloseGoingAway, ReasonGoingAway)
		return
	}

	ws.SetPongHandler(func(string) error {
		st.markAlive()
		return nil
	})

	go h.Run(ctx)

	go func() {
		select {
		case <-st.terminate:
			s.logger.ComponentInfo(logging.ComponentSweep, "terminating stale connection",
				zap.String("client_id", h.ClientID()),
				zap.String("remote", sock.RemoteAddr()),
				zap.Error(errors.ErrStaleConnection))
			h.Close(CloseStaleConnection, ReasonStaleConnection)
		case <-h.Done():
		}
	}()

	// Client frames carry no meaning; reading keeps control frames flowing.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				s.logger.ComponentDebug(logging.ComponentRelay, "read failed",
					zap.String("client_id", h.ClientID()),
					zap.Error(err))
			}
			break
		}
	}
	h.Close(CloseNormal, ReasonNormal)
}

// accept builds a handler for sock and registers it as alive, returning the
// context the handler runs under. It reports false once CloseAll has begun;
// the flag check and the registration share s.mu so CloseAll's snapshot
// sees every connection admitted before it.
func (s *Server) accept(sock Socket, target string) (*ConnHandler, *connState, context.Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shuttingDown {
		return nil, nil, nil, false
	}

	h := NewConnHandler(s.cfg, s.connector, sock, target, s.logger)
	h.metrics = s.metrics
	h.onClose = func() {
		if s.registry.remove(h) {
			s.metrics.unregistered()
		}
	}
	st := s.registry.add(h)
	s.metrics.registered()
	return h, st, s.baseCtx, true
}
