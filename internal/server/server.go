package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/leslieo2/go-probe-toggle/internal/apidoc"
	"github.com/leslieo2/go-probe-toggle/internal/config"
	"github.com/leslieo2/go-probe-toggle/internal/constants"
	"github.com/leslieo2/go-probe-toggle/internal/events"
	"github.com/leslieo2/go-probe-toggle/internal/health"
	"github.com/leslieo2/go-probe-toggle/internal/observability"
	"github.com/leslieo2/go-probe-toggle/internal/security"
	"github.com/leslieo2/go-probe-toggle/internal/server/middleware"
)

type Server struct {
	config *config.Config
	state  *health.State
	apiDoc *apidoc.Document
	events *events.Broker
	now    func() time.Time

	// Config source re-read on reload
	configFile string
	cliFlags   *config.CLIFlags

	// Security
	authManager *security.AuthManager
	rateLimiter *security.RateLimiter

	// Observability
	logger    *observability.Logger
	metrics   *observability.Metrics
	tracer    *observability.Tracer
	startTime time.Time

	mu            sync.Mutex
	server        *http.Server
	metricsServer *http.Server
}

type Option func(*Server)

// WithLogger replaces the logger built from the logging configuration.
func WithLogger(logger *observability.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithTracer replaces the tracer built from the tracing configuration.
func WithTracer(tracer *observability.Tracer) Option {
	return func(s *Server) { s.tracer = tracer }
}

// WithClock sets the time source used for response timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithConfigSource records where cfg came from so Reload can load it again
// with the same precedence.
func WithConfigSource(configFile string, flags *config.CLIFlags) Option {
	return func(s *Server) {
		s.configFile = configFile
		s.cliFlags = flags
	}
}

// New builds a server around state. The state is shared, not copied: the
// caller may keep reading it.
func New(cfg *config.Config, state *health.State, opts ...Option) (*Server, error) {
	if state == nil {
		return nil, errors.New("health state is required")
	}

	s := &Server{
		config: cfg,
		state:  state,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startTime = s.now()

	if s.logger == nil {
		logger, err := observability.NewLogger(cfg.Observability.Logging)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
		s.logger = logger
	}

	if s.tracer == nil {
		tracer, err := observability.NewTracer(cfg.Observability.Tracing)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}
		s.tracer = tracer
	}

	s.metrics = observability.NewMetrics()
	if err := s.metrics.RegisterProbeState(state); err != nil {
		return nil, fmt.Errorf("failed to register probe gauges: %w", err)
	}

	doc, err := apidoc.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load API description: %w", err)
	}
	s.apiDoc = doc

	if cfg.Events.Enabled {
		s.events = events.NewBroker(cfg.Events, s.logger.Logger)
	}

	s.authManager = security.NewAuthManager(cfg.Security.Auth)
	s.rateLimiter = security.NewRateLimiter(cfg.Security.RateLimit)

	return s, nil
}

// Handler returns the fully wrapped HTTP handler. Every call builds a fresh
// mux over the same state.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	probe := middleware.DelayMiddleware(s.logger.Logger, s.config.Server.MaxDelay)
	protect := func(h http.HandlerFunc) http.Handler {
		// auth runs first so the limiter can key on the authenticated API key
		return s.authManager.Middleware(s.rateLimiter.Middleware(h))
	}

	mux.Handle("GET "+constants.PathReadiness, probe(http.HandlerFunc(s.readinessHandler)))
	mux.Handle("GET "+constants.PathLiveness, probe(http.HandlerFunc(s.livenessHandler)))

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		mux.Handle(method+" "+constants.PathToggleReadiness, protect(s.toggleReadinessHandler))
		mux.Handle(method+" "+constants.PathToggleLiveness, protect(s.toggleLivenessHandler))
	}

	mux.HandleFunc("GET /{$}", s.indexHandler)
	mux.Handle("GET "+constants.PathAPIDoc, s.apiDoc)

	if s.events != nil {
		mux.Handle("GET "+constants.PathEvents, s.events)
	}
	if s.config.Observability.Metrics.Enabled {
		mux.Handle("GET "+s.config.Observability.Metrics.Path, s.metrics.Handler())
	}

	return s.applyMiddleware(mux)
}

// Start serves until ctx is cancelled or a listener fails, then shuts down
// gracefully within the configured shutdown timeout.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:           s.config.GetServerAddress(),
		Handler:        s.Handler(),
		ReadTimeout:    s.config.Server.ReadTimeout,
		WriteTimeout:   s.config.Server.WriteTimeout,
		IdleTimeout:    s.config.Server.IdleTimeout,
		MaxHeaderBytes: 1 << 20, // 1MB max header size
	}

	var metricsSrv *http.Server
	if addr := s.config.GetMetricsAddress(); addr != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle(s.config.Observability.Metrics.Path, s.metrics.Handler())
		metricsSrv = &http.Server{
			Addr:              addr,
			Handler:           metricsMux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	s.mu.Lock()
	s.server = srv
	s.metricsServer = metricsSrv
	s.mu.Unlock()

	errChan := make(chan error, 2)

	s.logger.Info("Starting server",
		zap.String("address", srv.Addr),
		zap.Bool("ready", s.state.Ready()),
		zap.Bool("alive", s.state.Alive()),
		zap.Bool("auth_enabled", s.authManager.Enabled()),
		zap.Bool("rate_limit_enabled", s.config.IsRateLimitEnabled()),
	)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("main server: %w", err)
		}
	}()

	if metricsSrv != nil {
		s.logger.Info("Starting metrics server", zap.String("address", metricsSrv.Addr))
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	var serveErr error
	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down server...")
	case serveErr = <-errChan:
		s.logger.Error("Listener failed, shutting down", zap.Error(serveErr))
	}

	return errors.Join(serveErr, s.shutdown())
}

func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	// Open event streams never go idle, so they are closed before Shutdown
	// waits for connections to drain.
	if s.events != nil {
		s.events.Close()
	}

	s.mu.Lock()
	servers := []*http.Server{s.server, s.metricsServer}
	s.mu.Unlock()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, srv := range servers {
		if srv == nil {
			continue
		}
		wg.Add(1)
		go func(srv *http.Server) {
			defer wg.Done()
			if err := srv.Shutdown(ctx); err != nil {
				s.logger.Error("Failed to shutdown listener", zap.String("address", srv.Addr), zap.Error(err))
				mu.Lock()
				errs = append(errs, fmt.Errorf("shutdown %s: %w", srv.Addr, err))
				mu.Unlock()
			}
		}(srv)
	}
	wg.Wait()

	s.rateLimiter.Stop()
	if err := s.tracer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
	}

	s.logger.Info("Server stopped")
	return errors.Join(errs...)
}

// State returns the probe state the server reports.
func (s *Server) State() *health.State {
	return s.state
}

// Logger returns the server's logger.
func (s *Server) Logger() *observability.Logger {
	return s.logger
}
