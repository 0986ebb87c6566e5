// Package server assembles the HTTP surface: middleware chain, notification
// stream endpoints, the like trigger and operational routes.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/habitflow/habitflow/internal/notify"
	"github.com/habitflow/habitflow/internal/notify/bridge"
	"github.com/habitflow/habitflow/internal/notify/stream"
	"github.com/habitflow/habitflow/internal/platform/config"
	"github.com/habitflow/habitflow/internal/platform/health"
	"github.com/habitflow/habitflow/internal/platform/logger"
	"github.com/habitflow/habitflow/internal/platform/metrics"
	"github.com/habitflow/habitflow/internal/platform/middleware"
	"github.com/habitflow/habitflow/internal/platform/telemetry"
	"github.com/habitflow/habitflow/internal/social"
)

// Server is the HTTP server for the notification service
type Server struct {
	config    *config.Config
	log       logger.Logger
	metrics   *metrics.Metrics
	bus       *notify.Bus
	directory social.Directory
	telemetry *telemetry.Telemetry
	bridge    *bridge.RedisBridge

	httpServer *http.Server
	health     *health.Handler

	baseCtx    context.Context
	baseCancel context.CancelFunc
}

// Option configures the server
type Option func(*Server)

// WithConfig sets the configuration
func WithConfig(cfg *config.Config) Option {
	return func(s *Server) { s.config = cfg }
}

// WithLogger sets the logger
func WithLogger(log logger.Logger) Option {
	return func(s *Server) { s.log = log }
}

// WithMetrics sets the metrics registry
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithBus sets the notification bus
func WithBus(bus *notify.Bus) Option {
	return func(s *Server) { s.bus = bus }
}

// WithDirectory sets the post/user directory
func WithDirectory(d social.Directory) Option {
	return func(s *Server) { s.directory = d }
}

// WithTelemetry sets the tracer
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(s *Server) { s.telemetry = t }
}

// WithBridge sets the Redis fan-out bridge
func WithBridge(b *bridge.RedisBridge) Option {
	return func(s *Server) { s.bridge = b }
}

// New creates the server
func New(opts ...Option) (*Server, error) {
	s := &Server{}
	for _, opt := range opts {
		opt(s)
	}

	if s.config == nil {
		return nil, fmt.Errorf("server requires a config")
	}
	if s.log == nil {
		s.log = logger.NewNop()
	}
	if s.bus == nil {
		s.bus = notify.NewBus(notify.WithLogger(s.log))
	}

	s.initialize()
	return s, nil
}

func (s *Server) initialize() {
	router := mux.NewRouter()

	router.Use(middleware.Recovery(s.log))
	router.Use(logger.HTTPMiddleware(s.log))
	if s.metrics != nil {
		router.Use(s.metrics.Middleware)
	}
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	auth := middleware.NewAuthMiddleware([]byte(s.config.Auth.JWTSecret))
	router.Use(auth.Middleware)

	s.health = health.NewHandler(s.config.Service.Name, s.config.Version)
	if s.bridge != nil {
		s.health.AddCheck("redis", s.bridge.Ping)
	}
	router.HandleFunc("/health/live", s.health.LivenessHandler()).Methods(http.MethodGet)
	router.HandleFunc("/health/ready", s.health.ReadinessHandler()).Methods(http.MethodGet)
	if s.metrics != nil {
		router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	streamOpts := []stream.SSEOption{
		stream.WithHeartbeat(s.config.Notify.HeartbeatInterval),
		stream.WithBuffer(s.config.Notify.StreamBuffer),
	}
	if s.metrics != nil {
		streamOpts = append(streamOpts, stream.WithMetrics(s.metrics))
	}

	sse := stream.NewSSEHandler(s.bus, s.log, streamOpts...)
	ws := stream.NewWSHandler(s.bus, s.log, streamOpts...)
	router.Handle("/api/v1/notifications/stream", sse).Methods(http.MethodGet)
	router.Handle("/api/v1/notifications/ws", ws).Methods(http.MethodGet)

	if s.directory != nil {
		var like *social.LikeHandler
		if s.telemetry != nil {
			like = social.NewLikeHandler(s.bus, s.directory, s.log, s.telemetry.Tracer())
		} else {
			like = social.NewLikeHandler(s.bus, s.directory, s.log, nil)
		}
		router.Handle("/api/v1/posts/{id}/like", like).Methods(http.MethodPost)
	}

	// Request contexts derive from baseCtx; cancelling it on shutdown is
	// what ends the open notification streams, since Shutdown alone waits
	// forever for them.
	s.baseCtx, s.baseCancel = context.WithCancel(context.Background())

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.HTTP.Port),
		Handler:      router,
		ReadTimeout:  s.config.HTTP.ReadTimeout,
		WriteTimeout: s.config.HTTP.WriteTimeout,
		IdleTimeout:  s.config.HTTP.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return s.baseCtx },
	}
}

// Bus returns the notification bus, for collaborators that publish events
func (s *Server) Bus() *notify.Bus {
	return s.bus
}

// Handler exposes the assembled HTTP handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start runs the HTTP server until it fails or is shut down
func (s *Server) Start() error {
	if s.bridge != nil {
		s.bridge.Start()
	}
	s.log.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains connections and stops background components. Open
// streams observe their request context cancellation and clean up.
func (s *Server) Shutdown(ctx context.Context) error {
	s.baseCancel()
	err := s.httpServer.Shutdown(ctx)
	if s.bridge != nil {
		s.bridge.Close()
	}
	if s.telemetry != nil {
		s.telemetry.Close()
	}
	return err
}
