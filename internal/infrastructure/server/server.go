package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/AgentOS/termhub/internal/api/http"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/api/middleware"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/api/ws"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/domain/terminal"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/providers/pty"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/shared/paths"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router  *gin.Engine
	http    *http.Server
	driver  *pty.Driver
	manager *terminal.Manager
	streams *ws.Handler
	tracer  *tracing.Tracer
	logger  *logging.Logger
	config  *config.Config
	metrics *monitoring.Metrics
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.NewDefault()
	}

	logger.Info("Initializing terminal session server",
		zap.String("port", cfg.Server.Port),
		zap.Int("max_sessions", cfg.Sessions.MaxSessions),
	)

	// Initialize metrics first (needed by other components)
	metrics := monitoring.NewMetrics()

	resolver, err := newResolver(cfg.Sessions, logger)
	if err != nil {
		return nil, err
	}

	driver := pty.NewDriver(logger.Component(logging.PTY))
	manager := terminal.NewManager(driver, resolver, terminal.Config{
		MaxSessions:        cfg.Sessions.MaxSessions,
		BufferMaxLines:     cfg.Sessions.BufferMaxLines,
		BufferMaxBytes:     cfg.Sessions.BufferMaxBytes,
		PausedBufferRatio:  cfg.Sessions.PausedBufferRatio,
		RemovalGrace:       cfg.Sessions.RemovalGrace,
		ProcessIdleTimeout: cfg.Sessions.ProcessIdleTimeout,
		AllowedRoots:       cfg.Sessions.AllowedRoots,
	}, logger.Component(logging.Orchestrator)).WithMetrics(metrics)

	streams := ws.NewHandler(manager, ws.DefaultConfig(), logger.Component(logging.WebSocket)).WithMetrics(metrics)

	// Create router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger.Component(logging.HTTP)))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))

	// WebSocket is registered before rate limiting; input has its own limiter
	router.GET("/stream", streams.HandleConnection)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.Any("/debug/log-level", gin.WrapH(logger.LevelHandler()))

	tracer := tracing.New("termhub", logger.Component(logging.HTTP))
	api := router.Group("/", tracing.HTTPMiddleware(tracer))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rl.Burst = cfg.RateLimit.Burst
		api.Use(middleware.RateLimit(rl))
	}
	apihttp.NewHandlers(manager, streams).Register(api)

	logger.Info("Server initialized successfully")

	return &Server{
		router:  router,
		driver:  driver,
		manager: manager,
		streams: streams,
		tracer:  tracer,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
	}, nil
}

func newResolver(cfg config.SessionConfig, logger *logging.Logger) (*terminal.CommandResolver, error) {
	table := terminal.DefaultAgentTable()
	if cfg.AgentConfig != "" {
		path, err := paths.Expand(cfg.AgentConfig)
		if err != nil {
			return nil, err
		}
		loaded, err := terminal.LoadAgentTable(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load agent commands: %w", err)
		}
		table = loaded
		logger.Info("Loaded agent commands",
			zap.String("path", path),
			zap.Int("agents", len(table.Agents)))
	}
	return terminal.NewCommandResolver(cfg.DefaultShell, table), nil
}

// Router exposes the gin engine for tests
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Manager returns the session orchestrator
func (s *Server) Manager() *terminal.Manager {
	return s.manager
}

// Run starts the HTTP server and blocks until it stops
func (s *Server) Run() error {
	addr := net.JoinHostPort(s.config.Server.Host, s.config.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln
func (s *Server) Serve(ln net.Listener) error {
	s.http = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()))

	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close gracefully shuts down the server. Every session is closed and its
// process killed.
func (s *Server) Close(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	var err error
	if s.http != nil {
		if shutdownErr := s.http.Shutdown(ctx); shutdownErr != nil {
			s.logger.Error("HTTP shutdown failed", zap.Error(shutdownErr))
			err = fmt.Errorf("failed to shut down http server: %w", shutdownErr)
		}
	}

	s.streams.Close()
	s.manager.Shutdown()
	s.driver.Close()
	s.tracer.Close()
	s.logger.Info("Closed all sessions")

	// Sync logger before exit
	_ = s.logger.Sync()

	return err
}
