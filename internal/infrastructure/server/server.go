package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/qiuzhanghua/fs-proxy/internal/api/http"
	"github.com/qiuzhanghua/fs-proxy/internal/api/middleware"
	"github.com/qiuzhanghua/fs-proxy/internal/domain/audit"
	"github.com/qiuzhanghua/fs-proxy/internal/domain/files"
	"github.com/qiuzhanghua/fs-proxy/internal/domain/pathlock"
	"github.com/qiuzhanghua/fs-proxy/internal/infrastructure/config"
	"github.com/qiuzhanghua/fs-proxy/internal/infrastructure/logging"
	"github.com/qiuzhanghua/fs-proxy/internal/infrastructure/monitoring"
	"github.com/qiuzhanghua/fs-proxy/internal/infrastructure/tracing"
	"github.com/qiuzhanghua/fs-proxy/internal/providers/filesystem"
)

const readHeaderTimeout = 10 * time.Second

// Server wraps the HTTP server and dependencies
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	sandbox    *filesystem.Sandbox
	locks      *pathlock.Table
	recorder   *audit.Recorder
	tracer     *tracing.Tracer
	manager    *files.Manager
	metrics    *monitoring.Metrics
	logger     *logging.Logger
	config     *config.Config

	stopOnce  sync.Once
	stop      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewServer creates a new server instance. Startup fails when the sandbox
// root cannot be opened or the metadata store cannot be reached.
func NewServer(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		if cfg.Logging.Development {
			logger = logging.NewDevelopment()
		} else {
			logger = logging.NewDefault()
		}
	}

	logger.Info("Initializing fs-proxy",
		zap.String("addr", cfg.Addr()),
		zap.String("sandbox_root", cfg.Sandbox.Root),
		zap.Bool("audit", cfg.Audit.DSN != ""),
	)

	sandbox, err := filesystem.NewSandbox(cfg.Sandbox.Root)
	if err != nil {
		return nil, err
	}

	store, err := audit.OpenStore(cfg.Audit.DSN)
	if err != nil {
		sandbox.Close()
		return nil, fmt.Errorf("failed to open metadata store: %w", err)
	}

	// Initialize metrics first (needed by other components)
	metrics := monitoring.NewMetrics()

	tracer := tracing.New(logger.Named("access"))

	recorder := audit.NewRecorder(store, audit.Options{
		QueueSize:    cfg.Audit.QueueSize,
		WriteTimeout: cfg.Audit.WriteTimeout,
		Metrics:      metrics,
	}, logger.Named("audit"))
	if recorder.Enabled() {
		logger.Info("Audit recording enabled", zap.String("dsn", redactDSN(cfg.Audit.DSN)))
	}

	locks := pathlock.NewTable(pathlock.Options{Timeout: cfg.Sandbox.LockTimeout})
	metrics.RegisterActiveLocks(locks.Len)

	exec := filesystem.NewExecutor(sandbox, filesystem.Options{
		IOWorkers:     cfg.Sandbox.IOWorkers,
		BufferSize:    cfg.Sandbox.CopyBufferSize,
		MaxWriteBytes: cfg.Server.MaxUploadBytes,
	}, logger.Named("executor"))
	manager := files.NewManager(exec, locks, recorder, metrics, logger.Named("files"))

	s := &Server{
		sandbox:  sandbox,
		locks:    locks,
		recorder: recorder,
		tracer:   tracer,
		manager:  manager,
		metrics:  metrics,
		logger:   logger,
		config:   cfg,
		stop:     make(chan struct{}),
	}

	// Create router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	corsCfg := middleware.DefaultCORSConfig().WithOrigins(cfg.Server.CORSOrigins)
	router.Use(middleware.CORS(corsCfg))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.String("scope", cfg.RateLimit.Scope),
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		rl := middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}
		if cfg.RateLimit.Scope == config.RateLimitGlobal {
			router.Use(middleware.GlobalRateLimit(rl))
		} else {
			router.Use(middleware.RateLimit(rl))
		}
	}

	var shutdown func()
	levels := gin.WrapH(logger.LevelHandler())
	router.GET("/log/level", levels)
	if cfg.Server.AdminShutdown {
		shutdown = s.RequestShutdown
		router.PUT("/log/level", levels)
		logger.Warn("Admin endpoints enabled", zap.Strings("routes", []string{"POST /shutdown", "PUT /log/level"}))
	}
	handlers := apihttp.NewHandlers(manager, shutdown, logger.Named("http")).WithMetrics(metrics)
	handlers.Register(router)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	s.router = router
	s.httpServer = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	logger.Info("Server initialized successfully")
	return s, nil
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Manager returns the file mediation service
func (s *Server) Manager() *files.Manager {
	return s.manager
}

// Run listens on the configured address and serves until ctx is done or a
// shutdown is requested, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		s.Close(context.Background())
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done or a shutdown is requested
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutdown signal received")
	case <-s.stop:
		s.logger.Info("Shutdown requested over HTTP")
	case err := <-errCh:
		s.Close(context.Background())
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()
	return s.Close(shutdownCtx)
}

// RequestShutdown asks Serve to return. Safe to call more than once.
func (s *Server) RequestShutdown() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Close shuts down in order: reject new file operations, drain in-flight
// requests, flush the audit queue, stop tracing, release the sandbox.
func (s *Server) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.logger.Info("Shutting down server...")
		var errs []error

		s.locks.Close()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server did not drain in time", zap.Error(err))
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}

		if err := s.recorder.Close(ctx); err != nil {
			s.logger.Error("Failed to flush audit records", zap.Error(err))
			errs = append(errs, fmt.Errorf("audit: %w", err))
		}

		s.tracer.Close()

		if err := s.sandbox.Close(); err != nil {
			errs = append(errs, fmt.Errorf("sandbox: %w", err))
		}

		s.logger.Info("Server stopped")
		s.logger.Sync()
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

// redactDSN hides credentials that may appear in a DSN
func redactDSN(dsn string) string {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return dsn
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		rest = "***" + rest[at:]
	}
	return scheme + "://" + rest
}
