package server

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"

	"github.com/agentops/statuslog/internal/config"
	"github.com/agentops/statuslog/internal/database"
	"github.com/agentops/statuslog/internal/handler"
	"github.com/agentops/statuslog/internal/repository"
)

type echoValidator struct {
	validate *validator.Validate
}

func (v *echoValidator) Validate(i any) error {
	return v.validate.Struct(i)
}

// Server wires the HTTP façade: echo, the pool manager, and the log
// store. The manager is injected, not global; Server owns its shutdown.
type Server struct {
	Echo   *echo.Echo
	cfg    *config.Config
	mgr    *database.Manager
	repo   *repository.StatusLogRepository
	logger zerolog.Logger
}

// New builds the echo app and registers routes. nrApp may be nil when
// observability is disabled.
func New(cfg *config.Config, mgr *database.Manager, repo *repository.StatusLogRepository, logger zerolog.Logger, nrApp *newrelic.Application) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &echoValidator{validate: validator.New()}

	e.Use(middleware.Recover())
	e.Use(requestLogger(logger))
	if cfg.Server.CORSOrigins != "" {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: strings.Split(cfg.Server.CORSOrigins, ","),
		}))
	}
	if nrApp != nil {
		e.Use(transactionMiddleware(nrApp))
	}

	h := &handler.LogHandler{
		Store:  repo,
		Prober: mgr,
		Logger: logger,
	}

	e.GET("/", h.Root)
	e.GET("/health", h.Health)
	e.POST("/log_status", h.LogStatus)
	e.GET("/query_logs", h.QueryLogs)
	e.GET("/test-connectivity", h.TestConnectivity)

	return &Server{Echo: e, cfg: cfg, mgr: mgr, repo: repo, logger: logger}
}

func requestLogger(logger zerolog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogStatus:  true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := logger.Info()
			if v.Error != nil {
				ev = logger.Error().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	})
}

// transactionMiddleware opens a New Relic transaction per request so the
// nrpgx5 tracer can attach query segments to it.
func transactionMiddleware(app *newrelic.Application) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			txn := app.StartTransaction(c.Request().Method + " " + c.Path())
			defer txn.End()
			txn.SetWebRequestHTTP(c.Request())
			c.SetRequest(c.Request().WithContext(newrelic.NewContext(c.Request().Context(), txn)))
			return next(c)
		}
	}
}

// Start connects storage best-effort and serves until ctx is cancelled.
// A failed pool or schema setup leaves the service up in degraded mode:
// only storage-dependent operations fail, and they retry establishment
// lazily on first use.
func (s *Server) Start(ctx context.Context) error {
	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if err := s.mgr.EnsureReady(startCtx); err != nil {
		s.logger.Warn().Err(err).Msg("starting without database connection, storage operations will fail until it is reachable")
	} else if err := s.repo.EnsureSchema(startCtx); err != nil {
		s.logger.Warn().Err(err).Msg("schema setup failed")
	}
	cancel()

	s.Echo.Server.ReadTimeout = time.Duration(s.cfg.Server.ReadTimeout) * time.Second
	s.Echo.Server.WriteTimeout = time.Duration(s.cfg.Server.WriteTimeout) * time.Second
	s.Echo.Server.IdleTimeout = time.Duration(s.cfg.Server.IdleTimeout) * time.Second

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Str("port", s.cfg.Server.Port).Msg("http server listening")
	return s.Echo.Start(":" + s.cfg.Server.Port)
}

// Shutdown stops the HTTP server and closes the pool exactly once.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.Echo.Shutdown(ctx)
	s.mgr.Shutdown()
	return err
}
