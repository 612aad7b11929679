// Package httpapi provides the HTTP API for counseld.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/counseld/internal/config"
	"github.com/fyrsmithlabs/counseld/internal/conversation"
	"github.com/fyrsmithlabs/counseld/internal/crisis"
	"github.com/fyrsmithlabs/counseld/internal/intake"
)

// Server provides HTTP endpoints for counseld.
type Server struct {
	echo       *echo.Echo
	logger     *zap.Logger
	config     config.ServerConfig
	intake     intake.Service
	store      conversation.Store
	classifier *crisis.Classifier
	limiter    *clientLimiter
}

// NewServer creates a new HTTP server.
func NewServer(cfg config.ServerConfig, svc intake.Service, store conversation.Store, classifier *crisis.Classifier, logger *zap.Logger) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("intake service is required")
	}
	if store == nil {
		return nil, fmt.Errorf("conversation store is required")
	}
	if classifier == nil {
		return nil, fmt.Errorf("crisis classifier is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:       e,
		logger:     logger,
		config:     cfg,
		intake:     svc,
		store:      store,
		classifier: classifier,
		limiter:    newClientLimiter(cfg.RateLimit, cfg.RateBurst),
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/intake", s.handleIntake)
	v1.POST("/classify", s.handleClassify)

	v1.POST("/conversations", s.handleCreateConversation)
	v1.GET("/conversations/:id", s.handleGetConversation)
	v1.GET("/conversations/:id/history", s.handleHistory)
	v1.GET("/conversations/:id/summary", s.handleSummary)
	v1.PUT("/conversations/:id/goals", s.handleUpdateGoals)
	v1.POST("/conversations/:id/sessions", s.handleStartSession)
	v1.POST("/conversations/:id/close", s.handleCloseConversation)
	v1.POST("/conversations/:id/flags/:flag_id/resolve", s.handleResolveFlag)

	v1.GET("/clients/:id/conversations", s.handleListByClient)
	v1.GET("/search", s.handleSearch)
	v1.GET("/analytics", s.handleAnalytics)
}

// Start starts the HTTP server and blocks until context is cancelled,
// then performs graceful shutdown with the configured timeout.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server start: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			s.config.ShutdownTimeout.Duration(),
		)
		defer cancel()

		s.logger.Info("shutting down http server")
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return http.ErrServerClosed
	}
}

// Echo returns the underlying Echo instance, mainly for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
