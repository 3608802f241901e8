// Package http provides the HTTP API for patternd: live message
// ingestion, pattern management, suggestion review, imports, and stats.
package http

import (
	"context"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fairwayops/patternd/internal/importer"
	"github.com/fairwayops/patternd/internal/pattern"
	"github.com/fairwayops/patternd/internal/responder"
	"github.com/fairwayops/patternd/internal/store"
)

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server serves the patternd API.
type Server struct {
	echo      *echo.Echo
	responder *responder.Responder
	importer  *importer.Importer
	engine    *pattern.Engine
	store     store.Store
	logger    *zap.Logger
	config    *Config
}

// NewServer creates the API server and registers its routes.
func NewServer(
	rsp *responder.Responder,
	imp *importer.Importer,
	engine *pattern.Engine,
	st store.Store,
	logger *zap.Logger,
	cfg *Config,
) (*Server, error) {
	if rsp == nil || imp == nil || engine == nil || st == nil {
		return nil, fmt.Errorf("responder, importer, engine, and store are required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 8080}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestMetrics())
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
		echo:      e,
		responder: rsp,
		importer:  imp,
		engine:    engine,
		store:     st,
		logger:    logger,
		config:    cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/messages", s.handleMessage)

	v1.GET("/patterns", s.handleListPatterns)
	v1.GET("/patterns/:id", s.handleGetPattern)
	v1.PATCH("/patterns/:id", s.handleUpdatePattern)
	v1.DELETE("/patterns/:id", s.handleDeletePattern)

	v1.GET("/suggestions", s.handleListSuggestions)
	v1.POST("/suggestions/:id/approve", s.handleApproveSuggestion)
	v1.POST("/suggestions/:id/modify", s.handleModifySuggestion)
	v1.POST("/suggestions/:id/reject", s.handleRejectSuggestion)

	v1.POST("/import", s.handleStartImport)
	v1.GET("/import/:id", s.handleGetImport)

	v1.GET("/stats", s.handleStats)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
