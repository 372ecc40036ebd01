// Package api implements the Control Plane API component: the HTTP surface
// for Projects, Runs, their Events, and worker status.
package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codeready-toolchain/agent-runner/pkg/config"
	"github.com/codeready-toolchain/agent-runner/pkg/eventstream"
	"github.com/codeready-toolchain/agent-runner/pkg/queue"
	"github.com/codeready-toolchain/agent-runner/pkg/store"
	"github.com/codeready-toolchain/agent-runner/pkg/workflow"
)

// Server is the Control Plane API's HTTP server, backed by echo/v5.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server

	cfg        *config.Config
	store      *store.Client
	broker     *eventstream.Broker
	workerPool *queue.WorkerPool
	registry   *workflow.Registry
}

// NewServer wires routes for the Control Plane API's HTTP surface.
func NewServer(cfg *config.Config, st *store.Client, broker *eventstream.Broker, pool *queue.WorkerPool, registry *workflow.Registry) *Server {
	e := echo.New()

	s := &Server{
		echo:       e,
		cfg:        cfg,
		store:      st,
		broker:     broker,
		workerPool: pool,
		registry:   registry,
	}

	e.Use(middleware.Recover())
	e.Use(middleware.Logger())
	e.Use(securityHeaders())
	e.Use(corsMiddleware(cfg.HTTP.CORSOrigins))

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthHandler)

	s.echo.GET("/projects", s.listProjectsHandler)
	s.echo.POST("/projects", s.createProjectHandler)

	s.echo.GET("/runs", s.listRunsHandler)
	s.echo.POST("/runs", s.createRunHandler)
	s.echo.GET("/runs/:id", s.getRunHandler)
	s.echo.POST("/runs/:id/pause", s.pauseRunHandler)
	s.echo.POST("/runs/:id/resume", s.resumeRunHandler)
	s.echo.POST("/runs/:id/stop", s.stopRunHandler)
	s.echo.POST("/runs/:id/directive", s.directiveRunHandler)
	s.echo.GET("/runs/:id/events", s.listEventsHandler)
	s.echo.GET("/runs/:id/events/stream", s.streamEventsHandler)

	s.echo.GET("/worker/status", s.workerStatusHandler)
	s.echo.POST("/worker/process", s.workerProcessHandler)

	metricsHandler := promhttp.Handler()
	s.echo.GET("/metrics", func(c *echo.Context) error {
		metricsHandler.ServeHTTP(c.Response(), c.Request())
		return nil
	})
}

// Start serves the API on addr (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	dbHealth, err := store.Health(reqCtx, s.store.DB())
	resp := HealthResponse{Database: dbHealth}
	if err != nil {
		resp.Status = "unhealthy"
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	resp.Status = "healthy"

	if s.workerPool != nil {
		poolHealth := s.workerPool.Health(reqCtx)
		resp.WorkerPool = poolHealth
		if !poolHealth.IsHealthy {
			resp.Status = "degraded"
		}
	}

	return c.JSON(http.StatusOK, resp)
}
