package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// workerStatusHandler handles GET /worker/status.
func (s *Server) workerStatusHandler(c *echo.Context) error {
	if s.workerPool == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "worker pool not configured")
	}
	return c.JSON(http.StatusOK, s.workerPool.Health(c.Request().Context()))
}

// workerProcessHandler handles POST /worker/process: a manual tick used by
// tests and operators to force a claim attempt without waiting for the
// background poll interval.
func (s *Server) workerProcessHandler(c *echo.Context) error {
	if s.workerPool == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "worker pool not configured")
	}

	claimed, runID, err := s.workerPool.ProcessOnce(c.Request().Context())
	if err != nil {
		return mapStoreError(err)
	}
	if !claimed {
		return c.JSON(http.StatusOK, map[string]any{"claimed": false})
	}
	return c.JSON(http.StatusOK, map[string]any{"claimed": true, "run_id": runID})
}
