package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/agent-runner/pkg/models"
)

// listRunsHandler handles GET /runs.
func (s *Server) listRunsHandler(c *echo.Context) error {
	runs, err := s.store.ListRuns(c.Request().Context())
	if err != nil {
		return mapStoreError(err)
	}
	if runs == nil {
		return c.JSON(http.StatusOK, []struct{}{})
	}
	return c.JSON(http.StatusOK, runs)
}

// getRunHandler handles GET /runs/:id.
func (s *Server) getRunHandler(c *echo.Context) error {
	run, err := s.store.GetRun(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapStoreError(err)
	}
	return c.JSON(http.StatusOK, run)
}

// createRunHandler handles POST /runs.
func (s *Server) createRunHandler(c *echo.Context) error {
	var req models.CreateRunRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "invalid request body")
	}
	if req.ProjectID == "" || req.Goal == "" {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "project_id and goal are required")
	}

	if _, err := s.store.GetProject(c.Request().Context(), req.ProjectID); err != nil {
		return mapStoreError(err)
	}

	run, err := s.store.CreateRun(c.Request().Context(), req)
	if err != nil {
		return mapStoreError(err)
	}
	return c.JSON(http.StatusCreated, run)
}

// pauseRunHandler handles POST /runs/:id/pause (RUNNING -> PAUSED).
func (s *Server) pauseRunHandler(c *echo.Context) error {
	return s.transitionHandler(c, models.StatusRunning, models.StatusPaused, models.EventRunPause)
}

// resumeRunHandler handles POST /runs/:id/resume (PAUSED -> RUNNING).
func (s *Server) resumeRunHandler(c *echo.Context) error {
	return s.transitionHandler(c, models.StatusPaused, models.StatusRunning, models.EventRunResume)
}

// stopRunHandler handles POST /runs/:id/stop. Stop is legal from QUEUED,
// RUNNING, or PAUSED; the handler reads the Run's current status and
// attempts the transition from that state, answering 409 if the Run is
// already terminal or its status changed in between.
func (s *Server) stopRunHandler(c *echo.Context) error {
	runID := c.Param("id")
	ctx := c.Request().Context()

	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return mapStoreError(err)
	}

	var from models.RunStatus
	switch run.Status {
	case models.StatusQueued:
		from = models.StatusQueued
	case models.StatusRunning:
		from = models.StatusRunning
	case models.StatusPaused:
		from = models.StatusPaused
	default:
		return echo.NewHTTPError(http.StatusConflict, "run is not in a stoppable state")
	}

	if s.workerPool != nil {
		s.workerPool.CancelRun(runID)
	}

	ok, _, err := s.store.TransitionWithEvent(ctx, runID, from, models.StatusStopped, models.EventRunStopped, nil)
	if err != nil {
		return mapStoreError(err)
	}
	if !ok {
		return echo.NewHTTPError(http.StatusConflict, "illegal state transition")
	}

	run, err = s.store.GetRun(ctx, runID)
	if err != nil {
		return mapStoreError(err)
	}
	return c.JSON(http.StatusOK, run)
}

// transitionHandler performs a conditional Run status transition and appends
// the matching event, returning HTTP 409 when the Run was not in the
// expected starting state.
func (s *Server) transitionHandler(c *echo.Context, from, to models.RunStatus, eventType models.EventType) error {
	runID := c.Param("id")
	ok, _, err := s.store.TransitionWithEvent(c.Request().Context(), runID, from, to, eventType, nil)
	if err != nil {
		return mapStoreError(err)
	}
	if !ok {
		return echo.NewHTTPError(http.StatusConflict, "illegal state transition")
	}

	run, err := s.store.GetRun(c.Request().Context(), runID)
	if err != nil {
		return mapStoreError(err)
	}
	return c.JSON(http.StatusOK, run)
}

// directiveRunHandler handles POST /runs/:id/directive. A directive is
// recorded as an annotation event; it does not itself change Run status or
// interrupt an in-progress step. Fails with 409 if the Run has already
// reached a terminal state.
func (s *Server) directiveRunHandler(c *echo.Context) error {
	var req models.DirectiveRequest
	if err := c.Bind(&req); err != nil || req.Text == "" {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "text is required")
	}

	runID := c.Param("id")
	run, err := s.store.GetRun(c.Request().Context(), runID)
	if err != nil {
		return mapStoreError(err)
	}
	if run.Status.IsTerminal() {
		return echo.NewHTTPError(http.StatusConflict, "run has already reached a terminal state")
	}

	event, err := s.store.AppendEvent(c.Request().Context(), runID, models.EventDirective, map[string]any{"text": req.Text})
	if err != nil {
		return mapStoreError(err)
	}
	return c.JSON(http.StatusAccepted, event)
}
