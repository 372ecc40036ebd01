package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/agent-runner/pkg/store"
	"github.com/codeready-toolchain/agent-runner/pkg/workflow"
)

// mapStoreError maps Data Store sentinel errors to their HTTP status codes.
func mapStoreError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "resource not found")
	case errors.Is(err, store.ErrNameConflict):
		return echo.NewHTTPError(http.StatusConflict, "name already in use")
	case errors.Is(err, store.ErrIllegalTransition):
		return echo.NewHTTPError(http.StatusConflict, "illegal state transition")
	case errors.Is(err, workflow.ErrBadPath):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "BAD_PATH: "+err.Error())
	default:
		slog.Error("unexpected internal error", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
}
