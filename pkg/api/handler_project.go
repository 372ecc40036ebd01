package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/agent-runner/pkg/models"
)

// listProjectsHandler handles GET /projects.
func (s *Server) listProjectsHandler(c *echo.Context) error {
	projects, err := s.store.ListProjects(c.Request().Context())
	if err != nil {
		return mapStoreError(err)
	}
	if projects == nil {
		return c.JSON(http.StatusOK, []struct{}{})
	}
	return c.JSON(http.StatusOK, projects)
}

// createProjectHandler handles POST /projects?name=&local_path=.
func (s *Server) createProjectHandler(c *echo.Context) error {
	var req models.CreateProjectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "invalid request body")
	}
	if name := c.QueryParam("name"); name != "" {
		req.Name = name
	}
	if path := c.QueryParam("local_path"); path != "" {
		req.LocalPath = path
	}
	if req.Name == "" || req.LocalPath == "" {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "name and local_path are required")
	}

	project, err := s.store.CreateProject(c.Request().Context(), req.Name, req.LocalPath)
	if err != nil {
		return mapStoreError(err)
	}
	return c.JSON(http.StatusCreated, project)
}
