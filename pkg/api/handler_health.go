package api

import (
	"context"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/Sopamo/taletwo/pkg/database"
	"github.com/Sopamo/taletwo/pkg/version"
)

type healthResponse struct {
	Status   string                 `json:"status"`
	Version  string                 `json:"version"`
	Database *database.HealthStatus `json:"database,omitempty"`
}

// healthHandler handles GET /health. Unauthenticated.
func (s *Server) healthHandler(c *echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthCheckTimeout)
	defer cancel()

	resp := healthResponse{Status: "healthy", Version: version.Full()}
	if s.db != nil {
		dbHealth, err := database.Health(ctx, s.db)
		resp.Database = dbHealth
		if err != nil {
			resp.Status = "unhealthy"
			return c.JSON(http.StatusServiceUnavailable, resp)
		}
	}
	return c.JSON(http.StatusOK, resp)
}
