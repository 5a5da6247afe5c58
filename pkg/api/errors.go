package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/Sopamo/taletwo/pkg/llm"
	"github.com/Sopamo/taletwo/pkg/services"
	"github.com/Sopamo/taletwo/pkg/story"
)

// mapServiceError maps service-layer errors to HTTP error responses.
func mapServiceError(err error) *echo.HTTPError {
	var validErr *services.ValidationError
	if errors.As(err, &validErr) {
		return echo.NewHTTPError(http.StatusBadRequest, validErr.Error())
	}
	if errors.Is(err, story.ErrNotReady) {
		return echo.NewHTTPError(http.StatusBadRequest, "story is updating, retry shortly")
	}
	if errors.Is(err, services.ErrBadRequest) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if errors.Is(err, services.ErrUnauthorized) {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if errors.Is(err, services.ErrForbidden) {
		return echo.NewHTTPError(http.StatusForbidden, "book belongs to another user")
	}
	if errors.Is(err, services.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "book not found")
	}
	if errors.Is(err, story.ErrTimeout) || errors.Is(err, llm.ErrTimeout) {
		return echo.NewHTTPError(http.StatusRequestTimeout, "timed out waiting for page generation")
	}

	// Generation and storage failures surface with their original message so
	// clients can show what went wrong.
	slog.Error("Unexpected service error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
