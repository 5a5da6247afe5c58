package api

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/Sopamo/taletwo/pkg/story"
)

type nextRequest struct {
	Index *int `json:"index"`
}

type chooseRequest struct {
	Index    *int   `json:"index"`
	OptionID string `json:"optionId"`
	Text     string `json:"text"`
}

type readyResponse struct {
	Ready *story.ReadyStatus `json:"ready"`
}

// getStoryHandler handles GET /api/books/:id/story. A book without a story
// is started transparently, so the first read pays for plan and opening
// page generation.
func (s *Server) getStoryHandler(c *echo.Context) error {
	book, err := s.ownedBook(c)
	if err != nil {
		return err
	}

	book, err = s.stories.Start(c.Request().Context(), book)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, s.stories.Snapshot(book))
}

// startStoryHandler handles POST /api/books/:id/story/start. Starting an
// already started story returns it unchanged.
func (s *Server) startStoryHandler(c *echo.Context) error {
	return s.getStoryHandler(c)
}

// storyReadyHandler handles GET /api/books/:id/story/ready?index=N. It
// blocks until the linear continuation is prepared (or the wait times out)
// and reports per-option branch readiness without blocking on it.
func (s *Server) storyReadyHandler(c *echo.Context) error {
	book, err := s.ownedBook(c)
	if err != nil {
		return err
	}

	raw := c.QueryParam("index")
	if raw == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "index query parameter is required")
	}
	index, err := strconv.Atoi(raw)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "index must be an integer")
	}

	status, err := s.stories.Ready(c.Request().Context(), book, index)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, readyResponse{Ready: status})
}

// storyNextHandler handles POST /api/books/:id/story/next.
func (s *Server) storyNextHandler(c *echo.Context) error {
	var req nextRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Index == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "index is required")
	}

	book, err := s.ownedBook(c)
	if err != nil {
		return err
	}

	book, err = s.stories.Next(c.Request().Context(), book, *req.Index)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, s.stories.Snapshot(book))
}

// storyChooseHandler handles POST /api/books/:id/story/choose.
func (s *Server) storyChooseHandler(c *echo.Context) error {
	var req chooseRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Index == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "index is required")
	}

	book, err := s.ownedBook(c)
	if err != nil {
		return err
	}

	book, err = s.stories.Choose(c.Request().Context(), book, story.ChooseParams{
		Index:    *req.Index,
		OptionID: req.OptionID,
		Text:     req.Text,
	})
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, s.stories.Snapshot(book))
}
