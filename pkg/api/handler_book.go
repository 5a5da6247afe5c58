package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/Sopamo/taletwo/pkg/models"
	"github.com/Sopamo/taletwo/pkg/services"
)

type createBookRequest struct {
	BookOne       string `json:"bookOne"`
	BookTwo       string `json:"bookTwo"`
	World         string `json:"world"`
	MainCharacter string `json:"mainCharacter"`
	Genre         string `json:"genre"`
}

type createBookResponse struct {
	ID string `json:"id"`
}

// createBookHandler handles POST /api/books.
func (s *Server) createBookHandler(c *echo.Context) error {
	userID, err := s.authedUserID(c)
	if err != nil {
		return err
	}

	var req createBookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	book, err := s.books.CreateBook(c.Request().Context(), services.CreateBookInput{
		UserID:        userID,
		BookOne:       req.BookOne,
		BookTwo:       req.BookTwo,
		World:         req.World,
		MainCharacter: req.MainCharacter,
		Genre:         req.Genre,
	})
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusCreated, createBookResponse{ID: book.ID})
}

// getBookHandler handles GET /api/books/:id.
func (s *Server) getBookHandler(c *echo.Context) error {
	book, err := s.ownedBook(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, book)
}

// ownedBook authenticates the request and loads the book addressed by the
// :id param, enforcing that it belongs to the authenticated user. The
// returned error is ready to surface from a handler.
func (s *Server) ownedBook(c *echo.Context) (*models.Book, error) {
	userID, err := s.authedUserID(c)
	if err != nil {
		return nil, err
	}

	book, err := s.books.GetOwnedBook(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return nil, mapServiceError(err)
	}
	return book, nil
}
