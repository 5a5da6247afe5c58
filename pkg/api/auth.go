package api

import (
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v5"
)

// authedUserID resolves the request's Authorization header to the id of the
// authenticated user. The returned error is ready to surface from a handler.
func (s *Server) authedUserID(c *echo.Context) (string, error) {
	token := bearerToken(c.Request().Header.Get("Authorization"))
	if token == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
	}

	userID, err := s.verifier.Verify(c.Request().Context(), token)
	if err != nil {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid bearer token")
	}
	return userID, nil
}

// bearerToken strips the "Bearer " scheme from an Authorization header.
// Returns "" when the header is absent or uses another scheme.
func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
