package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		expected string
	}{
		{"empty header", "", ""},
		{"scheme only", "Bearer", ""},
		{"scheme with no token", "Bearer ", ""},
		{"standard token", "Bearer abc123", "abc123"},
		{"lowercase scheme", "bearer abc123", "abc123"},
		{"uppercase scheme", "BEARER abc123", "abc123"},
		{"padded token is trimmed", "Bearer   abc123  ", "abc123"},
		{"basic scheme rejected", "Basic dXNlcjpwYXNz", ""},
		{"token scheme rejected", "Token abc123", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, bearerToken(tt.header))
		})
	}
}

func TestAuthedUserID(t *testing.T) {
	t.Run("missing header returns 401", func(t *testing.T) {
		ts := newTestServer(t)
		ts.seed(t, readerBook())

		rec := ts.request(t, http.MethodGet, "/api/books/book-1", "", "")

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "missing bearer token")
	})

	t.Run("wrong scheme returns 401", func(t *testing.T) {
		ts := newTestServer(t)
		ts.seed(t, readerBook())

		req := httptest.NewRequest(http.MethodGet, "/api/books/book-1", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		rec := httptest.NewRecorder()
		ts.srv.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "missing bearer token")
	})

	t.Run("unknown token returns 401", func(t *testing.T) {
		ts := newTestServer(t)
		ts.seed(t, readerBook())

		rec := ts.request(t, http.MethodGet, "/api/books/book-1", "not-a-real-token", "")

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid bearer token")
	})

	t.Run("verified token reaches the handler", func(t *testing.T) {
		ts := newTestServer(t)
		ts.seed(t, readerBook())

		rec := ts.request(t, http.MethodGet, "/api/books/book-1", readerToken, "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "drowned harbor city")
	})

	t.Run("health needs no token", func(t *testing.T) {
		ts := newTestServer(t)

		rec := ts.request(t, http.MethodGet, "/health", "", "")

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestOwnershipEnforcement(t *testing.T) {
	routes := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"get book", http.MethodGet, "/api/books/%s", ""},
		{"get story", http.MethodGet, "/api/books/%s/story", ""},
		{"start story", http.MethodPost, "/api/books/%s/story/start", ""},
		{"story ready", http.MethodGet, "/api/books/%s/story/ready?index=0", ""},
		{"story next", http.MethodPost, "/api/books/%s/story/next", `{"index":0}`},
		{"story choose", http.MethodPost, "/api/books/%s/story/choose", `{"index":0,"text":"run"}`},
	}

	t.Run("another user's token gets 403", func(t *testing.T) {
		for _, rt := range routes {
			t.Run(rt.name, func(t *testing.T) {
				ts := newTestServer(t)
				ts.seed(t, readerBook())

				path := fmt.Sprintf(rt.path, "book-1")
				rec := ts.request(t, rt.method, path, otherToken, rt.body)

				assert.Equal(t, http.StatusForbidden, rec.Code)
				assert.Contains(t, rec.Body.String(), "belongs to another user")
			})
		}
	})

	t.Run("unknown book gets 404", func(t *testing.T) {
		for _, rt := range routes {
			t.Run(rt.name, func(t *testing.T) {
				ts := newTestServer(t)

				path := fmt.Sprintf(rt.path, "no-such-book")
				rec := ts.request(t, rt.method, path, readerToken, rt.body)

				assert.Equal(t, http.StatusNotFound, rec.Code)
				assert.Contains(t, rec.Body.String(), "book not found")
			})
		}
	})
}
