// Package api exposes the story engine over HTTP: book CRUD, the reading
// loop (story, ready, next, choose), and health.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/Sopamo/taletwo/pkg/auth"
	"github.com/Sopamo/taletwo/pkg/config"
	"github.com/Sopamo/taletwo/pkg/database"
	"github.com/Sopamo/taletwo/pkg/services"
	"github.com/Sopamo/taletwo/pkg/story"
)

// Server timeouts sit above the longest tolerated wait for page generation
// (the 240s readiness timeout), so slow model calls are ended by the
// coordinator, not cut off by the transport.
const (
	readTimeout  = 300 * time.Second
	writeTimeout = 300 * time.Second
	idleTimeout  = 300 * time.Second

	healthCheckTimeout = 5 * time.Second
)

// Server wires routing, middleware, and handlers.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server

	books    *services.BookService
	stories  *story.Runtime
	verifier auth.Verifier
	db       *database.Client
}

// ServerParams collects the server's dependencies. DB may be nil; the health
// endpoint then skips the database probe.
type ServerParams struct {
	Config   *config.Config
	Books    *services.BookService
	Stories  *story.Runtime
	Verifier auth.Verifier
	DB       *database.Client
}

// NewServer builds the echo application with all routes registered.
func NewServer(p ServerParams) *Server {
	if p.Config == nil {
		panic("NewServer: config must not be nil")
	}
	if p.Books == nil {
		panic("NewServer: book service must not be nil")
	}
	if p.Stories == nil {
		panic("NewServer: story runtime must not be nil")
	}
	if p.Verifier == nil {
		panic("NewServer: verifier must not be nil")
	}

	s := &Server{
		echo:     echo.New(),
		books:    p.Books,
		stories:  p.Stories,
		verifier: p.Verifier,
		db:       p.DB,
	}

	s.echo.Use(recoverMiddleware())
	s.echo.Use(requestLogger())
	s.echo.Use(securityHeaders())
	s.echo.Use(corsMiddleware(p.Config.CORSOrigin))

	s.echo.GET("/health", s.healthHandler)

	s.echo.POST("/api/books", s.createBookHandler)
	s.echo.GET("/api/books/:id", s.getBookHandler)
	s.echo.GET("/api/books/:id/story", s.getStoryHandler)
	s.echo.POST("/api/books/:id/story/start", s.startStoryHandler)
	s.echo.GET("/api/books/:id/story/ready", s.storyReadyHandler)
	s.echo.POST("/api/books/:id/story/next", s.storyNextHandler)
	s.echo.POST("/api/books/:id/story/choose", s.storyChooseHandler)

	return s
}

// Handler returns the root http.Handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on the given port and serves until Shutdown or failure.
func (s *Server) Start(port string) error {
	s.httpServer = &http.Server{
		Addr:         ":" + port,
		Handler:      s.echo,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	slog.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
