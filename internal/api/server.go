// Package api exposes the HTTP surface: authentication, user management,
// audio intake, and classification status queries, plus read-only static
// serving of stored uploads.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"pipewatch/internal/auth"
	"pipewatch/internal/config"
	"pipewatch/internal/intake"
	"pipewatch/internal/logging"
	"pipewatch/internal/pipeline"
	"pipewatch/internal/store"
)

// uploadsPrefix is the public read-only path stored uploads are served under.
const uploadsPrefix = "/uploads/"

// Server wires the HTTP routes to the underlying services.
type Server struct {
	store          *store.Store
	tokens         *auth.Service
	passwords      auth.PasswordPolicy
	intake         *intake.Service
	pipeline       *pipeline.Pipeline
	logger         *slog.Logger
	contentDir     string
	maxUploadBytes int64

	httpServer *http.Server
}

// NewServer assembles the router and its dependencies.
func NewServer(
	cfg *config.Config,
	st *store.Store,
	tokens *auth.Service,
	intakeSvc *intake.Service,
	pipe *pipeline.Pipeline,
	logger *slog.Logger,
) *Server {
	s := &Server{
		store:          st,
		tokens:         tokens,
		passwords:      auth.NewPasswordPolicy(cfg),
		intake:         intakeSvc,
		pipeline:       pipe,
		logger:         logging.NewComponentLogger(logger, "api"),
		contentDir:     cfg.Paths.ContentDir,
		maxUploadBytes: cfg.MaxUploadBytes(),
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Paths.Bind,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router builds the chi handler tree. Exposed so tests can drive the routes
// through httptest without binding a socket.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(s.requestLogger)

	r.Route("/api", func(r chi.Router) {
		r.Get("/init-status", s.handleInitStatus)
		r.Post("/init-admin", s.handleInitAdmin)
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Post("/auth/refresh", s.handleRefresh)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Get("/users", s.handleListUsers)
			r.Get("/users/profile", s.handleProfile)
			r.Put("/users/change-password", s.handleChangePassword)
			r.Post("/upload-audio", s.handleUploadAudio)
			r.Get("/audio-files", s.handleListAudioFiles)
			r.Delete("/audio-files/{id}", s.handleDeleteAudioFile)
			r.Get("/audio-processing-status/{name}", s.handleProcessingStatus)
		})
	})

	fileServer := http.FileServer(http.Dir(s.contentDir))
	r.Method(http.MethodGet, uploadsPrefix+"*", http.StripPrefix(uploadsPrefix, fileServer))

	return r
}

// ListenAndServe runs the HTTP server until it is shut down.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", logging.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
