// Package rest exposes the task tracker over JSON HTTP. Every response uses
// the {success, message, data, errors} envelope, and every failure passes
// through writeError.
package rest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/tasktracker/internal/logging"
	"github.com/dmitrijs2005/tasktracker/internal/server/models"
	"github.com/dmitrijs2005/tasktracker/internal/server/services"
)

const shutdownTimeout = 10 * time.Second

// TaskService is the task query, statistics and command surface used by the
// /api/tasks handlers.
type TaskService interface {
	List(ctx context.Context, userID string, filter models.TaskFilter, page, limit int) (*models.TaskPage, error)
	Get(ctx context.Context, userID, id string) (*models.Task, error)
	Stats(ctx context.Context, userID string) (*models.TaskStats, error)
	Create(ctx context.Context, userID string, in services.CreateTaskInput) (*models.Task, error)
	Update(ctx context.Context, userID, id string, in services.UpdateTaskInput) (*models.Task, error)
	Delete(ctx context.Context, userID, id string) error
}

// UserService covers accounts and token resolution for the Access Gate.
type UserService interface {
	Register(ctx context.Context, in services.RegisterInput) (*services.AuthResult, error)
	Login(ctx context.Context, in services.LoginInput) (*services.AuthResult, error)
	Authenticate(ctx context.Context, token string) (*models.User, error)
	Profile(ctx context.Context, userID string) (*models.User, error)
	UpdateProfile(ctx context.Context, userID string, in services.UpdateProfileInput) (*models.User, error)
	ChangePassword(ctx context.Context, userID string, in services.ChangePasswordInput) error
}

type AvatarService interface {
	PresignUpload(ctx context.Context, userID string, in services.AvatarUploadInput) (*services.AvatarUpload, error)
}

// Server routes JSON requests to the services. Handlers never build error
// bodies themselves; every failure goes through writeError.
type Server struct {
	address    string
	logger     logging.Logger
	tasks      TaskService
	users      UserService
	avatars    AvatarService
	production bool
	now        func() time.Time
}

// NewServer builds the HTTP API. production hides error diagnostics.
func NewServer(address string, l logging.Logger, ts TaskService, us UserService, as AvatarService, production bool) *Server {
	return &Server{
		address:    address,
		logger:     l.With("module", "http_server"),
		tasks:      ts,
		users:      us,
		avatars:    as,
		production: production,
		now:        time.Now,
	}
}

// Handler returns the routed, observed handler tree.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)

	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("GET /api/auth/me", s.authenticate(s.handleProfile))

	mux.HandleFunc("GET /api/tasks", s.authenticate(s.handleListTasks))
	mux.HandleFunc("GET /api/tasks/stats", s.authenticate(s.handleTaskStats))
	mux.HandleFunc("GET /api/tasks/{id}", s.authenticate(s.handleGetTask))
	mux.HandleFunc("POST /api/tasks", s.authenticate(s.handleCreateTask))
	mux.HandleFunc("PUT /api/tasks/{id}", s.authenticate(s.handleUpdateTask))
	mux.HandleFunc("DELETE /api/tasks/{id}", s.authenticate(s.handleDeleteTask))

	mux.HandleFunc("GET /api/users/profile", s.authenticate(s.handleProfile))
	mux.HandleFunc("PUT /api/users/profile", s.authenticate(s.handleUpdateProfile))
	mux.HandleFunc("PUT /api/users/change-password", s.authenticate(s.handleChangePassword))
	mux.HandleFunc("POST /api/users/avatar", s.authenticate(s.handleAvatarUpload))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, envelope{Message: "Route not found"})
	})

	return s.observe(mux)
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	listenErrs := make(chan error, 1)
	go func() {
		listenErrs <- srv.ListenAndServe()
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	select {
	case err := <-listenErrs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info(ctx, "Stopping HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		shutdownErr := srv.Shutdown(shutdownCtx)
		listenErr := <-listenErrs
		if errors.Is(listenErr, http.ErrServerClosed) {
			listenErr = nil
		}
		return errors.Join(shutdownErr, listenErr)
	}
}
