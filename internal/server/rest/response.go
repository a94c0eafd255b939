package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/tasktracker/internal/common"
)

// envelope wraps every response body.
type envelope struct {
	Success bool                `json:"success"`
	Message string              `json:"message,omitempty"`
	Data    any                 `json:"data,omitempty"`
	Errors  []common.FieldError `json:"errors,omitempty"`
	Stack   string              `json:"stack,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeData(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

// errorResponse maps an error kind to its status code and public message.
func errorResponse(err error) (int, envelope) {
	var ve *common.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, envelope{Message: "Validation failed", Errors: ve.Fields}
	case errors.Is(err, errBodyTooLarge):
		return http.StatusRequestEntityTooLarge, envelope{Message: "Request body too large"}
	case errors.Is(err, common.ErrInvalidCredentials):
		return http.StatusUnauthorized, envelope{Message: "Invalid credentials"}
	case errors.Is(err, common.ErrorUnauthorized):
		return http.StatusUnauthorized, envelope{Message: "Not authorized"}
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, envelope{Message: "Task not found"}
	case errors.Is(err, common.ErrEmailTaken):
		return http.StatusConflict, envelope{Message: "User already exists with this email"}
	case errors.Is(err, common.ErrVersionConflict):
		return http.StatusConflict, envelope{Message: "Task was modified by another request"}
	default:
		return http.StatusInternalServerError, envelope{Message: "Server error"}
	}
}

// writeError is the single translator from service errors to HTTP responses.
// Server-side failures are logged with full detail; the detail reaches the
// client only outside production.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorResponse(err)

	switch {
	case status >= http.StatusInternalServerError:
		s.logger.Error(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err.Error())
		if !s.production {
			body.Stack = err.Error()
		}
	case status == http.StatusUnauthorized:
		s.logger.Warn(r.Context(), "request rejected", "method", r.Method, "path", r.URL.Path, "reason", err.Error())
	}

	writeJSON(w, status, body)
}
