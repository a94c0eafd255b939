package rest

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/dmitrijs2005/tasktracker/internal/common"
)

type ctxKey string

const userIDKey ctxKey = "userID"

// UserIDFromContext returns the id attached by the Access Gate.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// bearerToken extracts the credential from "Authorization: Bearer <token>".
// The scheme is matched case-insensitively.
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get(common.AuthorizationHeaderName), " ")
	if !ok || !strings.EqualFold(scheme, common.BearerScheme) {
		return ""
	}
	return strings.TrimSpace(token)
}

// authenticate is the Access Gate. It runs before every protected handler and
// short-circuits with 401 when the caller cannot be resolved to a user.
func (s *Server) authenticate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := s.users.Authenticate(r.Context(), bearerToken(r))
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		if info, ok := r.Context().Value(requestInfoKey).(*requestInfo); ok {
			info.userID = user.ID
		}

		ctx := context.WithValue(r.Context(), userIDKey, user.ID)
		next(w, r.WithContext(ctx))
	}
}

// userID is only called behind authenticate, so a missing id is a wiring bug.
func (s *Server) userID(r *http.Request) string {
	id, ok := UserIDFromContext(r.Context())
	if !ok {
		panic("rest: protected handler reached without authentication")
	}
	return id
}

type requestInfoKeyType struct{}

var requestInfoKey requestInfoKeyType

// requestInfo lets inner handlers report facts for the access log line.
type requestInfo struct {
	userID string
}

type responseTracker struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (t *responseTracker) WriteHeader(code int) {
	if !t.wroteHeader {
		t.status = code
		t.wroteHeader = true
	}
	t.ResponseWriter.WriteHeader(code)
}

func (t *responseTracker) Write(b []byte) (int, error) {
	if !t.wroteHeader {
		t.WriteHeader(http.StatusOK)
	}
	return t.ResponseWriter.Write(b)
}

// observe logs one line per request and turns panics into a 500 envelope.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		tracker := &responseTracker{ResponseWriter: w}
		info := &requestInfo{}
		r = r.WithContext(context.WithValue(r.Context(), requestInfoKey, info))

		defer func() {
			if recovered := recover(); recovered != nil {
				s.logger.Error(r.Context(), "panic handling request",
					"method", r.Method, "path", r.URL.Path, "panic", fmt.Sprint(recovered), "stack", string(debug.Stack()))
				if !tracker.wroteHeader {
					s.writeError(tracker, r, fmt.Errorf("%w: panic: %v", common.ErrorInternal, recovered))
				}
			}

			args := []any{"method", r.Method, "path", r.URL.Path, "status", tracker.status, "duration", time.Since(start)}
			if info.userID != "" {
				args = append(args, "user", info.userID)
			}
			s.logger.Info(r.Context(), "request served", args...)
		}()

		next.ServeHTTP(tracker, r)
	})
}
