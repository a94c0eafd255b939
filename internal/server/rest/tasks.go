package rest

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/dmitrijs2005/tasktracker/internal/server/models"
	"github.com/dmitrijs2005/tasktracker/internal/server/services"
)

type createTaskRequest struct {
	services.CreateTaskInput
	serverOwned
}

type updateTaskRequest struct {
	services.UpdateTaskInput
	serverOwned
}

// intParam returns def when key is absent and 0 when it is not an integer;
// the service rejects anything below 1.
func intParam(q url.Values, key string, def int) int {
	raw := q.Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}

// handleListTasks serves GET /api/tasks. Query parameters:
//   - status, priority: exact match filters
//   - search: case-insensitive substring of title or description
//   - page, limit: 1-based page number and page size (defaults 1 and 10)
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := models.TaskFilter{
		Status:   models.Status(q.Get("status")),
		Priority: models.Priority(q.Get("priority")),
		Search:   q.Get("search"),
	}
	page := intParam(q, "page", services.DefaultPage)
	limit := intParam(q, "limit", services.DefaultLimit)

	result, err := s.tasks.List(r.Context(), s.userID(r), filter, page, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", result)
}

func (s *Server) handleTaskStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.tasks.Stats(r.Context(), s.userID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", stats)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.tasks.Get(r.Context(), s.userID(r), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", map[string]any{"task": task})
}

// handleCreateTask serves POST /api/tasks. The owner is always the caller;
// an owner supplied in the body is discarded.
func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	task, err := s.tasks.Create(r.Context(), s.userID(r), req.CreateTaskInput)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, "Task created successfully", map[string]any{"task": task})
}

// handleUpdateTask serves PUT /api/tasks/{id} as a partial update.
func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	var req updateTaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	task, err := s.tasks.Update(r.Context(), s.userID(r), r.PathValue("id"), req.UpdateTaskInput)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Task updated successfully", map[string]any{"task": task})
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := s.tasks.Delete(r.Context(), s.userID(r), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Task deleted successfully", nil)
}
