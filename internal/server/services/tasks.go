package services

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/dmitrijs2005/tasktracker/internal/common"
	"github.com/dmitrijs2005/tasktracker/internal/server/models"
	"github.com/dmitrijs2005/tasktracker/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/tasktracker/internal/server/validation"
	"github.com/google/uuid"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// CreateTaskInput is the body of a create request. Zero Status and Priority
// fall back to pending and medium.
type CreateTaskInput struct {
	Title       string          `json:"title" validate:"required,max=100"`
	Description string          `json:"description" validate:"max=500"`
	Status      models.Status   `json:"status" validate:"omitempty,oneof=pending in-progress completed"`
	Priority    models.Priority `json:"priority" validate:"omitempty,oneof=low medium high"`
	DueDate     *models.Date    `json:"dueDate"`
	Tags        []string        `json:"tags" validate:"max=20,dive,max=50"`
}

// UpdateTaskInput is a partial update. Nil fields are left as stored; a nil
// Tags slice means unchanged while an empty one clears the tags. DueDate is
// cleared by an explicit null and kept when the key is absent. Version, when
// set, must equal the stored revision.
type UpdateTaskInput struct {
	Title       *string             `json:"title" validate:"omitnil,min=1,max=100"`
	Description *string             `json:"description" validate:"omitnil,max=500"`
	Status      *models.Status      `json:"status" validate:"omitnil,oneof=pending in-progress completed"`
	Priority    *models.Priority    `json:"priority" validate:"omitnil,oneof=low medium high"`
	DueDate     models.OptionalDate `json:"dueDate" validate:"-"`
	Tags        []string            `json:"tags" validate:"max=20,dive,max=50"`
	Version     *int64              `json:"version" validate:"omitnil,gte=1"`
}

// TaskService implements the read and write operations on a user's tasks.
// Every operation is scoped to the calling user; tasks of other users are
// indistinguishable from missing ones.
type TaskService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	validator   *validation.Validator
	now         func() time.Time
	newID       func() string
}

// NewTaskService constructs a TaskService.
//
// db is the shared connection pool handed to the repository manager on every
// call; it is nil when m serves the in-memory repositories. v validates the
// create and update inputs. The clock and id generator default to time.Now
// and random UUIDs.
func NewTaskService(db *sql.DB, m repomanager.RepositoryManager, v *validation.Validator) *TaskService {
	return &TaskService{
		db:          db,
		repomanager: m,
		validator:   v,
		now:         time.Now,
		newID:       func() string { return uuid.NewString() },
	}
}

// timestamp is microsecond precision, the resolution PostgreSQL stores.
func (s *TaskService) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func trimTags(tags []string) []string {
	if tags == nil {
		return nil
	}
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func trimPtr(p *string) {
	if p != nil {
		*p = strings.TrimSpace(*p)
	}
}

// validID reports whether id can name a task at all.
func validID(id string) bool {
	return uuid.Validate(id) == nil
}

// List returns one page of the user's tasks, newest first, with pagination
// metadata computed over the whole filtered set. A page past the end yields
// an empty list with the true totals.
func (s *TaskService) List(ctx context.Context, userID string, filter models.TaskFilter, page, limit int) (*models.TaskPage, error) {
	verr := &common.ValidationError{}
	if filter.Status != "" && !filter.Status.IsValid() {
		verr.Fields = append(verr.Fields, common.FieldError{Field: "status", Message: "Status must be one of: pending, in-progress, completed"})
	}
	if filter.Priority != "" && !filter.Priority.IsValid() {
		verr.Fields = append(verr.Fields, common.FieldError{Field: "priority", Message: "Priority must be one of: low, medium, high"})
	}
	if page < 1 {
		verr.Fields = append(verr.Fields, common.FieldError{Field: "page", Message: "Page must be a positive integer"})
	}
	switch {
	case limit < 1:
		verr.Fields = append(verr.Fields, common.FieldError{Field: "limit", Message: "Limit must be a positive integer"})
	case limit > MaxLimit:
		verr.Fields = append(verr.Fields, common.FieldError{Field: "limit", Message: fmt.Sprintf("Limit cannot be more than %d", MaxLimit)})
	}
	if len(verr.Fields) > 0 {
		return nil, verr
	}

	filter.UserID = userID
	filter.Search = strings.TrimSpace(filter.Search)

	repo := s.repomanager.Tasks(s.db)

	// An offset that does not fit in an int is past any stored result.
	tasks := []*models.Task{}
	if page-1 <= math.MaxInt/limit {
		var err error
		tasks, err = repo.Find(ctx, models.TaskQuery{
			Filter: filter,
			Offset: (page - 1) * limit,
			Limit:  limit,
		})
		if err != nil {
			return nil, err
		}
	}

	total, err := repo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	return &models.TaskPage{
		Tasks:      tasks,
		Pagination: models.NewPagination(page, limit, total),
	}, nil
}

// Get returns a single task owned by userID.
func (s *TaskService) Get(ctx context.Context, userID, id string) (*models.Task, error) {
	if !validID(id) {
		return nil, common.ErrorNotFound
	}
	return s.repomanager.Tasks(s.db).FindOne(ctx, id, userID)
}

// Stats counts the user's tasks per status and per priority. Both groupings
// sum to the user's task count; values no task carries are omitted.
func (s *TaskService) Stats(ctx context.Context, userID string) (*models.TaskStats, error) {
	repo := s.repomanager.Tasks(s.db)

	byStatus, err := repo.CountBy(ctx, userID, models.FieldStatus)
	if err != nil {
		return nil, err
	}
	byPriority, err := repo.CountBy(ctx, userID, models.FieldPriority)
	if err != nil {
		return nil, err
	}

	sortGroups(byStatus, models.ValidStatuses())
	sortGroups(byPriority, models.ValidPriorities())

	return &models.TaskStats{StatusStats: byStatus, PriorityStats: byPriority}, nil
}

// sortGroups orders groups by the declaration order of their enum.
func sortGroups[E ~string](groups []models.GroupCount, order []E) {
	rank := func(key string) int {
		return slices.IndexFunc(order, func(e E) bool { return string(e) == key })
	}
	slices.SortStableFunc(groups, func(a, b models.GroupCount) int {
		return rank(a.Key) - rank(b.Key)
	})
}

// Create validates in and stores a new task owned by userID.
func (s *TaskService) Create(ctx context.Context, userID string, in CreateTaskInput) (*models.Task, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Tags = trimTags(in.Tags)

	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	now := s.timestamp()
	task := &models.Task{
		ID:          s.newID(),
		UserID:      userID,
		Title:       in.Title,
		Description: in.Description,
		Status:      in.Status,
		Priority:    in.Priority,
		DueDate:     in.DueDate,
		Tags:        in.Tags,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if task.Status == "" {
		task.Status = models.StatusPending
	}
	if task.Priority == "" {
		task.Priority = models.PriorityMedium
	}
	if task.Tags == nil {
		task.Tags = []string{}
	}

	if err := s.repomanager.Tasks(s.db).Create(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// Update applies the non-nil fields of in to the user's task and returns the
// stored result. Owner, id and creation time never change.
func (s *TaskService) Update(ctx context.Context, userID, id string, in UpdateTaskInput) (*models.Task, error) {
	trimPtr(in.Title)
	trimPtr(in.Description)
	in.Tags = trimTags(in.Tags)

	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}
	if !validID(id) {
		return nil, common.ErrorNotFound
	}

	repo := s.repomanager.Tasks(s.db)

	task, err := repo.FindOne(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	var expected int64
	if in.Version != nil {
		expected = *in.Version
		if expected != task.Version {
			return nil, common.ErrVersionConflict
		}
	}

	if in.Title != nil {
		task.Title = *in.Title
	}
	if in.Description != nil {
		task.Description = *in.Description
	}
	if in.Status != nil {
		task.Status = *in.Status
	}
	if in.Priority != nil {
		task.Priority = *in.Priority
	}
	if in.DueDate.Set {
		task.DueDate = in.DueDate.Value
	}
	if in.Tags != nil {
		task.Tags = in.Tags
	}
	task.UpdatedAt = s.timestamp()

	return repo.Update(ctx, task, expected)
}

// Delete permanently removes the user's task.
func (s *TaskService) Delete(ctx context.Context, userID, id string) error {
	if !validID(id) {
		return common.ErrorNotFound
	}
	return s.repomanager.Tasks(s.db).Delete(ctx, id, userID)
}
