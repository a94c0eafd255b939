package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/tasktracker/internal/common"
	"github.com/dmitrijs2005/tasktracker/internal/dbx"
	"github.com/dmitrijs2005/tasktracker/internal/server/models"
	"github.com/dmitrijs2005/tasktracker/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/tasktracker/internal/server/repositories/tasks"
	"github.com/dmitrijs2005/tasktracker/internal/server/repositories/users"
	"github.com/dmitrijs2005/tasktracker/internal/server/validation"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tickingClock advances one second per call so creation order is strict.
func tickingClock(start time.Time) func() time.Time {
	cur := start
	return func() time.Time {
		cur = cur.Add(time.Second)
		return cur
	}
}

func newTaskService(t *testing.T) *TaskService {
	t.Helper()
	s := NewTaskService(nil, repomanager.NewInMemoryRepositoryManager(), validation.New())
	s.now = tickingClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	return s
}

func mustCreate(t *testing.T, s *TaskService, userID string, in CreateTaskInput) *models.Task {
	t.Helper()
	task, err := s.Create(context.Background(), userID, in)
	require.NoError(t, err)
	return task
}

func validationFields(t *testing.T, err error) []common.FieldError {
	t.Helper()
	require.ErrorIs(t, err, common.ErrValidation)
	var ve *common.ValidationError
	require.True(t, errors.As(err, &ve))
	return ve.Fields
}

func strPtr(s string) *string { return &s }

func TestCreate_DefaultsAndTrimming(t *testing.T) {
	s := newTaskService(t)

	task := mustCreate(t, s, "u1", CreateTaskInput{
		Title:       "  Buy milk  ",
		Description: "  2%  ",
		Tags:        []string{" home ", "", "shop"},
	})

	assert.NoError(t, uuid.Validate(task.ID))
	assert.Equal(t, "u1", task.UserID)
	assert.Equal(t, "Buy milk", task.Title)
	assert.Equal(t, "2%", task.Description)
	assert.Equal(t, models.StatusPending, task.Status)
	assert.Equal(t, models.PriorityMedium, task.Priority)
	assert.Equal(t, []string{"home", "shop"}, task.Tags)
	assert.Equal(t, int64(1), task.Version)
	assert.Equal(t, task.CreatedAt, task.UpdatedAt)

	got, err := s.Get(context.Background(), "u1", task.ID)
	require.NoError(t, err)
	assert.Equal(t, task, got)
}

func TestCreate_TitleLengthBoundary(t *testing.T) {
	s := newTaskService(t)

	mustCreate(t, s, "u1", CreateTaskInput{Title: strings.Repeat("a", 100)})

	_, err := s.Create(context.Background(), "u1", CreateTaskInput{Title: strings.Repeat("a", 101)})
	fields := validationFields(t, err)
	assert.Equal(t, []common.FieldError{{Field: "title", Message: "Title cannot be more than 100 characters"}}, fields)

	_, err = s.Create(context.Background(), "u1", CreateTaskInput{Title: "   "})
	fields = validationFields(t, err)
	assert.Equal(t, "Title is required", fields[0].Message)
}

func TestCreate_RejectsUnknownEnumsAndOversizedTags(t *testing.T) {
	s := newTaskService(t)

	_, err := s.Create(context.Background(), "u1", CreateTaskInput{
		Title:       "x",
		Description: strings.Repeat("d", 501),
		Status:      "done",
		Priority:    "urgent",
		Tags:        []string{strings.Repeat("t", 51)},
	})
	fields := validationFields(t, err)

	var names []string
	for _, f := range fields {
		names = append(names, f.Field)
	}
	assert.Equal(t, []string{"description", "status", "priority", "tags[0]"}, names)

	many := make([]string, 21)
	for i := range many {
		many[i] = fmt.Sprint(i)
	}
	_, err = s.Create(context.Background(), "u1", CreateTaskInput{Title: "x", Tags: many})
	validationFields(t, err)
}

func TestOwnershipIsolation(t *testing.T) {
	s := newTaskService(t)
	ctx := context.Background()

	task := mustCreate(t, s, "alice", CreateTaskInput{Title: "secret"})

	_, err := s.Get(ctx, "bob", task.ID)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	_, err = s.Update(ctx, "bob", task.ID, UpdateTaskInput{Title: strPtr("pwned")})
	assert.ErrorIs(t, err, common.ErrorNotFound)

	assert.ErrorIs(t, s.Delete(ctx, "bob", task.ID), common.ErrorNotFound)

	page, err := s.List(ctx, "bob", models.TaskFilter{}, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Tasks)
	assert.Equal(t, int64(0), page.Pagination.Total)

	got, err := s.Get(ctx, "alice", task.ID)
	require.NoError(t, err)
	assert.Equal(t, "secret", got.Title)
}

func TestMalformedIDIsNotFound(t *testing.T) {
	s := newTaskService(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "u1", "not-a-uuid")
	assert.ErrorIs(t, err, common.ErrorNotFound)
	_, err = s.Update(ctx, "u1", "not-a-uuid", UpdateTaskInput{})
	assert.ErrorIs(t, err, common.ErrorNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "u1", "not-a-uuid"), common.ErrorNotFound)
}

func TestList_FilterScenario(t *testing.T) {
	s := newTaskService(t)
	ctx := context.Background()

	mustCreate(t, s, "u1", CreateTaskInput{Title: "Buy milk", Status: models.StatusPending, Priority: models.PriorityHigh})
	mustCreate(t, s, "u1", CreateTaskInput{Title: "Buy bread", Status: models.StatusCompleted, Priority: models.PriorityHigh})
	mustCreate(t, s, "u1", CreateTaskInput{Title: "Call mom", Description: "about the milk", Status: models.StatusPending, Priority: models.PriorityLow})
	mustCreate(t, s, "u2", CreateTaskInput{Title: "Buy milk too", Status: models.StatusPending})

	page, err := s.List(ctx, "u1", models.TaskFilter{Status: models.StatusPending, Search: "MILK"}, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Tasks, 2)
	assert.Equal(t, "Call mom", page.Tasks[0].Title)
	assert.Equal(t, "Buy milk", page.Tasks[1].Title)
	assert.Equal(t, models.Pagination{Current: 1, Pages: 1, Total: 2}, page.Pagination)

	page, err = s.List(ctx, "u1", models.TaskFilter{Priority: models.PriorityHigh, Search: "buy"}, 1, 10)
	require.NoError(t, err)
	assert.Len(t, page.Tasks, 2)

	page, err = s.List(ctx, "u1", models.TaskFilter{Search: "  "}, 1, 10)
	require.NoError(t, err)
	assert.Len(t, page.Tasks, 3)
}

func TestList_Pagination(t *testing.T) {
	s := newTaskService(t)
	ctx := context.Background()

	for i := range 25 {
		mustCreate(t, s, "u1", CreateTaskInput{Title: fmt.Sprintf("task %02d", i)})
	}

	page, err := s.List(ctx, "u1", models.TaskFilter{}, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Tasks, 10)
	assert.Equal(t, "task 24", page.Tasks[0].Title)
	assert.Equal(t, models.Pagination{Current: 1, Pages: 3, Total: 25}, page.Pagination)

	page, err = s.List(ctx, "u1", models.TaskFilter{}, 3, 10)
	require.NoError(t, err)
	require.Len(t, page.Tasks, 5)
	assert.Equal(t, "task 00", page.Tasks[4].Title)

	page, err = s.List(ctx, "u1", models.TaskFilter{}, 4, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Tasks)
	assert.Equal(t, models.Pagination{Current: 4, Pages: 3, Total: 25}, page.Pagination)

	page, err = s.List(ctx, "u1", models.TaskFilter{}, 1, MaxLimit)
	require.NoError(t, err)
	assert.Len(t, page.Tasks, 25)
	assert.Equal(t, 1, page.Pagination.Pages)
}

func TestList_PagesPartitionTheResultSet(t *testing.T) {
	s := newTaskService(t)
	ctx := context.Background()

	for i := range 7 {
		mustCreate(t, s, "u1", CreateTaskInput{Title: fmt.Sprint(i)})
	}

	seen := map[string]bool{}
	for page := 1; page <= 3; page++ {
		p, err := s.List(ctx, "u1", models.TaskFilter{}, page, 3)
		require.NoError(t, err)
		for _, task := range p.Tasks {
			assert.False(t, seen[task.ID], "task %s listed twice", task.ID)
			seen[task.ID] = true
		}
	}
	assert.Len(t, seen, 7)
}

func TestList_InvalidArguments(t *testing.T) {
	s := newTaskService(t)

	_, err := s.List(context.Background(), "u1", models.TaskFilter{Status: "done", Priority: "urgent"}, 0, -1)
	fields := validationFields(t, err)

	var names []string
	for _, f := range fields {
		names = append(names, f.Field)
	}
	assert.Equal(t, []string{"status", "priority", "page", "limit"}, names)
}

func TestList_LimitAboveMaximumIsRejected(t *testing.T) {
	s := newTaskService(t)
	ctx := context.Background()

	for i := range 150 {
		mustCreate(t, s, "u1", CreateTaskInput{Title: fmt.Sprintf("task %03d", i)})
	}

	page, err := s.List(ctx, "u1", models.TaskFilter{}, 2, MaxLimit)
	require.NoError(t, err)
	assert.Len(t, page.Tasks, 50)
	assert.Equal(t, models.Pagination{Current: 2, Pages: 2, Total: 150}, page.Pagination)

	_, err = s.List(ctx, "u1", models.TaskFilter{}, 1, 200)
	fields := validationFields(t, err)
	assert.Equal(t, []common.FieldError{{Field: "limit", Message: "Limit cannot be more than 100"}}, fields)
}

func TestList_HugePageIsPastTheEnd(t *testing.T) {
	s := newTaskService(t)
	ctx := context.Background()

	for i := range 3 {
		mustCreate(t, s, "u1", CreateTaskInput{Title: fmt.Sprint(i)})
	}

	tests := []struct {
		page, limit int
	}{
		{math.MaxInt/16 + 2, 16},
		{math.MaxInt/4 + 1, 3},
		{math.MaxInt, 100},
		{math.MaxInt, 1},
	}
	for _, tt := range tests {
		page, err := s.List(ctx, "u1", models.TaskFilter{}, tt.page, tt.limit)
		require.NoError(t, err, "page=%d limit=%d", tt.page, tt.limit)
		assert.Empty(t, page.Tasks, "page=%d limit=%d", tt.page, tt.limit)
		assert.Equal(t, int64(3), page.Pagination.Total)
		assert.Equal(t, tt.page, page.Pagination.Current)
	}
}

func TestStats(t *testing.T) {
	s := newTaskService(t)
	ctx := context.Background()

	mustCreate(t, s, "u1", CreateTaskInput{Title: "a", Status: models.StatusCompleted, Priority: models.PriorityHigh})
	mustCreate(t, s, "u1", CreateTaskInput{Title: "b", Status: models.StatusPending, Priority: models.PriorityHigh})
	mustCreate(t, s, "u1", CreateTaskInput{Title: "c", Status: models.StatusPending, Priority: models.PriorityLow})
	mustCreate(t, s, "u2", CreateTaskInput{Title: "d", Status: models.StatusInProgress})

	stats, err := s.Stats(ctx, "u1")
	require.NoError(t, err)

	assert.Equal(t, []models.GroupCount{
		{Key: "pending", Count: 2},
		{Key: "completed", Count: 1},
	}, stats.StatusStats)
	assert.Equal(t, []models.GroupCount{
		{Key: "low", Count: 1},
		{Key: "high", Count: 2},
	}, stats.PriorityStats)

	empty, err := s.Stats(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty.StatusStats)
	assert.Empty(t, empty.PriorityStats)
}

func TestUpdate_Partial(t *testing.T) {
	s := newTaskService(t)
	ctx := context.Background()

	due := models.NewDate(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	task := mustCreate(t, s, "u1", CreateTaskInput{Title: "a", Description: "keep", Tags: []string{"x"}, DueDate: &due})

	status := models.StatusCompleted
	got, err := s.Update(ctx, "u1", task.ID, UpdateTaskInput{Title: strPtr(" b "), Status: &status})
	require.NoError(t, err)

	assert.Equal(t, "b", got.Title)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.Equal(t, "keep", got.Description)
	assert.Equal(t, []string{"x"}, got.Tags)
	assert.Equal(t, &due, got.DueDate)
	assert.Equal(t, task.CreatedAt, got.CreatedAt)
	assert.True(t, got.UpdatedAt.After(task.UpdatedAt))
	assert.Equal(t, int64(2), got.Version)

	got, err = s.Update(ctx, "u1", task.ID, UpdateTaskInput{Tags: []string{}})
	require.NoError(t, err)
	assert.Equal(t, []string{}, got.Tags)
}

func TestUpdate_DueDateSetKeepAndClear(t *testing.T) {
	s := newTaskService(t)
	ctx := context.Background()

	task := mustCreate(t, s, "u1", CreateTaskInput{Title: "a"})
	due := models.NewDate(time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC))

	got, err := s.Update(ctx, "u1", task.ID, UpdateTaskInput{DueDate: models.OptionalDate{Set: true, Value: &due}})
	require.NoError(t, err)
	require.NotNil(t, got.DueDate)
	assert.Equal(t, "2025-01-02", got.DueDate.String())

	got, err = s.Update(ctx, "u1", task.ID, UpdateTaskInput{Title: strPtr("b")})
	require.NoError(t, err)
	require.NotNil(t, got.DueDate)
	assert.Equal(t, "2025-01-02", got.DueDate.String())

	var in UpdateTaskInput
	require.NoError(t, json.Unmarshal([]byte(`{"dueDate":null}`), &in))
	got, err = s.Update(ctx, "u1", task.ID, in)
	require.NoError(t, err)
	assert.Nil(t, got.DueDate)

	stored, err := s.Get(ctx, "u1", task.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.DueDate)
}

func TestUpdate_EmptyBodyOnlyTouchesUpdatedAt(t *testing.T) {
	s := newTaskService(t)
	ctx := context.Background()

	task := mustCreate(t, s, "u1", CreateTaskInput{Title: "a", Description: "d", Priority: models.PriorityLow, Tags: []string{"t"}})

	got, err := s.Update(ctx, "u1", task.ID, UpdateTaskInput{})
	require.NoError(t, err)

	assert.True(t, got.UpdatedAt.After(task.UpdatedAt))
	got.UpdatedAt = task.UpdatedAt
	got.Version = task.Version
	assert.Equal(t, task, got)
}

func TestUpdate_Validation(t *testing.T) {
	s := newTaskService(t)
	task := mustCreate(t, s, "u1", CreateTaskInput{Title: "a"})

	_, err := s.Update(context.Background(), "u1", task.ID, UpdateTaskInput{Title: strPtr("   ")})
	fields := validationFields(t, err)
	assert.Equal(t, []common.FieldError{{Field: "title", Message: "Title cannot be empty"}}, fields)

	bad := models.Priority("urgent")
	_, err = s.Update(context.Background(), "u1", task.ID, UpdateTaskInput{Priority: &bad})
	validationFields(t, err)
}

func TestUpdate_VersionCheck(t *testing.T) {
	s := newTaskService(t)
	ctx := context.Background()
	task := mustCreate(t, s, "u1", CreateTaskInput{Title: "a"})

	v1 := int64(1)
	got, err := s.Update(ctx, "u1", task.ID, UpdateTaskInput{Title: strPtr("first"), Version: &v1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)

	_, err = s.Update(ctx, "u1", task.ID, UpdateTaskInput{Title: strPtr("stale"), Version: &v1})
	assert.ErrorIs(t, err, common.ErrVersionConflict)

	current, err := s.Get(ctx, "u1", task.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", current.Title)
}

func TestDelete_Twice(t *testing.T) {
	s := newTaskService(t)
	ctx := context.Background()
	task := mustCreate(t, s, "u1", CreateTaskInput{Title: "a"})

	require.NoError(t, s.Delete(ctx, "u1", task.ID))
	assert.ErrorIs(t, s.Delete(ctx, "u1", task.ID), common.ErrorNotFound)

	_, err := s.Get(ctx, "u1", task.ID)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

// --- failing storage ---

type failingTasksRepo struct {
	tasks.Repository
	err error
}

func (f *failingTasksRepo) Find(context.Context, models.TaskQuery) ([]*models.Task, error) {
	return nil, f.err
}

func (f *failingTasksRepo) CountBy(context.Context, string, models.TaskField) ([]models.GroupCount, error) {
	return nil, f.err
}

func (f *failingTasksRepo) Create(context.Context, *models.Task) error { return f.err }

type fakeRepoManager struct {
	tasks tasks.Repository
	users users.Repository
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Tasks(dbx.DBTX) tasks.Repository             { return m.tasks }
func (m *fakeRepoManager) Users(dbx.DBTX) users.Repository             { return m.users }

func TestStorageErrorsPropagate(t *testing.T) {
	storageErr := fmt.Errorf("%w: db error: %w", common.ErrStorage, errors.New("conn refused"))
	s := NewTaskService(nil, &fakeRepoManager{tasks: &failingTasksRepo{err: storageErr}}, validation.New())
	ctx := context.Background()

	_, err := s.List(ctx, "u1", models.TaskFilter{}, 1, 10)
	assert.ErrorIs(t, err, common.ErrStorage)

	_, err = s.Stats(ctx, "u1")
	assert.ErrorIs(t, err, common.ErrStorage)

	_, err = s.Create(ctx, "u1", CreateTaskInput{Title: "a"})
	assert.ErrorIs(t, err, common.ErrStorage)
}
