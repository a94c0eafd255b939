package tasks

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/dmitrijs2005/tasktracker/internal/common"
	"github.com/dmitrijs2005/tasktracker/internal/server/models"
	"github.com/dmitrijs2005/tasktracker/internal/stats"
)

// MemoryRepository keeps tasks in a map. Callers always receive copies.
type MemoryRepository struct {
	mu    sync.RWMutex
	tasks map[string]*models.Task
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{tasks: make(map[string]*models.Task)}
}

// newestFirst orders by CreatedAt descending, then ID descending.
func newestFirst(a, b *models.Task) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(b.ID, a.ID)
}

func (r *MemoryRepository) matching(f models.TaskFilter) []*models.Task {
	var out []*models.Task
	for _, t := range r.tasks {
		if t.Matches(f) {
			out = append(out, t)
		}
	}
	return out
}

func (r *MemoryRepository) Find(_ context.Context, q models.TaskQuery) ([]*models.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := r.matching(q.Filter)
	slices.SortFunc(all, newestFirst)

	result := []*models.Task{}
	if q.Offset < 0 || q.Offset >= len(all) {
		return result, nil
	}
	end := min(q.Offset+q.Limit, len(all))
	for _, t := range all[q.Offset:end] {
		result = append(result, t.Clone())
	}
	return result, nil
}

func (r *MemoryRepository) Count(_ context.Context, f models.TaskFilter) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.matching(f))), nil
}

func (r *MemoryRepository) FindOne(_ context.Context, id, userID string) (*models.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[id]
	if !ok || t.UserID != userID {
		return nil, common.ErrorNotFound
	}
	return t.Clone(), nil
}

func (r *MemoryRepository) Create(_ context.Context, task *models.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := task.Clone()
	if c.Tags == nil {
		c.Tags = []string{}
	}
	r.tasks[c.ID] = c
	return nil
}

func (r *MemoryRepository) Update(_ context.Context, task *models.Task, expectedVersion int64) (*models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.tasks[task.ID]
	if !ok || cur.UserID != task.UserID {
		return nil, common.ErrorNotFound
	}
	if expectedVersion > 0 && cur.Version != expectedVersion {
		return nil, common.ErrVersionConflict
	}

	next := task.Clone()
	if next.Tags == nil {
		next.Tags = []string{}
	}
	next.CreatedAt = cur.CreatedAt
	next.Version = cur.Version + 1
	r.tasks[next.ID] = next

	return next.Clone(), nil
}

func (r *MemoryRepository) Delete(_ context.Context, id, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok || t.UserID != userID {
		return common.ErrorNotFound
	}
	delete(r.tasks, id)
	return nil
}

func (r *MemoryRepository) CountBy(_ context.Context, userID string, field models.TaskField) ([]models.GroupCount, error) {
	r.mu.RLock()
	owned := r.matching(models.TaskFilter{UserID: userID})
	r.mu.RUnlock()

	slices.SortFunc(owned, newestFirst)
	buckets := stats.CountBy(owned, func(t *models.Task) string { return t.Value(field) })

	result := make([]models.GroupCount, 0, len(buckets))
	for _, b := range buckets {
		result = append(result, models.GroupCount{Key: b.Key, Count: b.Count})
	}
	return result, nil
}
