package tasks

import (
	"context"

	"github.com/dmitrijs2005/tasktracker/internal/server/models"
)

// Repository is the narrow storage contract behind task queries and commands.
// Every lookup, mutation and grouping is scoped by owner.
type Repository interface {
	// Find returns at most q.Limit tasks matching q.Filter after skipping
	// q.Offset, newest first with ties broken by id descending.
	Find(ctx context.Context, q models.TaskQuery) ([]*models.Task, error)
	// Count returns the number of tasks matching f, ignoring pagination.
	Count(ctx context.Context, f models.TaskFilter) (int64, error)
	// FindOne returns common.ErrorNotFound unless a task with id is owned by userID.
	FindOne(ctx context.Context, id, userID string) (*models.Task, error)
	Create(ctx context.Context, task *models.Task) error
	// Update replaces the mutable fields of task and bumps its version. When
	// expectedVersion > 0 the write only happens if the stored version matches,
	// otherwise common.ErrVersionConflict is returned.
	Update(ctx context.Context, task *models.Task, expectedVersion int64) (*models.Task, error)
	Delete(ctx context.Context, id, userID string) error
	// CountBy groups userID's tasks by field. Absent values are not reported.
	CountBy(ctx context.Context, userID string, field models.TaskField) ([]models.GroupCount, error)
}
