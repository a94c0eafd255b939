// Package tasks provides the task storage adapters: PostgreSQL for
// production and an in-memory map for tests and local runs.
package tasks

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/tasktracker/internal/common"
	"github.com/dmitrijs2005/tasktracker/internal/dbx"
	"github.com/dmitrijs2005/tasktracker/internal/server/models"
)

const taskColumns = `id, user_id, title, description, status, priority, due_date, tags, version, created_at, updated_at`

// PostgresRepository implements task storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// where renders f as a WHERE clause with positional arguments starting at $1.
// Search is a case-insensitive substring test on title OR description.
func where(f models.TaskFilter) (string, []any) {
	args := []any{f.UserID}
	conds := []string{"user_id = $1"}

	if f.Status != "" {
		args = append(args, string(f.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Priority != "" {
		args = append(args, string(f.Priority))
		conds = append(conds, fmt.Sprintf("priority = $%d", len(args)))
	}
	if f.Search != "" {
		args = append(args, f.Search)
		n := len(args)
		conds = append(conds, fmt.Sprintf("(strpos(lower(title), lower($%d)) > 0 OR strpos(lower(description), lower($%d)) > 0)", n, n))
	}

	return "WHERE " + strings.Join(conds, " AND "), args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*models.Task, error) {
	var (
		t    models.Task
		due  sql.NullTime
		tags []byte
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.Status, &t.Priority,
		&due, &tags, &t.Version, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if due.Valid {
		d := models.NewDate(due.Time)
		t.DueDate = &d
	}
	t.Tags = []string{}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &t.Tags); err != nil {
			return nil, fmt.Errorf("decode tags: %w", err)
		}
	}
	return &t, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func dueDateArg(d *models.Date) any {
	if d == nil {
		return nil
	}
	return d.Time
}

// Find returns one page of tasks matching q.Filter, newest first.
func (r *PostgresRepository) Find(ctx context.Context, q models.TaskQuery) ([]*models.Task, error) {
	clause, args := where(q.Filter)
	args = append(args, q.Limit, q.Offset)

	query := fmt.Sprintf(`SELECT %s FROM tasks %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		taskColumns, clause, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbx.StorageError(err)
	}
	defer rows.Close()

	result := make([]*models.Task, 0, q.Limit)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, dbx.StorageError(err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, dbx.StorageError(err)
	}
	return result, nil
}

// Count returns the number of tasks matching f.
func (r *PostgresRepository) Count(ctx context.Context, f models.TaskFilter) (int64, error) {
	clause, args := where(f)

	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks `+clause, args...).Scan(&n); err != nil {
		return 0, dbx.StorageError(err)
	}
	return n, nil
}

// FindOne returns the task only when it belongs to userID.
func (r *PostgresRepository) FindOne(ctx context.Context, id, userID string) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 AND user_id = $2`

	t, err := scanTask(r.db.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, dbx.StorageError(err)
	}
	return t, nil
}

// Create inserts task as given; id, owner, version and timestamps are set by the caller.
func (r *PostgresRepository) Create(ctx context.Context, task *models.Task) error {
	tags, err := encodeTags(task.Tags)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	if _, err := r.db.ExecContext(ctx, query,
		task.ID, task.UserID, task.Title, task.Description, string(task.Status), string(task.Priority),
		dueDateArg(task.DueDate), tags, task.Version, task.CreatedAt, task.UpdatedAt); err != nil {
		return dbx.StorageError(err)
	}
	return nil
}

// Update writes the mutable fields of task. Owner and creation time never change.
func (r *PostgresRepository) Update(ctx context.Context, task *models.Task, expectedVersion int64) (*models.Task, error) {
	tags, err := encodeTags(task.Tags)
	if err != nil {
		return nil, err
	}

	args := []any{task.ID, task.UserID, task.Title, task.Description, string(task.Status), string(task.Priority),
		dueDateArg(task.DueDate), tags, task.UpdatedAt}

	query := `
		UPDATE tasks SET
			title = $3,
			description = $4,
			status = $5,
			priority = $6,
			due_date = $7,
			tags = $8,
			updated_at = $9,
			version = version + 1
		WHERE id = $1 AND user_id = $2`
	if expectedVersion > 0 {
		args = append(args, expectedVersion)
		query += ` AND version = $10`
	}
	query += ` RETURNING ` + taskColumns

	updated, err := scanTask(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if expectedVersion > 0 {
				return nil, r.conflictOrNotFound(ctx, task.ID, task.UserID)
			}
			return nil, common.ErrorNotFound
		}
		return nil, dbx.StorageError(err)
	}
	return updated, nil
}

// conflictOrNotFound explains a version-guarded update that matched no row:
// the task is either gone or was changed since it was read.
func (r *PostgresRepository) conflictOrNotFound(ctx context.Context, id, userID string) error {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE id = $1 AND user_id = $2`, id, userID).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return common.ErrorNotFound
	case err != nil:
		return dbx.StorageError(err)
	default:
		return common.ErrVersionConflict
	}
}

// Delete removes the task permanently if userID owns it.
func (r *PostgresRepository) Delete(ctx context.Context, id, userID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return dbx.StorageError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbx.StorageError(err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// CountBy runs a GROUP BY on the requested column for userID's tasks.
func (r *PostgresRepository) CountBy(ctx context.Context, userID string, field models.TaskField) ([]models.GroupCount, error) {
	var column string
	switch field {
	case models.FieldStatus:
		column = "status"
	case models.FieldPriority:
		column = "priority"
	default:
		return nil, fmt.Errorf("unsupported group field %q", field)
	}

	query := fmt.Sprintf(`SELECT %[1]s, COUNT(*) FROM tasks WHERE user_id = $1 GROUP BY %[1]s`, column)

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, dbx.StorageError(err)
	}
	defer rows.Close()

	result := []models.GroupCount{}
	for rows.Next() {
		var g models.GroupCount
		if err := rows.Scan(&g.Key, &g.Count); err != nil {
			return nil, dbx.StorageError(err)
		}
		result = append(result, g)
	}
	if err := rows.Err(); err != nil {
		return nil, dbx.StorageError(err)
	}
	return result, nil
}
