package models

import (
	"slices"
	"strings"
	"time"
)

// Status is the workflow state of a task. Any state may move to any other.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
)

// ValidStatuses returns all valid status values.
func ValidStatuses() []Status {
	return []Status{StatusPending, StatusInProgress, StatusCompleted}
}

// IsValid returns true if the status is a known valid value.
func (s Status) IsValid() bool {
	return slices.Contains(ValidStatuses(), s)
}

// Priority ranks a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ValidPriorities returns all valid priority values.
func ValidPriorities() []Priority {
	return []Priority{PriorityLow, PriorityMedium, PriorityHigh}
}

// IsValid returns true if the priority is a known valid value.
func (p Priority) IsValid() bool {
	return slices.Contains(ValidPriorities(), p)
}

// Task is a single to-do item owned by exactly one user.
type Task struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      Status    `json:"status"`
	Priority    Priority  `json:"priority"`
	DueDate     *Date     `json:"dueDate,omitempty"`
	Tags        []string  `json:"tags"`
	Version     int64     `json:"version"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Clone returns a deep copy of t.
func (t *Task) Clone() *Task {
	c := *t
	c.Tags = slices.Clone(t.Tags)
	if t.DueDate != nil {
		d := *t.DueDate
		c.DueDate = &d
	}
	return &c
}

// Matches reports whether t satisfies every constraint of f.
func (t *Task) Matches(f TaskFilter) bool {
	if t.UserID != f.UserID {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Priority != "" && t.Priority != f.Priority {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		return strings.Contains(strings.ToLower(t.Title), needle) ||
			strings.Contains(strings.ToLower(t.Description), needle)
	}
	return true
}

// TaskFilter is the storage-level predicate of a task listing. UserID is
// always required; zero values of the other fields mean "any".
type TaskFilter struct {
	UserID   string
	Status   Status
	Priority Priority
	Search   string
}

// TaskQuery is a filtered, paginated listing ordered newest first.
type TaskQuery struct {
	Filter TaskFilter
	Offset int
	Limit  int
}

// TaskField names a task column that can be grouped on.
type TaskField string

const (
	FieldStatus   TaskField = "status"
	FieldPriority TaskField = "priority"
)

// Value returns the string value of field f in t.
func (t *Task) Value(f TaskField) string {
	switch f {
	case FieldStatus:
		return string(t.Status)
	case FieldPriority:
		return string(t.Priority)
	default:
		return ""
	}
}

// Pagination describes where a page sits in the full result set.
type Pagination struct {
	Current int   `json:"current"`
	Pages   int   `json:"pages"`
	Total   int64 `json:"total"`
}

// NewPagination computes pages as ceil(total/limit). Current is echoed back
// unclamped, even past the last page.
func NewPagination(page, limit int, total int64) Pagination {
	pages := 0
	if limit > 0 {
		pages = int((total + int64(limit) - 1) / int64(limit))
	}
	return Pagination{Current: page, Pages: pages, Total: total}
}

// TaskPage is one page of a task listing.
type TaskPage struct {
	Tasks      []*Task    `json:"tasks"`
	Pagination Pagination `json:"pagination"`
}

// GroupCount is the number of tasks sharing one value of a grouped field.
type GroupCount struct {
	Key   string `json:"_id"`
	Count int64  `json:"count"`
}

// TaskStats holds independent status and priority groupings. Values that
// no task carries are absent rather than zero.
type TaskStats struct {
	StatusStats   []GroupCount `json:"statusStats"`
	PriorityStats []GroupCount `json:"priorityStats"`
}
