package tasks

import (
	"encoding/json"
	"time"
)

const (
	StatusPending    = "pending"
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"

	DefaultPriority = 1
)

// Task is the persisted unit of work. DueDate is nil when no reminder should
// ever be scheduled for the task.
type Task struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Priority    int        `json:"priority"`
	DueDate     *time.Time `json:"due_date"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (t Task) clone() Task {
	if t.DueDate != nil {
		due := *t.DueDate
		t.DueDate = &due
	}
	return t
}

// Filter selects tasks by exact, case-sensitive match. Nil fields match
// everything.
type Filter struct {
	Status   *string
	Priority *int
}

func (f Filter) Matches(t Task) bool {
	if f.Status != nil && t.Status != *f.Status {
		return false
	}
	if f.Priority != nil && t.Priority != *f.Priority {
		return false
	}
	return true
}

// CreateInput is the client payload for a new task.
type CreateInput struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
	Priority    *int    `json:"priority"`
	DueDate     *string `json:"due_date"`
}

// Optional distinguishes a JSON field that is absent (Set false) from one
// that is explicitly null (Set true, Value nil).
type Optional[T any] struct {
	Set   bool
	Value *T
}

func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: &v}
}

func Null[T any]() Optional[T] {
	return Optional[T]{Set: true}
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

// Patch is a merge-patch: only fields present in the request are applied.
type Patch struct {
	Title       Optional[string] `json:"title"`
	Description Optional[string] `json:"description"`
	Status      Optional[string] `json:"status"`
	Priority    Optional[int]    `json:"priority"`
	DueDate     Optional[string] `json:"due_date"`
}

func (p Patch) Empty() bool {
	return !p.Title.Set && !p.Description.Set && !p.Status.Set && !p.Priority.Set && !p.DueDate.Set
}

// Changes is a validated Patch, ready for the store to apply atomically.
type Changes struct {
	Title       *string
	Description *string
	Status      *string
	Priority    *int
	SetDueDate  bool
	DueDate     *time.Time
}

// Apply mutates t in place. UpdatedAt never moves backwards, so
// CreatedAt <= UpdatedAt holds even under clock skew.
func (c Changes) Apply(t *Task, now time.Time) {
	if c.Title != nil {
		t.Title = *c.Title
	}
	if c.Description != nil {
		t.Description = *c.Description
	}
	if c.Status != nil {
		t.Status = *c.Status
	}
	if c.Priority != nil {
		t.Priority = *c.Priority
	}
	if c.SetDueDate {
		if c.DueDate == nil {
			t.DueDate = nil
		} else {
			due := *c.DueDate
			t.DueDate = &due
		}
	}
	if now.After(t.UpdatedAt) {
		t.UpdatedAt = now
	}
}

// UpdateResult carries the row as it was before and after an update.
type UpdateResult struct {
	Previous Task
	Current  Task
}

// DueDateChanged reports whether a due date transition happened, including
// to or from nil.
func DueDateChanged(before, after *time.Time) bool {
	switch {
	case before == nil && after == nil:
		return false
	case before == nil || after == nil:
		return true
	default:
		return !before.Equal(*after)
	}
}
