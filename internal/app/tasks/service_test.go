package tasks

import (
	"context"
	"errors"
	"testing"
	"time"
)

type publishedReminder struct {
	TaskID      int64
	DueDate     time.Time
	Description string
}

type fakeReminders struct {
	calls []publishedReminder
	err   error
}

func (f *fakeReminders) PublishReminder(_ context.Context, taskID int64, dueDate time.Time, description string) (string, error) {
	f.calls = append(f.calls, publishedReminder{TaskID: taskID, DueDate: dueDate, Description: description})
	if f.err != nil {
		return "", f.err
	}
	return "msg-1", nil
}

type failingRepo struct {
	*MemoryRepository
}

func (failingRepo) Create(context.Context, Task) (Task, error) {
	return Task{}, &StorageError{Op: "create task", Err: errors.New("disk full")}
}

func newTestService(t *testing.T) (*Service, *fakeReminders, *time.Time) {
	t.Helper()
	clock := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	pub := &fakeReminders{}
	svc := NewService(NewMemoryRepository(), pub)
	svc.Now = func() time.Time { return clock }
	return svc, pub, &clock
}

func ptr[T any](v T) *T { return &v }

func TestCreateTask_RequiresTitle(t *testing.T) {
	svc, pub, _ := newTestService(t)
	ctx := context.Background()

	for _, title := range []string{"", "   "} {
		_, err := svc.CreateTask(ctx, CreateInput{Title: title, DueDate: ptr("2025-01-15")})
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("expected ErrValidation for title %q, got %v", title, err)
		}
	}

	all, err := svc.ListTasks(ctx, Filter{})
	if err != nil {
		t.Fatalf("ListTasks returned error: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected no persisted tasks, got %d", len(all))
	}
	if len(pub.calls) != 0 {
		t.Fatalf("expected no publishes, got %d", len(pub.calls))
	}
}

func TestCreateTask_DefaultsAndTimestamps(t *testing.T) {
	svc, pub, clock := newTestService(t)

	task, err := svc.CreateTask(context.Background(), CreateInput{Title: "  Pay rent ", DueDate: ptr("2025-01-15")})
	if err != nil {
		t.Fatalf("CreateTask returned error: %v", err)
	}
	if task.ID == 0 || task.Title != "Pay rent" {
		t.Fatalf("unexpected task: %+v", task)
	}
	if task.Status != StatusPending || task.Priority != 1 || task.Description != "" {
		t.Fatalf("defaults not applied: %+v", task)
	}
	if !task.CreatedAt.Equal(task.UpdatedAt) || !task.CreatedAt.Equal(*clock) {
		t.Fatalf("expected created_at == updated_at == now, got %v / %v", task.CreatedAt, task.UpdatedAt)
	}

	wantDue := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	if task.DueDate == nil || !task.DueDate.Equal(wantDue) {
		t.Fatalf("due date mismatch: %v", task.DueDate)
	}
	if len(pub.calls) != 1 || pub.calls[0].TaskID != task.ID || !pub.calls[0].DueDate.Equal(wantDue) {
		t.Fatalf("expected one publish for the new task, got %+v", pub.calls)
	}
}

func TestCreateTask_WithoutDueDateDoesNotPublish(t *testing.T) {
	svc, pub, _ := newTestService(t)

	if _, err := svc.CreateTask(context.Background(), CreateInput{Title: "Read"}); err != nil {
		t.Fatalf("CreateTask returned error: %v", err)
	}
	if len(pub.calls) != 0 {
		t.Fatalf("expected no publishes, got %d", len(pub.calls))
	}
}

func TestCreateTask_PublishFailureDoesNotFailWrite(t *testing.T) {
	svc, pub, _ := newTestService(t)
	pub.err = errors.New("nats: timeout")

	task, err := svc.CreateTask(context.Background(), CreateInput{Title: "Pay rent", DueDate: ptr("2025-01-15")})
	if err != nil {
		t.Fatalf("publish failure leaked to caller: %v", err)
	}
	if _, err := svc.GetTask(context.Background(), task.ID); err != nil {
		t.Fatalf("task was not persisted: %v", err)
	}
}

func TestCreateTask_RejectsInvalidFields(t *testing.T) {
	long := make([]byte, 101)
	for i := range long {
		long[i] = 'x'
	}
	tests := []struct {
		name  string
		in    CreateInput
		field string
	}{
		{name: "malformed due date", in: CreateInput{Title: "a", DueDate: ptr("next tuesday")}, field: "due_date"},
		{name: "due date past year 9999", in: CreateInput{Title: "a", DueDate: ptr("9999-12-31T23:00:00-05:00")}, field: "due_date"},
		{name: "title too long", in: CreateInput{Title: string(long)}, field: "title"},
		{name: "unknown status", in: CreateInput{Title: "a", Status: ptr("done")}, field: "status"},
		{name: "priority out of range", in: CreateInput{Title: "a", Priority: ptr(9)}, field: "priority"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, _, _ := newTestService(t)
			_, err := svc.CreateTask(context.Background(), tc.in)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tc.field {
				t.Fatalf("expected field %q, got %q", tc.field, verr.Field)
			}
		})
	}
}

func TestCreateTask_PermissiveFields(t *testing.T) {
	svc, _, _ := newTestService(t)
	svc.Strict = false

	task, err := svc.CreateTask(context.Background(), CreateInput{Title: "a", Status: ptr("Blocked"), Priority: ptr(42)})
	if err != nil {
		t.Fatalf("CreateTask returned error: %v", err)
	}
	if task.Status != "Blocked" || task.Priority != 42 {
		t.Fatalf("permissive values not stored: %+v", task)
	}
}

func TestCreateTask_StorageError(t *testing.T) {
	pub := &fakeReminders{}
	svc := NewService(failingRepo{NewMemoryRepository()}, pub)

	_, err := svc.CreateTask(context.Background(), CreateInput{Title: "a", DueDate: ptr("2025-01-15")})
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
	if len(pub.calls) != 0 {
		t.Fatalf("expected no publish after failed write, got %d", len(pub.calls))
	}
}

func TestUpdateTask_StatusOnlyNeverPublishes(t *testing.T) {
	svc, pub, clock := newTestService(t)
	ctx := context.Background()
	task, err := svc.CreateTask(ctx, CreateInput{Title: "Pay rent", DueDate: ptr("2025-01-15")})
	if err != nil {
		t.Fatalf("CreateTask returned error: %v", err)
	}
	pub.calls = nil
	*clock = clock.Add(time.Minute)

	updated, err := svc.UpdateTask(ctx, task.ID, Patch{Status: Some(StatusCompleted)})
	if err != nil {
		t.Fatalf("UpdateTask returned error: %v", err)
	}
	if updated.Status != StatusCompleted {
		t.Fatalf("status not applied: %+v", updated)
	}
	if len(pub.calls) != 0 {
		t.Fatalf("expected no publishes, got %+v", pub.calls)
	}
}

func TestUpdateTask_DueDateFromNullPublishesOnce(t *testing.T) {
	svc, pub, _ := newTestService(t)
	ctx := context.Background()
	task, err := svc.CreateTask(ctx, CreateInput{Title: "Pay rent", Description: ptr("flat 4")})
	if err != nil {
		t.Fatalf("CreateTask returned error: %v", err)
	}

	if _, err := svc.UpdateTask(ctx, task.ID, Patch{DueDate: Some("2025-02-01T18:30:00+02:00")}); err != nil {
		t.Fatalf("UpdateTask returned error: %v", err)
	}

	want := time.Date(2025, 2, 1, 16, 30, 0, 0, time.UTC)
	if len(pub.calls) != 1 {
		t.Fatalf("expected exactly one publish, got %d", len(pub.calls))
	}
	got := pub.calls[0]
	if got.TaskID != task.ID || !got.DueDate.Equal(want) || got.Description != "flat 4" {
		t.Fatalf("unexpected publish: %+v", got)
	}
}

func TestUpdateTask_DueDateToNullDoesNotPublish(t *testing.T) {
	svc, pub, _ := newTestService(t)
	ctx := context.Background()
	task, err := svc.CreateTask(ctx, CreateInput{Title: "Pay rent", DueDate: ptr("2025-01-15")})
	if err != nil {
		t.Fatalf("CreateTask returned error: %v", err)
	}
	pub.calls = nil

	updated, err := svc.UpdateTask(ctx, task.ID, Patch{DueDate: Null[string]()})
	if err != nil {
		t.Fatalf("UpdateTask returned error: %v", err)
	}
	if updated.DueDate != nil {
		t.Fatalf("expected due date cleared, got %v", updated.DueDate)
	}
	if len(pub.calls) != 0 {
		t.Fatalf("expected no publishes, got %+v", pub.calls)
	}
}

func TestUpdateTask_SameDueDateDoesNotPublish(t *testing.T) {
	svc, pub, _ := newTestService(t)
	ctx := context.Background()
	task, err := svc.CreateTask(ctx, CreateInput{Title: "Pay rent", DueDate: ptr("2025-01-15")})
	if err != nil {
		t.Fatalf("CreateTask returned error: %v", err)
	}
	pub.calls = nil

	if _, err := svc.UpdateTask(ctx, task.ID, Patch{DueDate: Some("2025-01-15T00:00:00Z")}); err != nil {
		t.Fatalf("UpdateTask returned error: %v", err)
	}
	if len(pub.calls) != 0 {
		t.Fatalf("expected no publishes for an unchanged due date, got %+v", pub.calls)
	}
}

func TestUpdateTask_PriorityScenario(t *testing.T) {
	svc, pub, clock := newTestService(t)
	ctx := context.Background()
	task, err := svc.CreateTask(ctx, CreateInput{Title: "Pay rent", DueDate: ptr("2025-01-15")})
	if err != nil {
		t.Fatalf("CreateTask returned error: %v", err)
	}
	pub.calls = nil
	*clock = clock.Add(time.Second)

	updated, err := svc.UpdateTask(ctx, task.ID, Patch{Priority: Some(5)})
	if err != nil {
		t.Fatalf("UpdateTask returned error: %v", err)
	}
	if updated.Priority != 5 {
		t.Fatalf("priority not applied: %+v", updated)
	}
	if updated.DueDate == nil || !updated.DueDate.Equal(*task.DueDate) {
		t.Fatalf("due date changed: %v", updated.DueDate)
	}
	if !updated.UpdatedAt.After(updated.CreatedAt) {
		t.Fatalf("expected updated_at > created_at, got %v / %v", updated.UpdatedAt, updated.CreatedAt)
	}
	if len(pub.calls) != 0 {
		t.Fatalf("expected no publishes, got %+v", pub.calls)
	}
}

func TestUpdateTask_UpdatedAtNeverMovesBackwards(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()
	task, err := svc.CreateTask(ctx, CreateInput{Title: "a"})
	if err != nil {
		t.Fatalf("CreateTask returned error: %v", err)
	}
	*clock = clock.Add(-time.Hour)

	updated, err := svc.UpdateTask(ctx, task.ID, Patch{Title: Some("b")})
	if err != nil {
		t.Fatalf("UpdateTask returned error: %v", err)
	}
	if updated.UpdatedAt.Before(updated.CreatedAt) {
		t.Fatalf("updated_at went behind created_at: %v < %v", updated.UpdatedAt, updated.CreatedAt)
	}
}

func TestUpdateTask_ValidatesWholePatchBeforeWriting(t *testing.T) {
	svc, pub, _ := newTestService(t)
	ctx := context.Background()
	task, err := svc.CreateTask(ctx, CreateInput{Title: "Pay rent"})
	if err != nil {
		t.Fatalf("CreateTask returned error: %v", err)
	}

	_, err = svc.UpdateTask(ctx, task.ID, Patch{Title: Some("Renamed"), DueDate: Some("15/01/2025")})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	got, err := svc.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask returned error: %v", err)
	}
	if got.Title != "Pay rent" {
		t.Fatalf("partial update was applied: %+v", got)
	}
	if len(pub.calls) != 0 {
		t.Fatalf("expected no publishes, got %+v", pub.calls)
	}
}

func TestUpdateTask_Errors(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	task, err := svc.CreateTask(ctx, CreateInput{Title: "a"})
	if err != nil {
		t.Fatalf("CreateTask returned error: %v", err)
	}

	if _, err := svc.UpdateTask(ctx, task.ID, Patch{}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for empty patch, got %v", err)
	}
	if _, err := svc.UpdateTask(ctx, task.ID, Patch{Title: Null[string]()}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for null title, got %v", err)
	}
	if _, err := svc.UpdateTask(ctx, task.ID, Patch{DueDate: Some("9999-12-31T23:00:00-05:00")}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for out of range due date, got %v", err)
	}
	if _, err := svc.UpdateTask(ctx, 999, Patch{Title: Some("b")}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	updated, err := svc.UpdateTask(ctx, task.ID, Patch{Description: Null[string]()})
	if err != nil {
		t.Fatalf("UpdateTask returned error: %v", err)
	}
	if updated.Description != "" {
		t.Fatalf("expected null description to clear, got %q", updated.Description)
	}
}

func TestDeleteTask_SecondDeleteIsNotFound(t *testing.T) {
	svc, pub, _ := newTestService(t)
	ctx := context.Background()
	task, err := svc.CreateTask(ctx, CreateInput{Title: "a", DueDate: ptr("2025-01-15")})
	if err != nil {
		t.Fatalf("CreateTask returned error: %v", err)
	}
	pub.calls = nil

	if err := svc.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("first delete returned error: %v", err)
	}
	err = svc.DeleteTask(ctx, task.ID)
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.ID != task.ID {
		t.Fatalf("expected NotFoundError for id %d, got %v", task.ID, err)
	}
	if err := svc.DeleteTask(ctx, 12345); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
	}
	if len(pub.calls) != 0 {
		t.Fatalf("delete must not publish, got %+v", pub.calls)
	}
}

func TestListTasks_ExactStatusMatch(t *testing.T) {
	svc, _, _ := newTestService(t)
	svc.Strict = false
	ctx := context.Background()
	for _, status := range []string{"completed", "Completed", "pending", "completed"} {
		if _, err := svc.CreateTask(ctx, CreateInput{Title: "t", Status: ptr(status)}); err != nil {
			t.Fatalf("CreateTask returned error: %v", err)
		}
	}

	got, err := svc.ListTasks(ctx, Filter{Status: ptr("completed")})
	if err != nil {
		t.Fatalf("ListTasks returned error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 completed tasks, got %d", len(got))
	}
	for _, task := range got {
		if task.Status != "completed" {
			t.Fatalf("unexpected status %q in filtered list", task.Status)
		}
	}
}
