package tasks

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/minitasks/tasktracker/internal/contracts"
	"github.com/minitasks/tasktracker/internal/platform/logger"
	"github.com/minitasks/tasktracker/internal/platform/metrics"
)

// Repository persists tasks. Every write is atomic; engine failures come back
// as *StorageError and unknown ids as *NotFoundError.
type Repository interface {
	Create(ctx context.Context, task Task) (Task, error)
	Get(ctx context.Context, id int64) (Task, error)
	List(ctx context.Context, filter Filter) ([]Task, error)
	Update(ctx context.Context, id int64, changes Changes, now time.Time) (UpdateResult, error)
	Delete(ctx context.Context, id int64) error
	Ping(ctx context.Context) error
}

// ReminderPublisher hands a reminder to the notification channel and returns
// the message id assigned to it.
type ReminderPublisher interface {
	PublishReminder(ctx context.Context, taskID int64, dueDate time.Time, description string) (string, error)
}

var (
	mutationsTotal = metrics.NewCounterVec(metrics.Opts{
		Name: "tasks_mutations_total",
		Help: "Task mutations by operation and outcome.",
	}, []string{"operation", "outcome"})

	reminderPublishTotal = metrics.NewCounterVec(metrics.Opts{
		Name: "reminder_publish_total",
		Help: "Reminder publishes attempted after task writes, by outcome.",
	}, []string{"outcome"})
)

func init() {
	metrics.Default.MustRegister(mutationsTotal, reminderPublishTotal)
}

type Service struct {
	Repo      Repository
	Reminders ReminderPublisher
	Now       func() time.Time
	// Strict rejects statuses outside the known set and priorities outside 1..5.
	Strict bool
}

func NewService(repo Repository, reminders ReminderPublisher) *Service {
	return &Service{
		Repo:      repo,
		Reminders: reminders,
		Now:       func() time.Time { return time.Now().UTC() },
		Strict:    true,
	}
}

func (s *Service) now() time.Time {
	return s.Now().UTC().Truncate(time.Microsecond)
}

func (s *Service) CreateTask(ctx context.Context, in CreateInput) (Task, error) {
	task, err := s.newTask(in)
	if err != nil {
		mutationsTotal.WithLabelValues("create", "invalid").Inc()
		return Task{}, err
	}

	created, err := s.Repo.Create(ctx, task)
	if err != nil {
		mutationsTotal.WithLabelValues("create", outcome(err)).Inc()
		return Task{}, err
	}
	mutationsTotal.WithLabelValues("create", "ok").Inc()

	if created.DueDate != nil {
		s.notify(ctx, created)
	}
	return created, nil
}

func (s *Service) newTask(in CreateInput) (Task, error) {
	title := strings.TrimSpace(in.Title)
	if err := s.checkTitle(title); err != nil {
		return Task{}, err
	}
	task := Task{
		Title:    title,
		Status:   StatusPending,
		Priority: DefaultPriority,
	}
	if in.Description != nil {
		if err := s.checkDescription(*in.Description); err != nil {
			return Task{}, err
		}
		task.Description = *in.Description
	}
	if in.Status != nil {
		if err := s.checkStatus(*in.Status); err != nil {
			return Task{}, err
		}
		task.Status = *in.Status
	}
	if in.Priority != nil {
		if err := s.checkPriority(*in.Priority); err != nil {
			return Task{}, err
		}
		task.Priority = *in.Priority
	}
	if in.DueDate != nil {
		due, err := contracts.ParseDueDate(*in.DueDate)
		if err != nil {
			return Task{}, invalid("due_date", "must be an ISO-8601 date (YYYY-MM-DD) or date-time")
		}
		task.DueDate = &due
	}

	now := s.now()
	task.CreatedAt = now
	task.UpdatedAt = now
	return task, nil
}

// UpdateTask applies a merge-patch. The whole patch is validated before the
// store is touched, and a reminder goes out only when the due date moved to a
// new non-nil value.
func (s *Service) UpdateTask(ctx context.Context, id int64, patch Patch) (Task, error) {
	changes, err := s.changes(patch)
	if err != nil {
		mutationsTotal.WithLabelValues("update", "invalid").Inc()
		return Task{}, err
	}

	result, err := s.Repo.Update(ctx, id, changes, s.now())
	if err != nil {
		mutationsTotal.WithLabelValues("update", outcome(err)).Inc()
		return Task{}, err
	}
	mutationsTotal.WithLabelValues("update", "ok").Inc()

	if result.Current.DueDate != nil && DueDateChanged(result.Previous.DueDate, result.Current.DueDate) {
		s.notify(ctx, result.Current)
	}
	return result.Current, nil
}

func (s *Service) changes(p Patch) (Changes, error) {
	if p.Empty() {
		return Changes{}, invalid("", "no fields to update")
	}
	var c Changes
	if p.Title.Set {
		if p.Title.Value == nil {
			return Changes{}, invalid("title", "is required")
		}
		title := strings.TrimSpace(*p.Title.Value)
		if err := s.checkTitle(title); err != nil {
			return Changes{}, err
		}
		c.Title = &title
	}
	if p.Description.Set {
		description := ""
		if p.Description.Value != nil {
			description = *p.Description.Value
		}
		if err := s.checkDescription(description); err != nil {
			return Changes{}, err
		}
		c.Description = &description
	}
	if p.Status.Set {
		if p.Status.Value == nil {
			return Changes{}, invalid("status", "is required")
		}
		if err := s.checkStatus(*p.Status.Value); err != nil {
			return Changes{}, err
		}
		c.Status = p.Status.Value
	}
	if p.Priority.Set {
		if p.Priority.Value == nil {
			return Changes{}, invalid("priority", "is required")
		}
		if err := s.checkPriority(*p.Priority.Value); err != nil {
			return Changes{}, err
		}
		c.Priority = p.Priority.Value
	}
	if p.DueDate.Set {
		c.SetDueDate = true
		if p.DueDate.Value != nil {
			due, err := contracts.ParseDueDate(*p.DueDate.Value)
			if err != nil {
				return Changes{}, invalid("due_date", "must be an ISO-8601 date (YYYY-MM-DD) or date-time")
			}
			c.DueDate = &due
		}
	}
	return c, nil
}

func (s *Service) DeleteTask(ctx context.Context, id int64) error {
	if err := s.Repo.Delete(ctx, id); err != nil {
		mutationsTotal.WithLabelValues("delete", outcome(err)).Inc()
		return err
	}
	mutationsTotal.WithLabelValues("delete", "ok").Inc()
	return nil
}

func (s *Service) GetTask(ctx context.Context, id int64) (Task, error) {
	return s.Repo.Get(ctx, id)
}

func (s *Service) ListTasks(ctx context.Context, filter Filter) ([]Task, error) {
	return s.Repo.List(ctx, filter)
}

// Ready reports whether the backing store answers.
func (s *Service) Ready(ctx context.Context) error {
	return s.Repo.Ping(ctx)
}

// notify publishes a reminder for a committed task. It runs detached from
// request cancellation and never fails the caller; the publisher bounds it
// with its own timeout.
func (s *Service) notify(ctx context.Context, task Task) {
	log := logger.FromContext(ctx).With(slog.Int64("task_id", task.ID))
	if s.Reminders == nil {
		reminderPublishTotal.WithLabelValues("skipped").Inc()
		return
	}
	msgID, err := s.Reminders.PublishReminder(context.WithoutCancel(ctx), task.ID, *task.DueDate, task.Description)
	if err != nil {
		reminderPublishTotal.WithLabelValues("failed").Inc()
		log.Warn("reminder publish failed", slog.Any("error", err))
		return
	}
	reminderPublishTotal.WithLabelValues("published").Inc()
	log.Info("reminder published",
		slog.String("message_id", msgID),
		slog.String("due_date", contracts.FormatDueDate(*task.DueDate)))
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "invalid"
	default:
		return "error"
	}
}
