package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/minitasks/tasktracker/internal/contracts"
	"github.com/minitasks/tasktracker/internal/platform/logger"
	"github.com/minitasks/tasktracker/internal/platform/metrics"
	"github.com/nats-io/nuid"
)

var (
	ErrInvalidPayload = errors.New("invalid reminder payload")
	ErrMissingFields  = errors.New("missing task_id or due_date")
	ErrInvalidDueDate = errors.New("invalid due_date")
)

type Classification string

const (
	DueSoon Classification = "DUE_SOON"
	NotSoon Classification = "NOT_SOON"
)

const noDescription = "No description"

var classificationsTotal = metrics.NewCounterVec(metrics.Opts{
	Name: "reminder_classifications_total",
	Help: "Reminder messages handled by the evaluator, by classification.",
}, []string{"classification"})

func init() {
	metrics.Default.MustRegister(classificationsTotal)
}

type Result struct {
	Classification Classification
	TaskID         int64
	Description    string
	DueDate        time.Time
}

// Decode parses a raw reminder payload.
func Decode(payload []byte) (contracts.ReminderMessage, error) {
	var msg contracts.ReminderMessage
	if !utf8.Valid(payload) {
		return msg, ErrInvalidPayload
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		return msg, ErrInvalidPayload
	}
	return msg, nil
}

// Evaluate classifies a decoded reminder against now. A due date whose own
// calendar date (as carried on the wire, in UTC) is today or tomorrow in loc
// is DUE_SOON.
func Evaluate(msg contracts.ReminderMessage, now time.Time, loc *time.Location) (Result, error) {
	if msg.TaskID == 0 || strings.TrimSpace(msg.DueDate) == "" {
		return Result{}, ErrMissingFields
	}
	due, err := contracts.ParseDueDate(msg.DueDate)
	if err != nil {
		return Result{}, ErrInvalidDueDate
	}
	if loc == nil {
		loc = time.UTC
	}

	result := Result{
		Classification: NotSoon,
		TaskID:         msg.TaskID,
		Description:    msg.Description,
		DueDate:        due,
	}
	if result.Description == "" {
		// an empty string is treated like a missing key
		result.Description = noDescription
	}

	today := calendarDay(now, loc)
	dueDay := calendarDay(due, time.UTC)
	if dueDay.Equal(today) || dueDay.Equal(today.AddDate(0, 0, 1)) {
		result.Classification = DueSoon
	}
	return result, nil
}

func calendarDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type Evaluator struct {
	Now      func() time.Time
	Location *time.Location
	NewID    func() string
}

func NewEvaluator(loc *time.Location) *Evaluator {
	if loc == nil {
		loc = time.UTC
	}
	return &Evaluator{
		Now:      func() time.Time { return time.Now().UTC() },
		Location: loc,
		NewID:    nuid.Next,
	}
}

// Handle evaluates one delivery. It only logs and counts, so redelivery of the
// same message is harmless.
func (e *Evaluator) Handle(ctx context.Context, payload []byte) (Result, error) {
	log := logger.FromContext(ctx).With(slog.String("invocation_id", e.NewID()))

	msg, err := Decode(payload)
	if err != nil {
		log.Error("reminder payload rejected", slog.Any("error", err))
		return Result{}, err
	}
	result, err := Evaluate(msg, e.Now(), e.Location)
	if err != nil {
		log.Error("reminder not evaluated",
			slog.Int64("task_id", msg.TaskID),
			slog.String("due_date", msg.DueDate),
			slog.Any("error", err))
		return Result{}, err
	}

	classificationsTotal.WithLabelValues(string(result.Classification)).Inc()
	due := result.DueDate.In(e.Location).Format(time.DateOnly)
	if result.Classification == DueSoon {
		log.Info(fmt.Sprintf("REMINDER: Task '%s' (ID: %d) is due on %s.", result.Description, result.TaskID, due),
			slog.Int64("task_id", result.TaskID),
			slog.String("classification", string(result.Classification)))
	} else {
		log.Info(fmt.Sprintf("Task %d is not due soon (due on %s)", result.TaskID, due),
			slog.Int64("task_id", result.TaskID),
			slog.String("classification", string(result.Classification)))
	}
	return result, nil
}

// Action tells the consumer what to do with a delivery after Handle.
type Action int

const (
	Ack Action = iota
	// Term drops the message for good; redelivery could never succeed.
	Term
	Nak
)

func (a Action) String() string {
	switch a {
	case Ack:
		return "ack"
	case Term:
		return "term"
	default:
		return "nak"
	}
}

// Disposition maps a Handle error to a delivery action. An unparseable due
// date is surfaced for redelivery, which the consumer's MaxDeliver bounds.
func Disposition(err error) Action {
	switch {
	case err == nil:
		return Ack
	case errors.Is(err, ErrInvalidPayload), errors.Is(err, ErrMissingFields):
		return Term
	default:
		return Nak
	}
}
