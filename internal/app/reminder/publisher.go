package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/minitasks/tasktracker/internal/contracts"
	"github.com/minitasks/tasktracker/internal/platform/natsutil"
)

var ErrPublish = errors.New("reminder publish failed")

// PublishError reports a reminder that did not reach the stream. The task
// write it follows has already committed.
type PublishError struct {
	TaskID    int64
	MessageID string
	Err       error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish reminder for task %d (%s): %v", e.TaskID, e.MessageID, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

func (e *PublishError) Is(target error) bool {
	return target == ErrPublish
}

type Publisher struct {
	Stream  natsutil.Publisher
	Subject string
	Timeout time.Duration
}

func NewPublisher(stream natsutil.Publisher, subject string, timeout time.Duration) *Publisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Publisher{Stream: stream, Subject: subject, Timeout: timeout}
}

// MessageID derives the deduplication id of a reminder. The same task and due
// date always map to the same id, so a retried publish is dropped by the
// stream's duplicate window. A due date changed back to an earlier value
// within that window is dropped too.
func MessageID(taskID int64, dueDate time.Time) string {
	return fmt.Sprintf("task-%d-%d", taskID, dueDate.Unix())
}

func (p *Publisher) PublishReminder(ctx context.Context, taskID int64, dueDate time.Time, description string) (string, error) {
	msgID := MessageID(taskID, dueDate)
	payload, err := json.Marshal(contracts.ReminderMessage{
		TaskID:      taskID,
		DueDate:     contracts.FormatDueDate(dueDate),
		Description: description,
	})
	if err != nil {
		return "", &PublishError{TaskID: taskID, MessageID: msgID, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	if _, err := p.Stream.Publish(ctx, p.Subject, payload, msgID); err != nil {
		return "", &PublishError{TaskID: taskID, MessageID: msgID, Err: err}
	}
	return msgID, nil
}

type discard struct{}

func (discard) PublishReminder(_ context.Context, taskID int64, dueDate time.Time, _ string) (string, error) {
	return MessageID(taskID, dueDate), nil
}

// Discard accepts every reminder and sends nothing. It stands in when
// messaging is disabled.
var Discard = discard{}
