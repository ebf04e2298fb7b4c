package contracts

// ReminderMessage is published by task-api whenever a task gains or changes
// a due date, and consumed by reminder-evaluator. DueDate is RFC 3339 in UTC.
type ReminderMessage struct {
	TaskID      int64  `json:"task_id"`
	DueDate     string `json:"due_date"`
	Description string `json:"description"`
}
