package main

import (
	"fmt"
	"math/rand"
	"time"
)

var taskStatuses = []string{"pending", "in-progress", "completed"}

// behavior is one kind of simulated user. Each virtual user is assigned a
// behavior for its whole life, picked in proportion to weight, and waits a
// random time between minWait and maxWait before every action.
type behavior struct {
	name    string
	weight  int
	minWait time.Duration
	maxWait time.Duration
}

var behaviors = []behavior{
	{name: "create", weight: 30, minWait: time.Second, maxWait: 5 * time.Second},
	{name: "list", weight: 40, minWait: time.Second, maxWait: 3 * time.Second},
	{name: "get", weight: 15, minWait: time.Second, maxWait: 3 * time.Second},
	{name: "update", weight: 10, minWait: 2 * time.Second, maxWait: 6 * time.Second},
	{name: "delete", weight: 5, minWait: 5 * time.Second, maxWait: 10 * time.Second},
}

func pickBehavior(rng *rand.Rand) behavior {
	total := 0
	for _, b := range behaviors {
		total += b.weight
	}
	n := rng.Intn(total)
	for _, b := range behaviors {
		if n < b.weight {
			return b
		}
		n -= b.weight
	}
	return behaviors[len(behaviors)-1]
}

func (b behavior) wait(rng *rand.Rand) time.Duration {
	if b.maxWait <= b.minWait {
		return b.minWait
	}
	return b.minWait + time.Duration(rng.Int63n(int64(b.maxWait-b.minWait)))
}

type createPayload struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Priority    int    `json:"priority"`
	DueDate     string `json:"due_date"`
}

type updatePayload struct {
	Status   string `json:"status"`
	Priority int    `json:"priority"`
}

// newCreatePayload builds a task due one to thirty days after now, sent as a
// zone-less date-time.
func newCreatePayload(rng *rand.Rand, now time.Time) createPayload {
	due := now.AddDate(0, 0, 1+rng.Intn(30))
	return createPayload{
		Title:       fmt.Sprintf("Load Test Task %d", 1000+rng.Intn(9000)),
		Description: "Task created during load testing - " + now.Format(time.RFC3339),
		Status:      taskStatuses[rng.Intn(len(taskStatuses))],
		Priority:    1 + rng.Intn(5),
		DueDate:     due.Format("2006-01-02T15:04:05"),
	}
}

func newUpdatePayload(rng *rand.Rand) updatePayload {
	return updatePayload{
		Status:   taskStatuses[rng.Intn(len(taskStatuses))],
		Priority: 1 + rng.Intn(5),
	}
}

// listPath filters by a random status on roughly a third of requests.
func listPath(rng *rand.Rand) string {
	if rng.Float64() < 0.3 {
		return "/api/tasks?status=" + taskStatuses[rng.Intn(len(taskStatuses))]
	}
	return "/api/tasks"
}
