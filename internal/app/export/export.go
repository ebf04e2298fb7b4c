// Package export dumps every task reachable through the public REST API to
// CSV.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/minitasks/tasktracker/internal/app/tasks"
	"github.com/minitasks/tasktracker/internal/contracts"
)

var header = []string{"id", "title", "description", "status", "priority", "due_date", "created_at", "updated_at"}

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

type listResponse struct {
	Status  string       `json:"status"`
	Message string       `json:"message"`
	Tasks   []tasks.Task `json:"tasks"`
}

// Fetch reads the full task list from the API.
func (c *Client) Fetch(ctx context.Context) ([]tasks.Task, error) {
	url := strings.TrimRight(c.BaseURL, "/") + "/api/tasks"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch tasks: %w", err)
	}
	defer resp.Body.Close()

	var body listResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode task list (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || body.Status != "success" {
		return nil, fmt.Errorf("fetch tasks: status %d: %s", resp.StatusCode, body.Message)
	}
	return body.Tasks, nil
}

// WriteCSV writes a header row followed by one row per task. Timestamps use
// the API's due date format; a task without a due date gets an empty cell.
func WriteCSV(w io.Writer, list []tasks.Task) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, t := range list {
		due := ""
		if t.DueDate != nil {
			due = contracts.FormatDueDate(*t.DueDate)
		}
		row := []string{
			strconv.FormatInt(t.ID, 10),
			t.Title,
			t.Description,
			t.Status,
			strconv.Itoa(t.Priority),
			due,
			contracts.FormatDueDate(t.CreatedAt),
			contracts.FormatDueDate(t.UpdatedAt),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func FileName(now time.Time) string {
	return "tasks_export_" + now.Format(time.DateOnly) + ".csv"
}
