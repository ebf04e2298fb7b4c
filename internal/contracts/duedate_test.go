package contracts

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDueDate(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Time
	}{
		{raw: "2025-01-15", want: time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)},
		{raw: "2025-01-15T09:30:00", want: time.Date(2025, 1, 15, 9, 30, 0, 0, time.UTC)},
		{raw: "2025-01-15T09:30:00Z", want: time.Date(2025, 1, 15, 9, 30, 0, 0, time.UTC)},
		{raw: "2025-01-15T09:30:00+02:00", want: time.Date(2025, 1, 15, 7, 30, 0, 0, time.UTC)},
		{raw: " 2025-01-15T09:30:00.123456789Z ", want: time.Date(2025, 1, 15, 9, 30, 0, 123456000, time.UTC)},
	}
	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := ParseDueDate(tc.raw)
			require.NoError(t, err)
			assert.True(t, tc.want.Equal(got), "got %s", got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestParseDueDate_Malformed(t *testing.T) {
	for _, raw := range []string{"", "tomorrow", "2025-13-01", "15/01/2025", "2025-01-15 09:30"} {
		_, err := ParseDueDate(raw)
		assert.Error(t, err, raw)
	}
}

func TestParseDueDate_RejectsYearsOutsideRFC3339(t *testing.T) {
	for _, raw := range []string{"9999-12-31T23:00:00-05:00", "0000-01-01T00:30:00+01:00"} {
		_, err := ParseDueDate(raw)
		assert.ErrorContains(t, err, "out of range", raw)
	}

	got, err := ParseDueDate("9999-12-31T23:00:00Z")
	require.NoError(t, err)
	_, err = json.Marshal(got)
	assert.NoError(t, err)
}

func TestFormatDueDate(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	assert.Equal(t, "2025-01-15T00:00:00Z", FormatDueDate(time.Date(2025, 1, 15, 3, 0, 0, 0, loc)))
}

func TestReminderMessage_WireShape(t *testing.T) {
	payload, err := json.Marshal(ReminderMessage{TaskID: 7, DueDate: "2025-01-15T00:00:00Z", Description: "rent"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"task_id":7,"due_date":"2025-01-15T00:00:00Z","description":"rent"}`, string(payload))
}
