package contracts

import (
	"fmt"
	"strings"
	"time"
)

// Accepted due date layouts, tried in order. Values without a zone are
// taken as UTC; a bare date is midnight UTC.
var dueDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	time.DateOnly,
}

// ParseDueDate parses a due date and normalizes it to UTC at microsecond
// precision, the resolution Postgres stores. The UTC result must stay within
// years 0000 to 9999 so it can be rendered back as RFC 3339.
func ParseDueDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dueDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC().Truncate(time.Microsecond)
			if y := t.Year(); y < 0 || y > 9999 {
				return time.Time{}, fmt.Errorf("due date %q is out of range: year %d", raw, y)
			}
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid due date %q: expected RFC 3339 date-time or YYYY-MM-DD", raw)
}

// FormatDueDate renders the canonical wire form.
func FormatDueDate(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
