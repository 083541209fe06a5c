package mart

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire and storage form of a logical run date.
const DateLayout = "2006-01-02"

// ParseRunDate parses a YYYY-MM-DD logical date into midnight UTC.
func ParseRunDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid run date %q (use YYYY-MM-DD): %w", s, err)
	}
	return t.UTC(), nil
}

// FormatDate formats t as YYYY-MM-DD in UTC.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// TruncateDate drops the time of day, keeping the UTC calendar date.
func TruncateDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// PreviousDay returns the logical date a run triggered at t computes:
// the calendar day before t, in UTC.
func PreviousDay(t time.Time) time.Time {
	return TruncateDate(t).AddDate(0, 0, -1)
}
