package source

// convert.go turns raw CSV cells into typed values.
//
// Empty cells are not errors: floats become NaN, integers nil and
// timestamps the zero time, mirroring how a frame reader fills gaps.

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// HeaderIndex maps lower-cased column names to their position in a row.
type HeaderIndex map[string]int

// MakeHeaderIndex builds a HeaderIndex from a CSV header row.
func MakeHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, h := range header {
		key := cleanHeader(h)
		if _, dup := idx[key]; dup {
			continue
		}
		idx[key] = i
	}
	return idx
}

// Cell returns the cleaned value of column name in row, or "" when the
// column is unknown or the row is short.
func (h HeaderIndex) Cell(row []string, name string) string {
	pos, ok := h[name]
	if !ok || pos >= len(row) {
		return ""
	}
	return CleanCell(row[pos])
}

// CleanCell trims whitespace and unwraps an Excel text formula (="...").
// Any other quote or leading '=' is part of the value.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 3 && strings.HasPrefix(s, `="`) && strings.HasSuffix(s, `"`) {
		s = s[2 : len(s)-1]
	}
	return s
}

// cleanHeader normalizes a header cell, also dropping stray quotes.
func cleanHeader(s string) string {
	return strings.ToLower(strings.Trim(CleanCell(s), `"'`))
}

// ParseFloat parses a decimal cell. Empty cells yield NaN.
func ParseFloat(s string) (float64, error) {
	if s == "" {
		return math.NaN(), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return f, nil
}

// ParseInt parses an integer cell. Empty cells yield nil. Integral floats
// such as "34.0" are accepted.
func ParseInt(s string) (*int64, error) {
	if s == "" {
		return nil, nil
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return &v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return nil, fmt.Errorf("integer %q out of range", s)
	}
	v := int64(f)
	return &v, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp parses a timestamp cell as UTC when no zone is given.
// Empty cells yield the zero time.
func ParseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}
