package mart

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSourceMissing is returned when a required input source does not exist.
// Extractors wrap it with the offending path.
var ErrSourceMissing = errors.New("source missing")

// ErrJoinGap marks a mart row whose user has no CRM dimension row.
var ErrJoinGap = errors.New("join gap: no crm row for user")

// CoercionError reports a mart row that cannot be cast to the destination types.
type CoercionError struct {
	Row     int      // 0-based position in the mart
	UserID  string   // user of the failing row
	Columns []string // every failing column of the row, in table order
	Err     error
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("coerce row %d (user %q) columns [%s]: %v",
		e.Row, e.UserID, strings.Join(e.Columns, ", "), e.Err)
}

func (e *CoercionError) Unwrap() error { return e.Err }

// HasColumn reports whether column is among the failing columns.
func (e *CoercionError) HasColumn(column string) bool {
	for _, c := range e.Columns {
		if c == column {
			return true
		}
	}
	return false
}

// SinkWriteError reports a failed write to the destination store.
// Whether a prefix of the batch was committed depends on the store.
type SinkWriteError struct {
	Table string
	Err   error
}

func (e *SinkWriteError) Error() string {
	return fmt.Sprintf("write to %s: %v", e.Table, e.Err)
}

func (e *SinkWriteError) Unwrap() error { return e.Err }
