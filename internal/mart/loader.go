package mart

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// LoadResult summarizes one Load call.
type LoadResult struct {
	Table    string
	Rows     int
	Duration time.Duration
}

// Loader writes a mart to the destination table.
type Loader struct {
	Connector Connector
	Table     string
	Policy    GapPolicy
	Logger    *slog.Logger // optional; slog.Default() when nil
}

// Load coerces every record, then opens one connection, appends all rows in
// MartColumns order and closes the connection whether or not the write
// succeeded. Coercion failures abort before any connection is opened.
func (l *Loader) Load(ctx context.Context, set MartSet) (LoadResult, error) {
	start := time.Now()
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}

	rows, err := Coerce(set, l.Policy)
	if err != nil {
		return LoadResult{}, err
	}

	conn, err := l.Connector.Connect(ctx)
	if err != nil {
		return LoadResult{}, &SinkWriteError{Table: l.Table, Err: fmt.Errorf("connect: %w", err)}
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			logger.Warn("close olap connection", "error", cerr)
		}
	}()

	if err := conn.Insert(ctx, l.Table, MartColumns, rows); err != nil {
		return LoadResult{}, &SinkWriteError{Table: l.Table, Err: err}
	}

	result := LoadResult{
		Table:    l.Table,
		Rows:     len(rows),
		Duration: time.Since(start),
	}
	logger.Info("mart loaded",
		"table", l.Table,
		"rows", result.Rows,
		"join_gap_policy", l.Policy.String(),
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}
