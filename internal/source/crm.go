package source

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/pvmasny/yandex-arch-pro-09/internal/mart"
)

// CrmRequiredColumns is the minimum header of the CRM export.
var CrmRequiredColumns = []string{"id", "name", "email", "age", "gender", "country"}

// CrmExtractor reads the CRM user export.
type CrmExtractor struct {
	Path   string
	Logger *slog.Logger // optional; slog.Default() when nil
}

// Extract reads every CRM row, renaming id, name, age and gender to their mart
// columns and dropping email. For duplicate ids the first row wins.
func (e *CrmExtractor) Extract(ctx context.Context) (mart.CrmSet, error) {
	start := time.Now()
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}

	t, closer, err := openTable(e.Path, CrmRequiredColumns)
	if err != nil {
		return mart.CrmSet{}, err
	}
	defer closer.Close()

	var records []mart.CrmRecord
	seen := make(map[string]bool)
	duplicates := 0
	for {
		if err := ctx.Err(); err != nil {
			return mart.CrmSet{}, err
		}
		row, err := t.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return mart.CrmSet{}, err
		}

		id := t.header.Cell(row, "id")
		age, err := ParseInt(t.header.Cell(row, "age"))
		if err != nil {
			return mart.CrmSet{}, t.rowError("age", err)
		}
		if seen[id] {
			duplicates++
			continue
		}
		seen[id] = true

		records = append(records, mart.CrmRecord{
			UserID:  id,
			Name:    t.header.Cell(row, "name"),
			Age:     age,
			Gender:  t.header.Cell(row, "gender"),
			Country: t.header.Cell(row, "country"),
		})
	}

	if duplicates > 0 {
		logger.Warn("duplicate crm ids skipped", "file", t.name, "duplicates", duplicates)
	}
	logger.Info("crm extracted",
		"file", t.name,
		"rows", len(records),
		"bytes", t.bytes.n,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return mart.NewCrmSet(records), nil
}
