// Package pipeline sequences the mart stages into one run.
//
// A run extracts the CRM dimension and the telemetry signals concurrently,
// aggregates the signals, joins them with the dimension and loads the result
// into the OLAP table. Any stage error aborts the run and is returned to the
// caller unchanged in kind, so errors.As still finds the mart error types.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pvmasny/yandex-arch-pro-09/internal/journal"
	"github.com/pvmasny/yandex-arch-pro-09/internal/logging"
	"github.com/pvmasny/yandex-arch-pro-09/internal/mart"
)

// CrmSource produces the CRM dimension.
type CrmSource interface {
	Extract(ctx context.Context) (mart.CrmSet, error)
}

// TelemetrySource produces the signals of one logical date.
type TelemetrySource interface {
	Extract(ctx context.Context, runDate time.Time) ([]mart.TelemetrySignal, error)
}

// MartLoader writes a joined mart to the destination.
type MartLoader interface {
	Load(ctx context.Context, set mart.MartSet) (mart.LoadResult, error)
}

// RunJournal records run outcomes. Satisfied by *journal.Journal.
type RunJournal interface {
	Start(ctx context.Context, id uuid.UUID, runDate time.Time) error
	Succeed(ctx context.Context, id uuid.UUID, counts journal.Counts) error
	Fail(ctx context.Context, id uuid.UUID, counts journal.Counts, cause error) error
}

// StageStat is the outcome of one stage.
type StageStat struct {
	Rows       int   `json:"rows"`
	DurationMS int64 `json:"duration_ms"`
}

// Report summarizes one run.
type Report struct {
	RunID      string    `json:"run_id"`
	RunDate    string    `json:"run_date"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	Crm        StageStat `json:"extract_crm"`
	Telemetry  StageStat `json:"extract_telemetry"`
	Aggregate  StageStat `json:"aggregate"`
	Mart       StageStat `json:"transform"`
	Load       StageStat `json:"load"`
	Error      string    `json:"error,omitempty"`
}

// Counts converts the report into journal counts.
func (r Report) Counts() journal.Counts {
	return journal.Counts{
		Crm:        r.Crm.Rows,
		Telemetry:  r.Telemetry.Rows,
		Aggregated: r.Aggregate.Rows,
		Loaded:     r.Load.Rows,
	}
}

// Runner executes pipeline runs.
type Runner struct {
	Crm       CrmSource
	Telemetry TelemetrySource
	Loader    MartLoader
	Journal   RunJournal // optional
	Guard     *RunGuard  // used by RunExclusive; created on first use when nil

	guardOnce sync.Once
	newID     func() uuid.UUID
	now       func() time.Time
}

// Run executes every stage for runDate.
func (r *Runner) Run(ctx context.Context, runDate time.Time) (Report, error) {
	runDate = mart.TruncateDate(runDate)
	id := r.id()
	ctx = logging.WithRunID(ctx, id.String())
	logger := logging.FromContext(ctx)

	start := r.clock()
	report := Report{
		RunID:     id.String(),
		RunDate:   mart.FormatDate(runDate),
		StartedAt: start.UTC(),
	}

	logger.Info("mart run started", "run_date", report.RunDate)
	if r.Journal != nil {
		if err := r.Journal.Start(ctx, id, runDate); err != nil {
			logger.Error("journal start failed", "error", err)
		}
	}

	err := r.execute(ctx, runDate, &report)
	report.DurationMS = time.Since(start).Milliseconds()

	if err != nil {
		report.Error = err.Error()
		logger.Error("mart run failed",
			"run_date", report.RunDate,
			"error", err,
			"duration_ms", report.DurationMS,
		)
		if r.Journal != nil {
			if jerr := r.Journal.Fail(ctx, id, report.Counts(), err); jerr != nil {
				logger.Error("journal fail update failed", "error", jerr)
			}
		}
		return report, err
	}

	logger.Info("mart run completed",
		"run_date", report.RunDate,
		"rows_loaded", report.Load.Rows,
		"duration_ms", report.DurationMS,
	)
	if r.Journal != nil {
		if jerr := r.Journal.Succeed(ctx, id, report.Counts()); jerr != nil {
			logger.Error("journal success update failed", "error", jerr)
		}
	}
	return report, nil
}

func (r *Runner) execute(ctx context.Context, runDate time.Time, report *Report) error {
	var (
		crm     mart.CrmSet
		signals []mart.TelemetrySignal
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t := time.Now()
		set, err := r.Crm.Extract(gctx)
		if err != nil {
			return fmt.Errorf("extract crm: %w", err)
		}
		crm = set
		report.Crm = StageStat{Rows: len(set.Records), DurationMS: time.Since(t).Milliseconds()}
		return nil
	})
	g.Go(func() error {
		t := time.Now()
		s, err := r.Telemetry.Extract(gctx, runDate)
		if err != nil {
			return fmt.Errorf("extract telemetry: %w", err)
		}
		signals = s
		report.Telemetry = StageStat{Rows: len(s), DurationMS: time.Since(t).Milliseconds()}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	t := time.Now()
	aggs := mart.Aggregate(signals)
	report.Aggregate = StageStat{Rows: len(aggs), DurationMS: time.Since(t).Milliseconds()}

	t = time.Now()
	set := mart.BuildMart(aggs, crm)
	report.Mart = StageStat{Rows: len(set.Records), DurationMS: time.Since(t).Milliseconds()}
	logging.WithFields(ctx, "stage", "transform").Debug("mart built",
		"rows", len(set.Records),
		"columns", len(set.Columns),
	)

	result, err := r.Loader.Load(ctx, set)
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}
	report.Load = StageStat{Rows: result.Rows, DurationMS: result.Duration.Milliseconds()}
	return nil
}

// RunExclusive runs like Run unless another run holds the guard, in which
// case it returns ErrRunInProgress without starting.
func (r *Runner) RunExclusive(ctx context.Context, runDate time.Time) (Report, error) {
	r.guardOnce.Do(func() {
		if r.Guard == nil {
			r.Guard = NewRunGuard()
		}
	})
	if !r.Guard.TryAcquire(mart.FormatDate(runDate)) {
		return Report{}, ErrRunInProgress
	}
	defer r.Guard.Release()

	return r.Run(ctx, runDate)
}

func (r *Runner) id() uuid.UUID {
	if r.newID != nil {
		return r.newID()
	}
	return uuid.New()
}

func (r *Runner) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}
