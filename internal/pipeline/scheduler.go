package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pvmasny/yandex-arch-pro-09/internal/mart"
)

// DefaultSchedule runs daily at 02:00 UTC.
const DefaultSchedule = "0 2 * * *"

// ExclusiveRunner is the part of Runner the scheduler drives.
type ExclusiveRunner interface {
	RunExclusive(ctx context.Context, runDate time.Time) (Report, error)
}

// Scheduler triggers a run on a cron schedule in UTC.
// Each tick processes the day before the tick. Missed ticks are not replayed.
type Scheduler struct {
	cron   *cron.Cron
	runner ExclusiveRunner
	ctx    context.Context
	logger *slog.Logger
}

// NewScheduler registers runner under the standard five-field spec.
// ctx is the parent of every scheduled run; cancelling it aborts an
// in-flight run.
func NewScheduler(ctx context.Context, spec string, runner ExclusiveRunner, logger *slog.Logger) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Scheduler{
		runner: runner,
		ctx:    ctx,
		logger: logger,
	}
	s.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError)))),
	)
	if _, err := s.cron.AddFunc(spec, func() { s.Tick(time.Now()) }); err != nil {
		return nil, fmt.Errorf("schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins firing ticks in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		s.logger.Info("mart schedule started", "next_run", e.Next.Format(time.RFC3339))
	}
}

// Stop prevents new ticks and waits for a running tick to return.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("mart schedule stopped")
}

// Tick runs the pipeline for the day before now. A tick that finds another
// run active is skipped.
func (s *Scheduler) Tick(now time.Time) {
	runDate := mart.PreviousDay(now)
	date := mart.FormatDate(runDate)

	s.logger.Info("scheduled run triggered", "run_date", date)
	report, err := s.runner.RunExclusive(s.ctx, runDate)
	switch {
	case errors.Is(err, ErrRunInProgress):
		s.logger.Warn("scheduled run skipped", "run_date", date, "reason", err)
	case err != nil:
		s.logger.Error("scheduled run failed", "run_date", date, "run_id", report.RunID, "error", err)
	default:
		s.logger.Info("scheduled run completed",
			"run_date", date,
			"run_id", report.RunID,
			"rows_loaded", report.Load.Rows,
			"duration_ms", report.DurationMS,
		)
	}
}
