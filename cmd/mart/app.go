package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/pvmasny/yandex-arch-pro-09/internal/journal"
	"github.com/pvmasny/yandex-arch-pro-09/internal/mart"
	"github.com/pvmasny/yandex-arch-pro-09/internal/olap"
	"github.com/pvmasny/yandex-arch-pro-09/internal/pipeline"
	"github.com/pvmasny/yandex-arch-pro-09/internal/source"
)

// addDateFlag registers --date on cmd. The default is yesterday in UTC.
func addDateFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVar(target, "date", "", "Logical run date YYYY-MM-DD (default: yesterday, UTC)")
}

func resolveRunDate(s string) (time.Time, error) {
	if s == "" {
		return mart.PreviousDay(time.Now()), nil
	}
	return mart.ParseRunDate(s)
}

func crmExtractor() *source.CrmExtractor {
	return &source.CrmExtractor{Path: cfg.Sources.CrmPath}
}

func telemetryExtractor() *source.TelemetryExtractor {
	return &source.TelemetryExtractor{Path: cfg.Sources.TelemetryPath}
}

func newLoader() (*mart.Loader, error) {
	policy, err := cfg.Mart.GapPolicy()
	if err != nil {
		return nil, err
	}
	return &mart.Loader{
		Connector: &olap.Connector{Options: cfg.OLAP.Options()},
		Table:     cfg.OLAP.Table,
		Policy:    policy,
	}, nil
}

// openJournal connects the run journal when configured. The returned
// journal is nil and close is a no-op when it is disabled.
func openJournal(ctx context.Context) (*journal.Journal, func(), error) {
	if !cfg.Journal.Enabled() {
		slog.Info("run journal disabled")
		return nil, func() {}, nil
	}

	pool, err := journal.OpenPool(ctx, cfg.Journal.URL, cfg.Journal.MaxConns)
	if err != nil {
		return nil, nil, err
	}
	j := journal.New(pool)
	if err := j.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	slog.Info("run journal connected", "max_conns", cfg.Journal.MaxConns)
	return j, pool.Close, nil
}

func newRunner(j *journal.Journal) (*pipeline.Runner, error) {
	loader, err := newLoader()
	if err != nil {
		return nil, err
	}
	runner := &pipeline.Runner{
		Crm:       crmExtractor(),
		Telemetry: telemetryExtractor(),
		Loader:    loader,
		Guard:     pipeline.NewRunGuard(),
	}
	if j != nil {
		runner.Journal = j
	}
	return runner, nil
}

// ensureTable creates the mart table when it does not exist.
func ensureTable(ctx context.Context) error {
	db, err := olap.Open(ctx, cfg.OLAP.Options())
	if err != nil {
		return err
	}
	defer db.Close()

	if err := olap.EnsureTable(ctx, db, cfg.OLAP.Table); err != nil {
		return fmt.Errorf("ensure table %s: %w", cfg.OLAP.Table, err)
	}
	return nil
}
