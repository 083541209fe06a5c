package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pvmasny/yandex-arch-pro-09/internal/olap"
	"github.com/pvmasny/yandex-arch-pro-09/internal/pipeline"
	"github.com/pvmasny/yandex-arch-pro-09/internal/reportstore"
	"github.com/pvmasny/yandex-arch-pro-09/internal/web"
)

var serveFlags struct {
	noSchedule bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and run the mart on schedule",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveFlags.noSchedule, "no-schedule", false, "Serve the API without the embedded scheduler")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	db, err := olap.Open(ctx, cfg.OLAP.Options())
	if err != nil {
		return err
	}
	defer db.Close()

	if err := olap.EnsureTable(ctx, db, cfg.OLAP.Table); err != nil {
		return err
	}
	slog.Info("connected to olap", "addr", cfg.OLAP.Options().Addr, "table", cfg.OLAP.Table)

	j, closeJournal, err := openJournal(ctx)
	if err != nil {
		return err
	}
	defer closeJournal()

	runner, err := newRunner(j)
	if err != nil {
		return err
	}

	var history web.RunHistory
	if j != nil {
		history = j
	}
	opts := web.Options{
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		RequestTimeout: cfg.Server.RequestTimeout,
		RateLimit:      cfg.Server.RateLimit,
	}
	if cfg.Cache.Enabled() {
		cache, err := reportstore.Open(ctx, cfg.Cache.Options())
		if err != nil {
			return err
		}
		opts.ReportCache = cache
		slog.Info("report cache connected", "endpoint", cfg.Cache.Endpoint, "bucket", cfg.Cache.Bucket)
	}
	server := web.NewServer(runner, history, &olap.Reader{DB: db, Table: cfg.OLAP.Table}, opts)

	// Scheduled runs stop when jobCtx is cancelled
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()

	var scheduler *pipeline.Scheduler
	if !serveFlags.noSchedule {
		scheduler, err = pipeline.NewScheduler(jobCtx, cfg.Schedule.Cron, runner, slog.Default())
		if err != nil {
			return err
		}
		scheduler.Start()
	}

	// Graceful shutdown
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		// Let an in-flight run finish loading before its context goes away
		if date, _, active := runner.Guard.Active(); active {
			slog.Info("waiting for active run", "run_date", date)
			if err := runner.Guard.WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("run did not complete in time", "error", err)
			}
		}
		cancelJobs()
		if scheduler != nil {
			scheduler.Stop()
		}
	}()

	if err := server.Start(cfg.Server.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-shutdownDone
	slog.Info("server stopped")
	return nil
}
