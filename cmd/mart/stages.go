package main

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pvmasny/yandex-arch-pro-09/internal/handoff"
	"github.com/pvmasny/yandex-arch-pro-09/internal/mart"
)

// Stage commands run one step each and hand off through files, so an
// external orchestrator can schedule and retry them separately.

var stageFlags struct {
	date      string
	runID     string
	crmOut    string
	telOut    string
	martOut   string
	crm       string
	telemetry string
	in        string
}

var extractCrmCmd = &cobra.Command{
	Use:   "extract-crm",
	Short: "Extract the CRM export into a hand-off file",
	Args:  cobra.NoArgs,
	RunE:  runExtractCrm,
}

var extractTelemetryCmd = &cobra.Command{
	Use:   "extract-telemetry",
	Short: "Extract the telemetry export for one date into a hand-off file",
	Args:  cobra.NoArgs,
	RunE:  runExtractTelemetry,
}

var transformCmd = &cobra.Command{
	Use:   "transform",
	Short: "Aggregate telemetry and join the CRM dimension",
	Args:  cobra.NoArgs,
	RunE:  runTransform,
}

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load a transformed mart into ClickHouse",
	Args:  cobra.NoArgs,
	RunE:  runLoad,
}

func init() {
	for _, cmd := range []*cobra.Command{extractCrmCmd, extractTelemetryCmd} {
		addDateFlag(cmd, &stageFlags.date)
		cmd.Flags().StringVar(&stageFlags.runID, "run-id", "", "Run ID recorded in the hand-off file (default: new UUID)")
	}
	extractCrmCmd.Flags().StringVarP(&stageFlags.crmOut, "out", "o", "crm.json"+handoff.CompressedExt, "Output file")
	extractTelemetryCmd.Flags().StringVarP(&stageFlags.telOut, "out", "o", "telemetry.json"+handoff.CompressedExt, "Output file")

	transformCmd.Flags().StringVar(&stageFlags.crm, "crm", "crm.json"+handoff.CompressedExt, "CRM hand-off file")
	transformCmd.Flags().StringVar(&stageFlags.telemetry, "telemetry", "telemetry.json"+handoff.CompressedExt, "Telemetry hand-off file")
	transformCmd.Flags().StringVarP(&stageFlags.martOut, "out", "o", "mart.json"+handoff.CompressedExt, "Output file")

	loadCmd.Flags().StringVarP(&stageFlags.in, "in", "i", "mart.json"+handoff.CompressedExt, "Mart hand-off file")

	rootCmd.AddCommand(extractCrmCmd, extractTelemetryCmd, transformCmd, loadCmd)
}

func stageRunID() string {
	if stageFlags.runID != "" {
		return stageFlags.runID
	}
	return uuid.NewString()
}

func runExtractCrm(cmd *cobra.Command, args []string) error {
	runDate, err := resolveRunDate(stageFlags.date)
	if err != nil {
		return err
	}

	set, err := crmExtractor().Extract(cmd.Context())
	if err != nil {
		return err
	}

	return handoff.Write(stageFlags.crmOut, handoff.CrmEnvelope{
		Stage:   handoff.StageCrm,
		RunDate: mart.FormatDate(runDate),
		RunID:   stageRunID(),
		Records: set,
	})
}

func runExtractTelemetry(cmd *cobra.Command, args []string) error {
	runDate, err := resolveRunDate(stageFlags.date)
	if err != nil {
		return err
	}

	signals, err := telemetryExtractor().Extract(cmd.Context(), runDate)
	if err != nil {
		return err
	}

	return handoff.Write(stageFlags.telOut, handoff.TelemetryEnvelope{
		Stage:   handoff.StageTelemetry,
		RunDate: mart.FormatDate(runDate),
		RunID:   stageRunID(),
		Records: signals,
	})
}

func runTransform(cmd *cobra.Command, args []string) error {
	start := time.Now()

	crm, err := handoff.Read[mart.CrmSet](stageFlags.crm, handoff.StageCrm)
	if err != nil {
		return err
	}
	telemetry, err := handoff.Read[[]mart.TelemetrySignal](stageFlags.telemetry, handoff.StageTelemetry)
	if err != nil {
		return err
	}
	if err := handoff.SameRunDate(crm, telemetry); err != nil {
		return err
	}

	aggs := mart.Aggregate(telemetry.Records)
	set := mart.BuildMart(aggs, crm.Records)

	if err := handoff.Write(stageFlags.martOut, handoff.MartEnvelope{
		Stage:   handoff.StageMart,
		RunDate: telemetry.RunDate,
		RunID:   telemetry.RunID,
		Records: set,
	}); err != nil {
		return err
	}

	slog.Info("mart transformed",
		"run_date", telemetry.RunDate,
		"signals", len(telemetry.Records),
		"rows", len(set.Records),
		"columns", len(set.Columns),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func runLoad(cmd *cobra.Command, args []string) error {
	env, err := handoff.Read[mart.MartSet](stageFlags.in, handoff.StageMart)
	if err != nil {
		return err
	}

	loader, err := newLoader()
	if err != nil {
		return err
	}
	_, err = loader.Load(cmd.Context(), env.Records)
	return err
}
