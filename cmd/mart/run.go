package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var runFlags struct {
	date string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every stage for one logical date",
	Long: `Extract both exports, aggregate, join and load the mart for one date.
The run report is printed as JSON. A failed run exits with status 1.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	addDateFlag(runCmd, &runFlags.date)
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	runDate, err := resolveRunDate(runFlags.date)
	if err != nil {
		return err
	}

	j, closeJournal, err := openJournal(ctx)
	if err != nil {
		return err
	}
	defer closeJournal()

	runner, err := newRunner(j)
	if err != nil {
		return err
	}

	report, runErr := runner.Run(ctx, runDate)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}
	return runErr
}
