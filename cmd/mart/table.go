package main

import (
	"log/slog"

	"github.com/spf13/cobra"
)

var initTableCmd = &cobra.Command{
	Use:   "init-table",
	Short: "Create the mart table in ClickHouse if it does not exist",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureTable(cmd.Context()); err != nil {
			return err
		}
		slog.Info("mart table ready", "table", cfg.OLAP.Table)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initTableCmd)
}
