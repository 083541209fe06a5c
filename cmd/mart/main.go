// Command mart builds the BionicPRO report mart: it extracts the CRM and
// telemetry exports, aggregates signals per user and day, joins the CRM
// attributes and loads the result into ClickHouse.
//
// Every stage can run on its own, passing its output to the next stage
// through a hand-off file, or all at once with "mart run". "mart serve"
// runs the scheduler and the HTTP API.
package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/pvmasny/yandex-arch-pro-09/internal/config"
	"github.com/pvmasny/yandex-arch-pro-09/internal/logging"
)

var cfg *config.Config

var rootFlags struct {
	envFile string
}

var rootCmd = &cobra.Command{
	Use:           "mart",
	Short:         "BionicPRO report mart pipeline",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Overload overwrites existing env vars
		if err := godotenv.Overload(rootFlags.envFile); err != nil {
			slog.Debug("no env file loaded, using environment variables", "file", rootFlags.envFile)
		}

		loaded, err := config.Load()
		if err != nil {
			return err
		}
		cfg = loaded

		logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
		slog.Debug("configuration loaded", "config", cfg.String())
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootFlags.envFile, "env-file", ".env", "Environment file loaded before configuration")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("mart failed", "command", commandName(), "error", err)
		os.Exit(1)
	}
}

func commandName() string {
	if len(os.Args) > 1 {
		return os.Args[1]
	}
	return rootCmd.Use
}
