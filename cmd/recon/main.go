/*
main.go - recon command-line entry point

PURPOSE:
  One binary for both ways of using the engine:
    recon serve              HTTP API over the SQLite run history
    recon diff OLD NEW       One-off comparison of two report files
    recon prune              Apply the retention policy once

CONFIGURATION:
  --config points at a TOML file (default recon.toml, optional). Environment
  overrides RECON_PORT, RECON_DB and RECON_LOG_LEVEL apply on top, and
  --log-level / --verbose win over both.

LOGGING:
  zap, initialised in PersistentPreRunE. JSON in production, console with
  --dev. Logs go to stderr so diff output on stdout stays clean.

SEE ALSO:
  - config/config.go: File format
  - api/server.go: Routes served by `serve`
*/
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/forecast-recon/config"
	"github.com/warp/forecast-recon/logging"
	"github.com/warp/forecast-recon/recon"
	"github.com/warp/forecast-recon/store"
	"github.com/warp/forecast-recon/store/memory"
	"github.com/warp/forecast-recon/store/sqlite"
)

// app is the state shared by all subcommands.
type app struct {
	configPath string
	logLevel   string
	verbose    bool
	dev        bool

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "recon",
		Short: "Forecast/actual reconciliation between two report revisions",
		Long: `recon compares an old and a new revision of a forecast/order report.

It merges both revisions per data point, totals them per period, and
classifies every significant change: new, cancelled, modified or delayed
forecasts, new or changed orders, and forecasts converted into orders.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			if a.logLevel != "" {
				cfg.Log.Level = a.logLevel
			}
			if a.verbose {
				cfg.Log.Level = "debug"
			}
			if a.dev {
				cfg.Log.Development = true
			}
			a.cfg = cfg

			logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
			if err != nil {
				return err
			}
			a.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "recon.toml", "TOML config file (optional)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().BoolVar(&a.dev, "dev", false, "Human-readable console logs")

	root.AddCommand(newServeCmd(a))
	root.AddCommand(newDiffCmd(a))
	root.AddCommand(newPruneCmd(a))
	return root
}

// analyzer builds the engine from the loaded config.
func (a *app) analyzer() (*recon.Analyzer, error) {
	cfg, err := a.cfg.Engine.Recon()
	if err != nil {
		return nil, err
	}
	return recon.NewAnalyzer(cfg, a.logger)
}

// openStore opens the configured run history. An empty path keeps runs in
// process memory for the lifetime of the command.
func (a *app) openStore() (store.RunStore, func() error, error) {
	if a.cfg.Store.Path == "" {
		return memory.New(), func() error { return nil }, nil
	}
	db, err := sqlite.New(a.cfg.Store.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return db, db.Close, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
