// ============================================================================
// Geotile CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: Cobra command tree for running workers and operating job folders
//
// Command Structure:
//   geotile                              # Root command
//   ├── run <folder>                     # Run worker loop(s) until all jobs are DONE
//   │   └── --workers, -w               # In-process worker count
//   ├── status <folder>                  # Ledger statistics and lock holder
//   │   └── --watch                     # Reprint whenever the ledger changes
//   ├── reset <folder> <file>...         # Operator reset of stuck jobs to PENDING
//   ├── unlock <folder>                  # Remove a stuck lock file
//   ├── estimate --bbox ...              # Tile count for a bounding box
//   ├── prune <dir>                      # Delete blank tiles under a directory
//   ├── report <folder>                  # Per-job report (--xlsx, --sqlite)
//   ├── --config, -c                     # Config file (default: configs/default.yaml)
//   ├── --log-level / --log-format       # Override log settings
//   └── --version
//
// Exit codes:
//   0  run finished with every job DONE, or the command succeeded
//   1  any returned error (lock timeout, stale lock, malformed ledger, ...)
//
// Signal Handling:
//   run captures SIGINT / SIGTERM and cancels the worker loops. The job
//   being processed stays IN_PROGRESS and needs `geotile reset`.
//
// Metrics / Health:
//   When enabled in config, run serves Prometheus /metrics over HTTP and
//   the standard gRPC health protocol.
//
// ============================================================================

package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Version 由 build flags 覆寫
var Version = "1.0.0"

// app 保存全域旗標
type app struct {
	configFile string
	logLevel   string
	logFormat  string
}

// BuildCLI 建立根命令
func BuildCLI() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "geotile",
		Short: "Geotile: distributed outline tiling over a shared job folder",
		Long: `Geotile processes a folder of GeoJSON files with any number of
cooperating workers. Workers coordinate through a plain-text ledger and
a lock file in the folder itself, so no server is required.

Per file: classify features, dissolve by group key, reduce outlines,
render XYZ tiles and prune blank tiles.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVarP(&a.configFile, "config", "c", "configs/default.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "log format override (json, console)")

	rootCmd.AddCommand(a.buildRunCommand())
	rootCmd.AddCommand(a.buildStatusCommand())
	rootCmd.AddCommand(a.buildResetCommand())
	rootCmd.AddCommand(a.buildUnlockCommand())
	rootCmd.AddCommand(a.buildEstimateCommand())
	rootCmd.AddCommand(a.buildPruneCommand())
	rootCmd.AddCommand(a.buildReportCommand())

	return rootCmd
}

// load 讀取設定並套用命令列覆寫，回傳設定與 logger
func (a *app) load() (*Config, *zap.SugaredLogger, error) {
	cfg, err := loadConfig(a.configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logger, err := newLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger.Sugar(), nil
}
