// SPDX-License-Identifier: MIT

// Package cmd implements the screenrecd CLI commands, following the
// teacher's tvarr-ffmpegd cobra layout: a rootCmd carrying persistent
// flags and logging setup, with serve/diagnostics/config as children
// registered via init().
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/coylemichael/screenrecorder/internal/asynclog"
	"github.com/coylemichael/screenrecorder/internal/config"
	"github.com/coylemichael/screenrecorder/internal/logging"
)

const version = "0.1.0"

// sharedLogger is the process-wide AsyncLogger every subcommand's
// pipeline components log through; it is built once in initLogging and
// torn down by whichever subcommand owns the process lifetime.
var sharedLogger *asynclog.Logger

// rootCmd is the base command when screenrecd is invoked with no args.
var rootCmd = &cobra.Command{
	Use:     "screenrecd",
	Short:   "Low-latency screen capture and instant-replay daemon",
	Version: version,
	Long: `screenrecd is a low-latency screen-capture recorder: a
capture/encode/buffer/mux pipeline that either records straight to disk
or keeps a rolling in-memory replay window that can be saved on demand.

Configuration is read from a YAML file (default /etc/screenrecd/config.yaml).
SCREENRECD_-prefixed environment variables are not applied by these commands.

Examples:
  # Run the daemon
  screenrecd serve

  # Run a pre-flight health check
  screenrecd diagnostics

  # Validate a configuration file
  screenrecd config validate --config /etc/screenrecd/config.yaml`,
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	rootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		return initLogging()
	}

	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-path", "", "log file path (overrides config's log_path)")
	rootCmd.PersistentFlags().String("config", "", "configuration file path (overrides /etc/screenrecd/config.yaml)")
}

// initLogging builds the process's AsyncLogger and bridges it under
// log/slog via asynclog.SlogHandler, so every dependency that logs
// through the standard library lands on the same lock-free ring as the
// pipeline's own direct Logger.Log calls.
func initLogging() error {
	levelStr, _ := rootCmd.PersistentFlags().GetString("log-level")
	logPath, _ := rootCmd.PersistentFlags().GetString("log-path")
	if logPath == "" {
		logPath = "/var/log/screenrecd/screenrecd.log"
		if cfg, err := config.LoadConfig(resolveConfigPath(rootCmd)); err == nil && cfg.LogPath != "" {
			logPath = cfg.LogPath
		}
	}

	var level slog.Level
	switch strings.ToLower(levelStr) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var writer io.WriteCloser
	writer, err := logging.LogWriter(parentDir(logPath), "screenrecd",
		logging.WithMaxSize(50*1024*1024),
		logging.WithMaxFiles(5),
		logging.WithCompression(true),
	)
	if err != nil {
		// Falling back to stderr keeps the daemon bootable when the log
		// directory isn't writable yet (e.g. first run before the unit
		// has created /var/log/screenrecd); diagnostics' checkLogFileWritable
		// check is what operators should use to catch this ahead of time.
		writer = os.Stderr
	}

	sharedLogger = asynclog.New(writer)
	handler := asynclog.NewSlogHandler(sharedLogger, level)
	slog.SetDefault(slog.New(handler))

	return nil
}

func parentDir(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx <= 0 {
		return "/var/log/screenrecd"
	}
	return path[:idx]
}
