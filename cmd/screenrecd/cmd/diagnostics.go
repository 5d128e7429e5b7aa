// SPDX-License-Identifier: MIT

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/coylemichael/screenrecorder/internal/config"
	"github.com/coylemichael/screenrecorder/internal/diagnostics"
)

var diagnosticsCmd = &cobra.Command{
	Use:   "diagnostics",
	Short: "Run pre-flight and runtime health checks",
	Long: `Run the checks that matter for a capture-encode-mux pipeline: can we
write the recording to disk, is there room for it, is a real hardware
encoder backend linked in or only the synthetic test double, does the
configured replay window fit the ring's memory budget, and is the host's
clock source steady enough for PTS timestamps.

Examples:
  # Full report, human-readable
  screenrecd diagnostics

  # Quick (disk/log only) report as JSON
  screenrecd diagnostics --quick --json`,
	RunE: runDiagnostics,
}

func init() {
	rootCmd.AddCommand(diagnosticsCmd)

	diagnosticsCmd.Flags().Bool("quick", false, "run only the essential pre-flight checks")
	diagnosticsCmd.Flags().Bool("json", false, "output the report as JSON")
	diagnosticsCmd.Flags().Bool("verbose", false, "include verbose check detail")
}

func runDiagnostics(cmd *cobra.Command, _ []string) error {
	path := resolveConfigPath(cmd)
	cfg, err := config.LoadConfig(path)
	if err != nil {
		cfg = config.DefaultConfig()
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: could not load %s (%v); using defaults\n", path, err)
	}

	quick, _ := cmd.Flags().GetBool("quick")
	asJSON, _ := cmd.Flags().GetBool("json")
	verbose, _ := cmd.Flags().GetBool("verbose")

	mode := diagnostics.ModeFull
	if quick {
		mode = diagnostics.ModeQuick
	}

	runner := diagnostics.NewRunner(diagnostics.Options{
		Mode:    mode,
		Config:  cfg,
		Output:  cmd.OutOrStdout(),
		Verbose: verbose,
	})

	report, err := runner.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("running diagnostics: %w", err)
	}

	if asJSON {
		data, err := report.ToJSON()
		if err != nil {
			return fmt.Errorf("encoding report: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
	} else {
		diagnostics.PrintReport(cmd.OutOrStdout(), report)
	}

	if report.Summary.Critical > 0 {
		os.Exit(1)
	}
	return nil
}
