// SPDX-License-Identifier: MIT

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coylemichael/screenrecorder/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and validate screenrecd configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and validate a configuration file",
	Long: `Load the configuration file (schema-migrating it in memory if it
carries an older schema_version) and run Config.Validate against it.
Exits non-zero and prints the first validation error on failure.`,
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configValidateCmd)
}

func resolveConfigPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path, _ = cmd.Root().PersistentFlags().GetString("config")
	}
	if path == "" {
		path = config.ConfigFilePath
	}
	return path
}

func runConfigValidate(cmd *cobra.Command, _ []string) error {
	path := resolveConfigPath(cmd)

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%s: invalid configuration: %w", path, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: valid (schema_version=%d, quality=%s, output_format=%s)\n",
		path, cfg.SchemaVersion, cfg.Quality, cfg.OutputFormat)
	return nil
}
