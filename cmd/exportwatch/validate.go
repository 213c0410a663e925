package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/exportwatch/config"
)

// validateCmd validates a job file without polling.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a job file",
	Long: `Validate an exportwatch job file without polling anything.

This command parses the YAML, expands environment variables, and validates
all fields, including grid templates. It's useful for CI/CD pipelines.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  exportwatch validate -c watches.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to job file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// expands grids, which catches template keys missing from dimensions
	watches, err := config.BuildWatches(cfg)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	listen := cfg.Listen
	if listen == "" {
		listen = "disabled"
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Interval:         %s\n", cfg.Interval.Duration())
	fmt.Fprintf(out, "  Transport errors: %s\n", cfg.TransportErrors)
	fmt.Fprintf(out, "  Status API:       %s\n", listen)
	fmt.Fprintf(out, "  Watches:          %d direct + %d from grids = %d total\n",
		len(cfg.Watches), len(watches)-len(cfg.Watches), len(watches))

	return nil
}
