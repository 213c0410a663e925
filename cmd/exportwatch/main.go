// Package main is the entry point for the exportwatch CLI.
//
// Usage:
//
//	exportwatch wait URL --max 5m          # Poll one export until ready
//	exportwatch run -c watches.yaml        # Poll every export in a job file
//	exportwatch validate -c watches.yaml   # Validate a job file
//	exportwatch version                    # Show version info
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "exportwatch",
	Short: "Wait for server-generated exports to become ready",
	Long: `exportwatch polls export status URLs until the server reports the file
is ready, or gives up once the execution budget is spent.

Quick start:
  exportwatch wait https://app.example.com/export/17/status --interval 5s --max 5m

Job file:
  max_execution: 10m
  watches:
    - name: Orders export
      url: https://app.example.com/export/17/status
      headers:
        Cookie: "sessionid=${APP_SESSION}"

Environment variables are read from .env when present.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		envFile, _ := cmd.Flags().GetString("env-file")
		return loadEnvFile(envFile)
	},
}

// loadEnvFile loads variables from path without overriding the environment.
// A missing default .env is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err != nil && errors.Is(err, fs.ErrNotExist) && path == ".env" {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// newLogger creates the CLI logger. --json-logs or EXPORTWATCH_LOG_FORMAT=json
// selects JSON output; --debug or EXPORTWATCH_DEBUG=true lowers the level.
func newLogger(cmd *cobra.Command) *slog.Logger {
	jsonLogs, _ := cmd.Flags().GetBool("json-logs")
	debug, _ := cmd.Flags().GetBool("debug")

	if strings.EqualFold(os.Getenv("EXPORTWATCH_LOG_FORMAT"), "json") {
		jsonLogs = true
	}
	if v, err := strconv.ParseBool(os.Getenv("EXPORTWATCH_DEBUG")); err == nil && v {
		debug = true
	}

	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if debug {
		opts.Level = slog.LevelDebug
	}

	w := cmd.ErrOrStderr()
	if jsonLogs {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// cobra already prints the error
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this exportwatch binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "exportwatch %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().String("env-file", ".env", "file with environment variables to load")
	rootCmd.PersistentFlags().Bool("json-logs", false, "write logs as JSON")
	rootCmd.PersistentFlags().Bool("debug", false, "log every poll")

	rootCmd.AddCommand(versionCmd)
}
