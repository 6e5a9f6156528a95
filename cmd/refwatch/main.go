// Package main is the entry point for the refwatch CLI.
//
// refwatch can be used either as a library (SDK) or as a standalone binary
// with YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	refwatch serve -c config.yaml    # Watch refs and serve the API
//	refwatch validate -c config.yaml # Validate configuration
//	refwatch version                 # Show version info
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
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
// It just displays help - actual functionality is in subcommands.
var rootCmd = &cobra.Command{
	Use:   "refwatch",
	Short: "Keep CI status of git refs fresh",
	Long: `refwatch watches the CI status of git refs on GitHub and GitHub Enterprise.

It caches the combined status of every configured ref, refreshes stale
entries through a bounded number of concurrent API requests, and streams
changes over Server-Sent Events.

Quick start:
  1. Create a config file (refwatch.yaml)
  2. Run: refwatch serve -c refwatch.yaml
  3. curl "http://localhost:8080/api/status?owner=octo&repo=hello&ref=main"

Example config:
  accounts:
    - token: ${GITHUB_TOKEN}
  repositories:
    - owner: octo
      name: hello
      default_branch: main
      refs: [main]`,
	SilenceUsage: true,
	// No Run/RunE means this just shows help when called without subcommands
}

// Execute runs the root command.
// This is the main entry point called from main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// newLogger creates the CLI logger. format is "json" or "pretty".
func newLogger(format string, level slog.Level) *slog.Logger {
	if format == "pretty" {
		return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		}))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this refwatch binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("refwatch %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().String("log-format", "", "log format: json or pretty (overrides log_format in the config)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(versionCmd)
}
