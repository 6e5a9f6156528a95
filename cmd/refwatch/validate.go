package main

import (
	"fmt"

	"github.com/jpalmerr/refwatch/config"
	"github.com/spf13/cobra"
)

// validateCmd validates a config file without starting the server.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a refwatch configuration file without starting the server.

This command loads a .env file beside the config, parses the YAML, expands
environment variables, and validates all fields. It's useful for CI/CD
pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  refwatch validate -c config.yaml
  refwatch validate --config /etc/refwatch/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// repositories whose endpoint has no account are never fetched
	accounts := make(map[string]struct{}, len(cfg.Accounts))
	for _, a := range config.BuildAccounts(cfg) {
		accounts[a.Endpoint] = struct{}{}
	}
	var unmatched []string
	for _, r := range config.BuildRepositories(cfg) {
		if _, ok := accounts[r.APIEndpoint()]; !ok {
			unmatched = append(unmatched, r.FullName())
		}
	}

	indicators := "disabled"
	if cfg.Indicators.Enabled {
		indicators = "every " + cfg.Indicators.Interval.Duration().String()
	}

	fmt.Printf("Config is valid!\n")
	fmt.Printf("  Port:             %d\n", cfg.Port)
	fmt.Printf("  Refresh interval: %s\n", cfg.RefreshInterval.Duration())
	fmt.Printf("  Stale after:      %s\n", cfg.StaleAfter.Duration())
	fmt.Printf("  Accounts:         %d\n", len(cfg.Accounts))
	fmt.Printf("  Repositories:     %d (%d refs)\n", len(cfg.Repositories), len(config.BuildTargets(cfg)))
	fmt.Printf("  Indicators:       %s\n", indicators)
	for _, name := range unmatched {
		fmt.Printf("  Warning: no account for %s\n", name)
	}

	return nil
}
