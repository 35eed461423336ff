package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/artpar/tokengate/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return err
	}

	fmt.Println("configuration is valid")
	fmt.Printf("  quota:     %d tokens per %s\n", cfg.Quota.Limit, cfg.Quota.Window)
	fmt.Printf("  retention: %s (sweep every %s)\n", cfg.Retention.Horizon, cfg.Retention.SweepInterval)
	fmt.Printf("  ledger:    %s\n", cfg.Database.Driver)
	fmt.Printf("  upstream:  %s\n", cfg.Upstream.URL)
	return nil
}
