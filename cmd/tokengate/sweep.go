package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/artpar/tokengate/bootstrap"
	"github.com/artpar/tokengate/config"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Purge expired ledger records once and exit",
	Long: `Run a single retention sweep against the configured ledger.

Records older than retention.horizon are deleted. Useful for cron-style
maintenance when the long-running server is not deployed.`,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return err
	}

	app, err := bootstrap.New(cfg)
	if err != nil {
		return err
	}
	defer app.Shutdown()

	deleted, err := app.Sweeper.Sweep(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("deleted %d expired records\n", deleted)
	return nil
}
