package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/artpar/tokengate/bootstrap"
	"github.com/artpar/tokengate/config"
)

var usageCmd = &cobra.Command{
	Use:   "usage <identity>",
	Short: "Show an identity's consumption in the current window",
	Args:  cobra.ExactArgs(1),
	RunE:  runUsage,
}

func init() {
	rootCmd.AddCommand(usageCmd)
}

func runUsage(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return err
	}

	app, err := bootstrap.New(cfg)
	if err != nil {
		return err
	}
	defer app.Shutdown()

	d, err := app.Admission.Evaluate(context.Background(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("identity:    %s\n", args[0])
	fmt.Printf("tokens used: %d / %d per %s\n", d.Used, d.Limit, cfg.Quota.Window)
	if d.Allowed {
		fmt.Println("status:      allowed")
	} else {
		fmt.Printf("status:      rate limited (resets %s, retry in %s)\n",
			d.ResetAt.UTC().Format("2006-01-02 15:04:05 MST"), d.RetryAfter)
	}
	return nil
}
