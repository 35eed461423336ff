package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tokengate",
	Short: "Token-metered admission gateway for LLM APIs",
	Long: `TokenGate sits in front of an LLM provider and enforces a per-client
token budget over a sliding window. Every completion is metered by the
tokens the provider reports, and clients that exhaust their budget are
rejected until usage ages out of the window.

Quick start:
  tokengate serve     # Start the gateway
  tokengate validate  # Validate configuration

Maintenance:
  tokengate usage     # Inspect an identity's current window
  tokengate sweep     # Purge expired ledger records once`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "tokengate.yaml", "config file path")
}
