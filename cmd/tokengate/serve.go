package main

import (
	"github.com/spf13/cobra"

	"github.com/artpar/tokengate/bootstrap"
	"github.com/artpar/tokengate/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway server",
	Long: `Start the TokenGate server.

The server will:
  - Load configuration from tokengate.yaml (or --config)
  - Or load configuration from TOKENGATE_* environment variables
  - Open the usage ledger (sqlite or redis)
  - Admit or reject requests against the sliding-window token quota
  - Forward admitted requests to the model provider and record usage
  - Sweep expired ledger records in the background

Environment variables (for Docker deployments):
  TOKENGATE_UPSTREAM_URL     - Model provider base URL (required)
  TOKENGATE_UPSTREAM_API_KEY - Model provider API key
  TOKENGATE_QUOTA_LIMIT      - Tokens per window (default: 10000)
  TOKENGATE_QUOTA_WINDOW     - Window length (default: 1h)
  TOKENGATE_DATABASE_DSN     - Sqlite file path (default: tokengate.db)
  TOKENGATE_SERVER_PORT      - Server port (default: 8080)
  TOKENGATE_LOG_LEVEL        - Log level: debug, info, warn, error

Examples:
  tokengate serve
  tokengate serve --config /etc/tokengate/config.yaml

  # Docker (env vars only):
  TOKENGATE_UPSTREAM_URL=https://api.openai.com tokengate serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return err
	}

	app, err := bootstrap.New(cfg)
	if err != nil {
		return err
	}

	return app.Run()
}
