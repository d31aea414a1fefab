package cmd

import (
	"context"
	"fmt"

	"switchyard/internal/app"

	"github.com/spf13/cobra"
)

// serveCmd starts the fleet and keeps it running until interrupted.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start every configured worker and supervise the fleet",
	Long: `Starts every worker whose autoStart is not false, then monitors the fleet
until SIGINT or SIGTERM. Crashed and unhealthy workers are restarted with
exponential backoff. New files in servers/ are picked up while running.

Configuration directory layout:
  config.yaml     orchestrator, restart, routing, persistence and metrics settings
  servers/*.yaml  one worker definition per file

When metrics.listenAddress is set, the following endpoints are served:
  /metrics   Prometheus metrics
  /healthz   liveness
  /status    fleet status as JSON (used by 'switchyard status')

On shutdown every worker gets its grace period before being killed.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := app.NewConfig(debug, logFormat, configPath)
	if v := GetVersion(); v != "" {
		cfg.Version = v
	}

	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return application.Run(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
