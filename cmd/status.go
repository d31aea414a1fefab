package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"switchyard/internal/api"
	"switchyard/internal/formatting"

	"github.com/spf13/cobra"
)

var (
	statusAddress      string
	statusTimeout      time.Duration
	statusOutputFormat string
	statusQuiet        bool
	statusCheck        bool
)

// statusCmd queries a running `switchyard serve` for its fleet status.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of a running fleet",
	Long: `Fetches /status from a running 'switchyard serve' and prints one row per
server with its status, process, error counters, restart attempts and average
response time, followed by a fleet summary.

The address defaults to metrics.listenAddress from config.yaml. With --check a
health check round runs on every ONLINE and ERROR server before the status is read.

Examples:
  switchyard status
  switchyard status --check
  switchyard status --address 127.0.0.1:9464 -o json`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	initCLILogging()
	format, err := formatting.ParseFormat(statusOutputFormat)
	if err != nil {
		return err
	}

	addr, err := serveAddress(statusAddress)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(commandContext(cmd), statusTimeout)
	defer cancel()

	if statusCheck {
		if err := postServe(ctx, http.DefaultClient, serveURL(addr, "/health/check"), nil); err != nil {
			return err
		}
	}

	status, err := fetchStatus(ctx, http.DefaultClient, statusURL(addr))
	if err != nil {
		return err
	}

	formatter := formatting.NewFormatter(formatting.Options{
		Format: format,
		Out:    cmd.OutOrStdout(),
		Quiet:  statusQuiet,
	})
	return formatter.FormatStatus(status)
}

// statusURL turns a listen address into the /status URL.
func statusURL(addr string) string {
	return serveURL(addr, "/status")
}

func fetchStatus(ctx context.Context, client *http.Client, url string) (api.EcosystemStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return api.EcosystemStatus{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return api.EcosystemStatus{}, fmt.Errorf("failed to reach switchyard at %s (is 'switchyard serve' running?): %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return api.EcosystemStatus{}, fmt.Errorf("unexpected response from %s: %s", url, resp.Status)
	}
	var status api.EcosystemStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return api.EcosystemStatus{}, fmt.Errorf("failed to decode status from %s: %w", url, err)
	}
	return status, nil
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&statusAddress, "address", "", "Address of a running switchyard (default metrics.listenAddress)")
	statusCmd.Flags().DurationVar(&statusTimeout, "timeout", 5*time.Second, "Request timeout")
	statusCmd.Flags().StringVarP(&statusOutputFormat, "output", "o", "table", "Output format (table, json, yaml)")
	statusCmd.Flags().BoolVarP(&statusQuiet, "quiet", "q", false, "Suppress non-essential output")
	statusCmd.Flags().BoolVar(&statusCheck, "check", false, "Run a health check round before reading the status")
}
