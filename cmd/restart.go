package cmd

import (
	"context"
	"net/http"
	"time"

	"switchyard/internal/api"
	"switchyard/internal/formatting"

	"github.com/spf13/cobra"
)

var (
	restartAddress      string
	restartTimeout      time.Duration
	restartOutputFormat string
	restartQuiet        bool
)

// restartCmd restarts one server of a running fleet.
var restartCmd = &cobra.Command{
	Use:   "restart <server>",
	Short: "Restart a server of a running fleet",
	Long: `Stops and starts one server of a running 'switchyard serve' and clears its
restart pin, so a server that exhausted its automatic restarts is tried again.

Examples:
  switchyard restart builder
  switchyard restart builder --address 127.0.0.1:9464 -o json

Note: 'switchyard serve' must be running with metrics.listenAddress set.`,
	Args:                  cobra.ExactArgs(1),
	DisableFlagsInUseLine: true,
	RunE:                  runRestart,
}

func runRestart(cmd *cobra.Command, args []string) error {
	return runServerControl(cmd, serverControl{
		address: restartAddress,
		timeout: restartTimeout,
		output:  restartOutputFormat,
		quiet:   restartQuiet,
		target: func(addr string) string {
			return serverURL(addr, args[0], "restart")
		},
	})
}

// serverControl describes one call to a per-server control endpoint.
type serverControl struct {
	address string
	timeout time.Duration
	output  string
	quiet   bool
	target  func(addr string) string
}

func runServerControl(cmd *cobra.Command, c serverControl) error {
	initCLILogging()
	format, err := formatting.ParseFormat(c.output)
	if err != nil {
		return err
	}
	addr, err := serveAddress(c.address)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(commandContext(cmd), c.timeout)
	defer cancel()

	desc, err := controlServer(ctx, http.DefaultClient, c.target(addr))
	if err != nil {
		return err
	}

	formatter := formatting.NewFormatter(formatting.Options{
		Format: format,
		Out:    cmd.OutOrStdout(),
		Quiet:  c.quiet,
	})
	return formatter.FormatCatalog([]api.ServerDescriptor{desc})
}

func init() {
	rootCmd.AddCommand(restartCmd)

	restartCmd.Flags().StringVar(&restartAddress, "address", "", "Address of a running switchyard (default metrics.listenAddress)")
	restartCmd.Flags().DurationVar(&restartTimeout, "timeout", time.Minute, "Request timeout")
	restartCmd.Flags().StringVarP(&restartOutputFormat, "output", "o", "table", "Output format (table, json, yaml)")
	restartCmd.Flags().BoolVarP(&restartQuiet, "quiet", "q", false, "Suppress non-essential output")
}
