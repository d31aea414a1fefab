package cmd

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var (
	maintenanceAddress      string
	maintenanceTimeout      time.Duration
	maintenanceOutputFormat string
	maintenanceQuiet        bool
	maintenanceOff          bool
)

// maintenanceCmd takes a server of a running fleet in or out of maintenance.
var maintenanceCmd = &cobra.Command{
	Use:   "maintenance <server>",
	Short: "Put a server of a running fleet into maintenance",
	Long: `Moves an ONLINE server of a running 'switchyard serve' into MAINTENANCE. A
server in maintenance keeps running but receives no requests and is not health
checked. --off brings it back ONLINE.

Examples:
  switchyard maintenance builder
  switchyard maintenance builder --off

Note: 'switchyard serve' must be running with metrics.listenAddress set.`,
	Args:                  cobra.ExactArgs(1),
	DisableFlagsInUseLine: true,
	RunE:                  runMaintenance,
}

func runMaintenance(cmd *cobra.Command, args []string) error {
	return runServerControl(cmd, serverControl{
		address: maintenanceAddress,
		timeout: maintenanceTimeout,
		output:  maintenanceOutputFormat,
		quiet:   maintenanceQuiet,
		target: func(addr string) string {
			return maintenanceURL(addr, args[0], !maintenanceOff)
		},
	})
}

func maintenanceURL(addr, name string, enabled bool) string {
	return serverURL(addr, name, "maintenance") + "?enabled=" + strconv.FormatBool(enabled)
}

func init() {
	rootCmd.AddCommand(maintenanceCmd)

	maintenanceCmd.Flags().StringVar(&maintenanceAddress, "address", "", "Address of a running switchyard (default metrics.listenAddress)")
	maintenanceCmd.Flags().DurationVar(&maintenanceTimeout, "timeout", 5*time.Second, "Request timeout")
	maintenanceCmd.Flags().StringVarP(&maintenanceOutputFormat, "output", "o", "table", "Output format (table, json, yaml)")
	maintenanceCmd.Flags().BoolVarP(&maintenanceQuiet, "quiet", "q", false, "Suppress non-essential output")
	maintenanceCmd.Flags().BoolVar(&maintenanceOff, "off", false, "Take the server out of maintenance")
}
