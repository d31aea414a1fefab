package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"switchyard/internal/api"
	"switchyard/internal/app"
	"switchyard/internal/formatting"

	"github.com/spf13/cobra"
)

var (
	routeMethod       string
	routeParams       string
	routeTimeout      time.Duration
	routeOutputFormat string
	routeQuiet        bool
)

// routeCmd routes a single request through a short-lived fleet.
var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Route a single request and print the result",
	Long: `Starts the configured fleet, routes one request to the best server for its
capability, prints the structured result and shuts the fleet down again.

The capability is inferred from the method name. When the chosen server fails,
the request is retried on the ranked fallbacks.

Examples:
  switchyard route --method analyze_architecture
  switchyard route --method generate_tests --params '{"file":"main.go"}'
  switchyard route --method build --timeout 30s -o json

The command exits with status 3 when the request fails.`,
	Args: cobra.NoArgs,
	RunE: runRoute,
}

func runRoute(cmd *cobra.Command, args []string) error {
	req, err := buildRequest(routeMethod, routeParams)
	if err != nil {
		return err
	}
	format, err := formatting.ParseFormat(routeOutputFormat)
	if err != nil {
		return err
	}

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
	if routeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, routeTimeout)
		defer cancel()
	}

	result := application.RouteOnce(ctx, req)

	formatter := formatting.NewFormatter(formatting.Options{
		Format: format,
		Out:    cmd.OutOrStdout(),
		Quiet:  routeQuiet,
	})
	if err := formatter.FormatExecutionResult(result); err != nil {
		return err
	}
	if !result.Success {
		return &RequestFailedError{Kind: result.ErrorKind, Message: result.Error}
	}
	return nil
}

// buildRequest validates the method and decodes the JSON params object.
func buildRequest(method, params string) (api.Request, error) {
	method = strings.TrimSpace(method)
	if method == "" {
		return api.Request{}, fmt.Errorf("--method is required")
	}
	req := api.Request{Method: method}
	if strings.TrimSpace(params) == "" {
		return req, nil
	}
	if err := json.Unmarshal([]byte(params), &req.Params); err != nil {
		return api.Request{}, fmt.Errorf("--params must be a JSON object: %w", err)
	}
	return req, nil
}

func init() {
	rootCmd.AddCommand(routeCmd)

	routeCmd.Flags().StringVarP(&routeMethod, "method", "m", "", "Request method, e.g. analyze_architecture")
	routeCmd.Flags().StringVarP(&routeParams, "params", "p", "", "Request parameters as a JSON object")
	routeCmd.Flags().DurationVar(&routeTimeout, "timeout", 0, "Overall deadline for the request, including fleet startup")
	routeCmd.Flags().StringVarP(&routeOutputFormat, "output", "o", "table", "Output format (table, json, yaml)")
	routeCmd.Flags().BoolVarP(&routeQuiet, "quiet", "q", false, "Suppress non-essential output")
	_ = routeCmd.MarkFlagRequired("method")
}
