package cmd

import (
	"errors"
	"fmt"
	"io"

	"switchyard/internal/app"
	"switchyard/internal/config"
	"switchyard/internal/formatting"

	"github.com/spf13/cobra"
)

var (
	checkOutputFormat string
	checkQuiet        bool
)

// checkCmd validates the configuration directory without starting anything.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration and list the configured servers",
	Long: `Loads config.yaml and every file in servers/, validates the result and prints
the server catalog. Every problem is reported at once, with the file it came from.

Examples:
  switchyard check
  switchyard check --config-path ./deploy/switchyard
  switchyard check -o yaml

The command exits with status 2 when the configuration is invalid.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	initCLILogging()
	format, err := formatting.ParseFormat(checkOutputFormat)
	if err != nil {
		return err
	}
	return checkConfiguration(resolvedConfigPath(), formatting.Options{
		Format: format,
		Out:    cmd.OutOrStdout(),
		Quiet:  checkQuiet,
	}, cmd.ErrOrStderr())
}

// checkConfiguration prints the catalog for dir, or the detailed error report to
// errOut and returns the *config.ConfigurationErrorCollection.
func checkConfiguration(dir string, options formatting.Options, errOut io.Writer) error {
	sc, err := config.LoadConfig(dir)
	collection := config.NewConfigurationErrorCollection()
	if err != nil {
		var loadErrs *config.ConfigurationErrorCollection
		if !errors.As(err, &loadErrs) {
			return fmt.Errorf("failed to load configuration from %s: %w", dir, err)
		}
		collection.Merge(loadErrs)
	}

	if err := sc.Validate(); err != nil {
		var validationErrs *config.ConfigurationErrorCollection
		if !errors.As(err, &validationErrs) {
			return err
		}
		collection.Merge(validationErrs)
	}

	if collection.HasErrors() {
		fmt.Fprintln(errOut, collection.GetDetailedReport())
		return collection
	}

	return formatting.NewFormatter(options).FormatCatalog(app.Descriptors(sc, dir))
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringVarP(&checkOutputFormat, "output", "o", "table", "Output format (table, json, yaml)")
	checkCmd.Flags().BoolVarP(&checkQuiet, "quiet", "q", false, "Suppress non-essential output")
}
