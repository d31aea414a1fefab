package cmd

import (
	"errors"
	"fmt"
	"os"

	"switchyard/internal/api"
	"switchyard/internal/config"
	"switchyard/pkg/logging"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeConfigInvalid indicates the configuration directory failed to load or validate.
	ExitCodeConfigInvalid = 2
	// ExitCodeRequestFailed indicates a routed request completed without success.
	ExitCodeRequestFailed = 3
)

// Persistent flags shared by every subcommand.
var (
	configPath string
	debug      bool
	logFormat  string
)

// rootCmd represents the base command for the switchyard application.
// It is the entry point when the application is called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "switchyard",
	Short: "Supervise worker servers and route requests to them by capability",
	Long: `switchyard runs a fleet of local worker servers, keeps them healthy and
routes each request to the best server for the capability it needs.

Workers are declared in config.yaml or as individual files under servers/ in the
configuration directory. Each one is launched as a child process, probed until it
answers, then monitored. Crashed or unhealthy workers are restarted with backoff.
Requests are matched to a capability, scored against the servers that offer it and
retried on fallbacks when the first choice fails.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
}

// RequestFailedError reports a routed request that did not succeed. The result has
// already been printed; the error only carries the exit status.
type RequestFailedError struct {
	Kind    api.ErrorKind
	Message string
}

func (e *RequestFailedError) Error() string {
	return fmt.Sprintf("request failed (%s): %s", e.Kind, e.Message)
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// This function is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "switchyard version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
func getExitCode(err error) int {
	var collection *config.ConfigurationErrorCollection
	if errors.As(err, &collection) {
		return ExitCodeConfigInvalid
	}

	var failed *RequestFailedError
	if errors.As(err, &failed) {
		return ExitCodeRequestFailed
	}

	return ExitCodeError
}

// resolvedConfigPath returns --config-path or the default user configuration directory.
func resolvedConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.GetDefaultConfigPathOrPanic()
}

// initCLILogging keeps one-shot commands quiet unless --debug is set.
func initCLILogging() {
	level := logging.LevelWarn
	if debug {
		level = logging.LevelDebug
	}
	logging.Init(level, os.Stderr, logging.Format(logFormat))
}

func init() {
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.PersistentFlags().StringVar(&configPath, "config-path", "", "Configuration directory (default $HOME/.config/switchyard)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text, json)")
}
