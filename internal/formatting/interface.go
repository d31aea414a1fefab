// Package formatting renders fleet status, fleet operation results, routed request
// results and orchestration events for the command line.
//
// Three output formats are supported: rich tables (the default), JSON and YAML.
// The structured formats emit the same api types the orchestrator returns, so their
// output can be piped into other tools.
package formatting

import (
	"fmt"
	"io"
	"os"
	"strings"

	"switchyard/internal/api"
)

// OutputFormat represents the desired output format
type OutputFormat string

const (
	FormatTable OutputFormat = "table" // Rich table output
	FormatJSON  OutputFormat = "json"  // JSON output
	FormatYAML  OutputFormat = "yaml"  // YAML output
)

// ParseFormat converts a flag value into an OutputFormat.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case "", FormatTable:
		return FormatTable, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatYAML:
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (use table, json or yaml)", s)
	}
}

// Options configures the formatter behavior
type Options struct {
	Format OutputFormat
	// Out defaults to os.Stdout.
	Out io.Writer
	// Quiet suppresses summary lines below tables.
	Quiet bool
}

// Formatter renders switchyard results.
type Formatter interface {
	FormatCatalog(servers []api.ServerDescriptor) error
	FormatStatus(status api.EcosystemStatus) error
	FormatFleetResult(title string, result api.FleetResult) error
	FormatExecutionResult(result api.ExecutionResult) error
	FormatEvents(events []api.OrchestrationEvent) error
	// FormatEventLine renders a single event as it arrives on a followed stream.
	FormatEventLine(event api.OrchestrationEvent) error
}

// NewFormatter creates the formatter for options.Format.
func NewFormatter(options Options) Formatter {
	if options.Out == nil {
		options.Out = os.Stdout
	}
	switch options.Format {
	case FormatJSON:
		return NewJSONFormatter(options)
	case FormatYAML:
		return NewYAMLFormatter(options)
	default:
		return NewTableFormatter(options)
	}
}
