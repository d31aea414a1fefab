package formatting

import (
	"encoding/json"
	"fmt"

	"switchyard/internal/api"
)

// JSONFormatter provides structured JSON output formatting
type JSONFormatter struct {
	options Options
}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter(options Options) Formatter {
	return &JSONFormatter{
		options: options,
	}
}

// FormatCatalog writes the configured servers as JSON.
func (f *JSONFormatter) FormatCatalog(servers []api.ServerDescriptor) error {
	if servers == nil {
		servers = []api.ServerDescriptor{}
	}
	return f.write(servers)
}

// FormatStatus writes the status as JSON.
func (f *JSONFormatter) FormatStatus(status api.EcosystemStatus) error {
	return f.write(status)
}

// FormatFleetResult writes the fleet result as JSON.
func (f *JSONFormatter) FormatFleetResult(_ string, result api.FleetResult) error {
	return f.write(result)
}

// FormatExecutionResult writes the execution result as JSON.
func (f *JSONFormatter) FormatExecutionResult(result api.ExecutionResult) error {
	return f.write(result)
}

// FormatEvents writes events as a JSON array, or one object per line in quiet mode.
func (f *JSONFormatter) FormatEvents(events []api.OrchestrationEvent) error {
	if !f.options.Quiet {
		if events == nil {
			events = []api.OrchestrationEvent{}
		}
		return f.write(events)
	}
	enc := json.NewEncoder(f.options.Out)
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}

// FormatEventLine writes the event as one compact JSON object per line.
func (f *JSONFormatter) FormatEventLine(e api.OrchestrationEvent) error {
	return json.NewEncoder(f.options.Out).Encode(e)
}

func (f *JSONFormatter) write(data interface{}) error {
	_, err := fmt.Fprintln(f.options.Out, f.marshal(data))
	return err
}

// marshal converts data to JSON string with appropriate formatting
func (f *JSONFormatter) marshal(data interface{}) string {
	if !f.options.Quiet {
		return PrettyJSON(data)
	}

	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return fmt.Sprintf(`{"error": "Failed to format JSON: %v"}`, err)
	}
	return string(jsonBytes)
}
