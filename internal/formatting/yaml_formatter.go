package formatting

import (
	"encoding/json"
	"fmt"

	"switchyard/internal/api"

	"gopkg.in/yaml.v3"
)

// YAMLFormatter provides YAML output formatting
type YAMLFormatter struct {
	options Options
}

// NewYAMLFormatter creates a new YAML formatter
func NewYAMLFormatter(options Options) Formatter {
	return &YAMLFormatter{
		options: options,
	}
}

// FormatCatalog writes the configured servers as YAML.
func (f *YAMLFormatter) FormatCatalog(servers []api.ServerDescriptor) error {
	if servers == nil {
		servers = []api.ServerDescriptor{}
	}
	return f.write(servers)
}

// FormatStatus writes the status as YAML.
func (f *YAMLFormatter) FormatStatus(status api.EcosystemStatus) error {
	return f.write(status)
}

// FormatFleetResult writes the fleet result as YAML.
func (f *YAMLFormatter) FormatFleetResult(_ string, result api.FleetResult) error {
	return f.write(result)
}

// FormatExecutionResult writes the execution result as YAML.
func (f *YAMLFormatter) FormatExecutionResult(result api.ExecutionResult) error {
	return f.write(result)
}

// FormatEvents writes events as a YAML sequence.
func (f *YAMLFormatter) FormatEvents(events []api.OrchestrationEvent) error {
	if events == nil {
		events = []api.OrchestrationEvent{}
	}
	return f.write(events)
}

// FormatEventLine writes the event as its own YAML document.
func (f *YAMLFormatter) FormatEventLine(e api.OrchestrationEvent) error {
	_, err := fmt.Fprint(f.options.Out, "---\n"+f.marshal(e))
	return err
}

func (f *YAMLFormatter) write(data interface{}) error {
	_, err := fmt.Fprint(f.options.Out, f.marshal(data))
	return err
}

// marshal converts data to a YAML string. Values go through their JSON form first so
// field names and omitted fields match the JSON output.
func (f *YAMLFormatter) marshal(data interface{}) string {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return fmt.Sprintf("error: \"Failed to format YAML: %v\"\n", err)
	}
	var generic interface{}
	if err := json.Unmarshal(jsonBytes, &generic); err != nil {
		return fmt.Sprintf("error: \"Failed to format YAML: %v\"\n", err)
	}

	yamlBytes, err := yaml.Marshal(generic)
	if err != nil {
		return fmt.Sprintf("error: \"Failed to format YAML: %v\"\n", err)
	}
	return string(yamlBytes)
}
