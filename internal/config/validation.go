package config

import (
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidateRequired checks if a required string field is not empty
func ValidateRequired(field, value, entityType string) error {
	if strings.TrimSpace(value) == "" {
		return ValidationError{
			Field:   field,
			Value:   value,
			Message: fmt.Sprintf("is required for %s", entityType),
		}
	}
	return nil
}

// ValidateOneOf checks if a value is in a list of allowed values
func ValidateOneOf(field, value string, allowed []string) error {
	for _, allowedValue := range allowed {
		if value == allowedValue {
			return nil
		}
	}
	return ValidationError{
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
	}
}

// ValidateEntityName validates that an entity name follows proper conventions
func ValidateEntityName(name, entityType string) error {
	if err := ValidateRequired("name", name, entityType); err != nil {
		return err
	}

	if len(name) > 100 {
		return ValidationError{
			Field:   "name",
			Value:   name,
			Message: "must not exceed 100 characters",
		}
	}

	if strings.ContainsAny(name, " \t\n/") {
		return ValidationError{
			Field:   "name",
			Value:   name,
			Message: "cannot contain whitespace or slashes",
		}
	}

	return nil
}

// ValidateEndpoint checks that an endpoint is a host:port pair with a numeric port.
func ValidateEndpoint(field, endpoint string) error {
	host, port, err := net.SplitHostPort(endpoint)
	if err != nil {
		return ValidationError{Field: field, Value: endpoint, Message: "must be in host:port form"}
	}
	if host == "" {
		return ValidationError{Field: field, Value: endpoint, Message: "host must not be empty"}
	}
	n, err := strconv.Atoi(port)
	if err != nil || n <= 0 || n > 65535 {
		return ValidationError{Field: field, Value: endpoint, Message: "port must be between 1 and 65535"}
	}
	return nil
}

func validatePositiveDuration(field string, d time.Duration) error {
	if d <= 0 {
		return ValidationError{Field: field, Value: d, Message: "must be a positive duration"}
	}
	return nil
}

func validateMinInt(field string, v, min int) error {
	if v < min {
		return ValidationError{Field: field, Value: v, Message: fmt.Sprintf("must be at least %d", min)}
	}
	return nil
}

// Validate checks the whole configuration and returns a *ConfigurationErrorCollection
// describing every problem found, or nil.
func (c SwitchyardConfig) Validate() error {
	collection := NewConfigurationErrorCollection()

	settings := func(category string, errs ...error) {
		for _, err := range errs {
			if err != nil {
				collection.AddError("", configFileName, SourceConfig, category, ErrorTypeValidation, err.Error())
			}
		}
	}

	o := c.Orchestrator
	settings(CategoryOrchestrator,
		validatePositiveDuration("orchestrator.healthCheckInterval", o.HealthCheckInterval),
		validatePositiveDuration("orchestrator.healthCheckTimeout", o.HealthCheckTimeout),
		validateMinInt("orchestrator.failureThreshold", o.FailureThreshold, 1),
		validateMinInt("orchestrator.readinessAttempts", o.ReadinessAttempts, 1),
		validatePositiveDuration("orchestrator.readinessDelay", o.ReadinessDelay),
		validatePositiveDuration("orchestrator.gracePeriod", o.GracePeriod),
		validatePositiveDuration("orchestrator.killTimeout", o.KillTimeout),
		validatePositiveDuration("orchestrator.requestTimeout", o.RequestTimeout),
		validateMinInt("orchestrator.maxParallel", o.MaxParallel, 0),
	)

	r := c.Restart
	var multiplierErr error
	if r.Multiplier < 1 {
		multiplierErr = ValidationError{Field: "restart.multiplier", Value: r.Multiplier, Message: "must be at least 1"}
	}
	var backoffErr error
	if r.MaxBackoff < r.InitialBackoff {
		backoffErr = ValidationError{Field: "restart.maxBackoff", Value: r.MaxBackoff, Message: "must not be smaller than restart.initialBackoff"}
	}
	settings(CategoryRestart,
		validateMinInt("restart.maxAttempts", r.MaxAttempts, 0),
		validatePositiveDuration("restart.initialBackoff", r.InitialBackoff),
		backoffErr,
		multiplierErr,
	)

	var minScoreErr error
	if c.Routing.MinScore < 0 || c.Routing.MinScore > 1 {
		minScoreErr = ValidationError{Field: "routing.minScore", Value: c.Routing.MinScore, Message: "must be between 0 and 1"}
	}
	settings(CategoryRouting,
		validateMinInt("routing.fallbackCount", c.Routing.FallbackCount, 0),
		minScoreErr,
		validatePositiveDuration("routing.baselineLatency", c.Routing.BaselineLatency),
	)

	if c.Persistence.MetricsSnapshotPath != "" {
		settings(CategoryPersistence, validatePositiveDuration("persistence.snapshotInterval", c.Persistence.SnapshotInterval))
	}

	seen := make(map[string]string, len(c.Servers))
	for _, def := range c.Servers {
		source := def.SourceFile
		if dup, ok := seen[def.Name]; ok && def.Name != "" {
			collection.Add(NewConfigurationErrorWithDetails(source, filepath.Base(source), serverSource(def), CategoryServers, ErrorTypeValidation,
				fmt.Sprintf("duplicate server name '%s'", def.Name),
				fmt.Sprintf("already defined in %s", dup),
				[]string{"Rename one of the servers"}))
			continue
		}
		seen[def.Name] = source

		for _, err := range def.Validate() {
			collection.AddError(source, filepath.Base(source), serverSource(def), CategoryServers, ErrorTypeValidation,
				fmt.Sprintf("server '%s': %s", def.Name, err.Error()))
		}
	}

	if collection.HasErrors() {
		return collection
	}
	return nil
}

// Validate checks one server definition and returns every problem found.
func (d ServerDefinition) Validate() []error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	add(ValidateEntityName(d.Name, "server"))
	add(ValidateRequired("executablePath", d.ExecutablePath, "server"))
	if err := ValidateRequired("endpoint", d.Endpoint, "server"); err != nil {
		add(err)
	} else {
		add(ValidateEndpoint("endpoint", d.Endpoint))
	}
	if d.Protocol != "" {
		add(ValidateOneOf("protocol", strings.ToLower(d.Protocol), []string{"json", "mcp"}))
	}
	for i, c := range d.Capabilities {
		if strings.TrimSpace(c) == "" {
			add(ValidationError{Field: fmt.Sprintf("capabilities[%d]", i), Message: "must not be empty"})
		}
	}
	return errs
}

func serverSource(def ServerDefinition) string {
	if filepath.Base(def.SourceFile) == configFileName {
		return SourceConfig
	}
	return SourceServers
}
