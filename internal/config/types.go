package config

import (
	"path/filepath"
	"strings"
	"time"

	"switchyard/internal/api"
)

// SwitchyardConfig is the top-level configuration structure for switchyard.
type SwitchyardConfig struct {
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Restart      RestartConfig      `yaml:"restart"`
	Routing      RoutingConfig      `yaml:"routing"`
	Persistence  PersistenceConfig  `yaml:"persistence"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Servers      []ServerDefinition `yaml:"servers,omitempty"`
}

// OrchestratorConfig holds supervision, health and request timings.
type OrchestratorConfig struct {
	HealthCheckInterval time.Duration `yaml:"healthCheckInterval"`
	HealthCheckTimeout  time.Duration `yaml:"healthCheckTimeout"`
	FailureThreshold    int           `yaml:"failureThreshold"`
	ReadinessAttempts   int           `yaml:"readinessAttempts"`
	ReadinessDelay      time.Duration `yaml:"readinessDelay"`
	GracePeriod         time.Duration `yaml:"gracePeriod"`
	KillTimeout         time.Duration `yaml:"killTimeout"`
	RequestTimeout      time.Duration `yaml:"requestTimeout"`
	MaxParallel         int           `yaml:"maxParallel"`
}

// RestartConfig is the automatic restart policy.
type RestartConfig struct {
	MaxAttempts    int           `yaml:"maxAttempts"`
	InitialBackoff time.Duration `yaml:"initialBackoff"`
	MaxBackoff     time.Duration `yaml:"maxBackoff"`
	Multiplier     float64       `yaml:"multiplier"`
}

// RoutingConfig tunes the routing engine.
type RoutingConfig struct {
	FallbackCount   int           `yaml:"fallbackCount"`
	MinScore        float64       `yaml:"minScore"`
	BaselineLatency time.Duration `yaml:"baselineLatency"`
}

// PersistenceConfig controls the optional on-disk event log and metrics snapshots.
// Relative paths are resolved against the configuration directory.
type PersistenceConfig struct {
	EventLogPath        string        `yaml:"eventLogPath,omitempty"`
	MetricsSnapshotPath string        `yaml:"metricsSnapshotPath,omitempty"`
	SnapshotInterval    time.Duration `yaml:"snapshotInterval"`
	// EventMessages overrides the message template of individual event types. The
	// templates see .Server, .Type and .Payload and have the sprig functions.
	EventMessages map[api.EventType]string `yaml:"eventMessages,omitempty"`
}

// MetricsConfig controls the Prometheus endpoint. An empty address disables it.
type MetricsConfig struct {
	ListenAddress string `yaml:"listenAddress,omitempty"`
}

// ServerDefinition declares one worker, either inline in config.yaml or as a file in
// the servers/ directory.
type ServerDefinition struct {
	Name           string            `yaml:"name"`
	ExecutablePath string            `yaml:"executablePath"`
	Args           []string          `yaml:"args,omitempty"`
	Env            map[string]string `yaml:"env,omitempty"`
	WorkDir        string            `yaml:"workDir,omitempty"`
	Endpoint       string            `yaml:"endpoint"`
	Path           string            `yaml:"path,omitempty"`
	Protocol       string            `yaml:"protocol,omitempty"`
	Capabilities   []string          `yaml:"capabilities,omitempty"`
	// AutoStart defaults to true.
	AutoStart *bool `yaml:"autoStart,omitempty"`

	// SourceFile is the file the definition was read from.
	SourceFile string `yaml:"-"`
}

// IsAutoStart reports whether the server starts with the fleet.
func (d ServerDefinition) IsAutoStart() bool {
	return d.AutoStart == nil || *d.AutoStart
}

// ToDescriptor converts the definition into a registry descriptor. Relative
// executable and working directory paths are resolved against baseDir.
func (d ServerDefinition) ToDescriptor(baseDir string) api.ServerDescriptor {
	desc := api.ServerDescriptor{
		Name:           d.Name,
		ExecutablePath: d.ExecutablePath,
		Args:           append([]string(nil), d.Args...),
		WorkDir:        d.WorkDir,
		Endpoint:       d.Endpoint,
		Path:           d.Path,
		Protocol:       api.Protocol(strings.ToLower(d.Protocol)),
		Capabilities:   append([]string(nil), d.Capabilities...),
		AutoStart:      d.IsAutoStart(),
	}
	if len(d.Env) > 0 {
		desc.Env = make(map[string]string, len(d.Env))
		for k, v := range d.Env {
			desc.Env[k] = v
		}
	}
	if baseDir != "" {
		if isRelativePath(desc.ExecutablePath) {
			desc.ExecutablePath = filepath.Join(baseDir, desc.ExecutablePath)
		}
		if desc.WorkDir != "" && !filepath.IsAbs(desc.WorkDir) {
			desc.WorkDir = filepath.Join(baseDir, desc.WorkDir)
		}
	}
	return desc
}

// isRelativePath is true for paths like ./bin/worker; bare names are looked up in PATH.
func isRelativePath(p string) bool {
	if p == "" || filepath.IsAbs(p) {
		return false
	}
	return strings.ContainsRune(p, '/') || strings.ContainsRune(p, filepath.Separator)
}

// ResolvePath resolves a possibly relative file path against the config directory.
func ResolvePath(configDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(configDir, p)
}
