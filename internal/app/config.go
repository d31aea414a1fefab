package app

import (
	"switchyard/internal/config"
	"switchyard/pkg/logging"
)

// Config holds the application configuration
type Config struct {
	// Debug enables debug logging.
	Debug bool

	// LogFormat selects text or json log output.
	LogFormat logging.Format

	// ConfigPath is the configuration directory. Empty means ~/.config/switchyard.
	ConfigPath string

	// Version is reported to MCP workers as the client version.
	Version string

	// SwitchyardConfig is loaded during bootstrap unless already set.
	SwitchyardConfig *config.SwitchyardConfig
}

// NewConfig creates a new application configuration
func NewConfig(debug bool, logFormat, configPath string) *Config {
	return &Config{
		Debug:      debug,
		LogFormat:  logging.Format(logFormat),
		ConfigPath: configPath,
		Version:    "dev",
	}
}

// ResolvedConfigPath returns the configuration directory in use.
func (c *Config) ResolvedConfigPath() string {
	if c.ConfigPath != "" {
		return c.ConfigPath
	}
	return config.GetDefaultConfigPathOrPanic()
}
