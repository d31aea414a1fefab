package app

import (
	"context"
	"fmt"
	"os"

	"switchyard/internal/api"
	"switchyard/internal/config"
	"switchyard/internal/orchestrator"
	"switchyard/pkg/logging"
)

// Application represents the main application structure that bootstraps and runs switchyard.
//
// The Application follows a two-phase initialization pattern:
//  1. Bootstrap phase: initialize logging, load and validate configuration, set up services
//  2. Execution phase: serve until signalled, or route a single request
//
// Example usage:
//
//	cfg := app.NewConfig(false, "text", "")
//	application, err := app.NewApplication(cfg)
//	if err != nil {
//	    return fmt.Errorf("failed to create application: %w", err)
//	}
//	return application.Run(ctx)
type Application struct {
	config   *Config
	services *Services
}

// NewApplication creates and initializes a new application instance with the provided configuration.
// This function performs the complete bootstrap sequence:
//
//  1. Configures logging based on the debug and format settings
//  2. Loads the switchyard configuration unless cfg.SwitchyardConfig is already set
//  3. Validates it, reporting every problem at once
//  4. Initializes all services and registers the configured servers
//
// Orchestrator options are forwarded to InitializeServices.
func NewApplication(cfg *Config, opts ...orchestrator.Option) (*Application, error) {
	appLogLevel := logging.LevelInfo
	if cfg.Debug {
		appLogLevel = logging.LevelDebug
	}
	logging.Init(appLogLevel, os.Stderr, cfg.LogFormat)

	if cfg.SwitchyardConfig == nil {
		sc, err := LoadConfiguration(cfg.ResolvedConfigPath())
		if err != nil {
			logging.Error("Bootstrap", err, "Failed to load switchyard configuration from %s", cfg.ResolvedConfigPath())
			return nil, err
		}
		cfg.SwitchyardConfig = &sc
	}

	services, err := InitializeServices(cfg, opts...)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to initialize services")
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return &Application{
		config:   cfg,
		services: services,
	}, nil
}

// LoadConfiguration loads and validates the configuration directory.
func LoadConfiguration(configPath string) (config.SwitchyardConfig, error) {
	sc, err := config.LoadConfig(configPath)
	if err != nil {
		return config.SwitchyardConfig{}, fmt.Errorf("failed to load switchyard configuration from %s: %w", configPath, err)
	}
	if err := sc.Validate(); err != nil {
		return config.SwitchyardConfig{}, fmt.Errorf("invalid switchyard configuration in %s: %w", configPath, err)
	}
	logging.Info("Bootstrap", "Loaded configuration from %s (%d servers)", configPath, len(sc.Servers))
	return sc, nil
}

// Services returns the initialized services.
func (a *Application) Services() *Services {
	return a.services
}

// Run serves until ctx is cancelled or the process receives SIGINT or SIGTERM, then
// shuts the fleet down.
func (a *Application) Run(ctx context.Context) error {
	return runServe(ctx, a.config, a.services)
}

// RouteOnce starts the fleet, routes a single request and shuts the fleet down again.
func (a *Application) RouteOnce(ctx context.Context, req api.Request) api.ExecutionResult {
	return routeOnce(ctx, a.services, req)
}
