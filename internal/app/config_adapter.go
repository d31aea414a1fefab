package app

import (
	"switchyard/internal/api"
	"switchyard/internal/config"
	"switchyard/internal/executor"
	"switchyard/internal/health"
	"switchyard/internal/metrics"
	"switchyard/internal/orchestrator"
	"switchyard/internal/registry"
	"switchyard/internal/routing"
	"switchyard/internal/supervisor"
	"switchyard/pkg/logging"
)

// OrchestratorConfig maps the file configuration onto the component configurations.
func OrchestratorConfig(cfg config.SwitchyardConfig) orchestrator.Config {
	o := cfg.Orchestrator
	return orchestrator.Config{
		Supervisor: supervisor.Config{
			ReadinessAttempts: o.ReadinessAttempts,
			ReadinessDelay:    o.ReadinessDelay,
			ProbeTimeout:      o.HealthCheckTimeout,
			GracePeriod:       o.GracePeriod,
			KillTimeout:       o.KillTimeout,
			MaxParallel:       o.MaxParallel,
			Restart: supervisor.RestartPolicy{
				MaxAttempts:    cfg.Restart.MaxAttempts,
				InitialBackoff: cfg.Restart.InitialBackoff,
				MaxBackoff:     cfg.Restart.MaxBackoff,
				Multiplier:     cfg.Restart.Multiplier,
			},
		},
		Health: health.Config{
			Interval:         o.HealthCheckInterval,
			Timeout:          o.HealthCheckTimeout,
			FailureThreshold: o.FailureThreshold,
			MaxParallel:      o.MaxParallel,
		},
		Routing: routing.Config{
			FallbackCount:   cfg.Routing.FallbackCount,
			MinScore:        cfg.Routing.MinScore,
			BaselineLatency: cfg.Routing.BaselineLatency,
		},
		Executor: executor.Config{
			RequestTimeout: o.RequestTimeout,
		},
	}
}

// Descriptors converts every server definition, resolving relative paths against configDir.
func Descriptors(cfg config.SwitchyardConfig, configDir string) []api.ServerDescriptor {
	out := make([]api.ServerDescriptor, 0, len(cfg.Servers))
	for _, def := range cfg.Servers {
		out = append(out, def.ToDescriptor(configDir))
	}
	return out
}

// seedMetrics restores persisted performance metrics for registered servers, so
// routing has latency history before the first request.
func seedMetrics(store *registry.Store, snap metrics.Snapshot) int {
	seeded := 0
	for _, s := range snap.Servers {
		if !store.Has(s.Name) {
			continue
		}
		for key, value := range s.Metrics {
			if err := store.RecordMetric(s.Name, key, value); err != nil {
				logging.Warn("Bootstrap", "Failed to restore metric %s for %s: %v", key, s.Name, err)
				continue
			}
		}
		seeded++
	}
	return seeded
}
