package config

import "time"

// GetDefaultConfig returns the configuration used when config.yaml sets nothing.
func GetDefaultConfig() SwitchyardConfig {
	return SwitchyardConfig{
		Orchestrator: OrchestratorConfig{
			HealthCheckInterval: 10 * time.Second,
			HealthCheckTimeout:  2 * time.Second,
			FailureThreshold:    3,
			ReadinessAttempts:   30,
			ReadinessDelay:      500 * time.Millisecond,
			GracePeriod:         5 * time.Second,
			KillTimeout:         2 * time.Second,
			RequestTimeout:      30 * time.Second,
			MaxParallel:         8,
		},
		Restart: RestartConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Second,
			MaxBackoff:     30 * time.Second,
			Multiplier:     2,
		},
		Routing: RoutingConfig{
			FallbackCount:   2,
			MinScore:        0.1,
			BaselineLatency: time.Second,
		},
		Persistence: PersistenceConfig{
			SnapshotInterval: time.Minute,
		},
	}
}
