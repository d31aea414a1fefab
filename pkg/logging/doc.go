// Package logging provides the structured logger used throughout switchyard.
//
// It is a thin layer over log/slog that tags every record with the subsystem that
// produced it, so operators can filter orchestrator output by component:
//
//	logging.Init(logging.LevelInfo, os.Stderr, logging.FormatText)
//
//	logging.Info("Supervisor", "Started worker %s (pid %d)", name, pid)
//	logging.Warn("HealthMonitor", "Probe failed for %s: %v", name, err)
//	logging.Error("Executor", err, "All fallbacks exhausted for request %s", id)
//
// # Subsystems
//
//   - Bootstrap: configuration loading and application wiring
//   - Registry: descriptor registration and status transitions
//   - Supervisor: process spawn, readiness, termination and restarts
//   - HealthMonitor: periodic liveness probes
//   - Router: request classification and scoring
//   - Executor: request delivery and fallback walks
//   - Orchestrator: fleet-wide operations
//
// Before Init is called, debug and info records are dropped and warnings or errors
// are written to stderr, which keeps library usage and tests quiet.
package logging
