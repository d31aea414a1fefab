// Package app provides application bootstrap and lifecycle management for switchyard.
//
// It sits between the cobra commands in cmd/ and the orchestrator: commands build an
// app.Config from their flags, NewApplication turns it into running services, and
// the chosen mode drives the fleet.
//
// # Architecture Overview
//
//  1. **Bootstrap (`bootstrap.go`)**: logging setup, configuration loading and validation
//  2. **Configuration (`config.go`)**: runtime settings taken from command-line flags
//  3. **Configuration Adapter (`config_adapter.go`)**: maps the YAML configuration onto
//     the orchestrator's component configurations and server descriptors
//  4. **Services (`services.go`)**: event log, metrics collector, orchestrator,
//     snapshot writer and directory watcher
//  5. **Modes (`modes.go`)**: serve mode and single-request route mode
//
// # Bootstrap Sequence
//
//  1. Logging is initialized at info level, or debug with --debug, in text or json format
//  2. The configuration directory is loaded: defaults, config.yaml, servers/*.yaml
//  3. The configuration is validated and every problem is reported at once
//  4. Services are created and every configured server is registered OFFLINE
//  5. Persisted performance metrics, if any, are restored onto registered servers
//
// # Serve Mode
//
// Run starts every auto-start server and the health monitor, then blocks until the
// context is cancelled or SIGINT/SIGTERM arrives. While running it:
//
//   - serves /metrics (Prometheus), /healthz and /status (JSON) on
//     metrics.listenAddress when configured
//   - registers servers whose definitions appear in servers/ and starts them unless
//     autoStart is false
//   - writes metrics snapshots every persistence.snapshotInterval
//   - sends READY=1 and STOPPING=1 to systemd when NOTIFY_SOCKET is set
//
// Shutdown stops the watcher and snapshot writer, shuts the fleet down (grace period
// then kill for each server), stops the HTTP server and closes the event log.
//
// # Route Mode
//
// RouteOnce starts the fleet, routes one request, shuts the fleet down and returns
// the structured api.ExecutionResult. It backs `switchyard route`.
//
// # Usage
//
//	cfg := app.NewConfig(debug, "text", configPath)
//	application, err := app.NewApplication(cfg)
//	if err != nil {
//	    return err
//	}
//	return application.Run(ctx)
package app
