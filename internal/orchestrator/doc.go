// Package orchestrator provides the fleet facade of switchyard.
//
// The orchestrator wires the registry, supervisor, health monitor, routing engine,
// load balancer and request executor into one object and exposes the operations the
// rest of the program needs. It owns no state of its own beyond the background
// recovery goroutines; worker state lives in the registry.
//
// # Lifecycle
//
//   - RegisterServer adds a worker to the catalog in OFFLINE state
//   - StartFleet starts every auto-start worker concurrently and begins health probing
//   - ShutdownFleet stops health probing and pending restarts, then stops every worker
//     concurrently
//
// Both fleet operations have partial-failure semantics: a worker that fails to start
// or stop does not prevent the others, and every worker gets an entry in the
// returned api.FleetResult.
//
// # Recovery
//
// When the health monitor declares a worker unhealthy, or the supervisor sees a
// running worker exit, the orchestrator schedules Supervisor.Recover in the
// background. Recovery follows the configured exponential-backoff policy and pins the
// worker in ERROR once the attempts are used up. RestartServer clears the pin.
//
// # Routing
//
// RouteRequest never returns a bare error. The returned api.ExecutionResult carries
// the routing decision, every delivery attempt, and on failure an api.ErrorKind that
// tells callers whether no worker was available, every candidate failed, or the
// caller's own deadline expired.
//
// # Usage
//
//	orch := orchestrator.New(orchestrator.DefaultConfig(), orchestrator.WithMetrics(collector))
//	for _, desc := range servers {
//	    if err := orch.RegisterServer(desc); err != nil {
//	        return err
//	    }
//	}
//	result := orch.StartFleet(ctx)
//	defer orch.ShutdownFleet(context.Background())
//
//	res := orch.RouteRequest(ctx, api.Request{Method: "analyze_architecture"})
package orchestrator
