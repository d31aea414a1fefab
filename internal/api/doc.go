// Package api holds the data model shared by every switchyard component.
//
// It deliberately has no dependencies on other internal packages so the registry,
// supervisor, router, executor and orchestrator can all speak the same types:
//
//   - ServerDescriptor: identity, declared capabilities and live state of a worker
//   - ServerStatus: the lifecycle state machine (OFFLINE, STARTING, ONLINE, ERROR, MAINTENANCE)
//   - RoutingDecision and ExecutionResult: the outcome of routing a Request
//   - OrchestrationEvent: audit records emitted on every lifecycle change
//
// # Errors
//
// Every failure mode has a typed error with a constructor and an IsXxx helper that
// works through wrapping:
//
//	if api.IsStartupTimeout(err) {
//	    // worker never answered its readiness probe
//	}
//
// ErrorKindOf maps any taxonomy error to the ErrorKind reported in ExecutionResult.
package api
