// Package supervisor spawns, watches, stops and restarts worker processes.
//
// Start launches the worker executable, then polls it for readiness until it
// accepts connections or the attempt budget runs out. Stop sends SIGTERM, waits a
// grace period, kills, and always leaves the server OFFLINE. Recover applies the
// exponential-backoff restart policy to servers in ERROR and pins a server in ERROR
// once the policy is exhausted.
//
// All status changes go through the registry so the lifecycle state machine is
// enforced in one place.
package supervisor
