// Package health implements liveness probing of worker servers.
//
// A Monitor polls every ONLINE and ERROR server at a fixed interval with a
// Prober (TCP connect by default). Consecutive failures build a streak in the
// registry; when an ONLINE server's streak reaches the failure threshold it is moved
// to ERROR and a server_unhealthy event is emitted, once per streak. The monitor
// never restarts anything itself.
package health
