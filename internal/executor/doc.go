// Package executor delivers routed requests to workers.
//
// Executor.Route asks the routing engine for a target and fallbacks, then tries
// each in order under an independent per-attempt timeout, holding a load-balancer
// slot for the duration of the call. Results are folded back into the registry's
// performance metrics. Transports speak plain JSON over HTTP or MCP streamable HTTP
// depending on the worker's declared protocol.
package executor
