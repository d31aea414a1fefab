// Package events provides the append-only orchestration event log.
//
// Every lifecycle change of a worker and every routed request produces an
// api.OrchestrationEvent. The Log keeps recent events in memory for status queries,
// fans them out to subscribers (the orchestrator reacts to server_unhealthy and
// server_crashed this way) and optionally appends them to a JSON-lines file:
//
//	log, err := events.OpenLog("/var/lib/switchyard/events.jsonl")
//	if err != nil {
//		return err
//	}
//	defer log.Close()
//
//	ch, cancel := log.Subscribe(32)
//	defer cancel()
//
// Human-readable messages are produced by MessageTemplateEngine, whose templates
// have the sprig function library available.
package events
