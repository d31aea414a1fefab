package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"switchyard/internal/api"
	"switchyard/internal/loadbalancer"
	"switchyard/internal/registry"
	"switchyard/internal/routing"
	"switchyard/pkg/logging"
)

// EventEmitter receives request events. *events.Log implements it.
type EventEmitter interface {
	Emit(eventType api.EventType, serverName string, payload map[string]interface{}) api.OrchestrationEvent
}

// Observer receives per-request measurements. *metrics.Collector implements it.
type Observer interface {
	ObserveAttempt(server, outcome string, d time.Duration)
	ObserveRouted(category api.Category, degraded bool)
	ObserveFallback(server string)
	SetInFlight(server string, n int64)
}

// Attempt outcomes reported to the Observer.
const (
	OutcomeSuccess = "success"
	OutcomeTimeout = "timeout"
	OutcomeFailure = "failure"
)

// DefaultRequestTimeout bounds a single attempt when nothing is configured.
const DefaultRequestTimeout = 30 * time.Second

// Config controls request execution.
type Config struct {
	// RequestTimeout bounds each attempt independently.
	RequestTimeout time.Duration
}

// Executor routes requests and walks the fallback list until a worker answers.
type Executor struct {
	store     *registry.Store
	engine    *routing.Engine
	balancer  *loadbalancer.Balancer
	transport Transport
	cfg       Config
	events    EventEmitter
	observer  Observer

	statsMu sync.Mutex
	stats   routingStats
}

type routingStats struct {
	total, succeeded, failed, fallbacks, degraded int64
	latency                                       time.Duration
	byCategory                                    map[api.Category]int64
	servedBy                                      map[string]int64
}

// Option customizes an Executor.
type Option func(*Executor)

// WithEvents sets the event sink.
func WithEvents(e EventEmitter) Option {
	return func(x *Executor) { x.events = e }
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(x *Executor) { x.observer = o }
}

// New creates an Executor.
func New(store *registry.Store, engine *routing.Engine, balancer *loadbalancer.Balancer, transport Transport, cfg Config, opts ...Option) *Executor {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	x := &Executor{
		store:     store,
		engine:    engine,
		balancer:  balancer,
		transport: transport,
		cfg:       cfg,
		stats: routingStats{
			byCategory: make(map[api.Category]int64),
			servedBy:   make(map[string]int64),
		},
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Route analyzes req against the current fleet, then tries the target and each
// fallback in order until one succeeds. It always returns a result; failures are
// described by Error, ErrorKind and Err.
func (x *Executor) Route(ctx context.Context, req api.Request) api.ExecutionResult {
	started := time.Now()
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	result := api.ExecutionResult{RequestID: req.ID}

	decision, err := x.engine.Analyze(req, x.store.Snapshot(), x.balancer.Snapshot())
	if err != nil {
		return x.finish(result, err, started)
	}
	result.Decision = decision
	if x.observer != nil {
		x.observer.ObserveRouted(decision.Category, decision.Degraded)
	}
	logging.Debug("Executor", "Request %s (%s) routed to %s, fallbacks %v: %s", req.ID, req.Method, decision.TargetServer, decision.FallbackServers, decision.Reasoning)
	x.emit(api.EventRequestRouted, decision.TargetServer, map[string]interface{}{
		"requestId":  req.ID,
		"method":     req.Method,
		"category":   string(decision.Category),
		"fallbacks":  decision.FallbackServers,
		"confidence": decision.ConfidenceScore,
		"degraded":   decision.Degraded,
	})

	for i, name := range decision.Candidates() {
		if ctx.Err() != nil {
			break
		}
		record, resp := x.attempt(ctx, name, req)
		result.Attempts = append(result.Attempts, record)
		if record.Success {
			result.Success = true
			result.ServedBy = name
			if i > 0 {
				result.FallbackUsed = name
				if x.observer != nil {
					x.observer.ObserveFallback(name)
				}
			}
			if resp != nil {
				result.Content = resp.Content
			}
			return x.finish(result, nil, started)
		}
		logging.Debug("Executor", "Attempt on %s for request %s failed: %s", name, req.ID, record.Error)
		x.emit(api.EventRequestAttemptFailed, name, map[string]interface{}{
			"requestId": req.ID,
			"kind":      string(record.Kind),
			"error":     record.Error,
		})
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		err = fmt.Errorf("request %s abandoned after %d attempts: %w", req.ID, len(result.Attempts), ctxErr)
	} else {
		err = api.NewAllFallbacksExhaustedError(req.ID, result.Attempts)
	}
	return x.finish(result, err, started)
}

func (x *Executor) attempt(ctx context.Context, name string, req api.Request) (api.AttemptRecord, *api.Response) {
	record := api.AttemptRecord{Server: name}

	desc, err := x.store.Get(name)
	if err != nil {
		record.Error = err.Error()
		record.Kind = api.ErrorKindFailure
		return record, nil
	}

	release := x.balancer.Acquire(name)
	x.reportInFlight(name)

	attemptCtx, cancel := context.WithTimeout(ctx, x.cfg.RequestTimeout)
	start := time.Now()
	resp, sendErr := x.transport.Send(attemptCtx, desc, req)
	record.Duration = time.Since(start)
	timedOut := errors.Is(attemptCtx.Err(), context.DeadlineExceeded)
	cancel()
	release()
	x.reportInFlight(name)

	if sendErr == nil {
		record.Success = true
		x.recordExecution(name, record.Duration, nil)
		x.observeAttempt(name, OutcomeSuccess, record.Duration)
		return record, resp
	}

	var attemptErr error
	switch {
	case ctx.Err() != nil:
		// The caller gave up; not the worker's fault.
		attemptErr = fmt.Errorf("attempt on %s abandoned: %w", name, ctx.Err())
		record.Kind = api.ErrorKindCallerTimeout
	case timedOut:
		attemptErr = api.NewExecutionTimeoutError(name, x.cfg.RequestTimeout)
		record.Kind = api.ErrorKindTimeout
		x.recordExecution(name, record.Duration, attemptErr)
		x.observeAttempt(name, OutcomeTimeout, record.Duration)
	default:
		attemptErr = api.NewExecutionFailureError(name, sendErr)
		record.Kind = api.ErrorKindFailure
		x.recordExecution(name, record.Duration, attemptErr)
		x.observeAttempt(name, OutcomeFailure, record.Duration)
	}
	record.Error = attemptErr.Error()
	return record, resp
}

func (x *Executor) finish(result api.ExecutionResult, err error, started time.Time) api.ExecutionResult {
	result.Duration = time.Since(started)
	if err != nil {
		result.Success = false
		result.Err = err
		result.Error = err.Error()
		result.ErrorKind = api.ErrorKindOf(err)
	}

	x.statsMu.Lock()
	x.stats.total++
	if result.Decision.Category != "" {
		x.stats.byCategory[result.Decision.Category]++
	}
	if result.Decision.Degraded {
		x.stats.degraded++
	}
	if result.Success {
		x.stats.succeeded++
		x.stats.latency += result.Duration
		x.stats.servedBy[result.ServedBy]++
		if result.UsedFallback() {
			x.stats.fallbacks++
		}
	} else {
		x.stats.failed++
	}
	x.statsMu.Unlock()

	if result.Success {
		logging.Debug("Executor", "Request %s served by %s in %s", result.RequestID, result.ServedBy, result.Duration.Round(time.Millisecond))
		x.emit(api.EventRequestCompleted, result.ServedBy, map[string]interface{}{
			"requestId":    result.RequestID,
			"fallbackUsed": result.FallbackUsed,
			"durationMs":   result.Duration.Milliseconds(),
		})
	} else {
		logging.Warn("Executor", "Request %s failed: %s", result.RequestID, result.Error)
		x.emit(api.EventRequestFailed, result.Decision.TargetServer, map[string]interface{}{
			"requestId": result.RequestID,
			"errorKind": string(result.ErrorKind),
			"error":     result.Error,
			"attempts":  len(result.Attempts),
		})
	}
	return result
}

// Stats returns routing statistics since the executor was created.
func (x *Executor) Stats() api.RoutingStats {
	x.statsMu.Lock()
	defer x.statsMu.Unlock()

	stats := api.RoutingStats{
		TotalRequests:  x.stats.total,
		Succeeded:      x.stats.succeeded,
		Failed:         x.stats.failed,
		FallbacksUsed:  x.stats.fallbacks,
		DegradedRoutes: x.stats.degraded,
		ByCategory:     make(map[api.Category]int64, len(x.stats.byCategory)),
		ServedByServer: make(map[string]int64, len(x.stats.servedBy)),
		InFlight:       x.balancer.Snapshot(),
	}
	if x.stats.succeeded > 0 {
		stats.AverageLatency = x.stats.latency / time.Duration(x.stats.succeeded)
	}
	for k, v := range x.stats.byCategory {
		stats.ByCategory[k] = v
	}
	for k, v := range x.stats.servedBy {
		stats.ServedByServer[k] = v
	}
	return stats
}

func (x *Executor) recordExecution(name string, d time.Duration, err error) {
	if recErr := x.store.RecordExecution(name, d, err); recErr != nil {
		logging.Debug("Executor", "Failed to record execution for %s: %v", name, recErr)
	}
}

func (x *Executor) observeAttempt(name, outcome string, d time.Duration) {
	if x.observer != nil {
		x.observer.ObserveAttempt(name, outcome, d)
	}
}

func (x *Executor) reportInFlight(name string) {
	if x.observer != nil {
		x.observer.SetInFlight(name, x.balancer.InFlight(name))
	}
}

func (x *Executor) emit(t api.EventType, name string, payload map[string]interface{}) {
	if x.events != nil {
		x.events.Emit(t, name, payload)
	}
}
