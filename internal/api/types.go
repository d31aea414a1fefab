package api

import (
	"time"
)

// Protocol selects the wire client used to deliver requests to a worker.
type Protocol string

const (
	// ProtocolJSON posts {"method","params"} JSON documents to the worker endpoint.
	ProtocolJSON Protocol = "json"
	// ProtocolMCP calls the worker as an MCP server over streamable HTTP.
	ProtocolMCP Protocol = "mcp"
)

// Well-known performance metric keys.
const (
	MetricResponseTimeMs = "response_time_ms"
	MetricLatencyMs      = "latency_ms"
	MetricRequests       = "requests"
	MetricFailures       = "failures"
	// MetricErrorRate is a smoothed share of failed deliveries, in [0, 1].
	MetricErrorRate      = "error_rate"
)

// ServerDescriptor holds the identity and live state of one worker.
// Values handed out by the registry are copies; mutating them has no effect on the store.
type ServerDescriptor struct {
	Name           string            `json:"name" yaml:"name"`
	ExecutablePath string            `json:"executablePath" yaml:"executablePath"`
	Args           []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env            map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	WorkDir        string            `json:"workDir,omitempty" yaml:"workDir,omitempty"`
	Endpoint       string            `json:"endpoint" yaml:"endpoint"`
	Protocol       Protocol          `json:"protocol" yaml:"protocol"`
	Path           string            `json:"path,omitempty" yaml:"path,omitempty"`
	Capabilities   []string          `json:"capabilities" yaml:"capabilities"`
	AutoStart      bool              `json:"autoStart" yaml:"autoStart"`

	Status             ServerStatus       `json:"status" yaml:"status"`
	ErrorCount         int                `json:"errorCount" yaml:"errorCount"`
	TotalErrors        int                `json:"totalErrors" yaml:"totalErrors"`
	LastHealthCheck    *time.Time         `json:"lastHealthCheck,omitempty" yaml:"lastHealthCheck,omitempty"`
	StartupTime        *time.Time         `json:"startupTime,omitempty" yaml:"startupTime,omitempty"`
	PID                int                `json:"pid,omitempty" yaml:"pid,omitempty"`
	PerformanceMetrics map[string]float64 `json:"performanceMetrics,omitempty" yaml:"performanceMetrics,omitempty"`
	RestartAttempts    int                `json:"restartAttempts" yaml:"restartAttempts"`
	RestartPinned      bool               `json:"restartPinned" yaml:"restartPinned"`
	LastError          string             `json:"lastError,omitempty" yaml:"lastError,omitempty"`
}

// HasCapability reports whether the descriptor declares the named capability.
func (d ServerDescriptor) HasCapability(capability string) bool {
	for _, c := range d.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// Metric returns a performance metric and whether it has been recorded.
func (d ServerDescriptor) Metric(key string) (float64, bool) {
	v, ok := d.PerformanceMetrics[key]
	return v, ok
}

// Clone returns a deep copy of the descriptor.
func (d ServerDescriptor) Clone() ServerDescriptor {
	c := d
	c.Args = append([]string(nil), d.Args...)
	c.Capabilities = append([]string(nil), d.Capabilities...)
	if d.Env != nil {
		c.Env = make(map[string]string, len(d.Env))
		for k, v := range d.Env {
			c.Env[k] = v
		}
	}
	if d.PerformanceMetrics != nil {
		c.PerformanceMetrics = make(map[string]float64, len(d.PerformanceMetrics))
		for k, v := range d.PerformanceMetrics {
			c.PerformanceMetrics[k] = v
		}
	}
	if d.LastHealthCheck != nil {
		t := *d.LastHealthCheck
		c.LastHealthCheck = &t
	}
	if d.StartupTime != nil {
		t := *d.StartupTime
		c.StartupTime = &t
	}
	return c
}

// HealthCheckResult is the outcome of one liveness probe.
type HealthCheckResult struct {
	Healthy      bool           `json:"healthy"`
	ResponseTime *time.Duration `json:"responseTime,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
	Error        string         `json:"error,omitempty"`
}

// EventType names an orchestration event.
type EventType string

const (
	EventServerRegistered       EventType = "server_registered"
	EventServerStarting         EventType = "server_starting"
	EventServerOnline           EventType = "server_online"
	EventServerStartFailed      EventType = "server_start_failed"
	EventServerStopped          EventType = "server_stopped"
	EventServerKillFailed       EventType = "server_kill_failed"
	EventServerCrashed          EventType = "server_crashed"
	EventServerUnhealthy        EventType = "server_unhealthy"
	EventServerRecovered        EventType = "server_probe_recovered"
	EventServerRestarting       EventType = "server_restarting"
	EventServerRestartExhausted EventType = "server_restart_exhausted"
	EventServerMaintenance      EventType = "server_maintenance"
	EventRequestRouted          EventType = "request_routed"
	EventRequestCompleted       EventType = "request_completed"
	EventRequestFailed          EventType = "request_failed"
	EventRequestAttemptFailed   EventType = "request_attempt_failed"
	EventFleetStarted           EventType = "fleet_started"
	EventFleetShutdown          EventType = "fleet_shutdown"
)

// OrchestrationEvent is an append-only audit record.
type OrchestrationEvent struct {
	ID         string                 `json:"id"`
	Type       EventType              `json:"eventType"`
	ServerName string                 `json:"serverName,omitempty"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// Request is an inbound tool request.
type Request struct {
	ID     string                 `json:"-"`
	Method string                 `json:"method"`
	Params map[string]interface{} `json:"params"`
}

// Response is the worker's wire response.
type Response struct {
	Content []interface{} `json:"content,omitempty"`
	Error   string        `json:"error,omitempty"`
	IsError bool          `json:"isError,omitempty"`
}

// RoutingDecision is the output of one routing computation.
type RoutingDecision struct {
	TargetServer           string                 `json:"targetServer"`
	Category               Category               `json:"category"`
	ConfidenceScore        float64                `json:"confidenceScore"`
	Reasoning              string                 `json:"reasoning"`
	FallbackServers        []string               `json:"fallbackServers"`
	ExpectedProcessingTime time.Duration          `json:"expectedProcessingTime"`
	ResourceRequirements   map[string]interface{} `json:"resourceRequirements,omitempty"`
	Degraded               bool                   `json:"degraded"`
	Scores                 map[string]float64     `json:"scores,omitempty"`
}

// Candidates returns the target followed by the fallbacks, in delivery order.
func (d RoutingDecision) Candidates() []string {
	out := make([]string, 0, 1+len(d.FallbackServers))
	if d.TargetServer != "" {
		out = append(out, d.TargetServer)
	}
	return append(out, d.FallbackServers...)
}

// ErrorKind classifies an execution failure.
type ErrorKind string

const (
	ErrorKindNone          ErrorKind = ""
	ErrorKindNoCandidate   ErrorKind = "RoutingNoCandidate"
	ErrorKindTimeout       ErrorKind = "ExecutionTimeout"
	ErrorKindFailure       ErrorKind = "ExecutionFailure"
	ErrorKindExhausted     ErrorKind = "AllFallbacksExhausted"
	ErrorKindCallerTimeout ErrorKind = "DeadlineExceeded"
)

// AttemptRecord describes one delivery attempt.
type AttemptRecord struct {
	Server   string        `json:"server"`
	Success  bool          `json:"success"`
	Error    string        `json:"error,omitempty"`
	Kind     ErrorKind     `json:"kind,omitempty"`
	Duration time.Duration `json:"duration"`
}

// ExecutionResult is what RouteRequest returns; failures are reported here, never as panics.
type ExecutionResult struct {
	RequestID    string          `json:"requestId"`
	Success      bool            `json:"success"`
	ServedBy     string          `json:"servedBy,omitempty"`
	FallbackUsed string          `json:"fallbackUsed,omitempty"`
	Content      []interface{}   `json:"content,omitempty"`
	Decision     RoutingDecision `json:"decision"`
	Attempts     []AttemptRecord `json:"attempts"`
	Error        string          `json:"error,omitempty"`
	ErrorKind    ErrorKind       `json:"errorKind,omitempty"`
	Err          error           `json:"-"`
	Duration     time.Duration   `json:"duration"`
}

// UsedFallback reports whether a fallback server served the request.
func (r ExecutionResult) UsedFallback() bool {
	return r.FallbackUsed != ""
}

// ServerOperationResult is the per-server outcome of a fleet-wide operation.
type ServerOperationResult struct {
	Name     string        `json:"name"`
	Success  bool          `json:"success"`
	Status   ServerStatus  `json:"status"`
	Error    string        `json:"error,omitempty"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// FleetResult aggregates a fleet-wide start or stop with partial-failure semantics.
type FleetResult struct {
	Results   []ServerOperationResult `json:"results"`
	Succeeded []string                `json:"succeeded"`
	Failed    []string                `json:"failed"`
	Duration  time.Duration           `json:"duration"`
}

// AllSucceeded reports whether no server failed.
func (f FleetResult) AllSucceeded() bool {
	return len(f.Failed) == 0
}

// Result returns the per-server result for name.
func (f FleetResult) Result(name string) (ServerOperationResult, bool) {
	for _, r := range f.Results {
		if r.Name == name {
			return r, true
		}
	}
	return ServerOperationResult{}, false
}

// RoutingStats summarizes routing activity since startup.
type RoutingStats struct {
	TotalRequests  int64              `json:"totalRequests"`
	Succeeded      int64              `json:"succeeded"`
	Failed         int64              `json:"failed"`
	FallbacksUsed  int64              `json:"fallbacksUsed"`
	DegradedRoutes int64              `json:"degradedRoutes"`
	AverageLatency time.Duration      `json:"averageLatency"`
	ByCategory     map[Category]int64 `json:"byCategory,omitempty"`
	ServedByServer map[string]int64   `json:"servedByServer,omitempty"`
	InFlight       map[string]int64   `json:"inFlight,omitempty"`
}

// EcosystemStatus is a point-in-time view of the whole fleet.
type EcosystemStatus struct {
	Servers        []ServerDescriptor   `json:"servers"`
	Total          int                  `json:"total"`
	ByStatus       map[ServerStatus]int `json:"byStatus"`
	HealthRatio    float64              `json:"healthRatio"`
	MonitorRunning bool                 `json:"monitorRunning"`
	Routing        RoutingStats         `json:"routing"`
	GeneratedAt    time.Time            `json:"generatedAt"`
}
