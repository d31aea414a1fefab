package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"switchyard/internal/api"
	"switchyard/internal/events"
	"switchyard/internal/executor"
	"switchyard/internal/health"
	"switchyard/internal/loadbalancer"
	"switchyard/internal/metrics"
	"switchyard/internal/registry"
	"switchyard/internal/routing"
	"switchyard/internal/supervisor"
	"switchyard/pkg/logging"
)

// Config holds the configuration of every component the orchestrator wires.
type Config struct {
	Supervisor supervisor.Config
	Health     health.Config
	Routing    routing.Config
	Executor   executor.Config
}

// DefaultConfig returns the component defaults.
func DefaultConfig() Config {
	return Config{
		Supervisor: supervisor.DefaultConfig(),
		Health:     health.DefaultConfig(),
		Routing:    routing.DefaultConfig(),
		Executor:   executor.Config{RequestTimeout: executor.DefaultRequestTimeout},
	}
}

type options struct {
	launcher       supervisor.Launcher
	readiness      supervisor.ReadyFunc
	prober         health.Prober
	transport      executor.Transport
	events         *events.Log
	metrics        *metrics.Collector
	routingOptions []routing.Option
}

// Option customizes an Orchestrator.
type Option func(*options)

// WithLauncher replaces the process launcher.
func WithLauncher(l supervisor.Launcher) Option {
	return func(o *options) { o.launcher = l }
}

// WithReadiness replaces the startup readiness probe.
func WithReadiness(fn supervisor.ReadyFunc) Option {
	return func(o *options) { o.readiness = fn }
}

// WithProber replaces the health prober.
func WithProber(p health.Prober) Option {
	return func(o *options) { o.prober = p }
}

// WithTransport replaces the worker transport.
func WithTransport(t executor.Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithEventLog sets the event log. A memory-only log is used otherwise.
func WithEventLog(l *events.Log) Option {
	return func(o *options) { o.events = l }
}

// WithMetrics sets the Prometheus collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) { o.metrics = c }
}

// WithRoutingOptions passes options to the routing engine.
func WithRoutingOptions(opts ...routing.Option) Option {
	return func(o *options) { o.routingOptions = append(o.routingOptions, opts...) }
}

// Orchestrator is the facade over the worker fleet: it registers, starts, routes to,
// monitors, recovers and shuts down workers.
type Orchestrator struct {
	store      *registry.Store
	supervisor *supervisor.Supervisor
	monitor    *health.Monitor
	engine     *routing.Engine
	balancer   *loadbalancer.Balancer
	executor   *executor.Executor
	transport  executor.Transport
	events     *events.Log
	metrics    *metrics.Collector

	mu           sync.Mutex
	ctx          context.Context
	cancelFunc   context.CancelFunc
	shuttingDown bool
	recoveries   sync.WaitGroup
}

// New wires a stopped orchestrator. Call StartFleet to bring workers up.
func New(cfg Config, opts ...Option) *Orchestrator {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.events == nil {
		o.events = events.NewLog()
	}
	if o.transport == nil {
		o.transport = executor.NewMux(map[api.Protocol]executor.Transport{
			api.ProtocolJSON: executor.NewJSONTransport(),
			api.ProtocolMCP:  executor.NewMCPTransport("dev"),
		})
	}

	store := registry.NewStore()
	balancer := loadbalancer.New()
	engine := routing.NewEngine(cfg.Routing, o.routingOptions...)

	supOpts := []supervisor.Option{supervisor.WithEvents(o.events)}
	if o.launcher != nil {
		supOpts = append(supOpts, supervisor.WithLauncher(o.launcher))
	}
	if o.readiness != nil {
		supOpts = append(supOpts, supervisor.WithReadiness(o.readiness))
	}
	monOpts := []health.Option{health.WithEvents(o.events)}
	execOpts := []executor.Option{executor.WithEvents(o.events)}
	if o.metrics != nil {
		supOpts = append(supOpts, supervisor.WithRestartObserver(o.metrics))
		monOpts = append(monOpts, health.WithObserver(o.metrics))
		execOpts = append(execOpts, executor.WithObserver(o.metrics))
	}

	orch := &Orchestrator{
		store:      store,
		supervisor: supervisor.New(store, cfg.Supervisor, supOpts...),
		monitor:    health.NewMonitor(store, o.prober, cfg.Health, monOpts...),
		engine:     engine,
		balancer:   balancer,
		executor:   executor.New(store, engine, balancer, o.transport, cfg.Executor, execOpts...),
		transport:  o.transport,
		events:     o.events,
		metrics:    o.metrics,
	}
	orch.ctx, orch.cancelFunc = context.WithCancel(context.Background())

	if orch.metrics != nil {
		store.OnStatusChange(func(name string, _, to api.ServerStatus) {
			orch.metrics.SetStatus(name, to)
		})
	}
	orch.monitor.OnUnhealthy(orch.scheduleRecovery)
	orch.supervisor.OnCrash(orch.scheduleRecovery)
	return orch
}

// RegisterServer adds a worker to the catalog in OFFLINE state.
func (o *Orchestrator) RegisterServer(desc api.ServerDescriptor) error {
	if err := o.store.Register(desc); err != nil {
		return err
	}
	if o.metrics != nil {
		o.metrics.SetStatus(desc.Name, api.StatusOffline)
	}
	logging.Info("Orchestrator", "Registered server %s at %s with capabilities %v", desc.Name, desc.Endpoint, desc.Capabilities)
	o.events.Emit(api.EventServerRegistered, desc.Name, map[string]interface{}{
		"endpoint":     desc.Endpoint,
		"capabilities": desc.Capabilities,
		"protocol":     string(desc.Protocol),
	})
	return nil
}

// StartFleet starts every auto-start server concurrently and begins health
// monitoring. Individual failures are reported per server.
func (o *Orchestrator) StartFleet(ctx context.Context) api.FleetResult {
	o.mu.Lock()
	if o.shuttingDown || o.ctx.Err() != nil {
		o.ctx, o.cancelFunc = context.WithCancel(context.Background())
		o.shuttingDown = false
	}
	o.mu.Unlock()

	var names []string
	for _, desc := range o.store.List(registry.Filter{}) {
		if desc.AutoStart {
			names = append(names, desc.Name)
		}
	}

	logging.Info("Orchestrator", "Starting fleet of %d servers", len(names))
	result := o.supervisor.StartFleet(ctx, names)

	if !o.monitor.Running() {
		if err := o.monitor.Start(o.ctx); err != nil {
			logging.Warn("Orchestrator", "Health monitor: %v", err)
		}
	}

	o.events.Emit(api.EventFleetStarted, "", map[string]interface{}{
		"succeeded":  result.Succeeded,
		"failed":     result.Failed,
		"durationMs": result.Duration.Milliseconds(),
	})
	return result
}

// StartServer starts one server.
func (o *Orchestrator) StartServer(ctx context.Context, name string) error {
	return o.supervisor.Start(ctx, name)
}

// StopServer stops one server. It stays OFFLINE until started again.
func (o *Orchestrator) StopServer(ctx context.Context, name string) error {
	return o.supervisor.Stop(ctx, name)
}

// RestartServer stops and starts a server and clears any restart pin.
func (o *Orchestrator) RestartServer(ctx context.Context, name string) error {
	if err := o.supervisor.Restart(ctx, name); err != nil {
		return fmt.Errorf("failed to restart server %s: %w", name, err)
	}
	logging.Info("Orchestrator", "Restarted server %s", name)
	return nil
}

// SetMaintenance moves an ONLINE server into MAINTENANCE (no routing, no probing) or
// back to ONLINE.
func (o *Orchestrator) SetMaintenance(name string, enabled bool) error {
	target := api.StatusOnline
	if enabled {
		target = api.StatusMaintenance
	}
	if err := o.store.UpdateStatus(name, target); err != nil {
		return err
	}
	logging.Info("Orchestrator", "Server %s maintenance=%t", name, enabled)
	o.events.Emit(api.EventServerMaintenance, name, map[string]interface{}{"enabled": enabled})
	return nil
}

// RouteRequest routes one request. It always returns a structured result.
func (o *Orchestrator) RouteRequest(ctx context.Context, req api.Request) api.ExecutionResult {
	return o.executor.Route(ctx, req)
}

// GetEcosystemStatus returns a point-in-time view of the fleet.
func (o *Orchestrator) GetEcosystemStatus() api.EcosystemStatus {
	servers := o.store.Snapshot()
	status := api.EcosystemStatus{
		Servers:        servers,
		Total:          len(servers),
		ByStatus:       make(map[api.ServerStatus]int, len(api.AllStatuses)),
		MonitorRunning: o.monitor.Running(),
		Routing:        o.executor.Stats(),
		GeneratedAt:    time.Now(),
	}
	for _, s := range api.AllStatuses {
		status.ByStatus[s] = 0
	}
	for _, d := range servers {
		status.ByStatus[d.Status]++
	}
	if status.Total > 0 {
		status.HealthRatio = float64(status.ByStatus[api.StatusOnline]) / float64(status.Total)
	}
	return status
}

// ShutdownFleet stops health monitoring and pending restarts first, then stops every
// server concurrently.
func (o *Orchestrator) ShutdownFleet(ctx context.Context) api.FleetResult {
	o.mu.Lock()
	o.shuttingDown = true
	cancel := o.cancelFunc
	o.mu.Unlock()

	o.monitor.Stop()
	cancel()
	o.recoveries.Wait()

	logging.Info("Orchestrator", "Shutting down fleet of %d servers", o.store.Len())
	result := o.supervisor.StopFleet(ctx, o.store.Names())

	o.events.Emit(api.EventFleetShutdown, "", map[string]interface{}{
		"stopped":    result.Succeeded,
		"failed":     result.Failed,
		"durationMs": result.Duration.Milliseconds(),
	})
	return result
}

// Close releases transport connections. Call after ShutdownFleet.
func (o *Orchestrator) Close() error {
	if c, ok := o.transport.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// CheckHealth runs one probe round immediately.
func (o *Orchestrator) CheckHealth(ctx context.Context) []health.ProbeReport {
	return o.monitor.CheckOnce(ctx)
}

// Registry returns the server catalog.
func (o *Orchestrator) Registry() *registry.Store {
	return o.store
}

// Events returns the event log.
func (o *Orchestrator) Events() *events.Log {
	return o.events
}

// scheduleRecovery runs the restart policy for a failed server in the background.
func (o *Orchestrator) scheduleRecovery(name string) {
	o.mu.Lock()
	if o.shuttingDown {
		o.mu.Unlock()
		return
	}
	ctx := o.ctx
	o.recoveries.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.recoveries.Done()
		if err := o.supervisor.Recover(ctx, name); err != nil && !errors.Is(err, context.Canceled) {
			logging.Error("Orchestrator", err, "Recovery of server %s failed", name)
		}
	}()
}
