package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"switchyard/internal/api"
	"switchyard/internal/registry"
	"switchyard/pkg/logging"
)

// EventEmitter receives health events. *events.Log implements it.
type EventEmitter interface {
	Emit(eventType api.EventType, serverName string, payload map[string]interface{}) api.OrchestrationEvent
}

// ProbeObserver receives every probe result. *metrics.Collector implements it.
type ProbeObserver interface {
	ObserveProbe(server string, result api.HealthCheckResult)
}

// Config controls the monitor loop.
type Config struct {
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold int
	// MaxParallel bounds concurrent probes within one round; 0 means unbounded.
	MaxParallel int
}

// DefaultConfig returns the defaults used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Interval:         10 * time.Second,
		Timeout:          2 * time.Second,
		FailureThreshold: 3,
	}
}

// ProbeReport pairs a probe result with what it changed in the store.
type ProbeReport struct {
	Server  string
	Result  api.HealthCheckResult
	Outcome registry.ProbeOutcome
}

// Monitor periodically probes ONLINE and ERROR servers. It only records state and
// emits server_unhealthy; remediation is left to whoever listens.
type Monitor struct {
	store    *registry.Store
	prober   Prober
	cfg      Config
	events   EventEmitter
	observer ProbeObserver

	mu          sync.Mutex
	onUnhealthy []func(name string)
	cancel      context.CancelFunc
	done        chan struct{}
}

// Option customizes a Monitor.
type Option func(*Monitor)

// WithEvents sets the event sink.
func WithEvents(e EventEmitter) Option {
	return func(m *Monitor) { m.events = e }
}

// WithObserver sets the probe observer.
func WithObserver(o ProbeObserver) Option {
	return func(m *Monitor) { m.observer = o }
}

// NewMonitor creates a stopped monitor.
func NewMonitor(store *registry.Store, prober Prober, cfg Config, opts ...Option) *Monitor {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if prober == nil {
		prober = TCPProber{Timeout: cfg.Timeout}
	}
	m := &Monitor{store: store, prober: prober, cfg: cfg}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnUnhealthy registers a callback invoked (in the monitor goroutine) when a server
// crosses the failure threshold.
func (m *Monitor) OnUnhealthy(fn func(name string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUnhealthy = append(m.onUnhealthy, fn)
}

// Start launches the probe loop.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return fmt.Errorf("health monitor already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.loop(loopCtx, m.done)

	logging.Info("HealthMonitor", "Started (interval=%s, timeout=%s, threshold=%d)", m.cfg.Interval, m.cfg.Timeout, m.cfg.FailureThreshold)
	return nil
}

// Stop cancels the loop and waits for the in-flight round to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	logging.Info("HealthMonitor", "Stopped")
}

// Running reports whether the loop is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}

func (m *Monitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckOnce(ctx)
		}
	}
}

// CheckOnce runs one probe round over every ONLINE and ERROR server and applies
// the results. Probes run concurrently, each bounded by the configured timeout.
func (m *Monitor) CheckOnce(ctx context.Context) []ProbeReport {
	targets := m.store.List(registry.Filter{Statuses: []api.ServerStatus{api.StatusOnline, api.StatusError}})
	if len(targets) == 0 {
		return nil
	}

	reports := make([]ProbeReport, len(targets))
	var g errgroup.Group
	if m.cfg.MaxParallel > 0 {
		g.SetLimit(m.cfg.MaxParallel)
	}
	for i, desc := range targets {
		i, desc := i, desc
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
			defer cancel()
			result := m.prober.Probe(probeCtx, desc)
			if result.Timestamp.IsZero() {
				result.Timestamp = time.Now()
			}
			reports[i] = m.apply(desc.Name, result)
			return nil
		})
	}
	_ = g.Wait()
	return reports
}

func (m *Monitor) apply(name string, result api.HealthCheckResult) ProbeReport {
	report := ProbeReport{Server: name, Result: result}

	outcome, err := m.store.RecordProbe(name, result, m.cfg.FailureThreshold)
	if err != nil {
		logging.Warn("HealthMonitor", "Failed to record probe for %s: %v", name, err)
		return report
	}
	report.Outcome = outcome
	if outcome.Skipped {
		return report
	}
	if m.observer != nil {
		m.observer.ObserveProbe(name, result)
	}

	switch {
	case outcome.BecameUnhealthy:
		logging.Warn("HealthMonitor", "Server %s unhealthy after %d consecutive failed probes: %s", name, outcome.Streak, result.Error)
		m.emit(api.EventServerUnhealthy, name, map[string]interface{}{
			"streak": outcome.Streak,
			"error":  result.Error,
		})
		m.mu.Lock()
		callbacks := append([]func(string){}, m.onUnhealthy...)
		m.mu.Unlock()
		for _, cb := range callbacks {
			cb(name)
		}
	case !result.Healthy:
		logging.Debug("HealthMonitor", "Probe failed for %s (streak %d): %s", name, outcome.Streak, result.Error)
	case outcome.Recovered:
		logging.Info("HealthMonitor", "Server %s answered its health probe again", name)
		m.emit(api.EventServerRecovered, name, nil)
	}
	return report
}

func (m *Monitor) emit(t api.EventType, name string, payload map[string]interface{}) {
	if m.events != nil {
		m.events.Emit(t, name, payload)
	}
}
