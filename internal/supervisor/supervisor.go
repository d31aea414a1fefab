package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"switchyard/internal/api"
	"switchyard/internal/health"
	"switchyard/internal/registry"
	"switchyard/pkg/logging"
)

// EventEmitter receives lifecycle events. *events.Log implements it.
type EventEmitter interface {
	Emit(eventType api.EventType, serverName string, payload map[string]interface{}) api.OrchestrationEvent
}

// RestartObserver is told about every automatic restart attempt. *metrics.Collector
// implements it.
type RestartObserver interface {
	ObserveRestart(server string)
}

// ReadyFunc reports whether a freshly spawned worker accepts connections.
type ReadyFunc func(ctx context.Context, desc api.ServerDescriptor) error

// Config holds the supervision timings.
type Config struct {
	ReadinessAttempts int
	ReadinessDelay    time.Duration
	// ProbeTimeout bounds each readiness probe.
	ProbeTimeout time.Duration
	GracePeriod  time.Duration
	KillTimeout  time.Duration
	// MaxParallel bounds fleet-wide fan-out; 0 means unbounded.
	MaxParallel int
	Restart     RestartPolicy
}

// DefaultConfig returns the defaults used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		ReadinessAttempts: 30,
		ReadinessDelay:    500 * time.Millisecond,
		ProbeTimeout:      2 * time.Second,
		GracePeriod:       5 * time.Second,
		KillTimeout:       2 * time.Second,
		MaxParallel:       8,
		Restart:           DefaultRestartPolicy(),
	}
}

type handle struct {
	proc     Process
	stopping atomic.Bool
}

// Supervisor owns worker processes and drives their status through the lifecycle
// state machine.
type Supervisor struct {
	store    *registry.Store
	launcher Launcher
	ready    ReadyFunc
	cfg      Config
	events   EventEmitter
	observer RestartObserver
	sleep    func(ctx context.Context, d time.Duration) error

	mu         sync.Mutex
	procs      map[string]*handle
	locks      map[string]*sync.Mutex
	restarting map[string]bool
	onCrash    []func(name string)
}

// Option customizes a Supervisor.
type Option func(*Supervisor)

// WithLauncher replaces the exec launcher.
func WithLauncher(l Launcher) Option {
	return func(s *Supervisor) { s.launcher = l }
}

// WithReadiness replaces the TCP readiness probe.
func WithReadiness(fn ReadyFunc) Option {
	return func(s *Supervisor) { s.ready = fn }
}

// WithEvents sets the event sink.
func WithEvents(e EventEmitter) Option {
	return func(s *Supervisor) { s.events = e }
}

// WithRestartObserver sets the restart observer.
func WithRestartObserver(o RestartObserver) Option {
	return func(s *Supervisor) { s.observer = o }
}

// New creates a supervisor over store.
func New(store *registry.Store, cfg Config, opts ...Option) *Supervisor {
	def := DefaultConfig()
	if cfg.ReadinessAttempts <= 0 {
		cfg.ReadinessAttempts = def.ReadinessAttempts
	}
	if cfg.ReadinessDelay < 0 {
		cfg.ReadinessDelay = 0
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = def.ProbeTimeout
	}
	if cfg.GracePeriod < 0 {
		cfg.GracePeriod = 0
	}
	if cfg.KillTimeout <= 0 {
		cfg.KillTimeout = def.KillTimeout
	}
	cfg.Restart = cfg.Restart.withDefaults()

	s := &Supervisor{
		store:      store,
		launcher:   ExecLauncher{ForwardOutput: true},
		cfg:        cfg,
		sleep:      sleepContext,
		procs:      make(map[string]*handle),
		locks:      make(map[string]*sync.Mutex),
		restarting: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ready == nil {
		s.ready = health.Ready(health.TCPProber{Timeout: cfg.ProbeTimeout})
	}
	return s
}

// Config returns the effective configuration.
func (s *Supervisor) Config() Config {
	return s.cfg
}

func (s *Supervisor) serverLock(name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[name]
	if !ok {
		l = &sync.Mutex{}
		s.locks[name] = l
	}
	return l
}

func (s *Supervisor) handle(name string) *handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.procs[name]
}

func (s *Supervisor) forget(name string, h *handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.procs[name] == h {
		delete(s.procs, name)
	}
}

// OnCrash registers a callback invoked when a running server's process exits on its
// own.
func (s *Supervisor) OnCrash(fn func(name string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCrash = append(s.onCrash, fn)
}

// Running reports whether a process is currently associated with name.
func (s *Supervisor) Running(name string) bool {
	return s.handle(name) != nil
}

// Start spawns the worker and waits for it to accept connections. Starting a server
// that is already ONLINE or in MAINTENANCE is a no-op.
func (s *Supervisor) Start(ctx context.Context, name string) error {
	l := s.serverLock(name)
	l.Lock()
	defer l.Unlock()
	return s.startLocked(ctx, name, nil)
}

func (s *Supervisor) startLocked(ctx context.Context, name string, payload map[string]interface{}) error {
	desc, err := s.store.Get(name)
	if err != nil {
		return err
	}
	switch desc.Status {
	case api.StatusOnline, api.StatusMaintenance:
		logging.Debug("Supervisor", "Server %s already running (%s)", name, desc.Status)
		return nil
	case api.StatusStarting:
		return fmt.Errorf("server %s is already starting", name)
	}

	// An ERROR server may still own a hung process; never run two at once.
	if h := s.handle(name); h != nil {
		s.terminate(name, h)
	}

	if err := s.store.MarkStarting(name); err != nil {
		return err
	}
	s.emit(api.EventServerStarting, name, payload)
	logging.Info("Supervisor", "Starting server %s (%s)", name, desc.ExecutablePath)

	started := time.Now()
	proc, err := s.launcher.Launch(ctx, desc)
	if err != nil {
		reason := "spawn failed"
		if errors.Is(err, os.ErrNotExist) {
			reason = fmt.Sprintf("executable %s not found", desc.ExecutablePath)
		}
		startErr := api.NewStartupError(name, reason, err)
		s.fail(name, startErr)
		return startErr
	}

	h := &handle{proc: proc}
	s.mu.Lock()
	s.procs[name] = h
	s.mu.Unlock()
	if err := s.store.SetProcess(name, proc.Pid()); err != nil {
		logging.Warn("Supervisor", "Failed to record pid for %s: %v", name, err)
	}
	go s.watch(name, h)

	attempts := s.cfg.ReadinessAttempts
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		select {
		case <-proc.Done():
			s.forget(name, h)
			startErr := api.NewStartupError(name, "process exited before becoming ready", proc.ExitErr())
			s.fail(name, startErr)
			return startErr
		default:
		}

		probeCtx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
		lastErr = s.ready(probeCtx, desc)
		cancel()
		if lastErr == nil {
			now := time.Now()
			if err := s.store.MarkOnline(name, now); err != nil {
				// Stopped underneath us.
				s.terminate(name, h)
				return fmt.Errorf("server %s left STARTING during startup: %w", name, err)
			}
			logging.Info("Supervisor", "Server %s is online (pid %d, ready after %s)", name, proc.Pid(), now.Sub(started).Round(time.Millisecond))
			s.emit(api.EventServerOnline, name, map[string]interface{}{
				"pid":       proc.Pid(),
				"startupMs": now.Sub(started).Milliseconds(),
			})
			return nil
		}
		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			s.terminate(name, h)
			startErr := api.NewStartupError(name, "startup cancelled", ctx.Err())
			s.fail(name, startErr)
			return startErr
		case <-proc.Done():
		case <-time.After(s.cfg.ReadinessDelay):
		}
	}

	s.terminate(name, h)
	timeoutErr := api.NewStartupTimeoutError(name, attempts, time.Since(started).Round(time.Millisecond))
	if lastErr != nil {
		logging.Debug("Supervisor", "Last readiness error for %s: %v", name, lastErr)
	}
	s.fail(name, timeoutErr)
	return timeoutErr
}

func (s *Supervisor) fail(name string, err error) {
	logging.Error("Supervisor", err, "Server %s failed to start", name)
	if _, markErr := s.store.MarkError(name, err.Error()); markErr != nil {
		logging.Warn("Supervisor", "Failed to mark %s as ERROR: %v", name, markErr)
	}
	_ = s.store.SetProcess(name, 0)
	s.emit(api.EventServerStartFailed, name, map[string]interface{}{"error": err.Error()})
}

// watch waits for the process to exit and reports crashes of running servers.
func (s *Supervisor) watch(name string, h *handle) {
	<-h.proc.Done()
	s.forget(name, h)
	if h.stopping.Load() {
		return
	}

	desc, err := s.store.Get(name)
	if err != nil {
		return
	}
	if desc.PID == h.proc.Pid() {
		_ = s.store.SetProcess(name, 0)
	}
	if desc.Status != api.StatusOnline && desc.Status != api.StatusMaintenance {
		// STARTING is handled by the readiness loop; ERROR/OFFLINE need no transition.
		return
	}

	reason := "process exited unexpectedly"
	if exitErr := h.proc.ExitErr(); exitErr != nil {
		reason = fmt.Sprintf("%s: %v", reason, exitErr)
	}
	changed, err := s.store.MarkError(name, reason)
	if err != nil || !changed {
		return
	}
	logging.Warn("Supervisor", "Server %s crashed: %s", name, reason)
	s.emit(api.EventServerCrashed, name, map[string]interface{}{"error": reason, "pid": h.proc.Pid()})

	s.mu.Lock()
	callbacks := append([]func(string){}, s.onCrash...)
	s.mu.Unlock()
	for _, cb := range callbacks {
		cb(name)
	}
}

// StopReport describes how a stop went.
type StopReport struct {
	// Forced is true when the process had to be killed after the grace period.
	Forced bool
	// Lingering is set when the process could not be confirmed dead after the kill.
	Lingering error
}

// Stop terminates the worker: SIGTERM, wait GracePeriod, kill, wait KillTimeout.
// The server always ends OFFLINE; a failed kill is logged and reported as an event
// but not returned. ctx is only consulted before the terminate signal is sent.
func (s *Supervisor) Stop(ctx context.Context, name string) error {
	_, err := s.StopWithReport(ctx, name)
	return err
}

// StopWithReport is Stop, also returning how the process ended.
func (s *Supervisor) StopWithReport(ctx context.Context, name string) (StopReport, error) {
	if err := ctx.Err(); err != nil {
		return StopReport{}, fmt.Errorf("stop %s cancelled: %w", name, err)
	}
	if !s.store.Has(name) {
		return StopReport{}, api.NewServerNotFoundError(name)
	}

	l := s.serverLock(name)
	l.Lock()
	defer l.Unlock()

	var report StopReport
	h := s.handle(name)
	if h != nil {
		logging.Info("Supervisor", "Stopping server %s (pid %d)", name, h.proc.Pid())
		report.Forced, report.Lingering = s.terminate(name, h)
	}

	desc, err := s.store.Get(name)
	if err != nil {
		return report, err
	}
	if desc.Status == api.StatusOffline && h == nil {
		return report, nil
	}
	if err := s.store.MarkOffline(name); err != nil {
		return report, err
	}
	s.emit(api.EventServerStopped, name, map[string]interface{}{"forced": report.Forced})
	return report, nil
}

// terminate runs the signal/grace/kill sequence. It cannot be cancelled.
func (s *Supervisor) terminate(name string, h *handle) (forced bool, lingering error) {
	h.stopping.Store(true)
	defer s.forget(name, h)

	select {
	case <-h.proc.Done():
		return false, nil
	default:
	}

	if err := h.proc.Signal(syscall.SIGTERM); err != nil {
		logging.Debug("Supervisor", "SIGTERM to %s failed: %v", name, err)
	}

	grace := time.NewTimer(s.cfg.GracePeriod)
	defer grace.Stop()
	select {
	case <-h.proc.Done():
		return false, nil
	case <-grace.C:
	}

	logging.Warn("Supervisor", "Server %s did not exit within %s, killing", name, s.cfg.GracePeriod)
	if err := h.proc.Kill(); err != nil {
		logging.Warn("Supervisor", "Kill of %s failed: %v", name, err)
	}

	kill := time.NewTimer(s.cfg.KillTimeout)
	defer kill.Stop()
	select {
	case <-h.proc.Done():
		return true, nil
	case <-kill.C:
	}

	lingering = api.NewShutdownTimeoutError(name, s.cfg.GracePeriod+s.cfg.KillTimeout)
	logging.Error("Supervisor", lingering, "Server %s (pid %d) could not be killed", name, h.proc.Pid())
	s.emit(api.EventServerKillFailed, name, map[string]interface{}{
		"pid":   h.proc.Pid(),
		"error": lingering.Error(),
	})
	return true, lingering
}

func (s *Supervisor) emit(t api.EventType, name string, payload map[string]interface{}) {
	if s.events != nil {
		s.events.Emit(t, name, payload)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
