package app

import (
	"errors"
	"fmt"

	"switchyard/internal/api"
	"switchyard/internal/config"
	"switchyard/internal/events"
	"switchyard/internal/executor"
	"switchyard/internal/metrics"
	"switchyard/internal/orchestrator"
	"switchyard/pkg/logging"
)

// Services holds every component the application runs.
//
// Initialization order matters: the event log and the metrics collector are created
// first because the orchestrator reports into both, then servers are registered, and
// only then are persisted metrics restored onto the registered servers.
type Services struct {
	// Orchestrator is the fleet facade.
	Orchestrator *orchestrator.Orchestrator

	// Metrics owns the Prometheus registry served on /metrics.
	Metrics *metrics.Collector

	// Events is the orchestration event log, persisted when configured.
	Events *events.Log

	// Snapshots periodically writes performance metrics. Its Run is a no-op when no
	// snapshot path is configured.
	Snapshots *metrics.SnapshotWriter

	// Watcher follows the servers/ directory for new definitions.
	Watcher *config.Watcher

	// ConfigDir is the directory relative paths are resolved against.
	ConfigDir string
}

// InitializeServices creates the components described by cfg.SwitchyardConfig and
// registers every configured server. Extra options are passed to the orchestrator
// after the defaults, so they can replace the launcher, prober or transport.
func InitializeServices(cfg *Config, opts ...orchestrator.Option) (*Services, error) {
	if cfg.SwitchyardConfig == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	sc := *cfg.SwitchyardConfig
	dir := cfg.ResolvedConfigPath()

	eventLogPath := config.ResolvePath(dir, sc.Persistence.EventLogPath)
	eventLog, err := events.OpenLog(eventLogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}
	if eventLogPath != "" {
		logging.Info("Services", "Persisting orchestration events to %s", eventLogPath)
	}
	for eventType, text := range sc.Persistence.EventMessages {
		if err := eventLog.Templates().SetTemplate(eventType, text); err != nil {
			return nil, errors.Join(fmt.Errorf("invalid persistence.eventMessages: %w", err), eventLog.Close())
		}
	}

	collector := metrics.NewCollector()

	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	base := []orchestrator.Option{
		orchestrator.WithEventLog(eventLog),
		orchestrator.WithMetrics(collector),
		orchestrator.WithTransport(executor.NewMux(map[api.Protocol]executor.Transport{
			api.ProtocolJSON: executor.NewJSONTransport(),
			api.ProtocolMCP:  executor.NewMCPTransport(version),
		})),
	}
	orch := orchestrator.New(OrchestratorConfig(sc), append(base, opts...)...)

	for _, desc := range Descriptors(sc, dir) {
		if err := orch.RegisterServer(desc); err != nil {
			closeErr := errors.Join(orch.Close(), eventLog.Close())
			return nil, errors.Join(fmt.Errorf("failed to register server %s: %w", desc.Name, err), closeErr)
		}
	}
	logging.Info("Services", "Registered %d servers", orch.Registry().Len())

	snapshotPath := config.ResolvePath(dir, sc.Persistence.MetricsSnapshotPath)
	if snapshotPath != "" {
		snap, err := metrics.LoadSnapshot(snapshotPath)
		if err != nil {
			logging.Warn("Services", "Ignoring unreadable metrics snapshot: %v", err)
		} else if n := seedMetrics(orch.Registry(), snap); n > 0 {
			logging.Info("Services", "Restored performance metrics for %d servers from %s", n, snapshotPath)
		}
	}

	return &Services{
		Orchestrator: orch,
		Metrics:      collector,
		Events:       eventLog,
		Snapshots:    metrics.NewSnapshotWriter(snapshotPath, sc.Persistence.SnapshotInterval, orch.Registry()),
		Watcher:      config.NewWatcher(dir, 0),
		ConfigDir:    dir,
	}, nil
}

// Close releases transport connections and closes the event log. The fleet must be
// shut down first.
func (s *Services) Close() error {
	return errors.Join(s.Orchestrator.Close(), s.Events.Close())
}
