package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"switchyard/internal/api"
	"switchyard/internal/config"
	"switchyard/internal/events"
	"switchyard/pkg/logging"

	"github.com/coreos/go-systemd/v22/daemon"
)

// runServe runs the orchestrator until interrupted.
//
// Behavior:
//   - Starts every auto-start server and the health monitor
//   - Serves /metrics, /healthz, /status, the event stream and the server control
//     endpoints when metrics.listenAddress is set
//   - Registers servers added to the servers/ directory while running
//   - Writes periodic metrics snapshots when configured
//   - Notifies systemd (READY=1 / STOPPING=1) when run as a notify service
//   - Shuts the fleet down gracefully on SIGINT or SIGTERM
func runServe(ctx context.Context, cfg *Config, s *Services) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var httpServer *http.Server
	if addr := cfg.SwitchyardConfig.Metrics.ListenAddress; addr != "" {
		srv, bound, err := startHTTPServer(ctx, addr, s)
		if err != nil {
			return errors.Join(fmt.Errorf("failed to start metrics server: %w", err), s.Close())
		}
		httpServer = srv
		logging.Info("Serve", "Metrics available at http://%s/metrics", bound)
	}

	result := s.Orchestrator.StartFleet(ctx)
	logFleetResult("start", result)

	changes := make(chan config.ServerChange, 16)
	if err := s.Watcher.Start(ctx, changes); err != nil {
		logging.Warn("Serve", "Not watching %s for new servers: %v", s.Watcher.Dir(), err)
	}

	stopBackground := startBackground(ctx, s, changes)

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logging.Warn("Serve", "Failed to notify systemd: %v", err)
	} else if sent {
		logging.Debug("Serve", "Notified systemd that switchyard is ready")
	}
	logging.Info("Serve", "Fleet running. Press Ctrl+C to stop all servers and exit.")

	<-ctx.Done()

	logging.Info("Serve", "Shutting down fleet")
	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		logging.Debug("Serve", "Failed to notify systemd about stopping: %v", err)
	}

	s.Watcher.Stop()
	stopBackground()

	// Control requests must not restart servers while the fleet goes down.
	var errs []error
	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server shutdown: %w", err))
		}
		cancel()
	}

	shutdown := s.Orchestrator.ShutdownFleet(context.Background())
	logFleetResult("stop", shutdown)

	errs = append(errs, s.Close())
	return errors.Join(errs...)
}

// startBackground runs the metrics snapshot writer and the servers/ change handler.
// The returned function stops both and waits for them to return, so neither can
// touch the fleet once shutdown begins.
func startBackground(ctx context.Context, s *Services, changes <-chan config.ServerChange) func() {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.Snapshots.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		watchServerChanges(ctx, s, changes)
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}

// routeOnce brings the fleet up for a single request.
func routeOnce(ctx context.Context, s *Services, req api.Request) api.ExecutionResult {
	start := s.Orchestrator.StartFleet(ctx)
	logFleetResult("start", start)

	result := s.Orchestrator.RouteRequest(ctx, req)

	logFleetResult("stop", s.Orchestrator.ShutdownFleet(context.Background()))
	if err := s.Close(); err != nil {
		logging.Warn("Route", "Cleanup failed: %v", err)
	}
	return result
}

func startHTTPServer(ctx context.Context, addr string, s *Services) (*http.Server, net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, err
	}
	srv := &http.Server{
		Handler:           newHTTPHandler(ctx, s),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Serve", err, "Metrics server stopped")
		}
	}()
	return srv, ln.Addr(), nil
}

// newHTTPHandler builds the serve mode API. Event streams end when ctx is done.
func newHTTPHandler(ctx context.Context, s *Services) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.Metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, s.Orchestrator.GetEcosystemStatus())
	})
	mux.HandleFunc("GET /events/stream", func(w http.ResponseWriter, r *http.Request) {
		streamEvents(ctx, w, r, s.Events)
	})
	mux.HandleFunc("POST /servers/{name}/restart", func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		if err := s.Orchestrator.RestartServer(r.Context(), name); err != nil {
			writeError(w, err)
			return
		}
		writeServer(w, s, name)
	})
	mux.HandleFunc("POST /servers/{name}/maintenance", func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		enabled := true
		if v := r.URL.Query().Get("enabled"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("invalid enabled value %q", v)})
				return
			}
			enabled = b
		}
		if err := s.Orchestrator.SetMaintenance(name, enabled); err != nil {
			writeError(w, err)
			return
		}
		writeServer(w, s, name)
	})
	mux.HandleFunc("POST /health/check", func(w http.ResponseWriter, r *http.Request) {
		reports := s.Orchestrator.CheckHealth(r.Context())
		out := make([]HealthReport, 0, len(reports))
		for _, rep := range reports {
			out = append(out, HealthReport{
				Server:  rep.Server,
				Healthy: rep.Result.Healthy,
				Status:  rep.Outcome.Status,
				Streak:  rep.Outcome.Streak,
				Error:   rep.Result.Error,
			})
		}
		writeJSON(w, http.StatusOK, out)
	})
	return mux
}

// streamEvents writes every new event matching the server and type query parameters
// as one JSON object per line until the client goes away or ctx is done.
func streamEvents(ctx context.Context, w http.ResponseWriter, r *http.Request, log *events.Log) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "streaming is not supported"})
		return
	}
	q := r.URL.Query()
	filter := events.Filter{ServerName: q.Get("server")}
	for _, t := range q["type"] {
		filter.Types = append(filter.Types, api.EventType(t))
	}

	ch, cancel := log.Subscribe(eventStreamBuffer)
	defer cancel()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	enc := json.NewEncoder(w)
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if !filter.Matches(ev) {
				continue
			}
			if err := enc.Encode(ev); err != nil {
				logging.Debug("Serve", "Event stream client went away: %v", err)
				return
			}
			flusher.Flush()
		}
	}
}

const eventStreamBuffer = 256

// HealthReport is one entry of the POST /health/check response.
type HealthReport struct {
	Server  string           `json:"server"`
	Healthy bool             `json:"healthy"`
	Status  api.ServerStatus `json:"status,omitempty"`
	Streak  int              `json:"streak"`
	Error   string           `json:"error,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("Serve", "Failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case api.IsNotFound(err):
		code = http.StatusNotFound
	case api.IsInvalidTransition(err):
		code = http.StatusConflict
	}
	writeJSON(w, code, errorBody{Error: err.Error()})
}

func writeServer(w http.ResponseWriter, s *Services, name string) {
	desc, err := s.Orchestrator.Registry().Get(name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, desc)
}

func watchServerChanges(ctx context.Context, s *Services, changes <-chan config.ServerChange) {
	for {
		select {
		case <-ctx.Done():
			return
		case change := <-changes:
			applyServerChange(ctx, s, change)
		}
	}
}

// applyServerChange registers definitions that appear in servers/ while running.
// Edits to registered servers and removals take effect on the next start of switchyard;
// a removed server is stopped so it no longer receives requests.
func applyServerChange(ctx context.Context, s *Services, change config.ServerChange) {
	orch := s.Orchestrator

	switch {
	case change.Err != nil:
		logging.Warn("Serve", "Ignoring unreadable server definition %s: %v", change.Path, change.Err)

	case change.Removed:
		if !orch.Registry().Has(change.Name) {
			return
		}
		logging.Info("Serve", "Definition of %s was removed, stopping it", change.Name)
		if err := orch.StopServer(ctx, change.Name); err != nil {
			logging.Error("Serve", err, "Failed to stop removed server %s", change.Name)
		}

	case orch.Registry().Has(change.Name):
		logging.Info("Serve", "Server %s is already registered; changes to %s apply after a restart of switchyard", change.Name, change.Path)

	default:
		if errs := change.Definition.Validate(); len(errs) > 0 {
			logging.Warn("Serve", "Ignoring invalid server definition %s: %v", change.Path, errors.Join(errs...))
			return
		}
		if err := orch.RegisterServer(change.Definition.ToDescriptor(s.ConfigDir)); err != nil {
			logging.Error("Serve", err, "Failed to register server %s", change.Name)
			return
		}
		logging.Info("Serve", "Registered new server %s from %s", change.Name, change.Path)
		if !change.Definition.IsAutoStart() {
			return
		}
		if err := orch.StartServer(ctx, change.Name); err != nil {
			logging.Error("Serve", err, "Failed to start new server %s", change.Name)
		}
	}
}

func logFleetResult(action string, result api.FleetResult) {
	for _, r := range result.Results {
		if r.Success {
			logging.Info("Serve", "%s %s: %s (%s)", action, r.Name, r.Status, r.Duration.Round(time.Millisecond))
			continue
		}
		logging.Error("Serve", r.Err, "%s %s failed", action, r.Name)
	}
	logging.Info("Serve", "Fleet %s finished in %s: %d succeeded, %d failed",
		action, result.Duration.Round(time.Millisecond), len(result.Succeeded), len(result.Failed))
}
