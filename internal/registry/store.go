package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"switchyard/internal/api"
	"switchyard/pkg/logging"
)

// DefaultSmoothing is the EWMA weight given to a new metric sample.
const DefaultSmoothing = 0.3

// StatusChangeCallback is invoked after a descriptor changed status.
// It is always called outside of the store locks.
type StatusChangeCallback func(name string, from, to api.ServerStatus)

// Filter narrows the result of List. Zero values match everything.
type Filter struct {
	Statuses   []api.ServerStatus
	Capability string
}

func (f Filter) matches(d *api.ServerDescriptor) bool {
	if f.Capability != "" && !d.HasCapability(f.Capability) {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if d.Status == s {
			return true
		}
	}
	return false
}

type entry struct {
	mu   sync.Mutex
	desc api.ServerDescriptor
}

// Store is the catalog of worker descriptors.
//
// Writers take the store read lock plus the per-entry mutex, so updates to different
// servers proceed in parallel while updates to the same server are serialized.
// Snapshot takes the store write lock, which excludes every writer and yields a
// consistent copy of the whole fleet.
type Store struct {
	mu        sync.RWMutex
	entries   map[string]*entry
	order     []string
	smoothing float64

	cbMu      sync.RWMutex
	callbacks []StatusChangeCallback
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		entries:   make(map[string]*entry),
		smoothing: DefaultSmoothing,
	}
}

// OnStatusChange registers a callback for status transitions.
func (s *Store) OnStatusChange(cb StatusChangeCallback) {
	if cb == nil {
		return
	}
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.callbacks = append(s.callbacks, cb)
}

func (s *Store) notify(name string, from, to api.ServerStatus) {
	if from == to {
		return
	}
	s.cbMu.RLock()
	callbacks := append([]StatusChangeCallback(nil), s.callbacks...)
	s.cbMu.RUnlock()
	for _, cb := range callbacks {
		cb(name, from, to)
	}
}

// Register adds a descriptor. New descriptors always start OFFLINE with a clean
// error history, whatever state the caller passed in.
func (s *Store) Register(desc api.ServerDescriptor) error {
	if desc.Name == "" {
		return fmt.Errorf("server descriptor has empty name")
	}

	d := desc.Clone()
	d.Status = api.StatusOffline
	d.ErrorCount = 0
	d.TotalErrors = 0
	d.PID = 0
	d.StartupTime = nil
	d.LastHealthCheck = nil
	d.RestartAttempts = 0
	d.RestartPinned = false
	d.LastError = ""
	if d.Protocol == "" {
		d.Protocol = api.ProtocolJSON
	}
	if d.PerformanceMetrics == nil {
		d.PerformanceMetrics = make(map[string]float64)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[d.Name]; exists {
		return api.NewDuplicateServerNameError(d.Name)
	}
	s.entries[d.Name] = &entry{desc: d}
	s.order = append(s.order, d.Name)

	logging.Debug("Registry", "Registered server %s (%s, capabilities=%v)", d.Name, d.Endpoint, d.Capabilities)
	return nil
}

// Get returns a copy of the named descriptor.
func (s *Store) Get(name string) (api.ServerDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[name]
	if !ok {
		return api.ServerDescriptor{}, api.NewServerNotFoundError(name)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.desc.Clone(), nil
}

// Has reports whether a server with that name is registered.
func (s *Store) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[name]
	return ok
}

// Len returns the number of registered servers.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Names returns server names in registration order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// List returns copies of the descriptors matching filter, in registration order.
func (s *Store) List(filter Filter) []api.ServerDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]api.ServerDescriptor, 0, len(s.order))
	for _, name := range s.order {
		e := s.entries[name]
		e.mu.Lock()
		if filter.matches(&e.desc) {
			out = append(out, e.desc.Clone())
		}
		e.mu.Unlock()
	}
	return out
}

// Snapshot returns a consistent copy of every descriptor, sorted by name.
func (s *Store) Snapshot() []api.ServerDescriptor {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]api.ServerDescriptor, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.desc.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// update runs fn on the named entry under its mutex and fires status callbacks
// afterwards if the status changed.
func (s *Store) update(name string, fn func(d *api.ServerDescriptor) error) error {
	s.mu.RLock()
	e, ok := s.entries[name]
	if !ok {
		s.mu.RUnlock()
		return api.NewServerNotFoundError(name)
	}

	e.mu.Lock()
	from := e.desc.Status
	err := fn(&e.desc)
	to := e.desc.Status
	e.mu.Unlock()
	s.mu.RUnlock()

	if err != nil {
		return err
	}
	if from != to {
		logging.Debug("Registry", "Server %s: %s -> %s", name, from, to)
		s.notify(name, from, to)
	}
	return nil
}

func transition(d *api.ServerDescriptor, to api.ServerStatus) error {
	if d.Status == to {
		return nil
	}
	if !d.Status.CanTransitionTo(to) {
		return api.NewInvalidTransitionError(d.Name, d.Status, to)
	}
	d.Status = to
	if to == api.StatusOffline {
		d.PID = 0
		d.StartupTime = nil
	}
	return nil
}

// UpdateStatus moves a server to a new status. Transitions outside the lifecycle
// state machine are rejected with an InvalidTransitionError; setting the current
// status again is a no-op.
func (s *Store) UpdateStatus(name string, status api.ServerStatus) error {
	return s.update(name, func(d *api.ServerDescriptor) error {
		return transition(d, status)
	})
}

// MarkStarting moves a server to STARTING, clearing the previous error.
func (s *Store) MarkStarting(name string) error {
	return s.update(name, func(d *api.ServerDescriptor) error {
		if err := transition(d, api.StatusStarting); err != nil {
			return err
		}
		d.LastError = ""
		return nil
	})
}

// MarkOnline records a successful startup.
func (s *Store) MarkOnline(name string, startedAt time.Time) error {
	return s.update(name, func(d *api.ServerDescriptor) error {
		if err := transition(d, api.StatusOnline); err != nil {
			return err
		}
		t := startedAt
		d.StartupTime = &t
		d.ErrorCount = 0
		d.LastError = ""
		return nil
	})
}

// MarkError moves a server to ERROR and records the reason.
// changed is false when the server already was in ERROR.
func (s *Store) MarkError(name, reason string) (changed bool, err error) {
	err = s.update(name, func(d *api.ServerDescriptor) error {
		changed = d.Status != api.StatusError
		if err := transition(d, api.StatusError); err != nil {
			changed = false
			return err
		}
		if reason != "" {
			d.LastError = reason
		}
		return nil
	})
	return changed, err
}

// MarkOffline moves a server to OFFLINE and clears its process handle. It is legal
// from every state.
func (s *Store) MarkOffline(name string) error {
	return s.update(name, func(d *api.ServerDescriptor) error {
		return transition(d, api.StatusOffline)
	})
}

// SetProcess records the PID of the process backing the server (0 clears it).
func (s *Store) SetProcess(name string, pid int) error {
	return s.update(name, func(d *api.ServerDescriptor) error {
		d.PID = pid
		return nil
	})
}

// RecordMetric folds a sample into the rolling value for key.
func (s *Store) RecordMetric(name, key string, value float64) error {
	return s.update(name, func(d *api.ServerDescriptor) error {
		s.fold(d, key, value)
		return nil
	})
}

func (s *Store) fold(d *api.ServerDescriptor, key string, value float64) {
	if d.PerformanceMetrics == nil {
		d.PerformanceMetrics = make(map[string]float64)
	}
	prev, ok := d.PerformanceMetrics[key]
	if !ok {
		d.PerformanceMetrics[key] = value
		return
	}
	d.PerformanceMetrics[key] = s.smoothing*value + (1-s.smoothing)*prev
}

// ProbeOutcome reports what a health probe changed.
type ProbeOutcome struct {
	// Streak is the consecutive failure count after the probe.
	Streak int
	// BecameUnhealthy is true only for the probe that moved the server ONLINE -> ERROR.
	BecameUnhealthy bool
	// Recovered is true when a success ended a non-zero failure streak.
	Recovered bool
	// Skipped is true when the server left ONLINE/ERROR before the result arrived.
	Skipped bool
	Status  api.ServerStatus
}

// RecordProbe applies a health probe result to an ONLINE or ERROR server; results for
// servers in any other status are ignored. A success resets the failure streak and
// updates response_time_ms but never changes status. A failure extends the streak,
// and an ONLINE server whose streak reaches threshold moves to ERROR once per streak.
func (s *Store) RecordProbe(name string, result api.HealthCheckResult, threshold int) (ProbeOutcome, error) {
	var outcome ProbeOutcome
	err := s.update(name, func(d *api.ServerDescriptor) error {
		if d.Status != api.StatusOnline && d.Status != api.StatusError {
			outcome.Skipped = true
			outcome.Status = d.Status
			return nil
		}
		ts := result.Timestamp
		d.LastHealthCheck = &ts

		if result.Healthy {
			outcome.Recovered = d.ErrorCount > 0
			d.ErrorCount = 0
			if result.ResponseTime != nil {
				s.fold(d, api.MetricResponseTimeMs, float64(*result.ResponseTime)/float64(time.Millisecond))
			}
			outcome.Status = d.Status
			return nil
		}

		d.ErrorCount++
		d.TotalErrors++
		if result.Error != "" {
			d.LastError = result.Error
		}
		if d.Status == api.StatusOnline && threshold > 0 && d.ErrorCount >= threshold {
			d.Status = api.StatusError
			outcome.BecameUnhealthy = true
		}
		outcome.Streak = d.ErrorCount
		outcome.Status = d.Status
		return nil
	})
	return outcome, err
}

// RecordExecution feeds a delivery outcome back into the performance metrics used
// for scoring. Every outcome is folded into MetricErrorRate as 1 (failed) or 0.
func (s *Store) RecordExecution(name string, latency time.Duration, execErr error) error {
	return s.update(name, func(d *api.ServerDescriptor) error {
		if d.PerformanceMetrics == nil {
			d.PerformanceMetrics = make(map[string]float64)
		}
		d.PerformanceMetrics[api.MetricRequests]++
		if execErr != nil {
			d.PerformanceMetrics[api.MetricFailures]++
			d.TotalErrors++
			d.LastError = execErr.Error()
			s.fold(d, api.MetricErrorRate, 1)
			return nil
		}
		s.fold(d, api.MetricErrorRate, 0)
		s.fold(d, api.MetricLatencyMs, float64(latency)/float64(time.Millisecond))
		return nil
	})
}

// RecordRestart updates the restart bookkeeping. attempts is the number of automatic
// restart attempts made in the current cycle; pinned marks the server as given up on.
func (s *Store) RecordRestart(name string, attempts int, pinned bool) error {
	return s.update(name, func(d *api.ServerDescriptor) error {
		d.RestartAttempts = attempts
		d.RestartPinned = pinned
		return nil
	})
}
