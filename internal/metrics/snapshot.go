package metrics

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"switchyard/internal/api"
	"switchyard/pkg/logging"
)

// ServerSnapshot is the persisted view of one server's performance.
type ServerSnapshot struct {
	Name        string             `yaml:"name"`
	Status      api.ServerStatus   `yaml:"status"`
	ErrorCount  int                `yaml:"errorCount"`
	TotalErrors int                `yaml:"totalErrors"`
	Metrics     map[string]float64 `yaml:"metrics,omitempty"`
}

// Snapshot is the document written to the metrics snapshot file.
type Snapshot struct {
	GeneratedAt time.Time        `yaml:"generatedAt"`
	Servers     []ServerSnapshot `yaml:"servers"`
}

// BuildSnapshot converts descriptors into a Snapshot.
func BuildSnapshot(descs []api.ServerDescriptor, now time.Time) Snapshot {
	s := Snapshot{GeneratedAt: now, Servers: make([]ServerSnapshot, 0, len(descs))}
	for _, d := range descs {
		s.Servers = append(s.Servers, ServerSnapshot{
			Name:        d.Name,
			Status:      d.Status,
			ErrorCount:  d.ErrorCount,
			TotalErrors: d.TotalErrors,
			Metrics:     d.PerformanceMetrics,
		})
	}
	return s
}

// WriteSnapshot writes s to path atomically (temp file + rename).
func WriteSnapshot(path string, s Snapshot) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal metrics snapshot: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".metrics-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace snapshot %s: %w", path, err)
	}
	return nil
}

// LoadSnapshot reads a snapshot written by WriteSnapshot. A missing file yields an
// empty snapshot and no error.
func LoadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Snapshot{}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("read metrics snapshot %s: %w", path, err)
	}
	var s Snapshot
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("parse metrics snapshot %s: %w", path, err)
	}
	return s, nil
}

// SnapshotSource supplies the descriptors to persist.
type SnapshotSource interface {
	Snapshot() []api.ServerDescriptor
}

// SnapshotWriter periodically persists performance metrics.
type SnapshotWriter struct {
	path     string
	interval time.Duration
	source   SnapshotSource
	now      func() time.Time
}

// NewSnapshotWriter creates a writer; Run does nothing when path is empty.
func NewSnapshotWriter(path string, interval time.Duration, source SnapshotSource) *SnapshotWriter {
	if interval <= 0 {
		interval = time.Minute
	}
	return &SnapshotWriter{path: path, interval: interval, source: source, now: time.Now}
}

// WriteOnce persists the current state.
func (w *SnapshotWriter) WriteOnce() error {
	if w.path == "" {
		return nil
	}
	return WriteSnapshot(w.path, BuildSnapshot(w.source.Snapshot(), w.now()))
}

// Run writes a snapshot every interval until ctx is cancelled, then writes a final one.
func (w *SnapshotWriter) Run(ctx context.Context) {
	if w.path == "" {
		return
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := w.WriteOnce(); err != nil {
				logging.Warn("Metrics", "Final metrics snapshot failed: %v", err)
			}
			return
		case <-ticker.C:
			if err := w.WriteOnce(); err != nil {
				logging.Warn("Metrics", "Metrics snapshot failed: %v", err)
			}
		}
	}
}
