package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"switchyard/pkg/logging"
)

// ServerChange describes a server definition file that was created, modified or removed.
type ServerChange struct {
	Name       string
	Path       string
	Removed    bool
	Definition ServerDefinition
	// Err is set when the file could not be read or parsed.
	Err error
}

// Watcher watches the servers/ directory and reports definition changes.
type Watcher struct {
	mu sync.Mutex

	dir              string
	debounceInterval time.Duration
	watcher          *fsnotify.Watcher
	pending          map[string]*time.Timer
	stopCh           chan struct{}
	running          bool
}

// NewWatcher creates a watcher for the servers/ directory below configPath.
func NewWatcher(configPath string, debounceInterval time.Duration) *Watcher {
	if debounceInterval == 0 {
		debounceInterval = 500 * time.Millisecond
	}
	return &Watcher{
		dir:              filepath.Join(configPath, ServersDirName),
		debounceInterval: debounceInterval,
		pending:          make(map[string]*time.Timer),
		stopCh:           make(chan struct{}),
	}
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string {
	return w.dir
}

// Start begins watching. The directory is created if it does not exist. Changes are
// delivered on changes without blocking; a full channel drops the change.
func (w *Watcher) Start(ctx context.Context, changes chan<- ServerChange) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		w.mu.Unlock()
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	if err := watcher.Add(w.dir); err != nil {
		watcher.Close()
		w.mu.Unlock()
		return err
	}

	w.watcher = watcher
	w.running = true
	w.stopCh = make(chan struct{})
	w.mu.Unlock()

	go w.processEvents(ctx, watcher, changes)

	logging.Info("ConfigWatcher", "Started watching %s for server definition changes", w.dir)
	return nil
}

func (w *Watcher) processEvents(ctx context.Context, watcher *fsnotify.Watcher, changes chan<- ServerChange) {
	for {
		select {
		case <-ctx.Done():
			w.cleanupPending()
			return

		case <-w.stopCh:
			w.cleanupPending()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			w.handleFsEvent(event, changes)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logging.Error("ConfigWatcher", err, "Filesystem watcher error")
		}
	}
}

func (w *Watcher) handleFsEvent(event fsnotify.Event, changes chan<- ServerChange) {
	if !isYAMLFile(event.Name) {
		return
	}
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) &&
		!event.Op.Has(fsnotify.Remove) && !event.Op.Has(fsnotify.Rename) {
		return
	}
	w.debounce(event.Name, changes)
}

// debounce coalesces bursts of events for one file. The file is inspected when the
// timer fires, so the final state on disk decides between update and removal.
func (w *Watcher) debounce(path string, changes chan<- ServerChange) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[path]; ok {
		timer.Stop()
	}

	w.pending[path] = time.AfterFunc(w.debounceInterval, func() {
		w.mu.Lock()
		_, ok := w.pending[path]
		delete(w.pending, path)
		w.mu.Unlock()
		if !ok {
			return
		}

		change := readChange(path)
		select {
		case changes <- change:
			logging.Debug("ConfigWatcher", "Emitted change for server %s (removed=%t)", change.Name, change.Removed)
		default:
			logging.Warn("ConfigWatcher", "Change channel full, dropping change for %s", path)
		}
	})
}

func readChange(path string) ServerChange {
	base := filepath.Base(path)
	change := ServerChange{
		Name: strings.TrimSuffix(base, filepath.Ext(base)),
		Path: path,
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		change.Removed = true
		return change
	}
	def, err := LoadServerDefinition(path)
	if err != nil {
		change.Err = err
		return change
	}
	change.Name = def.Name
	change.Definition = def
	return change
}

func (w *Watcher) cleanupPending() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, timer := range w.pending {
		timer.Stop()
	}
	w.pending = make(map[string]*time.Timer)
}

// Stop stops watching. Pending changes are discarded.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}

	w.running = false
	close(w.stopCh)

	var err error
	if w.watcher != nil {
		err = w.watcher.Close()
		if err != nil {
			logging.Error("ConfigWatcher", err, "Error closing filesystem watcher")
		}
		w.watcher = nil
	}

	logging.Info("ConfigWatcher", "Stopped watching %s", w.dir)
	return err
}
