package events

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"switchyard/internal/api"
	"switchyard/pkg/logging"
)

// DefaultRetention is the number of events kept in memory. The persisted log, when
// configured, keeps everything.
const DefaultRetention = 10000

// Filter selects events from the in-memory log. Zero values match everything.
type Filter struct {
	Types      []api.EventType
	ServerName string
	Since      time.Time
	Limit      int
}

// Matches reports whether ev passes the filter. Limit is ignored.
func (f Filter) Matches(ev api.OrchestrationEvent) bool {
	return f.matches(&ev)
}

func (f Filter) matches(ev *api.OrchestrationEvent) bool {
	if f.ServerName != "" && ev.ServerName != f.ServerName {
		return false
	}
	if !f.Since.IsZero() && ev.Timestamp.Before(f.Since) {
		return false
	}
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if ev.Type == t {
			return true
		}
	}
	return false
}

// record is the on-disk JSON-lines format.
type record struct {
	api.OrchestrationEvent
	Message string `json:"message,omitempty"`
}

// Log is the append-only orchestration event log.
type Log struct {
	mu        sync.RWMutex
	events    []api.OrchestrationEvent
	retention int

	sinkMu sync.Mutex
	sink   io.Writer
	closer io.Closer

	subMu       sync.RWMutex
	subscribers map[int]chan api.OrchestrationEvent
	nextSubID   int

	templates *MessageTemplateEngine
	now       func() time.Time
}

// Option customizes a Log.
type Option func(*Log)

// WithSink writes every event as a JSON line to w.
func WithSink(w io.Writer) Option {
	return func(l *Log) { l.sink = w }
}

// WithRetention bounds the number of events kept in memory.
func WithRetention(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.retention = n
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// NewLog creates an in-memory event log.
func NewLog(opts ...Option) *Log {
	l := &Log{
		retention:   DefaultRetention,
		subscribers: make(map[int]chan api.OrchestrationEvent),
		templates:   NewMessageTemplateEngine(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// OpenLog creates a log that also appends to the JSON-lines file at path.
// An empty path yields a purely in-memory log.
func OpenLog(path string, opts ...Option) (*Log, error) {
	l := NewLog(opts...)
	if path == "" {
		return l, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create event log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event log %s: %w", path, err)
	}
	l.sink = f
	l.closer = f
	return l, nil
}

// trimBatch is how far the slice may grow past the retention before old events are
// dropped, so trimming copies once per batch instead of on every append.
func trimBatch(retention int) int {
	return max(1, retention/4)
}

// retained returns the newest retention events. Callers hold l.mu.
func (l *Log) retained() []api.OrchestrationEvent {
	if over := len(l.events) - l.retention; over > 0 {
		return l.events[over:]
	}
	return l.events
}

// Templates exposes the message renderer so callers can override messages.
func (l *Log) Templates() *MessageTemplateEngine {
	return l.templates
}

// Emit appends a new event and fans it out to subscribers and the sink.
func (l *Log) Emit(eventType api.EventType, serverName string, payload map[string]interface{}) api.OrchestrationEvent {
	ev := api.OrchestrationEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		ServerName: serverName,
		Payload:    payload,
		Timestamp:  l.now(),
	}
	l.Append(ev)
	return ev
}

// Append stores an already built event.
func (l *Log) Append(ev api.OrchestrationEvent) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = l.now()
	}

	l.mu.Lock()
	l.events = append(l.events, ev)
	if len(l.events) >= l.retention+trimBatch(l.retention) {
		l.events = append(make([]api.OrchestrationEvent, 0, l.retention+trimBatch(l.retention)), l.retained()...)
	}
	l.mu.Unlock()

	message := l.templates.Render(ev)
	logging.Debug("Events", "%s", message)

	l.persist(ev, message)
	l.publish(ev)
}

func (l *Log) persist(ev api.OrchestrationEvent, message string) {
	l.sinkMu.Lock()
	defer l.sinkMu.Unlock()
	if l.sink == nil {
		return
	}
	payload, err := json.Marshal(record{OrchestrationEvent: ev, Message: message})
	if err != nil {
		logging.Warn("Events", "Failed to marshal event %s: %v", ev.ID, err)
		return
	}
	if _, err := l.sink.Write(append(payload, '\n')); err != nil {
		logging.Warn("Events", "Failed to write event %s: %v", ev.ID, err)
	}
}

func (l *Log) publish(ev api.OrchestrationEvent) {
	l.subMu.RLock()
	defer l.subMu.RUnlock()
	for id, ch := range l.subscribers {
		select {
		case ch <- ev:
		default:
			logging.Debug("Events", "Subscriber %d is not keeping up, dropped event %s", id, ev.Type)
		}
	}
}

// Subscribe returns a channel receiving every future event and a cancel function.
// Slow subscribers miss events rather than block the emitter.
func (l *Log) Subscribe(buffer int) (<-chan api.OrchestrationEvent, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan api.OrchestrationEvent, buffer)

	l.subMu.Lock()
	id := l.nextSubID
	l.nextSubID++
	l.subscribers[id] = ch
	l.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.subMu.Lock()
			defer l.subMu.Unlock()
			if _, ok := l.subscribers[id]; ok {
				delete(l.subscribers, id)
				close(ch)
			}
		})
	}
}

// Events returns the retained events matching filter, oldest first. With a Limit,
// the most recent matches are returned.
func (l *Log) Events(filter Filter) []api.OrchestrationEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Select(l.retained(), filter)
}

// Select applies filter to events read back with ReadFile. It follows the same rules
// as Log.Events and never returns the input slice itself.
func Select(evs []api.OrchestrationEvent, filter Filter) []api.OrchestrationEvent {
	var out []api.OrchestrationEvent
	for i := range evs {
		if filter.matches(&evs[i]) {
			out = append(out, evs[i])
		}
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[len(out)-filter.Limit:]
	}
	return out
}

// Len returns the number of retained events.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.retained())
}

// Close flushes and closes the persisted log, if any, and closes all subscriber channels.
func (l *Log) Close() error {
	l.subMu.Lock()
	for id, ch := range l.subscribers {
		delete(l.subscribers, id)
		close(ch)
	}
	l.subMu.Unlock()

	l.sinkMu.Lock()
	defer l.sinkMu.Unlock()
	l.sink = nil
	if l.closer != nil {
		err := l.closer.Close()
		l.closer = nil
		return err
	}
	return nil
}

// ReadFile loads events from a JSON-lines log written by OpenLog.
func ReadFile(path string) ([]api.OrchestrationEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open event log %s: %w", path, err)
	}
	defer f.Close()

	var out []api.OrchestrationEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return out, fmt.Errorf("parse event log %s line %d: %w", path, line, err)
		}
		out = append(out, rec.OrchestrationEvent)
	}
	if err := scanner.Err(); err != nil {
		return out, fmt.Errorf("read event log %s: %w", path, err)
	}
	return out, nil
}
