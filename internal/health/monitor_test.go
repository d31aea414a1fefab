package health

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"switchyard/internal/api"
	"switchyard/internal/events"
	"switchyard/internal/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedProber returns results from a per-server script, repeating the last entry.
type scriptedProber struct {
	mu      sync.Mutex
	scripts map[string][]bool
	calls   map[string]int
}

func newScriptedProber(scripts map[string][]bool) *scriptedProber {
	return &scriptedProber{scripts: scripts, calls: map[string]int{}}
}

func (p *scriptedProber) Probe(_ context.Context, desc api.ServerDescriptor) api.HealthCheckResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	script := p.scripts[desc.Name]
	i := p.calls[desc.Name]
	p.calls[desc.Name]++
	healthy := true
	if len(script) > 0 {
		if i >= len(script) {
			i = len(script) - 1
		}
		healthy = script[i]
	}
	if healthy {
		rt := 3 * time.Millisecond
		return api.HealthCheckResult{Healthy: true, ResponseTime: &rt, Timestamp: time.Now()}
	}
	return api.HealthCheckResult{Healthy: false, Timestamp: time.Now(), Error: "connection refused"}
}

func (p *scriptedProber) count(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[name]
}

func addServer(t *testing.T, s *registry.Store, name string, status api.ServerStatus) {
	t.Helper()
	require.NoError(t, s.Register(api.ServerDescriptor{Name: name, Endpoint: "127.0.0.1:1"}))
	switch status {
	case api.StatusOffline:
	case api.StatusStarting:
		require.NoError(t, s.MarkStarting(name))
	case api.StatusOnline, api.StatusMaintenance, api.StatusError:
		require.NoError(t, s.MarkStarting(name))
		require.NoError(t, s.MarkOnline(name, time.Now()))
		if status != api.StatusOnline {
			require.NoError(t, s.UpdateStatus(name, status))
		}
	}
}

func TestMonitor_UnhealthyAfterThresholdExactlyOnce(t *testing.T) {
	store := registry.NewStore()
	addServer(t, store, "a", api.StatusOnline)
	log := events.NewLog()

	prober := newScriptedProber(map[string][]bool{"a": {false}})
	m := NewMonitor(store, prober, Config{Interval: time.Hour, Timeout: time.Second, FailureThreshold: 3}, WithEvents(log))

	var unhealthy int32
	m.OnUnhealthy(func(name string) {
		assert.Equal(t, "a", name)
		atomic.AddInt32(&unhealthy, 1)
	})

	for i := 0; i < 5; i++ {
		m.CheckOnce(context.Background())
	}

	got, _ := store.Get("a")
	assert.Equal(t, api.StatusError, got.Status)
	assert.Equal(t, 5, got.ErrorCount)
	assert.Equal(t, int32(1), atomic.LoadInt32(&unhealthy))
	assert.Len(t, log.Events(events.Filter{Types: []api.EventType{api.EventServerUnhealthy}}), 1)
}

func TestMonitor_SuccessResetsStreak(t *testing.T) {
	store := registry.NewStore()
	addServer(t, store, "a", api.StatusOnline)

	prober := newScriptedProber(map[string][]bool{"a": {false, false, true, false, false}})
	m := NewMonitor(store, prober, Config{Interval: time.Hour, FailureThreshold: 3})

	for i := 0; i < 5; i++ {
		m.CheckOnce(context.Background())
	}

	got, _ := store.Get("a")
	assert.Equal(t, api.StatusOnline, got.Status, "streak never reached threshold")
	assert.Equal(t, 2, got.ErrorCount)
	assert.Equal(t, 4, got.TotalErrors)
}

func TestMonitor_SuccessDoesNotRecoverErrorStatus(t *testing.T) {
	store := registry.NewStore()
	addServer(t, store, "a", api.StatusOnline)

	prober := newScriptedProber(map[string][]bool{"a": {false, false, false, true}})
	log := events.NewLog()
	m := NewMonitor(store, prober, Config{Interval: time.Hour, FailureThreshold: 3}, WithEvents(log))

	for i := 0; i < 4; i++ {
		m.CheckOnce(context.Background())
	}

	got, _ := store.Get("a")
	assert.Equal(t, api.StatusError, got.Status)
	assert.Zero(t, got.ErrorCount)
	assert.Len(t, log.Events(events.Filter{Types: []api.EventType{api.EventServerRecovered}}), 1)
}

func TestMonitor_SkipsOtherStatuses(t *testing.T) {
	store := registry.NewStore()
	addServer(t, store, "offline", api.StatusOffline)
	addServer(t, store, "starting", api.StatusStarting)
	addServer(t, store, "paused", api.StatusMaintenance)
	addServer(t, store, "online", api.StatusOnline)
	addServer(t, store, "broken", api.StatusError)

	prober := newScriptedProber(nil)
	m := NewMonitor(store, prober, Config{Interval: time.Hour})
	reports := m.CheckOnce(context.Background())

	assert.Len(t, reports, 2)
	assert.Equal(t, 0, prober.count("offline"))
	assert.Equal(t, 0, prober.count("starting"))
	assert.Equal(t, 0, prober.count("paused"))
	assert.Equal(t, 1, prober.count("online"))
	assert.Equal(t, 1, prober.count("broken"))
}

func TestMonitor_StartStop(t *testing.T) {
	store := registry.NewStore()
	addServer(t, store, "a", api.StatusOnline)
	prober := newScriptedProber(nil)

	m := NewMonitor(store, prober, Config{Interval: 10 * time.Millisecond})
	require.NoError(t, m.Start(context.Background()))
	assert.True(t, m.Running())
	assert.Error(t, m.Start(context.Background()))

	require.Eventually(t, func() bool { return prober.count("a") >= 2 }, time.Second, 5*time.Millisecond)

	m.Stop()
	assert.False(t, m.Running())
	calls := prober.count("a")
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, prober.count("a"), "no probes after Stop")

	m.Stop()
}

func TestTCPProber(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	p := TCPProber{Timeout: time.Second}
	res := p.Probe(context.Background(), api.ServerDescriptor{Name: "a", Endpoint: ln.Addr().String()})
	assert.True(t, res.Healthy)
	require.NotNil(t, res.ResponseTime)

	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	res = p.Probe(context.Background(), api.ServerDescriptor{Name: "a", Endpoint: addr})
	assert.False(t, res.Healthy)
	assert.Nil(t, res.ResponseTime)
	assert.Contains(t, res.Error, "health check for server a")

	assert.Error(t, Ready(p)(context.Background(), api.ServerDescriptor{Name: "a", Endpoint: addr}))
}
