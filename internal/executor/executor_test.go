package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"switchyard/internal/api"
	"switchyard/internal/events"
	"switchyard/internal/loadbalancer"
	"switchyard/internal/registry"
	"switchyard/internal/routing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type behavior int

const (
	answer behavior = iota
	fail
	hang
)

// fakeTransport answers per server according to its behavior and records the call
// order and the in-flight count seen during each call.
type fakeTransport struct {
	balancer  *loadbalancer.Balancer
	behaviors map[string]behavior

	mu       sync.Mutex
	calls    []string
	inFlight map[string]int64
}

func (f *fakeTransport) Send(ctx context.Context, desc api.ServerDescriptor, req api.Request) (*api.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, desc.Name)
	if f.inFlight == nil {
		f.inFlight = map[string]int64{}
	}
	f.inFlight[desc.Name] = f.balancer.InFlight(desc.Name)
	f.mu.Unlock()

	switch f.behaviors[desc.Name] {
	case fail:
		return nil, errors.New("connection reset by peer")
	case hang:
		<-ctx.Done()
		return nil, ctx.Err()
	default:
		return &api.Response{Content: []interface{}{"handled by " + desc.Name}}, nil
	}
}

func (f *fakeTransport) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fixture struct {
	store     *registry.Store
	balancer  *loadbalancer.Balancer
	transport *fakeTransport
	log       *events.Log
	exec      *Executor
}

func newFixture(t *testing.T, timeout time.Duration, servers map[string][]string) *fixture {
	t.Helper()
	f := &fixture{store: registry.NewStore(), balancer: loadbalancer.New(), log: events.NewLog()}
	f.transport = &fakeTransport{balancer: f.balancer, behaviors: map[string]behavior{}}
	for name, caps := range servers {
		require.NoError(t, f.store.Register(api.ServerDescriptor{Name: name, Endpoint: "127.0.0.1:1", Capabilities: caps}))
		require.NoError(t, f.store.MarkStarting(name))
		require.NoError(t, f.store.MarkOnline(name, time.Now()))
	}
	engine := routing.NewEngine(routing.DefaultConfig())
	f.exec = New(f.store, engine, f.balancer, f.transport, Config{RequestTimeout: timeout}, WithEvents(f.log))
	return f
}

func TestExecutor_RoutesByCapability(t *testing.T) {
	f := newFixture(t, time.Second, map[string][]string{
		"arch":    {"architecture_dna_analysis"},
		"codegen": {"code_generation", "android_templates"},
	})

	result := f.exec.Route(context.Background(), api.Request{Method: "analyze_architecture"})

	require.True(t, result.Success, result.Error)
	assert.Equal(t, "arch", result.ServedBy)
	assert.False(t, result.UsedFallback())
	assert.Equal(t, api.CategoryArchitectureAnalysis, result.Decision.Category)
	assert.Equal(t, []string{"codegen"}, result.Decision.FallbackServers)
	assert.Equal(t, []interface{}{"handled by arch"}, result.Content)
	assert.NotEmpty(t, result.RequestID)
	assert.Equal(t, api.ErrorKindNone, result.ErrorKind)
	assert.Equal(t, []string{"arch"}, f.transport.called())

	desc, _ := f.store.Get("arch")
	assert.Equal(t, 1.0, desc.PerformanceMetrics[api.MetricRequests])
	assert.Contains(t, desc.PerformanceMetrics, api.MetricLatencyMs)
}

func TestExecutor_FallsBackOnFailure(t *testing.T) {
	f := newFixture(t, time.Second, map[string][]string{
		"arch":    {"architecture_dna_analysis"},
		"codegen": {"code_generation"},
	})
	f.transport.behaviors["arch"] = fail

	result := f.exec.Route(context.Background(), api.Request{Method: "analyze_architecture"})

	require.True(t, result.Success)
	assert.Equal(t, "codegen", result.ServedBy)
	assert.Equal(t, "codegen", result.FallbackUsed)
	require.Len(t, result.Attempts, 2)
	assert.False(t, result.Attempts[0].Success)
	assert.Equal(t, api.ErrorKindFailure, result.Attempts[0].Kind)
	assert.Contains(t, result.Attempts[0].Error, "connection reset")
	assert.True(t, result.Attempts[1].Success)

	desc, _ := f.store.Get("arch")
	assert.Equal(t, 1.0, desc.PerformanceMetrics[api.MetricFailures])
	assert.Zero(t, desc.ErrorCount, "execution failures do not feed the health streak")
	assert.Equal(t, 1, desc.TotalErrors)

	assert.Len(t, f.log.Events(events.Filter{Types: []api.EventType{api.EventRequestAttemptFailed}}), 1)
	stats := f.exec.Stats()
	assert.Equal(t, int64(1), stats.FallbacksUsed)
	assert.Equal(t, int64(1), stats.ServedByServer["codegen"])
}

func TestExecutor_FailingWorkerLosesTarget(t *testing.T) {
	f := newFixture(t, time.Second, map[string][]string{
		"arch":   {"architecture_dna_analysis"},
		"arch-2": {"architecture_dna_analysis"},
	})
	f.transport.behaviors["arch"] = fail

	var targets []string
	for i := 0; i < 10; i++ {
		result := f.exec.Route(context.Background(), api.Request{Method: "analyze_architecture"})
		require.True(t, result.Success, result.Error)
		assert.Equal(t, "arch-2", result.ServedBy)
		targets = append(targets, result.Decision.TargetServer)
	}

	assert.Equal(t, "arch", targets[0], "name breaks the initial tie")
	for _, target := range targets[1:] {
		assert.Equal(t, "arch-2", target)
	}

	archCalls := 0
	for _, name := range f.transport.called() {
		if name == "arch" {
			archCalls++
		}
	}
	assert.Equal(t, 1, archCalls)

	desc, _ := f.store.Get("arch")
	assert.Equal(t, 1.0, desc.PerformanceMetrics[api.MetricErrorRate])
	assert.Zero(t, desc.ErrorCount)
}

func TestExecutor_TimeoutIsPerAttempt(t *testing.T) {
	f := newFixture(t, 30*time.Millisecond, map[string][]string{
		"arch":    {"architecture_dna_analysis"},
		"codegen": {"code_generation"},
	})
	f.transport.behaviors["arch"] = hang

	result := f.exec.Route(context.Background(), api.Request{Method: "analyze_architecture"})

	require.True(t, result.Success)
	assert.Equal(t, "codegen", result.ServedBy)
	require.Len(t, result.Attempts, 2)
	assert.Equal(t, api.ErrorKindTimeout, result.Attempts[0].Kind)
	assert.Contains(t, result.Attempts[0].Error, "timed out")
}

func TestExecutor_AllFallbacksExhausted(t *testing.T) {
	f := newFixture(t, time.Second, map[string][]string{
		"a": nil,
		"b": nil,
		"c": nil,
	})
	for _, name := range []string{"a", "b", "c"} {
		f.transport.behaviors[name] = fail
	}

	result := f.exec.Route(context.Background(), api.Request{Method: "ping"})

	assert.False(t, result.Success)
	assert.Equal(t, api.ErrorKindExhausted, result.ErrorKind)
	assert.True(t, api.IsAllFallbacksExhausted(result.Err))
	// Target plus two fallbacks.
	require.Len(t, result.Attempts, 3)
	assert.Equal(t, []string{"a", "b", "c"}, f.transport.called())
	for _, name := range []string{"a", "b", "c"} {
		assert.Contains(t, result.Error, name)
	}
	assert.Len(t, f.log.Events(events.Filter{Types: []api.EventType{api.EventRequestFailed}}), 1)
}

func TestExecutor_NoServers(t *testing.T) {
	f := newFixture(t, time.Second, nil)

	result := f.exec.Route(context.Background(), api.Request{Method: "ping"})

	assert.False(t, result.Success)
	assert.Equal(t, api.ErrorKindNoCandidate, result.ErrorKind)
	assert.Empty(t, result.Attempts)
	assert.Equal(t, int64(1), f.exec.Stats().Failed)
}

func TestExecutor_CallerDeadlineAbandonsWalk(t *testing.T) {
	f := newFixture(t, time.Second, map[string][]string{"a": nil, "b": nil})
	f.transport.behaviors["a"] = hang
	f.transport.behaviors["b"] = hang

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	result := f.exec.Route(ctx, api.Request{Method: "ping"})

	assert.False(t, result.Success)
	assert.Equal(t, api.ErrorKindCallerTimeout, result.ErrorKind)
	assert.ErrorIs(t, result.Err, context.DeadlineExceeded)
	require.Len(t, result.Attempts, 1)
	assert.Equal(t, api.ErrorKindCallerTimeout, result.Attempts[0].Kind)

	desc, _ := f.store.Get("a")
	assert.Zero(t, desc.PerformanceMetrics[api.MetricFailures], "abandoned attempts are not charged to the worker")
}

func TestExecutor_InFlightAccounting(t *testing.T) {
	f := newFixture(t, time.Second, map[string][]string{"a": nil})

	for i := 0; i < 3; i++ {
		result := f.exec.Route(context.Background(), api.Request{Method: "ping"})
		require.True(t, result.Success)
	}

	assert.Equal(t, int64(1), f.transport.inFlight["a"])
	assert.Zero(t, f.balancer.InFlight("a"))
	assert.Equal(t, int64(3), f.exec.Stats().ServedByServer["a"])
}

func TestExecutor_KeepsCallerRequestID(t *testing.T) {
	f := newFixture(t, time.Second, map[string][]string{"a": nil})
	result := f.exec.Route(context.Background(), api.Request{ID: "req-1", Method: "ping"})
	assert.Equal(t, "req-1", result.RequestID)
}

func TestExecutor_Stats(t *testing.T) {
	f := newFixture(t, time.Second, map[string][]string{
		"arch": {"architecture_dna_analysis"},
		"gen":  {"code_generation"},
	})
	f.exec.Route(context.Background(), api.Request{Method: "analyze_architecture"})
	f.exec.Route(context.Background(), api.Request{Method: "generate_code"})
	f.exec.Route(context.Background(), api.Request{Method: "ping"})

	stats := f.exec.Stats()
	assert.Equal(t, int64(3), stats.TotalRequests)
	assert.Equal(t, int64(3), stats.Succeeded)
	assert.Zero(t, stats.Failed)
	assert.Equal(t, int64(1), stats.ByCategory[api.CategoryArchitectureAnalysis])
	assert.Equal(t, int64(1), stats.ByCategory[api.CategoryCodeGeneration])
	assert.Equal(t, int64(1), stats.ByCategory[api.CategoryGeneral])
}

func TestMux(t *testing.T) {
	var got []api.Protocol
	mk := func(p api.Protocol) Transport {
		return TransportFunc(func(context.Context, api.ServerDescriptor, api.Request) (*api.Response, error) {
			got = append(got, p)
			return &api.Response{}, nil
		})
	}
	mux := NewMux(map[api.Protocol]Transport{api.ProtocolJSON: mk(api.ProtocolJSON), api.ProtocolMCP: mk(api.ProtocolMCP)})

	_, err := mux.Send(context.Background(), api.ServerDescriptor{}, api.Request{})
	require.NoError(t, err)
	_, err = mux.Send(context.Background(), api.ServerDescriptor{Protocol: api.ProtocolMCP}, api.Request{})
	require.NoError(t, err)
	_, err = mux.Send(context.Background(), api.ServerDescriptor{Protocol: "grpc"}, api.Request{})
	assert.Error(t, err)

	assert.Equal(t, []api.Protocol{api.ProtocolJSON, api.ProtocolMCP}, got)
	assert.NoError(t, mux.Close())
}

func TestWorkerURL(t *testing.T) {
	tests := []struct {
		desc     api.ServerDescriptor
		expected string
	}{
		{api.ServerDescriptor{Endpoint: "localhost:8101"}, "http://localhost:8101/"},
		{api.ServerDescriptor{Endpoint: "localhost:8101", Path: "rpc"}, "http://localhost:8101/rpc"},
		{api.ServerDescriptor{Endpoint: "https://worker.local/", Path: "/mcp"}, "https://worker.local/mcp"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, WorkerURL(tt.desc))
	}
}
