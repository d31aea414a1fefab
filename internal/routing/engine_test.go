package routing

import (
	"testing"
	"time"

	"switchyard/internal/api"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func server(name string, status api.ServerStatus, caps ...string) api.ServerDescriptor {
	return api.ServerDescriptor{
		Name:               name,
		Status:             status,
		Capabilities:       caps,
		PerformanceMetrics: map[string]float64{},
	}
}

func TestKeywordClassifier(t *testing.T) {
	c := NewKeywordClassifier(DefaultProfiles())

	tests := []struct {
		name     string
		req      api.Request
		expected api.Category
	}{
		{"architecture method", api.Request{Method: "analyze_architecture"}, api.CategoryArchitectureAnalysis},
		{"code generation", api.Request{Method: "generate_code"}, api.CategoryCodeGeneration},
		{"tests", api.Request{Method: "generate_tests"}, api.CategoryTestGeneration},
		{"gradle", api.Request{Method: "run_gradle"}, api.CategoryBuildAutomation},
		{"semantic", api.Request{Method: "semantic_search"}, api.CategorySemanticReasoning},
		{"keyword in params", api.Request{Method: "run", Params: map[string]interface{}{"task": "Compile module"}}, api.CategoryBuildAutomation},
		{"non-string params ignored", api.Request{Method: "run", Params: map[string]interface{}{"build": 1}}, api.CategoryGeneral},
		{"unknown", api.Request{Method: "ping"}, api.CategoryGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, c.Classify(tt.req))
		})
	}
}

func TestCapabilityScorer(t *testing.T) {
	profile := Profile{RequiredCapabilities: []string{"a", "b"}}

	tests := []struct {
		name     string
		desc     api.ServerDescriptor
		inFlight int64
		expected float64
	}{
		{"full match idle", api.ServerDescriptor{Capabilities: []string{"a", "b"}}, 0, 1.0},
		{"half match", api.ServerDescriptor{Capabilities: []string{"a"}}, 0, 0.5},
		{"errors penalize", api.ServerDescriptor{Capabilities: []string{"a", "b"}, ErrorCount: 3}, 0, 0.7},
		{"error floor", api.ServerDescriptor{Capabilities: []string{"a", "b"}, ErrorCount: 50}, 0, 0.1},
		{"recent delivery failures", api.ServerDescriptor{Capabilities: []string{"a", "b"},
			PerformanceMetrics: map[string]float64{api.MetricErrorRate: 0.4}}, 0, 0.6},
		{"failure rate floor", api.ServerDescriptor{Capabilities: []string{"a", "b"},
			PerformanceMetrics: map[string]float64{api.MetricErrorRate: 1}}, 0, 0.1},
		{"load halves", api.ServerDescriptor{Capabilities: []string{"a", "b"}}, 1, 0.5},
		{"no match", api.ServerDescriptor{}, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, CapabilityScorer{}.Score(profile, tt.desc, tt.inFlight), 1e-9)
		})
	}

	assert.Equal(t, NeutralMatchRatio, CapabilityMatchRatio(Profile{}, api.ServerDescriptor{}))
}

func TestEngine_CapabilityMatchWins(t *testing.T) {
	e := NewEngine(DefaultConfig())
	snapshot := []api.ServerDescriptor{
		server("android-gen", api.StatusOnline, "code_generation", "android_templates"),
		server("arch", api.StatusOnline, "architecture_dna_analysis"),
		server("builder", api.StatusOnline, "gradle_build"),
	}

	d, err := e.Analyze(api.Request{Method: "analyze_architecture"}, snapshot, nil)
	require.NoError(t, err)
	assert.Equal(t, api.CategoryArchitectureAnalysis, d.Category)
	assert.Equal(t, "arch", d.TargetServer)
	assert.Equal(t, 1.0, d.ConfidenceScore)
	assert.False(t, d.Degraded)
	assert.Len(t, d.FallbackServers, 2)
	assert.NotContains(t, d.FallbackServers, "arch")
	assert.Equal(t, 3, len(d.Scores))
}

func TestEngine_ConfidenceDropsWithoutCapableServer(t *testing.T) {
	e := NewEngine(DefaultConfig())
	req := api.Request{Method: "analyze_architecture"}

	withCapable, err := e.Analyze(req, []api.ServerDescriptor{
		server("arch", api.StatusOnline, "architecture_dna_analysis"),
		server("builder", api.StatusOnline, "gradle_build"),
	}, nil)
	require.NoError(t, err)

	withoutCapable, err := e.Analyze(req, []api.ServerDescriptor{
		server("arch", api.StatusOffline, "architecture_dna_analysis"),
		server("builder", api.StatusOnline, "gradle_build"),
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "arch", withCapable.TargetServer)
	assert.Equal(t, "builder", withoutCapable.TargetServer)
	assert.Greater(t, withCapable.ConfidenceScore, withoutCapable.ConfidenceScore)
	assert.True(t, withoutCapable.Degraded)
}

func TestEngine_TieBrokenByLoadThenName(t *testing.T) {
	e := NewEngine(DefaultConfig(), WithScorer(ScorerFunc(func(Profile, api.ServerDescriptor, int64) float64 {
		return 0.8
	})))
	snapshot := []api.ServerDescriptor{
		server("c", api.StatusOnline),
		server("b", api.StatusOnline),
		server("a", api.StatusOnline),
	}

	d, err := e.Analyze(api.Request{Method: "ping"}, snapshot, map[string]int64{"a": 2, "b": 0, "c": 0})
	require.NoError(t, err)
	assert.Equal(t, "b", d.TargetServer)
	assert.Equal(t, []string{"c", "a"}, d.FallbackServers)
}

func TestEngine_LoadAwareTieBreakWithDefaultScorer(t *testing.T) {
	e := NewEngine(DefaultConfig())
	snapshot := []api.ServerDescriptor{
		server("gen-1", api.StatusOnline, "code_generation", "android_templates"),
		server("gen-2", api.StatusOnline, "code_generation", "android_templates"),
	}

	d, err := e.Analyze(api.Request{Method: "generate_code"}, snapshot, map[string]int64{"gen-1": 3})
	require.NoError(t, err)
	assert.Equal(t, "gen-2", d.TargetServer)
	assert.Equal(t, []string{"gen-1"}, d.FallbackServers)
}

func TestEngine_OnlyOnlineServersAreScored(t *testing.T) {
	e := NewEngine(DefaultConfig())
	statuses := []api.ServerStatus{api.StatusOffline, api.StatusStarting, api.StatusError, api.StatusMaintenance}

	for _, st := range statuses {
		t.Run(string(st), func(t *testing.T) {
			snapshot := []api.ServerDescriptor{
				server("excluded", st, "gradle_build"),
				server("ok-1", api.StatusOnline),
				server("ok-2", api.StatusOnline),
				server("ok-3", api.StatusOnline),
			}
			d, err := e.Analyze(api.Request{Method: "gradle"}, snapshot, nil)
			require.NoError(t, err)
			assert.NotEqual(t, "excluded", d.TargetServer)
			assert.NotContains(t, d.FallbackServers, "excluded")
			assert.NotContains(t, d.FallbackServers, d.TargetServer)
			_, scored := d.Scores["excluded"]
			assert.False(t, scored)
		})
	}
}

func TestEngine_BelowMinScoreIsDegraded(t *testing.T) {
	e := NewEngine(DefaultConfig())
	snapshot := []api.ServerDescriptor{
		server("generic", api.StatusOnline, "semantic_analysis"),
	}

	d, err := e.Analyze(api.Request{Method: "gradle"}, snapshot, nil)
	require.NoError(t, err)
	assert.Equal(t, "generic", d.TargetServer)
	assert.True(t, d.Degraded)
	assert.Equal(t, DegradedConfidence, d.ConfidenceScore)
	assert.Contains(t, d.Reasoning, "degraded-fallback")
}

func TestEngine_NoOnlineServerPrefersOffline(t *testing.T) {
	e := NewEngine(DefaultConfig())
	snapshot := []api.ServerDescriptor{
		server("broken", api.StatusError),
		server("idle", api.StatusOffline),
		server("paused", api.StatusMaintenance),
	}

	d, err := e.Analyze(api.Request{Method: "ping"}, snapshot, nil)
	require.NoError(t, err)
	assert.Equal(t, "idle", d.TargetServer)
	assert.True(t, d.Degraded)
	assert.Equal(t, DegradedConfidence, d.ConfidenceScore)
	assert.Equal(t, []string{"broken", "paused"}, d.FallbackServers)
	assert.Contains(t, d.Reasoning, "degraded-fallback")
}

func TestEngine_NoServers(t *testing.T) {
	e := NewEngine(DefaultConfig())
	_, err := e.Analyze(api.Request{Method: "ping"}, nil, nil)
	assert.True(t, api.IsRoutingNoCandidate(err))
}

func TestEngine_FallbackCount(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FallbackCount = 1
	e := NewEngine(cfg)
	snapshot := []api.ServerDescriptor{
		server("a", api.StatusOnline),
		server("b", api.StatusOnline),
		server("c", api.StatusOnline),
	}
	d, err := e.Analyze(api.Request{Method: "ping"}, snapshot, nil)
	require.NoError(t, err)
	assert.Equal(t, "a", d.TargetServer)
	assert.Equal(t, []string{"b"}, d.FallbackServers)
}

func TestEngine_ExpectedProcessingTime(t *testing.T) {
	e := NewEngine(DefaultConfig())

	withLatency := server("fast", api.StatusOnline, "gradle_build")
	withLatency.PerformanceMetrics[api.MetricLatencyMs] = 100

	d, err := e.Analyze(api.Request{Method: "gradle"}, []api.ServerDescriptor{withLatency}, nil)
	require.NoError(t, err)
	assert.Equal(t, 300*time.Millisecond, d.ExpectedProcessingTime)

	fresh := server("fresh", api.StatusOnline, "gradle_build")
	d, err = e.Analyze(api.Request{Method: "gradle"}, []api.ServerDescriptor{fresh}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, d.ExpectedProcessingTime)
}

func TestEngine_CustomClassifier(t *testing.T) {
	e := NewEngine(DefaultConfig(), WithClassifier(ClassifierFunc(func(api.Request) api.Category {
		return api.CategoryBuildAutomation
	})))
	snapshot := []api.ServerDescriptor{
		server("builder", api.StatusOnline, "gradle_build"),
		server("other", api.StatusOnline),
	}
	d, err := e.Analyze(api.Request{Method: "anything"}, snapshot, nil)
	require.NoError(t, err)
	assert.Equal(t, api.CategoryBuildAutomation, d.Category)
	assert.Equal(t, "builder", d.TargetServer)
}

func TestEngine_InvalidCategoryFallsBackToGeneral(t *testing.T) {
	e := NewEngine(DefaultConfig(), WithClassifier(ClassifierFunc(func(api.Request) api.Category {
		return "bogus"
	})))
	d, err := e.Analyze(api.Request{Method: "x"}, []api.ServerDescriptor{server("a", api.StatusOnline)}, nil)
	require.NoError(t, err)
	assert.Equal(t, api.CategoryGeneral, d.Category)
	assert.Equal(t, NeutralMatchRatio, d.ConfidenceScore)
}
