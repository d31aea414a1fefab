package routing

import (
	"fmt"
	"sort"
	"time"

	"switchyard/internal/api"
)

// DegradedConfidence is the confidence reported for a degraded-fallback selection.
const DegradedConfidence = 0.1

// Config tunes the engine.
type Config struct {
	// FallbackCount is the number of fallback servers listed after the target.
	FallbackCount int
	// MinScore is the score below which a selection is reported as degraded.
	MinScore float64
	// BaselineLatency is used for time estimates when a server has no latency history.
	BaselineLatency time.Duration
}

// DefaultConfig returns the defaults used when no routing section is configured.
func DefaultConfig() Config {
	return Config{
		FallbackCount:   2,
		MinScore:        0.1,
		BaselineLatency: time.Second,
	}
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClassifier replaces the keyword classifier.
func WithClassifier(c Classifier) Option {
	return func(e *Engine) { e.classifier = c }
}

// WithScorer replaces the capability scorer.
func WithScorer(s Scorer) Option {
	return func(e *Engine) { e.scorer = s }
}

// WithProfiles replaces the category table. The classifier is rebuilt from it
// unless WithClassifier is also given.
func WithProfiles(profiles []Profile) Option {
	return func(e *Engine) { e.profileList = profiles }
}

// Engine computes routing decisions. It holds no mutable state, so one engine can be
// shared by any number of concurrent callers.
type Engine struct {
	cfg         Config
	classifier  Classifier
	scorer      Scorer
	profileList []Profile
	profiles    map[api.Category]Profile
}

// NewEngine creates an engine with the default profiles, classifier and scorer.
func NewEngine(cfg Config, opts ...Option) *Engine {
	if cfg.FallbackCount < 0 {
		cfg.FallbackCount = 0
	}
	if cfg.BaselineLatency <= 0 {
		cfg.BaselineLatency = DefaultConfig().BaselineLatency
	}

	e := &Engine{cfg: cfg, profileList: DefaultProfiles(), scorer: CapabilityScorer{}}
	for _, opt := range opts {
		opt(e)
	}
	if e.classifier == nil {
		e.classifier = NewKeywordClassifier(e.profileList)
	}
	e.profiles = indexProfiles(e.profileList)
	return e
}

// Profile returns the profile for a category, falling back to general.
func (e *Engine) Profile(c api.Category) Profile {
	if p, ok := e.profiles[c]; ok {
		return p
	}
	return e.profiles[api.CategoryGeneral]
}

type candidate struct {
	desc  api.ServerDescriptor
	score float64
	load  int64
}

// Analyze picks a target and ordered fallbacks for req from a store snapshot and the
// current in-flight counts. It does not touch any shared state.
func (e *Engine) Analyze(req api.Request, snapshot []api.ServerDescriptor, loads map[string]int64) (api.RoutingDecision, error) {
	category := e.classifier.Classify(req)
	if !category.IsValid() {
		category = api.CategoryGeneral
	}
	profile := e.Profile(category)

	if len(snapshot) == 0 {
		return api.RoutingDecision{}, api.NewRoutingNoCandidateError(req.Method)
	}

	var online []candidate
	for _, d := range snapshot {
		if d.Status != api.StatusOnline {
			continue
		}
		load := loads[d.Name]
		online = append(online, candidate{desc: d, score: e.scorer.Score(profile, d, load), load: load})
	}

	if len(online) == 0 {
		return e.degradedSelection(req, category, profile, snapshot), nil
	}

	sort.SliceStable(online, func(i, j int) bool {
		if online[i].score != online[j].score {
			return online[i].score > online[j].score
		}
		if online[i].load != online[j].load {
			return online[i].load < online[j].load
		}
		return online[i].desc.Name < online[j].desc.Name
	})

	best := online[0]
	scores := make(map[string]float64, len(online))
	for _, c := range online {
		scores[c.desc.Name] = c.score
	}

	decision := api.RoutingDecision{
		TargetServer:           best.desc.Name,
		Category:               category,
		ConfidenceScore:        clamp01(best.score),
		FallbackServers:        e.fallbacks(online[1:]),
		ExpectedProcessingTime: e.expectedTime(profile, best.desc),
		ResourceRequirements:   resourceRequirements(profile),
		Scores:                 scores,
	}

	if best.score < e.cfg.MinScore {
		decision.Degraded = true
		decision.ConfidenceScore = DegradedConfidence
		decision.Reasoning = fmt.Sprintf(
			"degraded-fallback selection for %s: best online server %s scored %.2f, below minimum %.2f",
			category, best.desc.Name, best.score, e.cfg.MinScore)
		return decision, nil
	}

	failureRate, _ := best.desc.Metric(api.MetricErrorRate)
	decision.Reasoning = fmt.Sprintf(
		"%s request routed to %s: matched %s of required capabilities, %d consecutive errors, %.0f%% recent delivery failures, %d in flight (score %.2f)",
		category, best.desc.Name, matchSummary(profile, best.desc), best.desc.ErrorCount, failureRate*100, best.load, best.score)
	return decision, nil
}

func (e *Engine) fallbacks(rest []candidate) []string {
	n := e.cfg.FallbackCount
	if n > len(rest) {
		n = len(rest)
	}
	out := make([]string, 0, n)
	for _, c := range rest[:n] {
		out = append(out, c.desc.Name)
	}
	return out
}

// degradedRank orders non-ONLINE servers for a degraded selection; lower is preferred.
var degradedRank = map[api.ServerStatus]int{
	api.StatusOffline:     0,
	api.StatusError:       1,
	api.StatusStarting:    2,
	api.StatusMaintenance: 3,
}

// degradedSelection is used when no server is ONLINE. Any registered server is
// acceptable, OFFLINE ones first.
func (e *Engine) degradedSelection(req api.Request, category api.Category, profile Profile, snapshot []api.ServerDescriptor) api.RoutingDecision {
	pool := append([]api.ServerDescriptor(nil), snapshot...)
	sort.SliceStable(pool, func(i, j int) bool {
		ri, rj := degradedRank[pool[i].Status], degradedRank[pool[j].Status]
		if ri != rj {
			return ri < rj
		}
		return pool[i].Name < pool[j].Name
	})

	target := pool[0]
	n := e.cfg.FallbackCount
	if n > len(pool)-1 {
		n = len(pool) - 1
	}
	fallbacks := make([]string, 0, n)
	for _, d := range pool[1 : 1+n] {
		fallbacks = append(fallbacks, d.Name)
	}

	return api.RoutingDecision{
		TargetServer:    target.Name,
		Category:        category,
		ConfidenceScore: DegradedConfidence,
		Reasoning: fmt.Sprintf(
			"degraded-fallback selection for %s: no server is ONLINE, selected %s (%s)",
			category, target.Name, target.Status),
		FallbackServers:        fallbacks,
		ExpectedProcessingTime: e.expectedTime(profile, target),
		ResourceRequirements:   resourceRequirements(profile),
		Degraded:               true,
	}
}

func (e *Engine) expectedTime(profile Profile, desc api.ServerDescriptor) time.Duration {
	complexity := profile.Complexity
	if complexity <= 0 {
		complexity = 1
	}
	base := e.cfg.BaselineLatency
	if ms, ok := desc.Metric(api.MetricLatencyMs); ok && ms > 0 {
		base = time.Duration(ms * float64(time.Millisecond))
	} else if ms, ok := desc.Metric(api.MetricResponseTimeMs); ok && ms > 0 {
		base = time.Duration(ms * float64(time.Millisecond))
	}
	return time.Duration(complexity * float64(base))
}

func resourceRequirements(profile Profile) map[string]interface{} {
	return map[string]interface{}{
		"capabilities": append([]string(nil), profile.RequiredCapabilities...),
		"complexity":   profile.Complexity,
	}
}

func matchSummary(profile Profile, desc api.ServerDescriptor) string {
	if len(profile.RequiredCapabilities) == 0 {
		return "none (neutral)"
	}
	matched := 0
	for _, c := range profile.RequiredCapabilities {
		if desc.HasCapability(c) {
			matched++
		}
	}
	return fmt.Sprintf("%d/%d", matched, len(profile.RequiredCapabilities))
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
