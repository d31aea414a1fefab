package routing

import (
	"math"

	"switchyard/internal/api"
	"switchyard/internal/loadbalancer"
)

// NeutralMatchRatio is the capability ratio used when a category declares no
// required capabilities.
const NeutralMatchRatio = 0.5

// Scorer rates how well an ONLINE worker suits a request category. Scores are in [0, 1].
type Scorer interface {
	Score(profile Profile, desc api.ServerDescriptor, inFlight int64) float64
}

// CapabilityScorer is the default scorer:
//
//	score = capabilityMatchRatio × performanceFactor × reliabilityFactor × loadFactor
type CapabilityScorer struct{}

// Score implements Scorer.
func (CapabilityScorer) Score(profile Profile, desc api.ServerDescriptor, inFlight int64) float64 {
	rate, _ := desc.Metric(api.MetricErrorRate)
	return CapabilityMatchRatio(profile, desc) *
		PerformanceFactor(desc.ErrorCount) *
		ReliabilityFactor(rate) *
		loadbalancer.Factor(inFlight)
}

// CapabilityMatchRatio is the share of the profile's required capabilities the
// worker declares.
func CapabilityMatchRatio(profile Profile, desc api.ServerDescriptor) float64 {
	if len(profile.RequiredCapabilities) == 0 {
		return NeutralMatchRatio
	}
	matched := 0
	for _, c := range profile.RequiredCapabilities {
		if desc.HasCapability(c) {
			matched++
		}
	}
	return float64(matched) / float64(len(profile.RequiredCapabilities))
}

// PerformanceFactor penalizes 10% per consecutive error, floored at 0.1.
func PerformanceFactor(errorCount int) float64 {
	return math.Max(0.1, 1-float64(errorCount)*0.1)
}

// ReliabilityFactor scales a score by the worker's recent delivery success, floored
// at 0.1. rate is the smoothed failure share recorded by the registry.
func ReliabilityFactor(rate float64) float64 {
	return math.Max(0.1, 1-rate)
}

// ScorerFunc adapts a plain function to the Scorer interface.
type ScorerFunc func(profile Profile, desc api.ServerDescriptor, inFlight int64) float64

// Score implements Scorer.
func (f ScorerFunc) Score(profile Profile, desc api.ServerDescriptor, inFlight int64) float64 {
	return f(profile, desc, inFlight)
}
