package routing

import (
	"switchyard/internal/api"
)

// Profile describes what a request category needs from a worker.
type Profile struct {
	Category api.Category
	// Keywords are matched case-insensitively against the method name and the
	// top-level string parameters.
	Keywords []string
	// RequiredCapabilities lists the capabilities a worker should declare.
	// An empty list means any worker is an equally good (neutral) match.
	RequiredCapabilities []string
	// Complexity multiplies the target's average latency to estimate processing time.
	Complexity float64
}

// DefaultProfiles returns the built-in category table, in classification order.
func DefaultProfiles() []Profile {
	return []Profile{
		{
			Category:             api.CategoryArchitectureAnalysis,
			Keywords:             []string{"architecture", "dna", "design_pattern", "dependency_graph"},
			RequiredCapabilities: []string{"architecture_dna_analysis"},
			Complexity:           2.0,
		},
		{
			Category:             api.CategoryCodeGeneration,
			Keywords:             []string{"generate_code", "code_generation", "codegen", "scaffold", "template", "android"},
			RequiredCapabilities: []string{"code_generation", "android_templates"},
			Complexity:           1.5,
		},
		{
			Category:             api.CategoryTestGeneration,
			Keywords:             []string{"test", "genetic", "mutation"},
			RequiredCapabilities: []string{"genetic_test_generation"},
			Complexity:           2.5,
		},
		{
			Category:             api.CategoryBuildAutomation,
			Keywords:             []string{"gradle", "build", "compile", "assemble"},
			RequiredCapabilities: []string{"gradle_build"},
			Complexity:           3.0,
		},
		{
			Category:             api.CategorySemanticReasoning,
			Keywords:             []string{"semantic", "reason", "infer", "explain"},
			RequiredCapabilities: []string{"semantic_analysis"},
			Complexity:           2.0,
		},
		{
			Category:   api.CategoryGeneral,
			Complexity: 1.0,
		},
	}
}

func indexProfiles(profiles []Profile) map[api.Category]Profile {
	out := make(map[api.Category]Profile, len(profiles))
	for _, p := range profiles {
		out[p.Category] = p
	}
	if _, ok := out[api.CategoryGeneral]; !ok {
		out[api.CategoryGeneral] = Profile{Category: api.CategoryGeneral, Complexity: 1.0}
	}
	return out
}
