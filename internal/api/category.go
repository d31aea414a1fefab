package api

// Category is the request class assigned by the classifier.
type Category string

const (
	CategoryGeneral              Category = "general"
	CategoryArchitectureAnalysis Category = "architecture_analysis"
	CategoryCodeGeneration       Category = "code_generation"
	CategoryTestGeneration       Category = "test_generation"
	CategoryBuildAutomation      Category = "build_automation"
	CategorySemanticReasoning    Category = "semantic_reasoning"
)

// AllCategories lists the categories in classification order; general is last
// because it is the catch-all.
var AllCategories = []Category{
	CategoryArchitectureAnalysis,
	CategoryCodeGeneration,
	CategoryTestGeneration,
	CategoryBuildAutomation,
	CategorySemanticReasoning,
	CategoryGeneral,
}

// IsValid reports whether c is a known category.
func (c Category) IsValid() bool {
	for _, known := range AllCategories {
		if c == known {
			return true
		}
	}
	return false
}
