package config

import (
	"fmt"
	"sort"
	"strings"
)

// Where a configuration error came from.
const (
	SourceConfig  = "config"
	SourceServers = "servers"
)

// Configuration sections an error can belong to.
const (
	CategoryOrchestrator = "orchestrator"
	CategoryRestart      = "restart"
	CategoryRouting      = "routing"
	CategoryPersistence  = "persistence"
	CategoryServers      = "servers"
)

// Kinds of configuration error.
const (
	ErrorTypeIO         = "io"
	ErrorTypeParse      = "parse"
	ErrorTypeValidation = "validation"
)

// ConfigurationError is one problem found while loading or validating the
// configuration directory.
type ConfigurationError struct {
	FilePath    string   `json:"filePath,omitempty"`
	FileName    string   `json:"fileName"`
	Source      string   `json:"source"`
	Category    string   `json:"category"`
	ErrorType   string   `json:"errorType"`
	Message     string   `json:"message"`
	Details     string   `json:"details,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

func (ce ConfigurationError) Error() string {
	return fmt.Sprintf("[%s/%s] %s: %s", ce.Source, ce.Category, ce.FileName, ce.Message)
}

// DetailedError renders the error with its details and suggestions, indented for
// use under a per-file heading.
func (ce ConfigurationError) DetailedError() string {
	var b strings.Builder
	fmt.Fprintf(&b, "  %s error in %s: %s", ce.ErrorType, ce.Category, ce.Message)
	if ce.Details != "" {
		fmt.Fprintf(&b, "\n    details: %s", ce.Details)
	}
	for _, s := range ce.Suggestions {
		fmt.Fprintf(&b, "\n    hint: %s", s)
	}
	return b.String()
}

// ConfigurationErrorCollection gathers every problem in a configuration directory so
// they can be reported together. It is returned as an error by LoadConfig and
// SwitchyardConfig.Validate.
type ConfigurationErrorCollection struct {
	Errors []ConfigurationError `json:"errors"`
}

func (cec ConfigurationErrorCollection) Error() string {
	switch len(cec.Errors) {
	case 0:
		return "no configuration errors"
	case 1:
		return cec.Errors[0].Error()
	default:
		return fmt.Sprintf("%d configuration errors: %s (and %d more)",
			len(cec.Errors), cec.Errors[0].Error(), len(cec.Errors)-1)
	}
}

// Unwrap exposes the individual errors to errors.Is and errors.As.
func (cec *ConfigurationErrorCollection) Unwrap() []error {
	out := make([]error, len(cec.Errors))
	for i, e := range cec.Errors {
		out[i] = e
	}
	return out
}

func (cec *ConfigurationErrorCollection) HasErrors() bool {
	return len(cec.Errors) > 0
}

func (cec *ConfigurationErrorCollection) Count() int {
	return len(cec.Errors)
}

func (cec *ConfigurationErrorCollection) Add(err ConfigurationError) {
	cec.Errors = append(cec.Errors, err)
}

// AddError records a problem without details or suggestions.
func (cec *ConfigurationErrorCollection) AddError(filePath, fileName, source, category, errorType, message string) {
	cec.Add(NewConfigurationError(filePath, fileName, source, category, errorType, message))
}

// Merge appends every error of other. A nil other is ignored.
func (cec *ConfigurationErrorCollection) Merge(other *ConfigurationErrorCollection) {
	if other == nil {
		return
	}
	cec.Errors = append(cec.Errors, other.Errors...)
}

// GetErrorsByCategory returns the errors of one configuration section.
func (cec *ConfigurationErrorCollection) GetErrorsByCategory(category string) []ConfigurationError {
	var filtered []ConfigurationError
	for _, err := range cec.Errors {
		if err.Category == category {
			filtered = append(filtered, err)
		}
	}
	return filtered
}

// reportKey identifies the file an error belongs to in the report.
func (ce ConfigurationError) reportKey() string {
	if ce.FilePath != "" {
		return ce.FilePath
	}
	return ce.FileName
}

// GetDetailedReport renders every error grouped by file. config.yaml comes first,
// then server files in name order; errors keep the order they were found in.
func (cec *ConfigurationErrorCollection) GetDetailedReport() string {
	if len(cec.Errors) == 0 {
		return "No configuration errors to report"
	}

	byFile := make(map[string][]ConfigurationError)
	var files []string
	for _, e := range cec.Errors {
		k := e.reportKey()
		if _, ok := byFile[k]; !ok {
			files = append(files, k)
		}
		byFile[k] = append(byFile[k], e)
	}
	sort.SliceStable(files, func(i, j int) bool {
		ci := byFile[files[i]][0].Source == SourceConfig
		cj := byFile[files[j]][0].Source == SourceConfig
		if ci != cj {
			return ci
		}
		return files[i] < files[j]
	})

	var b strings.Builder
	fmt.Fprintf(&b, "Detailed Configuration Error Report (%d errors):\n", len(cec.Errors))
	b.WriteString(strings.Repeat("=", 60))
	for _, f := range files {
		errs := byFile[f]
		fmt.Fprintf(&b, "\n\n%s (%d):", f, len(errs))
		for _, e := range errs {
			b.WriteString("\n")
			b.WriteString(e.DetailedError())
		}
	}
	return b.String()
}

func NewConfigurationError(filePath, fileName, source, category, errorType, message string) ConfigurationError {
	return ConfigurationError{
		FilePath:  filePath,
		FileName:  fileName,
		Source:    source,
		Category:  category,
		ErrorType: errorType,
		Message:   message,
	}
}

// NewConfigurationErrorWithDetails is NewConfigurationError plus details and hints.
func NewConfigurationErrorWithDetails(filePath, fileName, source, category, errorType, message, details string, suggestions []string) ConfigurationError {
	ce := NewConfigurationError(filePath, fileName, source, category, errorType, message)
	ce.Details = details
	ce.Suggestions = suggestions
	return ce
}

func NewConfigurationErrorCollection() *ConfigurationErrorCollection {
	return &ConfigurationErrorCollection{
		Errors: make([]ConfigurationError, 0),
	}
}
