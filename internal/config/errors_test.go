package config

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigurationErrorCollection_Error(t *testing.T) {
	c := NewConfigurationErrorCollection()
	assert.Equal(t, "no configuration errors", c.Error())

	c.AddError("", "config.yaml", SourceConfig, CategoryRouting, ErrorTypeValidation, "routing.minScore must be between 0 and 1")
	assert.Equal(t, "[config/routing] config.yaml: routing.minScore must be between 0 and 1", c.Error())

	c.AddError("/etc/s/servers/a.yaml", "a.yaml", SourceServers, CategoryServers, ErrorTypeParse, "failed to parse")
	assert.True(t, strings.HasPrefix(c.Error(), "2 configuration errors:"))
	assert.Contains(t, c.Error(), "(and 1 more)")
}

func TestConfigurationErrorCollection_Unwrap(t *testing.T) {
	c := NewConfigurationErrorCollection()
	c.AddError("", "config.yaml", SourceConfig, CategoryRestart, ErrorTypeValidation, "bad multiplier")

	var single ConfigurationError
	require.True(t, errors.As(c, &single))
	assert.Equal(t, CategoryRestart, single.Category)
}

func TestGetDetailedReport_GroupsByFile(t *testing.T) {
	c := NewConfigurationErrorCollection()
	c.Add(NewConfigurationErrorWithDetails("/cfg/servers/b.yaml", "b.yaml", SourceServers, CategoryServers, ErrorTypeParse,
		"failed to parse server definition", "yaml: line 2", []string{"Check the YAML syntax"}))
	c.AddError("/cfg/servers/a.yaml", "a.yaml", SourceServers, CategoryServers, ErrorTypeValidation, "server 'a': endpoint is required")
	c.AddError("", "config.yaml", SourceConfig, CategoryRouting, ErrorTypeValidation, "routing.minScore must be between 0 and 1")
	c.AddError("/cfg/servers/a.yaml", "a.yaml", SourceServers, CategoryServers, ErrorTypeValidation, "server 'a': executablePath is required")

	report := c.GetDetailedReport()
	assert.True(t, strings.HasPrefix(report, "Detailed Configuration Error Report (4 errors):"))

	cfg := strings.Index(report, "config.yaml (1):")
	a := strings.Index(report, "/cfg/servers/a.yaml (2):")
	b := strings.Index(report, "/cfg/servers/b.yaml (1):")
	require.True(t, cfg > 0 && a > 0 && b > 0, report)
	assert.Less(t, cfg, a)
	assert.Less(t, a, b)

	assert.Less(t, strings.Index(report, "endpoint is required"), strings.Index(report, "executablePath is required"))
	assert.Contains(t, report, "details: yaml: line 2")
	assert.Contains(t, report, "hint: Check the YAML syntax")
}

func TestGetDetailedReport_Empty(t *testing.T) {
	assert.Equal(t, "No configuration errors to report", NewConfigurationErrorCollection().GetDetailedReport())
}
