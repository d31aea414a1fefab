package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validServer(name string) ServerDefinition {
	return ServerDefinition{
		Name:           name,
		ExecutablePath: "/usr/local/bin/" + name,
		Endpoint:       "localhost:9100",
		Capabilities:   []string{"code_generation"},
		SourceFile:     filepath.Join("/etc/switchyard/servers", name+".yaml"),
	}
}

func TestValidate_DefaultsAreValid(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Servers = []ServerDefinition{validServer("a"), validServer("b")}
	assert.NoError(t, cfg.Validate())
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Orchestrator.HealthCheckInterval = 0
	cfg.Restart.Multiplier = 0.5
	cfg.Routing.MinScore = 1.5

	bad := validServer("bad")
	bad.Endpoint = "no-port"
	bad.Protocol = "grpc"

	cfg.Servers = []ServerDefinition{validServer("a"), validServer("a"), bad}

	err := cfg.Validate()
	require.Error(t, err)

	var collection *ConfigurationErrorCollection
	require.ErrorAs(t, err, &collection)

	assert.Len(t, collection.GetErrorsByCategory(CategoryOrchestrator), 1)
	assert.Len(t, collection.GetErrorsByCategory(CategoryRestart), 1)
	assert.Len(t, collection.GetErrorsByCategory(CategoryRouting), 1)

	servers := collection.GetErrorsByCategory(CategoryServers)
	require.Len(t, servers, 3)
	assert.Contains(t, servers[0].Message, "duplicate server name 'a'")
	assert.Contains(t, servers[1].Message, "endpoint")
	assert.Contains(t, servers[2].Message, "protocol")
	assert.Equal(t, "bad.yaml", servers[2].FileName)

	assert.Contains(t, collection.GetDetailedReport(), "Detailed Configuration Error Report (6 errors)")
}

func TestValidate_SnapshotIntervalOnlyCheckedWhenSnapshotsEnabled(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Persistence.SnapshotInterval = 0
	assert.NoError(t, cfg.Validate())

	cfg.Persistence.MetricsSnapshotPath = "metrics.json"
	assert.Error(t, cfg.Validate())
}

func TestServerDefinition_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*ServerDefinition)
		field  string
	}{
		{"valid", func(*ServerDefinition) {}, ""},
		{"missing name", func(d *ServerDefinition) { d.Name = "" }, "name"},
		{"name with space", func(d *ServerDefinition) { d.Name = "my server" }, "name"},
		{"missing executable", func(d *ServerDefinition) { d.ExecutablePath = " " }, "executablePath"},
		{"missing endpoint", func(d *ServerDefinition) { d.Endpoint = "" }, "endpoint"},
		{"bad port", func(d *ServerDefinition) { d.Endpoint = "localhost:99999" }, "endpoint"},
		{"empty host", func(d *ServerDefinition) { d.Endpoint = ":9000" }, "endpoint"},
		{"mcp protocol", func(d *ServerDefinition) { d.Protocol = "MCP" }, ""},
		{"unknown protocol", func(d *ServerDefinition) { d.Protocol = "grpc" }, "protocol"},
		{"blank capability", func(d *ServerDefinition) { d.Capabilities = []string{"x", ""} }, "capabilities[1]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validServer("worker")
			tt.modify(&d)
			errs := d.Validate()
			if tt.field == "" {
				assert.Empty(t, errs)
				return
			}
			require.Len(t, errs, 1)
			var ve ValidationError
			require.ErrorAs(t, errs[0], &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}
