package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoadConfig_DefaultsWhenDirectoryEmpty(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, GetDefaultConfig(), cfg)
}

func TestLoadConfig_OverlaysConfigFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.yaml"), `
orchestrator:
  healthCheckInterval: 3s
  failureThreshold: 5
restart:
  maxAttempts: 1
routing:
  minScore: 0.25
metrics:
  listenAddress: 127.0.0.1:9464
servers:
  - name: inline
    executablePath: /usr/bin/inline
    endpoint: localhost:9001
`)

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, cfg.Orchestrator.HealthCheckInterval)
	assert.Equal(t, 5, cfg.Orchestrator.FailureThreshold)
	// Unset fields keep their defaults.
	assert.Equal(t, 2*time.Second, cfg.Orchestrator.HealthCheckTimeout)
	assert.Equal(t, 1, cfg.Restart.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Restart.InitialBackoff)
	assert.Equal(t, 0.25, cfg.Routing.MinScore)
	assert.Equal(t, "127.0.0.1:9464", cfg.Metrics.ListenAddress)

	require.Len(t, cfg.Servers, 1)
	assert.Equal(t, "inline", cfg.Servers[0].Name)
	assert.Equal(t, filepath.Join(dir, "config.yaml"), cfg.Servers[0].SourceFile)
}

func TestLoadConfig_MalformedConfigFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.yaml"), "orchestrator: [not, a, map")

	_, err := LoadConfig(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config.yaml")
}

func TestLoadConfig_ServersDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "servers", "b-builder.yaml"), `
executablePath: gradle-worker
endpoint: localhost:9102
capabilities: [gradle_build]
`)
	writeFile(t, filepath.Join(dir, "servers", "a-arch.yml"), `
name: arch
executablePath: ./bin/arch
endpoint: localhost:9101
protocol: mcp
capabilities: [analyze_architecture]
autoStart: false
`)
	writeFile(t, filepath.Join(dir, "servers", "README.md"), "ignored")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	require.Len(t, cfg.Servers, 2)

	assert.Equal(t, "arch", cfg.Servers[0].Name)
	assert.False(t, cfg.Servers[0].IsAutoStart())
	assert.Equal(t, "mcp", cfg.Servers[0].Protocol)

	// Name falls back to the file name.
	assert.Equal(t, "b-builder", cfg.Servers[1].Name)
	assert.True(t, cfg.Servers[1].IsAutoStart())
	assert.Equal(t, filepath.Join(dir, "servers", "b-builder.yaml"), cfg.Servers[1].SourceFile)
}

func TestLoadConfig_BadServerFileReportedWithOthersLoaded(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "servers", "good.yaml"), "executablePath: /bin/good\nendpoint: localhost:1\n")
	writeFile(t, filepath.Join(dir, "servers", "bad.yaml"), "capabilities: {oops")

	cfg, err := LoadConfig(dir)
	require.Error(t, err)

	var collection *ConfigurationErrorCollection
	require.ErrorAs(t, err, &collection)
	require.Equal(t, 1, collection.Count())
	assert.Equal(t, "bad.yaml", collection.Errors[0].FileName)
	assert.Equal(t, ErrorTypeParse, collection.Errors[0].ErrorType)

	require.Len(t, cfg.Servers, 1)
	assert.Equal(t, "good", cfg.Servers[0].Name)
}

func TestGetDefaultConfigPathOrPanic(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	assert.Equal(t, filepath.Join(home, ".config", "switchyard"), GetDefaultConfigPathOrPanic())
}
