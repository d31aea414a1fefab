package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"switchyard/internal/api"
	"switchyard/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func status(t *testing.T, s *Services, name string) api.ServerStatus {
	t.Helper()
	desc, err := s.Orchestrator.Registry().Get(name)
	require.NoError(t, err)
	return desc.Status
}

func TestRouteOnce(t *testing.T) {
	s, l := newTestServices(t, testSwitchyardConfig(
		serverDef("arch", "architecture_dna_analysis"),
		serverDef("builder", "gradle_build"),
	))

	result := routeOnce(context.Background(), s, api.Request{Method: "analyze_architecture"})

	require.True(t, result.Success, result.Error)
	assert.Equal(t, "arch", result.ServedBy)
	assert.Equal(t, []interface{}{"arch:analyze_architecture"}, result.Content)
	assert.Equal(t, 1, l.count("arch"))

	// The fleet is shut down again afterwards.
	assert.Equal(t, api.StatusOffline, status(t, s, "arch"))
	assert.Equal(t, api.StatusOffline, status(t, s, "builder"))
}

func TestApplyServerChange(t *testing.T) {
	s, l := newTestServices(t, testSwitchyardConfig(serverDef("arch", "architecture_dna_analysis")))
	defer func() {
		s.Orchestrator.ShutdownFleet(context.Background())
		s.Close()
	}()
	ctx := context.Background()
	s.Orchestrator.StartFleet(ctx)

	t.Run("new definition is registered and started", func(t *testing.T) {
		def := serverDef("tests", "generate_tests")
		def.SourceFile = filepath.Join(s.ConfigDir, "servers", "tests.yaml")
		applyServerChange(ctx, s, config.ServerChange{Name: "tests", Path: def.SourceFile, Definition: def})

		assert.Equal(t, api.StatusOnline, status(t, s, "tests"))
		assert.Equal(t, 1, l.count("tests"))
	})

	t.Run("manual definition is registered but not started", func(t *testing.T) {
		def := serverDef("manual")
		off := false
		def.AutoStart = &off
		applyServerChange(ctx, s, config.ServerChange{Name: "manual", Definition: def})

		assert.Equal(t, api.StatusOffline, status(t, s, "manual"))
		assert.Zero(t, l.count("manual"))
	})

	t.Run("known server is left alone", func(t *testing.T) {
		def := serverDef("arch", "something_else")
		applyServerChange(ctx, s, config.ServerChange{Name: "arch", Definition: def})

		desc, err := s.Orchestrator.Registry().Get("arch")
		require.NoError(t, err)
		assert.Equal(t, []string{"architecture_dna_analysis"}, desc.Capabilities)
		assert.Equal(t, 1, l.count("arch"))
	})

	t.Run("invalid definition is ignored", func(t *testing.T) {
		def := serverDef("broken")
		def.Endpoint = "nowhere"
		applyServerChange(ctx, s, config.ServerChange{Name: "broken", Definition: def})
		assert.False(t, s.Orchestrator.Registry().Has("broken"))
	})

	t.Run("parse error is ignored", func(t *testing.T) {
		applyServerChange(ctx, s, config.ServerChange{Name: "bad", Err: errors.New("yaml: line 1")})
		assert.False(t, s.Orchestrator.Registry().Has("bad"))
	})

	t.Run("removed definition stops the server", func(t *testing.T) {
		applyServerChange(ctx, s, config.ServerChange{Name: "tests", Removed: true})
		assert.Equal(t, api.StatusOffline, status(t, s, "tests"))
	})
}

func TestHTTPHandler(t *testing.T) {
	s, _ := newTestServices(t, testSwitchyardConfig(serverDef("arch", "architecture_dna_analysis")))
	defer s.Close()

	srv := httptest.NewServer(newHTTPHandler(context.Background(), s))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/status")
	require.NoError(t, err)
	var st api.EcosystemStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	resp.Body.Close()
	assert.Equal(t, 1, st.Total)
	assert.Equal(t, "arch", st.Servers[0].Name)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "switchyard_server_status")
}

func TestStartBackground_StopWaitsForChangeHandler(t *testing.T) {
	s, l := newTestServices(t, testSwitchyardConfig(serverDef("arch", "architecture_dna_analysis")))
	defer func() {
		s.Orchestrator.ShutdownFleet(context.Background())
		s.Close()
	}()

	changes := make(chan config.ServerChange, 1)
	stop := startBackground(context.Background(), s, changes)

	changes <- config.ServerChange{Name: "tests", Definition: serverDef("tests", "generate_tests")}
	require.Eventually(t, func() bool { return l.count("tests") == 1 }, 5*time.Second, 10*time.Millisecond)

	stop()

	// Nothing consumes changes once stop has returned.
	changes <- config.ServerChange{Name: "late", Definition: serverDef("late")}
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, changes, 1)
	assert.False(t, s.Orchestrator.Registry().Has("late"))
}

func post(t *testing.T, url string) (int, []byte) {
	t.Helper()
	resp, err := http.Post(url, "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func TestHTTPHandler_ServerControl(t *testing.T) {
	manual := serverDef("manual")
	off := false
	manual.AutoStart = &off
	s, l := newTestServices(t, testSwitchyardConfig(serverDef("arch", "architecture_dna_analysis"), manual))
	defer func() {
		s.Orchestrator.ShutdownFleet(context.Background())
		s.Close()
	}()
	s.Orchestrator.StartFleet(context.Background())

	srv := httptest.NewServer(newHTTPHandler(context.Background(), s))
	defer srv.Close()

	t.Run("maintenance on and off", func(t *testing.T) {
		code, body := post(t, srv.URL+"/servers/arch/maintenance")
		require.Equal(t, http.StatusOK, code, string(body))
		var desc api.ServerDescriptor
		require.NoError(t, json.Unmarshal(body, &desc))
		assert.Equal(t, api.StatusMaintenance, desc.Status)

		code, _ = post(t, srv.URL+"/servers/arch/maintenance?enabled=false")
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, api.StatusOnline, status(t, s, "arch"))
	})

	t.Run("maintenance rejects bad flag", func(t *testing.T) {
		code, body := post(t, srv.URL+"/servers/arch/maintenance?enabled=maybe")
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Contains(t, string(body), "maybe")
	})

	t.Run("maintenance needs an online server", func(t *testing.T) {
		code, _ := post(t, srv.URL+"/servers/manual/maintenance")
		assert.Equal(t, http.StatusConflict, code)
	})

	t.Run("restart relaunches the process", func(t *testing.T) {
		code, body := post(t, srv.URL+"/servers/arch/restart")
		require.Equal(t, http.StatusOK, code, string(body))
		assert.Equal(t, 2, l.count("arch"))
		assert.Equal(t, api.StatusOnline, status(t, s, "arch"))
	})

	t.Run("unknown server", func(t *testing.T) {
		code, body := post(t, srv.URL+"/servers/ghost/restart")
		assert.Equal(t, http.StatusNotFound, code)
		assert.Contains(t, string(body), "ghost")
	})

	t.Run("control endpoints are POST only", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/servers/arch/restart")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})

	t.Run("health check runs immediately", func(t *testing.T) {
		code, body := post(t, srv.URL+"/health/check")
		require.Equal(t, http.StatusOK, code)
		var reports []HealthReport
		require.NoError(t, json.Unmarshal(body, &reports))
		require.Len(t, reports, 1)
		assert.Equal(t, "arch", reports[0].Server)
		assert.True(t, reports[0].Healthy)
	})
}

func TestHTTPHandler_EventStream(t *testing.T) {
	s, _ := newTestServices(t, testSwitchyardConfig(serverDef("arch", "architecture_dna_analysis")))
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(newHTTPHandler(ctx, s))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/events/stream?server=arch&type=server_maintenance")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/x-ndjson", resp.Header.Get("Content-Type"))

	s.Events.Emit(api.EventServerOnline, "arch", nil)
	s.Events.Emit(api.EventServerMaintenance, "other", nil)
	s.Events.Emit(api.EventServerMaintenance, "arch", map[string]interface{}{"enabled": true})

	dec := json.NewDecoder(resp.Body)
	var ev api.OrchestrationEvent
	require.NoError(t, dec.Decode(&ev))
	assert.Equal(t, api.EventServerMaintenance, ev.Type)
	assert.Equal(t, "arch", ev.ServerName)

	// The stream ends when serve shuts down.
	cancel()
	assert.ErrorIs(t, dec.Decode(&ev), io.EOF)
}

func TestApplication_RunUntilCancelled(t *testing.T) {
	sc := testSwitchyardConfig(serverDef("arch", "architecture_dna_analysis"))
	sc.Metrics.ListenAddress = "127.0.0.1:0"
	sc.Persistence.MetricsSnapshotPath = "metrics.yaml"

	l := &fakeLauncher{}
	cfg := &Config{ConfigPath: t.TempDir(), SwitchyardConfig: &sc, LogFormat: "text"}
	application, err := NewApplication(cfg, testOptions(l)...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.Run(ctx) }()

	require.Eventually(t, func() bool {
		desc, err := application.Services().Orchestrator.Registry().Get("arch")
		return err == nil && desc.Status == api.StatusOnline
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	assert.Equal(t, api.StatusOffline, status(t, application.Services(), "arch"))
	_, err = os.Stat(filepath.Join(cfg.ConfigPath, "metrics.yaml"))
	assert.NoError(t, err, "final metrics snapshot is written on shutdown")
}

func TestLoadConfiguration_Invalid(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "servers"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "servers", "w.yaml"), []byte("executablePath: /bin/w\n"), 0644))

	_, err := LoadConfiguration(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid switchyard configuration")

	var collection *config.ConfigurationErrorCollection
	assert.ErrorAs(t, err, &collection)
}
