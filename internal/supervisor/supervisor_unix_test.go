//go:build unix

package supervisor

import (
	"context"
	"net"
	"os"
	"testing"
	"time"

	"switchyard/internal/api"
	"switchyard/internal/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHelperProcess is not a real test. It is re-executed by the tests below as a
// worker that listens on SWITCHYARD_ENDPOINT until it is signalled.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	ln, err := net.Listen("tcp", os.Getenv("SWITCHYARD_ENDPOINT"))
	if err != nil {
		os.Exit(3)
	}
	for {
		conn, err := ln.Accept()
		if err != nil {
			os.Exit(0)
		}
		_ = conn.Close()
	}
}

func freeEndpoint(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestSupervisor_ExecLauncherLifecycle(t *testing.T) {
	store := registry.NewStore()
	require.NoError(t, store.Register(api.ServerDescriptor{
		Name:           "helper",
		ExecutablePath: os.Args[0],
		Args:           []string{"-test.run=^TestHelperProcess$"},
		Env:            map[string]string{"GO_WANT_HELPER_PROCESS": "1"},
		Endpoint:       freeEndpoint(t),
	}))

	cfg := testConfig()
	cfg.ReadinessAttempts = 100
	cfg.ReadinessDelay = 50 * time.Millisecond
	cfg.GracePeriod = 2 * time.Second
	sup := New(store, cfg, WithLauncher(ExecLauncher{}))

	require.NoError(t, sup.Start(context.Background(), "helper"))
	desc, err := store.Get("helper")
	require.NoError(t, err)
	assert.Equal(t, api.StatusOnline, desc.Status)
	assert.Positive(t, desc.PID)

	report, err := sup.StopWithReport(context.Background(), "helper")
	require.NoError(t, err)
	assert.False(t, report.Forced)

	desc, _ = store.Get("helper")
	assert.Equal(t, api.StatusOffline, desc.Status)
	assert.Zero(t, desc.PID)
}

func TestResolveExecutable(t *testing.T) {
	path, err := ResolveExecutable(api.ServerDescriptor{ExecutablePath: "sh"})
	require.NoError(t, err)
	assert.True(t, len(path) > 0 && path[0] == '/')

	_, err = ResolveExecutable(api.ServerDescriptor{ExecutablePath: "definitely-not-a-real-binary-xyz"})
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = ResolveExecutable(api.ServerDescriptor{ExecutablePath: t.TempDir()})
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = ResolveExecutable(api.ServerDescriptor{})
	assert.ErrorIs(t, err, os.ErrNotExist)
}
