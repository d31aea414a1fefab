package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"switchyard/internal/api"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildEventFilter(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

	t.Run("duration", func(t *testing.T) {
		f, err := buildEventFilter("builder", []string{"server_crashed"}, "1h", 20, now)
		require.NoError(t, err)
		assert.Equal(t, "builder", f.ServerName)
		assert.Equal(t, []api.EventType{api.EventServerCrashed}, f.Types)
		assert.Equal(t, now.Add(-time.Hour), f.Since)
		assert.Equal(t, 20, f.Limit)
	})

	t.Run("timestamp", func(t *testing.T) {
		f, err := buildEventFilter("", nil, "2024-01-15T10:00:00Z", 0, now)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC), f.Since.UTC())
		assert.Empty(t, f.Types)
	})

	t.Run("invalid since", func(t *testing.T) {
		_, err := buildEventFilter("", nil, "yesterday", 0, now)
		assert.ErrorContains(t, err, "invalid --since")
	})

	t.Run("negative limit", func(t *testing.T) {
		_, err := buildEventFilter("", nil, "", -1, now)
		assert.Error(t, err)
	})
}

func TestEventLogPath(t *testing.T) {
	t.Run("relative path resolved against config dir", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"),
			[]byte("persistence:\n  eventLogPath: state/events.jsonl\n"), 0644))

		path, err := eventLogPath(dir)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "state", "events.jsonl"), path)
	})

	t.Run("broken server files are ignored", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"),
			[]byte("persistence:\n  eventLogPath: /var/log/switchyard.jsonl\n"), 0644))
		writeServerFile(t, dir, "broken.yaml", "executablePath: [unclosed\n")

		path, err := eventLogPath(dir)
		require.NoError(t, err)
		assert.Equal(t, "/var/log/switchyard.jsonl", path)
	})

	t.Run("not configured", func(t *testing.T) {
		_, err := eventLogPath(t.TempDir())
		assert.ErrorContains(t, err, "persistence.eventLogPath")
	})
}
