package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, key := range []string{"PORT", "DATA_DIR", "ADA_BACKEND_URL", "ADA_BACKEND_EMAIL", "ADA_BACKEND_PASSWORD", "ADA_LOG_LEVEL"} {
		t.Setenv(key, "")
	}
}

func TestLoadConfig_CreatesDefault(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "console.yaml")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err)

	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, "http://127.0.0.1:5000", cfg.Backend.URL)
	assert.Equal(t, time.Duration(0), cfg.BackendTimeout())
	assert.Equal(t, filepath.Join(dir, "data"), cfg.Storage.DataDirectory)
	assert.Equal(t, filepath.Join(dir, "data", "history.duckdb"), cfg.Storage.HistoryDatabase)
	assert.False(t, cfg.HasCredentials())
}

func TestLoadConfig_ReadsFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "console.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
backend:
  url: https://ada.example.com
  timeout_seconds: 45
session:
  max_sessions: 5
storage:
  history_database: ""
log:
  level: debug
  format: json
`), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "https://ada.example.com", cfg.Backend.URL)
	assert.Equal(t, 45*time.Second, cfg.BackendTimeout())
	assert.Equal(t, 5, cfg.Session.MaxSessions)
	assert.Equal(t, "", cfg.Storage.HistoryDatabase)
	assert.Equal(t, "json", cfg.Log.Format)
	// Unset keys keep their defaults.
	assert.Equal(t, 30, cfg.Session.TimeoutMinutes)
	assert.Equal(t, "0.0.0.0:9000", cfg.GetServerAddr())
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	dataDir := t.TempDir()
	t.Setenv("PORT", "7001")
	t.Setenv("DATA_DIR", dataDir)
	t.Setenv("ADA_BACKEND_URL", "http://backend:5000")
	t.Setenv("ADA_BACKEND_EMAIL", "ana@example.com")
	t.Setenv("ADA_BACKEND_PASSWORD", "secret")
	t.Setenv("ADA_LOG_LEVEL", "warn")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "console.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 7001, cfg.Server.Port)
	assert.Equal(t, dataDir, cfg.Storage.DataDirectory)
	assert.Equal(t, filepath.Join(dataDir, "downloads"), cfg.Storage.DownloadsDirectory)
	assert.Equal(t, "http://backend:5000", cfg.Backend.URL)
	assert.True(t, cfg.HasCredentials())
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadConfig_Invalid(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "console.yaml")

	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0644))
	_, err := LoadConfig(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("backend:\n  url: \"\"\n"), 0644))
	_, err = LoadConfig(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 70000\n"), 0644))
	_, err = LoadConfig(path)
	assert.Error(t, err)
}

func TestEnsureDirectories(t *testing.T) {
	root := t.TempDir()
	cfg := DefaultConfig()
	cfg.resolvePaths(root)

	require.NoError(t, cfg.EnsureDirectories())
	for _, dir := range []string{cfg.Storage.DataDirectory, cfg.Storage.DownloadsDirectory} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestIntervals(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 30*time.Minute, cfg.SessionTimeout())
	assert.Equal(t, 5*time.Minute, cfg.CleanupInterval())
	assert.Equal(t, 250*time.Millisecond, cfg.PushInterval())

	cfg.Session.CleanupIntervalMinutes = 0
	cfg.Session.PushIntervalMillis = 0
	assert.Equal(t, 5*time.Minute, cfg.CleanupInterval())
	assert.Equal(t, 250*time.Millisecond, cfg.PushInterval())
}

func TestFromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("ADA_BACKEND_URL", "http://analysis:5000")

	cfg, err := FromEnvironment()
	require.NoError(t, err)
	assert.Equal(t, "http://analysis:5000", cfg.Backend.URL)
	assert.False(t, cfg.HasCredentials())

	t.Setenv("PORT", "70000")
	_, err = FromEnvironment()
	assert.Error(t, err)
}
