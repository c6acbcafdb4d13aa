package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  port: 9090
  host: "0.0.0.0"

database:
  url: "postgres://localhost/deliverability_test"
  max_open_conns: 10

dns:
  timeout_seconds: 3

spam:
  threshold: 6.5

health:
  bounce_rate_pause: 4.0
  min_sent_for_pause: 100

monitor:
  enabled: true
  interval_minutes: 15
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "postgres://localhost/deliverability_test", cfg.Database.URL)
	assert.Equal(t, 10, cfg.Database.MaxOpenConns)
	assert.Equal(t, 3, cfg.DNS.TimeoutSeconds)
	assert.Equal(t, 6.5, cfg.Spam.Threshold)
	assert.Equal(t, 4.0, cfg.Health.BounceRatePause)
	assert.Equal(t, 100, cfg.Health.MinSentForPause)
	assert.True(t, cfg.Monitor.Enabled)
	assert.Equal(t, 15, cfg.Monitor.IntervalMinutes)
}

func TestLoadDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  port: 0\n"), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 5, cfg.SMTP.ConnectTimeoutSeconds)
	assert.Equal(t, 5.0, cfg.Spam.Threshold)
	assert.Equal(t, 5.0, cfg.Health.BounceRatePause)
	assert.Equal(t, 0.1, cfg.Health.ComplaintRatePause)
	assert.Equal(t, 50, cfg.Health.MinSentForPause)
	assert.Equal(t, 60, cfg.Monitor.IntervalMinutes)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("database:\n  url: file-url\n"), 0644))

	t.Setenv("DATABASE_URL", "postgres://env-override/db")
	t.Setenv("PORT", "7070")

	cfg, err := LoadFromEnv(configPath)
	require.NoError(t, err)

	assert.Equal(t, "postgres://env-override/db", cfg.Database.URL)
	assert.Equal(t, 7070, cfg.Server.Port)
}
