package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.InDelta(t, 20, cfg.Server.RateLimit, 1e-9)
	assert.Equal(t, "geojson", cfg.Source.Driver)
	assert.InDelta(t, 60, cfg.Engine.ClusterThresholdPx, 1e-9)
	assert.InDelta(t, 5, cfg.Engine.MinZoom, 1e-9)
	assert.Equal(t, 600*time.Millisecond, cfg.Engine.MoveDuration)
	assert.Equal(t, 2*time.Second, cfg.Engine.PollInterval)
	assert.Equal(t, 2500*time.Millisecond, cfg.Engine.Gate.NavigationTTL)
	assert.Equal(t, 8, cfg.Engine.Retry.MaxAttempts)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	yaml := `
log:
  level: debug
  format: console
server:
  port: 9999
source:
  driver: sqlite
  path: /data/features.db
engine:
  cluster_threshold_px: 42
  fade_grace: 1s
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Source.Driver)
	assert.Equal(t, "/data/features.db", cfg.Source.Path)
	assert.InDelta(t, 42, cfg.Engine.ClusterThresholdPx, 1e-9)
	assert.Equal(t, time.Second, cfg.Engine.FadeGrace)

	// Untouched keys keep their defaults.
	assert.InDelta(t, 14, cfg.Engine.MaxFitZoom, 1e-9)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("MAPSYNC_LOG_LEVEL", "warn")
	t.Setenv("MAPSYNC_SERVER_PORT", "7070")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestLoad_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log: ["), 0o644))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLogger(t *testing.T) {
	assert.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
	assert.Error(t, InitLogger(LogConfig{Level: "shouting", Format: "json"}))
}
