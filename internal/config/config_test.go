package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetDefaultConfig() {
	DefaultConfig = &Config{
		CORS: CORSConfig{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Requested-With"},
			AllowCredentials: true,
			MaxAge:           300,
		},
		Timeline: TimelineConfig{
			TargetTickCount: 5,
			DefaultWindow:   15 * time.Minute,
		},
		Retention: RetentionConfig{
			Interval:     time.Hour,
			RunTimeout:   time.Minute,
			EventsMaxAge: 7 * 24 * time.Hour,
		},
		MemlimitRatio: 0.9,
	}
}

func TestLoadConfig_ValidYAML(t *testing.T) {
	configContent := `
upstream:
  url: "http://localhost:8080"
server:
  insecure_listen_address: ":9091"
database:
  provider: "sqlite"
  sqlite:
    database_path: "test.db"
insert:
  batch_size: 20
  buffer_size: 100
  flush_interval: "5s"
  grace_period: "5s"
  timeout: "1s"
timeline:
  target_tick_count: 8
  default_window: "30m"
retention:
  enabled: true
  interval: "2h"
  run_timeout: "30s"
  events_max_age: "72h"
cors:
  allowed_origins: ["*"]
  allowed_methods: ["GET", "POST"]
  allowed_headers: ["Content-Type"]
  allow_credentials: true
  max_age: 300
`

	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	_, err = tmpfile.Write([]byte(configContent))
	require.NoError(t, err)
	tmpfile.Close()

	resetDefaultConfig()

	err = LoadConfig(tmpfile.Name())
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", DefaultConfig.Upstream.URL)
	assert.Equal(t, ":9091", DefaultConfig.Server.InsecureListenAddress)
	assert.Equal(t, "sqlite", DefaultConfig.Database.Provider)
	assert.Equal(t, "test.db", DefaultConfig.Database.SQLite.DatabasePath)
	assert.Equal(t, 20, DefaultConfig.Insert.BatchSize)
	assert.Equal(t, 100, DefaultConfig.Insert.BufferSize)
	assert.Equal(t, 5*time.Second, DefaultConfig.Insert.FlushInterval)
	assert.Equal(t, 8, DefaultConfig.Timeline.TargetTickCount)
	assert.Equal(t, 30*time.Minute, DefaultConfig.Timeline.DefaultWindow)
	assert.True(t, DefaultConfig.Retention.Enabled)
	assert.Equal(t, 2*time.Hour, DefaultConfig.Retention.Interval)
	assert.Equal(t, 72*time.Hour, DefaultConfig.Retention.EventsMaxAge)
	assert.Equal(t, []string{"GET", "POST"}, DefaultConfig.CORS.AllowedMethods)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	resetDefaultConfig()
	err := LoadConfig("does-not-exist.yaml")
	assert.Error(t, err)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	_, err = tmpfile.Write([]byte("upstream: [not a mapping"))
	require.NoError(t, err)
	tmpfile.Close()

	resetDefaultConfig()
	assert.Error(t, LoadConfig(tmpfile.Name()))
}

func TestTickCount_Clamping(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, 5, cfg.TickCount(), "zero falls back to the default")

	cfg.Timeline.TargetTickCount = 8
	assert.Equal(t, 8, cfg.TickCount())

	cfg.Timeline.TargetTickCount = 500
	assert.Equal(t, MaxTargetTickCount, cfg.TickCount())

	cfg.Timeline.TargetTickCount = -1
	assert.Equal(t, 5, cfg.TickCount())
}

func TestIsTracingEnabled(t *testing.T) {
	var nilCfg *Config
	assert.False(t, nilCfg.IsTracingEnabled())

	cfg := &Config{}
	assert.False(t, cfg.IsTracingEnabled())
}
