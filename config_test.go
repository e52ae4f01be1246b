package agentbus

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agentbus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
default_lane_capacity: 500
critical_lane_capacity: 100
max_retries: 5
ack_timeout_seconds: 10
scheduler_tick_seconds: 2
sweep_interval_seconds: 30
dead_letter_retention_seconds: 3600
dead_letter_limit: 50
history_limit: 200
persistence:
  backend: file
  dir: ` + filepath.Join(t.TempDir(), "data") + `
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.DefaultLaneCapacity)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 10, cfg.AckTimeoutSeconds)
	assert.Equal(t, "file", cfg.Persistence.Backend)

	opts, err := cfg.Options()
	require.NoError(t, err)

	built := defaultBusConfig()
	for _, opt := range opts {
		opt(built)
	}
	assert.Equal(t, 500, built.laneCapacity)
	assert.Equal(t, 100, built.criticalCapacity)
	assert.Equal(t, 5, built.maxRetries)
	assert.Equal(t, 10*time.Second, built.ackTimeout)
	assert.Equal(t, 2*time.Second, built.schedulerInterval)
	assert.Equal(t, 30*time.Second, built.sweepInterval)
	assert.Equal(t, time.Hour, built.retention)
	assert.Equal(t, 50, built.deadLetterLimit)
	assert.Equal(t, 200, built.historyLimit)
	assert.NotNil(t, built.store)
}

func TestLoadConfigErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, "max_retries: [not an int"))
		assert.Error(t, err)
	})
}

func TestConfigOptionsDefaults(t *testing.T) {
	// An empty config must not override any default.
	cfg := &Config{}
	opts, err := cfg.Options()
	require.NoError(t, err)
	assert.Empty(t, opts)
}

func TestPersistenceConfig(t *testing.T) {
	t.Run("unknown backend", func(t *testing.T) {
		cfg := &Config{Persistence: PersistenceConfig{Backend: "etcd"}}
		_, err := cfg.Options()
		assert.ErrorContains(t, err, "unknown persistence backend")
	})

	t.Run("file backend requires dir", func(t *testing.T) {
		cfg := &Config{Persistence: PersistenceConfig{Backend: "file"}}
		_, err := cfg.Options()
		assert.ErrorContains(t, err, "requires dir")
	})

	t.Run("redis backend requires addr", func(t *testing.T) {
		cfg := &Config{Persistence: PersistenceConfig{Backend: "redis"}}
		_, err := cfg.Options()
		assert.ErrorContains(t, err, "requires redis_addr")
	})
}
