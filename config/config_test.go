package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "file", cfg.Storage.Driver)
	assert.Equal(t, 50, cfg.Storage.RunLogCapacity)
	assert.Equal(t, 2*time.Minute, cfg.Engine.NodeTimeout)
	assert.Zero(t, cfg.Engine.RunTimeout)
	assert.Equal(t, "openai", cfg.AI.DefaultProvider)
	assert.NoError(t, cfg.Validate())
}

func TestLoader_LoadFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "canvasflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9000"
storage:
  driver: sqlite
  sqlite_path: /tmp/cf.db
  run_log_capacity: 10
engine:
  run_timeout: 90s
ai:
  default_provider: ollama
  ollama:
    model: gemma3
`), 0o644))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, 10, cfg.Storage.RunLogCapacity)
	assert.Equal(t, 90*time.Second, cfg.Engine.RunTimeout)
	assert.Equal(t, "gemma3", cfg.AI.Ollama.Model)
	// untouched sections keep their defaults
	assert.Equal(t, 30*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, "http://localhost:11434/api/generate", cfg.AI.Ollama.Endpoint)
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath(filepath.Join(t.TempDir(), "nope.yaml")).Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Server, cfg.Server)
}

func TestLoader_EnvOverrides(t *testing.T) {
	t.Setenv("CFTEST_STORAGE_DRIVER", "redis")
	t.Setenv("CFTEST_STORAGE_REDIS_ADDR", "redis:6380")
	t.Setenv("CFTEST_ENGINE_NODE_TIMEOUT", "5s")
	t.Setenv("CFTEST_LOG_OUTPUT_PATHS", "stdout, /tmp/cf.log")

	cfg, err := NewLoader().WithEnvPrefix("CFTEST").Load()
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.Storage.Driver)
	assert.Equal(t, "redis:6380", cfg.Storage.Redis.Addr)
	assert.Equal(t, 5*time.Second, cfg.Engine.NodeTimeout)
	assert.Equal(t, []string{"stdout", "/tmp/cf.log"}, cfg.Log.OutputPaths)
}

func TestLoader_Validation(t *testing.T) {
	t.Setenv("CFBAD_STORAGE_DRIVER", "postgres")
	_, err := NewLoader().WithEnvPrefix("CFBAD").Load()
	assert.ErrorContains(t, err, `unknown storage driver "postgres"`)

	t.Setenv("CFBAD2_ENGINE_RUN_TIMEOUT", "soon")
	_, err = NewLoader().WithEnvPrefix("CFBAD2").Load()
	assert.ErrorContains(t, err, "CFBAD2_ENGINE_RUN_TIMEOUT")

	_, err = NewLoader().WithEnvPrefix("CFOK").WithValidator(func(c *Config) error {
		return assert.AnError
	}).Load()
	assert.ErrorIs(t, err, assert.AnError)
}

func TestNewLogger(t *testing.T) {
	l := NewLogger(LogConfig{Level: "debug", Format: "console"})
	require.NotNil(t, l)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	l = NewLogger(LogConfig{Level: "bogus"})
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
}
