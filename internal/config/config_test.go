package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 4000, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Queue.Driver)
	assert.Equal(t, 600, cfg.AI.MaxAudioSeconds)
	assert.Equal(t, 25, cfg.AI.MaxFileMB)
	assert.Equal(t, int64(25*1024*1024), cfg.AI.MaxFileBytes())
	assert.Equal(t, time.Second, cfg.Worker.RetryBase)
	assert.Equal(t, 5, cfg.Worker.MaxAttempts)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("PORT", "8080")
	t.Setenv("QUEUE_DRIVER", "Redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("AI_MAX_FILE_MB", "10")
	t.Setenv("WORKER_RETRY_BASE", "250ms")
	t.Setenv("WORKER_INLINE", "true")
	t.Setenv("LIVEKIT_API_KEY", "key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "redis", cfg.Queue.Driver)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Queue.RedisURL)
	assert.Equal(t, 10, cfg.AI.MaxFileMB)
	assert.Equal(t, 250*time.Millisecond, cfg.Worker.RetryBase)
	assert.True(t, cfg.Worker.Inline)
	assert.Equal(t, "key", cfg.LiveKit.APIKey)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Store:   StoreConfig{Driver: "postgres"},
			Queue:   QueueConfig{Driver: "postgres"},
			Auth:    AuthConfig{AccessSecret: "secret"},
			LiveKit: LiveKitConfig{URL: "ws://localhost:7880", APIKey: "key", APISecret: "secret"},
			AI:      AIConfig{MaxFileMB: 25, MaxAudioSeconds: 600},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "unknown queue", mutate: func(c *Config) { c.Queue.Driver = "kafka" }, wantErr: "unknown QUEUE_DRIVER"},
		{name: "redis without url", mutate: func(c *Config) { c.Queue.Driver = "redis" }, wantErr: "REDIS_URL"},
		{name: "memory queue without inline worker", mutate: func(c *Config) { c.Queue.Driver = "memory" }, wantErr: "WORKER_INLINE"},
		{name: "postgres queue on memory store", mutate: func(c *Config) { c.Store.Driver = "memory" }, wantErr: "STORE_DRIVER=postgres"},
		{name: "missing jwt secret", mutate: func(c *Config) { c.Auth.AccessSecret = "" }, wantErr: "JWT_ACCESS_SECRET"},
		{name: "missing livekit", mutate: func(c *Config) { c.LiveKit.APISecret = "" }, wantErr: "LIVEKIT_API_SECRET"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// isolate runs the test from an empty directory so no config file is found.
func isolate(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("HOME", t.TempDir())
}
