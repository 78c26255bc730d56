package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsewatch/pulsewatch/internal/config"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pulsewatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("APP_ENV", "")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, 10*time.Second, cfg.Engine.TickInterval)
	assert.Equal(t, 0, cfg.Engine.Concurrency)
	assert.True(t, cfg.Engine.Enabled)
	assert.Equal(t, "default", cfg.Engine.Region)
	assert.Equal(t, 5*time.Second, cfg.Notify.RetryDelay)
	assert.Equal(t, 1, cfg.Notify.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.Stream.KeepAlive)
	assert.Equal(t, config.StorePostgres, cfg.Store)
	assert.False(t, cfg.PubSub.Enabled())
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeFile(t, `
app:
  port: "9000"
  logLevel: debug
engine:
  tickInterval: 5s
  concurrency: 8
  region: eu-west
stream:
  allowedOrigins: ["https://status.example.com"]
store: memory
smtp:
  host: smtp.example.com
  from: alerts@example.com
`)
	t.Setenv("TICK_INTERVAL", "15s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("SMTP_PORT", "2525")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.App.Port)
	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, 15*time.Second, cfg.Engine.TickInterval, "env wins over file")
	assert.Equal(t, 8, cfg.Engine.Concurrency)
	assert.Equal(t, "eu-west", cfg.Engine.Region)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Stream.AllowedOrigins)
	assert.Equal(t, config.StoreMemory, cfg.Store)
	assert.Equal(t, "smtp.example.com", cfg.SMTP.Host)
	assert.Equal(t, 2525, cfg.SMTP.Port)
	assert.True(t, cfg.SMTP.Configured())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := config.Load(writeFile(t, "engine: [unterminated"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoadRejectsMalformedEnv(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("TICK_INTERVAL", "soon")
	t.Setenv("ENGINE_ENABLED", "maybe")

	_, err := config.Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TICK_INTERVAL")
	assert.Contains(t, err.Error(), "ENGINE_ENABLED")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"valid", func(*config.Config) {}, ""},
		{"zero tick", func(c *config.Config) { c.Engine.TickInterval = 0 }, "tick interval"},
		{"negative concurrency", func(c *config.Config) { c.Engine.Concurrency = -1 }, "concurrency"},
		{"unknown store", func(c *config.Config) { c.Store = "redis" }, "unknown store"},
		{"production without key", func(c *config.Config) { c.App.Env = config.EnvProduction }, "JWT_SIGNING_KEY"},
		{"production memory store", func(c *config.Config) {
			c.App.Env = config.EnvProduction
			c.Auth.SigningKey = "k"
			c.Store = config.StoreMemory
		}, "memory store"},
		{"smtp without sender", func(c *config.Config) { c.SMTP.Host = "smtp.example.com" }, "SMTP_FROM"},
		{"pubsub without topic", func(c *config.Config) {
			c.PubSub.ProjectID = "p"
			c.PubSub.Topic = ""
		}, "PUBSUB_TOPIC"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
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
