package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8086, cfg.Server.Port)
	assert.Equal(t, "http://localhost:5001", cfg.Recognition.BaseURL)
	assert.Equal(t, "/process-drawing", cfg.Recognition.ProcessPath)
	assert.Equal(t, "/generate", cfg.Recognition.GeneratePath)
	assert.Equal(t, 90*time.Second, cfg.Recognition.Timeout)
	assert.Equal(t, 768, cfg.Normalize.MaxDimension)
	assert.Equal(t, "memory", cfg.Cache.Driver)

	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8086, cfg.Server.Port)
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9000
recognition:
  base_url: http://recognizer:5001
  timeout: 2m
normalize:
  max_dimension: 512
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "http://recognizer:5001", cfg.Recognition.BaseURL)
	assert.Equal(t, 2*time.Minute, cfg.Recognition.Timeout)
	assert.Equal(t, 512, cfg.Normalize.MaxDimension)
	// Untouched sections keep their defaults.
	assert.Equal(t, 20, cfg.Export.MarginPx)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("RECOGNITION_URL", "http://override:6000/")
	t.Setenv("SERVER_PORT", "7777")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://override:6000", cfg.Recognition.BaseURL)
	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"missing recognition url", func(c *Config) { c.Recognition.BaseURL = "" }},
		{"bad cache driver", func(c *Config) { c.Cache.Driver = "memcached" }},
		{"tiny max dimension", func(c *Config) { c.Normalize.MaxDimension = 8 }},
		{"zero fallback size", func(c *Config) { c.Export.FallbackWidth = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
