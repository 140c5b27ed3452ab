// Package config provides unified configuration loading for the digitizer.
// Supports YAML files, environment variables, and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the digitizer.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Recognition   RecognitionConfig   `yaml:"recognition"`
	Export        ExportConfig        `yaml:"export"`
	Normalize     NormalizeConfig     `yaml:"normalize"`
	Cache         CacheConfig         `yaml:"cache"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

// RecognitionConfig holds the external recognition service settings.
type RecognitionConfig struct {
	BaseURL      string        `yaml:"base_url"`
	ProcessPath  string        `yaml:"process_path"`
	GeneratePath string        `yaml:"generate_path"`
	Timeout      time.Duration `yaml:"timeout"`
	MapType      string        `yaml:"map_type"`
}

// ExportConfig holds raster export settings.
type ExportConfig struct {
	MarginPx       int `yaml:"margin_px"`
	FallbackWidth  int `yaml:"fallback_width"`
	FallbackHeight int `yaml:"fallback_height"`
}

// NormalizeConfig holds image normalization settings.
type NormalizeConfig struct {
	// MaxDimension bounds the longer image side before the image is sent
	// to the recognition service. Larger rasters are downscaled.
	MaxDimension int `yaml:"max_dimension"`
}

// CacheConfig holds digitization result cache settings.
type CacheConfig struct {
	Driver     string        `yaml:"driver"` // memory or redis
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	ServiceName string `yaml:"service_name"`
}

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8086,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     60 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 10 * time.Second,
		},
		Recognition: RecognitionConfig{
			BaseURL:      "http://localhost:5001",
			ProcessPath:  "/process-drawing",
			GeneratePath: "/generate",
			Timeout:      90 * time.Second,
			MapType:      "mindmap",
		},
		Export: ExportConfig{
			MarginPx:       20,
			FallbackWidth:  800,
			FallbackHeight: 600,
		},
		Normalize: NormalizeConfig{
			MaxDimension: 768,
		},
		Cache: CacheConfig{
			Driver:     "memory",
			TTL:        10 * time.Minute,
			MaxEntries: 1000,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				DB:       0,
				PoolSize: 10,
			},
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			ServiceName: "digitizer",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Recognition.BaseURL == "" {
		return fmt.Errorf("recognition base_url is required")
	}

	if c.Cache.Driver != "memory" && c.Cache.Driver != "redis" {
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	if c.Normalize.MaxDimension < 16 {
		return fmt.Errorf("max_dimension must be at least 16, got %d", c.Normalize.MaxDimension)
	}

	if c.Export.FallbackWidth < 1 || c.Export.FallbackHeight < 1 {
		return fmt.Errorf("fallback canvas dimensions must be positive")
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("RECOGNITION_URL"); v != "" {
		cfg.Recognition.BaseURL = strings.TrimSuffix(v, "/")
	}

	if v := os.Getenv("RECOGNITION_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Recognition.Timeout = d
		}
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}
