package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Hass            HassConfig     `yaml:"hass"`
	Database        DatabaseConfig `yaml:"database"`
	Log             LogConfig      `yaml:"log"`
	Scenes          ScenesConfig   `yaml:"scenes"`
	Updater         UpdaterConfig  `yaml:"updater"`
	API             APIConfig      `yaml:"api"`
	EventBus        EventBusConfig `yaml:"eventbus"`
	ShutdownTimeout Duration       `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// HassConfig contains Home Assistant connection settings
type HassConfig struct {
	URL         string   `yaml:"url"`   // Websocket API URL, e.g. ws://hass:8123/api/websocket
	Token       string   `yaml:"token"` // Long-lived access token
	CallTimeout Duration `yaml:"call_timeout"`

	// Websocket reconnect settings
	MinRetryBackoff Duration `yaml:"min_retry_backoff"` // Minimum backoff between reconnects (default: 1s)
	MaxRetryBackoff Duration `yaml:"max_retry_backoff"` // Maximum backoff between reconnects (default: 2m)
	RetryMultiplier float64  `yaml:"retry_multiplier"`  // Backoff multiplier (default: 2.0)
	MaxReconnects   int      `yaml:"max_reconnects"`    // Max reconnect attempts, 0 = infinite (default: 0)

	RateLimitRPS float64 `yaml:"rate_limit_rps"` // Service call rate limit (default: 10)
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Colors bool   `yaml:"colors"`
	JSON   bool   `yaml:"json"` // Structured JSON output instead of console writer
}

// ScenesConfig points at the scene definition file
type ScenesConfig struct {
	Path string `yaml:"path"`
}

// UpdaterConfig contains control loop settings
type UpdaterConfig struct {
	DefaultDelay    Duration `yaml:"default_delay"`    // Delay before a scheduled write fires (default: 1s)
	RefreshInterval Duration `yaml:"refresh_interval"` // Max time between target recomputations (default: 1m)
}

// APIConfig contains API server settings
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 4)
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 100)
}

// GetWorkers returns worker count with default
func (c *EventBusConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return 4
	}
	return c.Workers
}

// GetQueueSize returns queue size with default
func (c *EventBusConfig) GetQueueSize() int {
	if c.QueueSize <= 0 {
		return 100
	}
	return c.QueueSize
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	if cfg.Hass.URL == "" {
		return nil, fmt.Errorf("hass.url is required")
	}
	if cfg.Hass.Token == "" {
		return nil, fmt.Errorf("hass.token is required")
	}

	// Set defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./dynscenes.sqlite"
	}
	if cfg.Scenes.Path == "" {
		cfg.Scenes.Path = "scenes.yaml"
	}

	// Hass defaults
	if cfg.Hass.CallTimeout == 0 {
		cfg.Hass.CallTimeout = Duration(10 * time.Second)
	}
	if cfg.Hass.MinRetryBackoff == 0 {
		cfg.Hass.MinRetryBackoff = Duration(1 * time.Second)
	}
	if cfg.Hass.MaxRetryBackoff == 0 {
		cfg.Hass.MaxRetryBackoff = Duration(2 * time.Minute)
	}
	if cfg.Hass.RetryMultiplier == 0 {
		cfg.Hass.RetryMultiplier = 2.0
	}
	// MaxReconnects defaults to 0 (infinite), no need to set
	if cfg.Hass.RateLimitRPS == 0 {
		cfg.Hass.RateLimitRPS = 10.0
	}

	// Updater defaults
	if cfg.Updater.DefaultDelay == 0 {
		cfg.Updater.DefaultDelay = Duration(1 * time.Second)
	}
	if cfg.Updater.RefreshInterval == 0 {
		cfg.Updater.RefreshInterval = Duration(1 * time.Minute)
	}

	// API defaults
	if cfg.API.Port == 0 {
		cfg.API.Port = 9090
	}
	if cfg.API.Host == "" {
		cfg.API.Host = "0.0.0.0"
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}

	return &cfg, nil
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
