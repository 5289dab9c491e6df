package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file the hub looks for when no --config flag is given.
const DefaultPath = "vigil.yml"

// Environment variables that override file values.
const (
	EnvRedisURL     = "REDIS_URL"
	EnvPostgresDSN  = "POSTGRES_DSN"
	EnvIPGeoAPIKey  = "IPGEO_API_KEY"
	EnvInstanceName = "VIGIL_INSTANCE_NAME"
)

// HubConfig represents the top-level vigil.yml configuration
type HubConfig struct {
	Version    string         `yaml:"version"`
	Instance   string         `yaml:"instance"`    // namespaces all Redis keys
	ListenAddr string         `yaml:"listen_addr"` // websocket + operator HTTP
	Dispatch   DispatchConfig `yaml:"dispatch"`
	Payout     PayoutConfig   `yaml:"payout"`
	Store      StoreConfig    `yaml:"store"`
	Geo        GeoConfig      `yaml:"geo"`
	Log        LogConfig      `yaml:"log"`
}

// DispatchConfig controls the fan-out scheduler and pending assignment lifetime
type DispatchConfig struct {
	Interval          time.Duration `yaml:"interval"`
	AssignmentTimeout time.Duration `yaml:"assignment_timeout"` // pending callbacks older than this are swept
	SweepInterval     time.Duration `yaml:"sweep_interval"`
	SendBuffer        int           `yaml:"send_buffer"` // outbound frames queued per connection
}

// PayoutConfig specifies the credit per verified check result
type PayoutConfig struct {
	CostPerValidation int64 `yaml:"cost_per_validation"`
}

// StoreConfig selects the durable store backend
type StoreConfig struct {
	Driver      string `yaml:"driver"` // "redis" or "postgres"
	RedisURL    string `yaml:"redis_url,omitempty"`
	PostgresDSN string `yaml:"postgres_dsn,omitempty"`
}

// GeoConfig configures best-effort IP location lookups. Empty APIKey disables lookups.
type GeoConfig struct {
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"api_key,omitempty"`
	Timeout  time.Duration `yaml:"timeout"`
}

// LogConfig specifies logger level and encoding
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "console"
}

// Default returns a configuration with every default applied.
func Default() *HubConfig {
	return &HubConfig{
		Version:    "1.0",
		Instance:   "default",
		ListenAddr: ":8081",
		Dispatch: DispatchConfig{
			Interval:          60 * time.Second,
			AssignmentTimeout: 60 * time.Second,
			SweepInterval:     5 * time.Second,
			SendBuffer:        256,
		},
		Payout: PayoutConfig{CostPerValidation: 100},
		Store: StoreConfig{
			Driver:   "redis",
			RedisURL: "redis://localhost:6379",
		},
		Geo: GeoConfig{
			Endpoint: "https://api.ipgeolocation.io/ipgeo",
			Timeout:  5 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// ApplyEnv overrides file values with any set environment variables.
func (c *HubConfig) ApplyEnv() {
	if v := os.Getenv(EnvRedisURL); v != "" {
		c.Store.RedisURL = v
	}
	if v := os.Getenv(EnvPostgresDSN); v != "" {
		c.Store.PostgresDSN = v
	}
	if v := os.Getenv(EnvIPGeoAPIKey); v != "" {
		c.Geo.APIKey = v
	}
	if v := os.Getenv(EnvInstanceName); v != "" {
		c.Instance = v
	}
}

// Validate performs strict validation on the configuration
func (c *HubConfig) Validate() error {
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if c.Instance == "" {
		return fmt.Errorf("instance is required")
	}

	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}

	if err := c.Dispatch.Validate(); err != nil {
		return err
	}

	if c.Payout.CostPerValidation < 0 {
		return fmt.Errorf("payout.cost_per_validation must be >= 0, got %d", c.Payout.CostPerValidation)
	}

	if err := c.Store.Validate(); err != nil {
		return err
	}

	if c.Geo.APIKey != "" {
		if _, err := url.ParseRequestURI(c.Geo.Endpoint); err != nil {
			return fmt.Errorf("geo.endpoint is not a valid URL: %s", c.Geo.Endpoint)
		}
		if c.Geo.Timeout <= 0 {
			return fmt.Errorf("geo.timeout must be > 0, got %s", c.Geo.Timeout)
		}
	}

	if c.Log.Format != "" && c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("invalid log.format: %s (must be 'json' or 'console')", c.Log.Format)
	}

	return nil
}

// Validate checks scheduler timings and buffer sizes
func (d *DispatchConfig) Validate() error {
	if d.Interval <= 0 {
		return fmt.Errorf("dispatch.interval must be > 0, got %s", d.Interval)
	}
	if d.AssignmentTimeout <= 0 {
		return fmt.Errorf("dispatch.assignment_timeout must be > 0, got %s", d.AssignmentTimeout)
	}
	if d.SweepInterval <= 0 {
		return fmt.Errorf("dispatch.sweep_interval must be > 0, got %s", d.SweepInterval)
	}
	if d.SweepInterval > d.AssignmentTimeout {
		return fmt.Errorf("dispatch.sweep_interval (%s) must not exceed dispatch.assignment_timeout (%s)", d.SweepInterval, d.AssignmentTimeout)
	}
	if d.SendBuffer < 1 {
		return fmt.Errorf("dispatch.send_buffer must be >= 1, got %d", d.SendBuffer)
	}
	return nil
}

// Validate checks that the selected driver has its connection string
func (s *StoreConfig) Validate() error {
	switch s.Driver {
	case "redis":
		if s.RedisURL == "" {
			return fmt.Errorf("store.redis_url is required for driver 'redis'")
		}
	case "postgres":
		if s.PostgresDSN == "" {
			return fmt.Errorf("store.postgres_dsn is required for driver 'postgres'")
		}
	default:
		return fmt.Errorf("invalid store.driver: %s (must be 'redis' or 'postgres')", s.Driver)
	}
	return nil
}

// Load reads vigil.yml from path on top of the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*HubConfig, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	config.ApplyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}
