package agent

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dyluth/vigil/pkg/signing"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces the validator's environment variables (VIGIL_HUB_URL, ...).
const EnvPrefix = "VIGIL"

// Configuration keys, shared by flags, env vars and config files.
const (
	KeyHubURL        = "hub_url"
	KeySecretKey     = "secret_key"
	KeyIP            = "ip"
	KeyProbeTimeout  = "probe_timeout"
	KeySignupTimeout = "signup_timeout"
	KeyLogLevel      = "log_level"
	KeyLogFormat     = "log_format"
)

// Config holds the validator's runtime configuration.
type Config struct {
	// HubURL is the hub's websocket endpoint
	HubURL string `mapstructure:"hub_url"`

	// SecretKey is the Ed25519 secret key as a JSON byte array or base58
	SecretKey string `mapstructure:"secret_key"`

	// IP is the address advertised at signup, used for location lookup
	IP string `mapstructure:"ip"`

	// ProbeTimeout bounds a single HTTP check
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`

	// SignupTimeout is how long to wait for a signup ack before reconnecting
	SignupTimeout time.Duration `mapstructure:"signup_timeout"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// NewViper returns a viper instance with defaults and VIGIL_* env binding.
// VALIDATOR_SECRET_KEY is accepted as an alias for VIGIL_SECRET_KEY.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyHubURL, "ws://localhost:8081")
	v.SetDefault(KeyProbeTimeout, 10*time.Second)
	v.SetDefault(KeySignupTimeout, 30*time.Second)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "json")

	v.BindEnv(KeySecretKey, EnvPrefix+"_SECRET_KEY", "VALIDATOR_SECRET_KEY")
	v.BindEnv(KeyIP)
	return v
}

// LoadConfig reads the configuration from v and validates it.
func LoadConfig(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode validator config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that all required fields are present and valid.
func (c *Config) Validate() error {
	if c.HubURL == "" {
		return fmt.Errorf("%s is required", KeyHubURL)
	}
	u, err := url.Parse(c.HubURL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return fmt.Errorf("%s must be a ws:// or wss:// URL, got %q", KeyHubURL, c.HubURL)
	}

	if c.SecretKey == "" {
		return fmt.Errorf("%s is required (set %s_SECRET_KEY or VALIDATOR_SECRET_KEY)", KeySecretKey, EnvPrefix)
	}
	if _, err := signing.ParseSecretKey(c.SecretKey); err != nil {
		return fmt.Errorf("invalid %s: %w", KeySecretKey, err)
	}

	if c.ProbeTimeout <= 0 {
		return fmt.Errorf("%s must be > 0, got %s", KeyProbeTimeout, c.ProbeTimeout)
	}
	if c.SignupTimeout <= 0 {
		return fmt.Errorf("%s must be > 0, got %s", KeySignupTimeout, c.SignupTimeout)
	}

	return nil
}

// KeyPair parses the configured secret key.
func (c *Config) KeyPair() (*signing.KeyPair, error) {
	return signing.ParseSecretKey(c.SecretKey)
}
