// ABOUTME: Configuration loading and parsing for butt-dial
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete butt-dial configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Throttle  ThrottleConfig  `yaml:"throttle"`
	Providers ProvidersConfig `yaml:"providers"`
	Webhooks  WebhooksConfig  `yaml:"webhooks"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
	// PublicURL is the externally reachable base URL, used when
	// registering provider webhook callbacks.
	PublicURL string `yaml:"public_url"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Hostname  string `yaml:"hostname"`
	AuthKey   string `yaml:"auth_key"`
	StateDir  string `yaml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	// DemoAdminToken, when set, is accepted as a super-admin bearer.
	// Meant for demo installs; leave empty in production.
	DemoAdminToken string `yaml:"demo_admin_token"`
}

// ThrottleConfig holds outbound rate limit configuration. A zero limit
// disables that counter.
type ThrottleConfig struct {
	GlobalPerMinute int  `yaml:"global_per_minute"`
	AgentPerMinute  int  `yaml:"agent_per_minute"`
	GlobalPerHour   int  `yaml:"global_per_hour"`
	AgentPerHour    int  `yaml:"agent_per_hour"`
	Bypass          bool `yaml:"bypass"`
}

// ProvidersConfig holds channel backend configuration
type ProvidersConfig struct {
	// Mode selects "live" or "simulated" backends. Everything downstream
	// of the registry behaves identically either way.
	Mode   string       `yaml:"mode"`
	Twilio TwilioConfig `yaml:"twilio"`
	Line   LineConfig   `yaml:"line"`
	Matrix MatrixConfig `yaml:"matrix"`
	AWS    AWSConfig    `yaml:"aws"`
}

// TwilioConfig holds Twilio credentials for SMS, WhatsApp, and voice
type TwilioConfig struct {
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
}

// LineConfig holds LINE Messaging API configuration
type LineConfig struct {
	Enabled      bool   `yaml:"enabled"`
	ChannelToken string `yaml:"channel_token"`
}

// MatrixConfig holds Matrix homeserver configuration
type MatrixConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Homeserver  string `yaml:"homeserver"`
	UserID      string `yaml:"user_id"`
	AccessToken string `yaml:"access_token"`
}

// AWSConfig holds configuration for the SES and Polly backends
type AWSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Region  string `yaml:"region"`
	// EmailFrom is the verified sender address for outbound email.
	EmailFrom string `yaml:"email_from"`
}

// WebhooksConfig holds inbound webhook processing configuration
type WebhooksConfig struct {
	DedupeTTL     time.Duration `yaml:"-"`
	DedupeMaxSize int           `yaml:"dedupe_max_size"`

	// Raw string value for YAML unmarshaling
	DedupeTTLRaw string `yaml:"dedupe_ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Modes for ProvidersConfig.Mode
const (
	ModeLive      = "live"
	ModeSimulated = "simulated"
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyDefaults(&cfg)

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills the fields that cannot sensibly be empty.
func applyDefaults(cfg *Config) {
	if cfg.Providers.Mode == "" {
		cfg.Providers.Mode = ModeSimulated
	}
	if cfg.Webhooks.DedupeTTL == 0 {
		cfg.Webhooks.DedupeTTL = 10 * time.Minute
	}
	if cfg.Webhooks.DedupeMaxSize == 0 {
		cfg.Webhooks.DedupeMaxSize = 4096
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	// The HTTP address is required unless Tailscale is the listener
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	// Tailscale requires a hostname
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Providers.Mode != ModeLive && c.Providers.Mode != ModeSimulated {
		return fmt.Errorf("providers.mode must be %q or %q, got %q", ModeLive, ModeSimulated, c.Providers.Mode)
	}

	// Some admin credential must exist or the provisioning surface is
	// unreachable
	if c.Auth.JWTSecret == "" && c.Auth.DemoAdminToken == "" {
		return fmt.Errorf("auth.jwt_secret or auth.demo_admin_token is required")
	}

	if c.Providers.Mode == ModeLive {
		if c.Providers.Twilio.AccountSID == "" || c.Providers.Twilio.AuthToken == "" {
			return fmt.Errorf("providers.twilio credentials are required in live mode")
		}
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Webhooks.DedupeTTLRaw != "" {
		cfg.Webhooks.DedupeTTL, err = time.ParseDuration(cfg.Webhooks.DedupeTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing dedupe_ttl %q: %w", cfg.Webhooks.DedupeTTLRaw, err)
		}
	}

	return nil
}
