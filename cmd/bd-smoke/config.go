// ABOUTME: Configuration loading for the bd-smoke check client
// ABOUTME: Loads TOML config from XDG path with environment variable expansion

package main

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Gateway GatewayConfig `toml:"gateway"`
	Smoke   SmokeConfig   `toml:"smoke"`
}

type GatewayConfig struct {
	URL        string `toml:"url"`
	AdminToken string `toml:"admin_token"`
}

type SmokeConfig struct {
	// SendTo is the destination for the outbound test message. The
	// default is Twilio's magic always-valid test number.
	SendTo  string `toml:"send_to"`
	Channel string `toml:"channel"`
	// Keep leaves the smoke tenant and agent in place after the run.
	Keep bool `toml:"keep"`
}

// defaultConfigPath returns the smoke config location.
// Priority: BUTTDIAL_SMOKE_CONFIG env var > XDG_CONFIG_HOME/butt-dial/smoke.toml > ~/.config/butt-dial/smoke.toml
func defaultConfigPath() string {
	if envPath := os.Getenv("BUTTDIAL_SMOKE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "smoke.toml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "butt-dial", "smoke.toml")
}

// loadConfig reads the TOML config when it exists and falls back to
// defaults when it does not, so the tool works with nothing but flags.
func loadConfig(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables (${VAR} syntax)
	expanded := expandEnvVars(string(data))

	if _, err := toml.Decode(expanded, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.applyDefaults()

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Gateway.URL == "" {
		c.Gateway.URL = "http://localhost:8080"
	}
	if c.Gateway.AdminToken == "" {
		c.Gateway.AdminToken = os.Getenv("BUTTDIAL_ADMIN_TOKEN")
	}
	if c.Smoke.SendTo == "" {
		c.Smoke.SendTo = "+15005550006"
	}
	if c.Smoke.Channel == "" {
		c.Smoke.Channel = "sms"
	}
}

// expandEnvVars replaces ${VAR} with environment variable values.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(varName)
	})
}

// Validate checks that required config fields are present and valid.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Gateway.URL)
	if err != nil {
		return fmt.Errorf("gateway.url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("gateway.url must use http or https scheme")
	}
	if c.Gateway.AdminToken == "" {
		return fmt.Errorf("gateway.admin_token is required (or set BUTTDIAL_ADMIN_TOKEN)")
	}
	return nil
}
