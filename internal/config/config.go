// Package config loads bankshield settings from defaults, ~/.bankshield/config.yaml,
// a local .env file and BANKSHIELD_* environment variables, in that order of precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultBaseURL is the local development backend
const DefaultBaseURL = "http://localhost:8000/api"

// Config is the full client configuration
type Config struct {
	API           APIConfig          `yaml:"api"`
	Auth          AuthConfig         `yaml:"auth"`
	Logging       LoggingConfig      `yaml:"logging"`
	Notifications NotificationConfig `yaml:"notifications"`
	Dashboard     DashboardConfig    `yaml:"dashboard"`
	Metrics       MetricsConfig      `yaml:"metrics"`
}

// APIConfig controls how the backend is reached
type APIConfig struct {
	BaseURL        string        `yaml:"base_url"`
	Timeout        time.Duration `yaml:"timeout"`
	StrictContract bool          `yaml:"strict_contract"`
}

// AuthConfig controls where the session credential is kept
type AuthConfig struct {
	TokenFile string `yaml:"token_file,omitempty"`
	// Passphrase seals the token file at rest when set. Prefer the env var.
	Passphrase string `yaml:"passphrase,omitempty"`
}

// LoggingConfig configures the structured logger
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// NotificationConfig configures the notification broker
type NotificationConfig struct {
	DefaultDuration time.Duration `yaml:"default_duration"`
}

// DashboardConfig configures the interactive dashboard
type DashboardConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// MetricsConfig configures the optional Prometheus endpoint
type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		API: APIConfig{
			BaseURL: DefaultBaseURL,
			Timeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
		},
		Notifications: NotificationConfig{
			DefaultDuration: 5 * time.Second,
		},
		Dashboard: DashboardConfig{
			RefreshInterval: 5 * time.Minute,
		},
	}
}

// Dir returns the bankshield state directory (~/.bankshield)
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".bankshield"), nil
}

// DefaultPath returns the path of the global configuration file
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// TokenFile returns the configured credential file, defaulting into the state directory
func (c Config) TokenFile() (string, error) {
	if c.Auth.TokenFile != "" {
		return c.Auth.TokenFile, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "credentials.json"), nil
}

// Load reads the configuration file at path (the default path when empty),
// then a .env file in the working directory, then the environment.
// A missing configuration file is not an error.
func Load(path string) (Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return cfg, err
	}

	// .env never overrides variables already present in the environment
	_ = godotenv.Load()

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

// LoadFile reads defaults and the configuration file only, ignoring the
// environment. It is what "config set" edits.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return cfg, err
		}
		path = p
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case !os.IsNotExist(err):
		return cfg, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration to path, creating its directory
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// Validate checks settings that would otherwise fail at request time
func (c Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid api.base_url %q: must be an absolute http(s) URL", c.API.BaseURL)
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("invalid api.timeout %s: must be positive", c.API.Timeout)
	}
	if c.Notifications.DefaultDuration <= 0 {
		return fmt.Errorf("invalid notifications.default_duration %s: must be positive", c.Notifications.DefaultDuration)
	}
	return nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	if v, ok := lookup("BANKSHIELD_API_URL"); ok && v != "" {
		cfg.API.BaseURL = strings.TrimRight(v, "/")
	}
	if v, ok := lookup("BANKSHIELD_API_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid BANKSHIELD_API_TIMEOUT: %w", err)
		}
		cfg.API.Timeout = d
	}
	if v, ok := lookup("BANKSHIELD_STRICT_CONTRACT"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid BANKSHIELD_STRICT_CONTRACT: %w", err)
		}
		cfg.API.StrictContract = b
	}
	if v, ok := lookup("BANKSHIELD_TOKEN_FILE"); ok && v != "" {
		cfg.Auth.TokenFile = v
	}
	if v, ok := lookup("BANKSHIELD_TOKEN_PASSPHRASE"); ok && v != "" {
		cfg.Auth.Passphrase = v
	}
	if v, ok := lookup("BANKSHIELD_LOG_LEVEL"); ok && v != "" {
		cfg.Logging.Level = v
	}
	if v, ok := lookup("BANKSHIELD_LOG_FORMAT"); ok && v != "" {
		cfg.Logging.Format = v
	}
	if v, ok := lookup("BANKSHIELD_METRICS_ADDR"); ok && v != "" {
		cfg.Metrics.Addr = v
	}
	return nil
}
