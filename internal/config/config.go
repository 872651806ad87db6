package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server" envconfig:"SERVER"`
	License LicenseConfig `yaml:"license" envconfig:"LICENSE"`
	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	RequestTimeout  time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT" default:"30s"`
}

// LicenseConfig contains the authorization policy and store configuration
type LicenseConfig struct {
	// OrgDomain is the email domain suffix employees must belong to,
	// including the leading "@".
	OrgDomain    string        `yaml:"org_domain" envconfig:"ORG_DOMAIN" default:"@kaohsin.com.tw"`
	StorePath    string        `yaml:"store_path" envconfig:"STORE_PATH" default:"data/licenses.db"`
	StoreTimeout time.Duration `yaml:"store_timeout" envconfig:"STORE_TIMEOUT" default:"5s"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"stdout"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/kslicense.log"`
}

// Load loads configuration from environment variables and an optional
// YAML config file. Environment variables take precedence.
func Load() (*Config, error) {
	return LoadFromFile(configFilePath())
}

// LoadFromFile loads configuration, reading the YAML file at path if it
// exists before applying environment overrides.
func LoadFromFile(path string) (*Config, error) {
	var cfg Config

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := envconfig.Process("KSLICENSE", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks configuration invariants that would otherwise surface
// as confusing runtime failures.
func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	domain := strings.TrimSpace(c.License.OrgDomain)
	if domain == "" {
		return fmt.Errorf("license.org_domain must not be empty")
	}
	if !strings.HasPrefix(domain, "@") {
		return fmt.Errorf("license.org_domain must start with '@', got %q", domain)
	}
	c.License.OrgDomain = strings.ToLower(domain)

	if c.License.StorePath == "" {
		return fmt.Errorf("license.store_path must not be empty")
	}
	if c.License.StoreTimeout <= 0 {
		return fmt.Errorf("license.store_timeout must be positive")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}

	return nil
}

// configFilePath returns the config file location, overridable via
// KSLICENSE_CONFIG for tests and deployments.
func configFilePath() string {
	if path := os.Getenv("KSLICENSE_CONFIG"); path != "" {
		return path
	}
	return "config.yaml"
}
