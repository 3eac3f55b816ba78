// ABOUTME: Configuration loading and parsing for coven-deck
// ABOUTME: Supports YAML files with environment variable expansion

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Config represents the complete coven-deck configuration
type Config struct {
	Identity IdentityConfig `yaml:"identity"`
	API      APIConfig      `yaml:"api"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// IdentityConfig holds identity provider configuration.
// Mode "remote" talks to an identity service over HTTP; mode "local" keeps
// users in a local database and needs a JWT secret to sign tokens.
type IdentityConfig struct {
	Mode      string `yaml:"mode"` // "remote" or "local"
	URL       string `yaml:"url"`
	APIKey    string `yaml:"api_key"`
	JWTSecret string `yaml:"jwt_secret"`
}

// APIConfig holds the message-send backend configuration
type APIConfig struct {
	URL string `yaml:"url"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Identity modes
const (
	IdentityModeRemote = "remote"
	IdentityModeLocal  = "local"
)

// DefaultPath returns the path to the deck config file.
// Priority: COVEN_DECK_CONFIG env var > XDG_CONFIG_HOME/coven/deck.yaml > ~/.config/coven/deck.yaml
func DefaultPath() string {
	if envPath := os.Getenv("COVEN_DECK_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "deck.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "coven", "deck.yaml")
}

// DefaultDataPath returns the path to the deck data directory.
// Priority: XDG_DATA_HOME/coven > ~/.local/share/coven
func DefaultDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "coven")
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
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

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults fills in values the file may omit.
func (c *Config) applyDefaults() {
	if c.Identity.Mode == "" {
		c.Identity.Mode = IdentityModeRemote
	}
	if c.Database.Path == "" {
		c.Database.Path = filepath.Join(DefaultDataPath(), "deck.db")
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	switch c.Identity.Mode {
	case IdentityModeRemote:
		if c.Identity.URL == "" {
			return fmt.Errorf("identity.url is required in remote mode")
		}
	case IdentityModeLocal:
		if c.Identity.JWTSecret == "" {
			return fmt.Errorf("identity.jwt_secret is required in local mode")
		}
	default:
		return fmt.Errorf("identity.mode must be %q or %q, got %q",
			IdentityModeRemote, IdentityModeLocal, c.Identity.Mode)
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format)
	}

	return nil
}
