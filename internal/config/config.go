package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

// Config holds user preferences and the backend connection.
// Every field can be overridden by its PROMANAGE_* environment variable
type Config struct {
	BackendURL    string `yaml:"backend_url" env:"PROMANAGE_BACKEND_URL" env-description:"base URL of the hosted backend"`
	AnonKey       string `yaml:"anon_key" env:"PROMANAGE_ANON_KEY" env-description:"public anon key sent as apikey"`
	ConfirmDelete bool   `yaml:"confirm_delete" env:"PROMANAGE_CONFIRM_DELETE"` // Require confirmation for delete

	// Logging configuration
	LogLevel   string `yaml:"log_level" env:"PROMANAGE_LOG_LEVEL"`     // Log level: DEBUG, INFO, WARN, ERROR
	LogFile    string `yaml:"log_file" env:"PROMANAGE_LOG_FILE"`       // Path to log file
	LogConsole bool   `yaml:"log_console" env:"PROMANAGE_LOG_CONSOLE"` // Enable console logging

	// Browser UI
	WebAddr      string        `yaml:"web_addr" env:"PROMANAGE_WEB_ADDR"`
	CookieSecure bool          `yaml:"cookie_secure" env:"PROMANAGE_COOKIE_SECURE"`
	RedisURL     string        `yaml:"redis_url" env:"PROMANAGE_REDIS_URL" env-description:"redis for web sessions and form dedupe, memory when empty"`
	DedupeTTL    time.Duration `yaml:"dedupe_ttl" env:"PROMANAGE_DEDUPE_TTL"`

	Tracing bool `yaml:"tracing" env:"PROMANAGE_TRACING"` // Log backend call spans at DEBUG
}

// Dir returns ~/.promanage
func Dir() string {
	home, _ := os.UserHomeDir()
	if home == "" {
		return ".promanage"
	}
	return filepath.Join(home, ".promanage")
}

// Path returns the config file location, PROMANAGE_CONFIG wins over the default
func Path() string {
	if p := os.Getenv("PROMANAGE_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(Dir(), "config.yaml")
}

// SessionDir is where the CLI and TUI keep the signed-in session
func SessionDir() string {
	return filepath.Join(Dir(), "sessions")
}

// DefaultConfig returns default settings
func DefaultConfig() *Config {
	return &Config{
		BackendURL:    "http://localhost:54321",
		ConfirmDelete: true,
		LogLevel:      "INFO",
		LogFile:       filepath.Join(Dir(), "logs", "promanage.log"),
		LogConsole:    false,
		WebAddr:       ":8080",
		DedupeTTL:     10 * time.Minute,
	}
}

// Load loads config from Path()
func Load() (*Config, error) {
	return LoadFrom(Path())
}

// LoadFrom reads the yaml file when it exists, then applies env overrides
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read env: %w", err)
		}
		return cfg, nil
	}

	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks the fields every front end needs
func (c *Config) Validate() error {
	if c.BackendURL == "" {
		return errors.New("backend_url is required")
	}
	if c.AnonKey == "" {
		return errors.New("anon_key is required (set PROMANAGE_ANON_KEY or run with --anon-key)")
	}
	return nil
}

// Save saves config to Path()
func (c *Config) Save() error {
	return c.SaveTo(Path())
}

// SaveTo writes the config as yaml
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Usage describes the environment overrides, shown by `promanage config env`
func Usage() (string, error) {
	return cleanenv.GetDescription(&Config{}, nil)
}
