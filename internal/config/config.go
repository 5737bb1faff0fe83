// Package config provides configuration management for the todo list API server.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Default configuration values.
const (
	DefaultServerPort      = 8080
	DefaultLogLevel        = "info"
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMetricsEnabled  = true
	DefaultStoreDriver     = StoreDriverMemory
	DefaultSQLitePath      = "todos.db"
	DefaultNATSSubject     = "todo.events"
)

// Supported store drivers.
const (
	StoreDriverMemory = "memory"
	StoreDriverSQLite = "sqlite"
)

// Environment variable names.
const (
	EnvConfigFile         = "APP_CONFIG_FILE"
	EnvServerPort         = "APP_SERVER_PORT"
	EnvLogLevel           = "APP_LOG_LEVEL"
	EnvShutdownTimeout    = "APP_SHUTDOWN_TIMEOUT"
	EnvMetricsEnabled     = "APP_METRICS_ENABLED"
	EnvStoreDriver        = "APP_STORE_DRIVER"
	EnvSQLitePath         = "APP_SQLITE_PATH"
	EnvCORSAllowedOrigins = "APP_CORS_ALLOWED_ORIGINS"
	EnvNATSURL            = "APP_NATS_URL"
	EnvNATSSubject        = "APP_NATS_SUBJECT"
)

// Config holds the application configuration.
type Config struct {
	// Server settings.
	ServerPort      int           `toml:"server_port" yaml:"server_port"`
	LogLevel        string        `toml:"log_level" yaml:"log_level"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout" yaml:"shutdown_timeout"`
	MetricsEnabled  bool          `toml:"metrics_enabled" yaml:"metrics_enabled"`

	// Storage: "memory" or "sqlite".
	StoreDriver string `toml:"store_driver" yaml:"store_driver"`
	SQLitePath  string `toml:"sqlite_path" yaml:"sqlite_path"`

	// Origins allowed to call the API from a browser. "*" allows any.
	CORSAllowedOrigins []string `toml:"cors_allowed_origins" yaml:"cors_allowed_origins"`

	// Event publishing to NATS. Disabled when NATSURL is empty.
	NATSURL     string `toml:"nats_url" yaml:"nats_url"`
	NATSSubject string `toml:"nats_subject" yaml:"nats_subject"`
}

// Validation errors.
var (
	ErrInvalidServerPort      = errors.New("server port must be between 1 and 65535")
	ErrInvalidLogLevel        = errors.New("log level must be one of: debug, info, warn, error")
	ErrInvalidShutdownTimeout = errors.New("shutdown timeout must be positive")
	ErrInvalidStoreDriver     = errors.New("store driver must be one of: memory, sqlite")
	ErrInvalidSQLitePath      = errors.New("sqlite path must be set when store driver is sqlite")
	ErrInvalidCORSOrigins     = errors.New("at least one CORS allowed origin must be set")
	ErrInvalidNATSSubject     = errors.New("NATS subject must be set when NATS URL is set")
	ErrUnsupportedConfigFile  = errors.New("config file must have a .toml, .yaml or .yml extension")
)

// Default returns a configuration populated with default values.
func Default() *Config {
	return &Config{
		ServerPort:         DefaultServerPort,
		LogLevel:           DefaultLogLevel,
		ShutdownTimeout:    DefaultShutdownTimeout,
		MetricsEnabled:     DefaultMetricsEnabled,
		StoreDriver:        DefaultStoreDriver,
		SQLitePath:         DefaultSQLitePath,
		CORSAllowedOrigins: []string{"*"},
		NATSSubject:        DefaultNATSSubject,
	}
}

// Load builds the configuration from defaults, then the config file at
// path (or APP_CONFIG_FILE when path is empty), then environment
// variables. Environment variables have the highest priority.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}

	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("loading config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadFile overlays values from a TOML or YAML file. Keys absent from the
// file keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), c); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		return fmt.Errorf("%s: %w", path, ErrUnsupportedConfigFile)
	}

	return nil
}

// loadFromEnv loads configuration values from environment variables.
func (c *Config) loadFromEnv() error {
	if err := c.loadServerEnv(); err != nil {
		return err
	}

	c.loadStoreEnv()
	c.loadEventsEnv()

	return nil
}

// loadServerEnv loads server-related environment variables.
func (c *Config) loadServerEnv() error {
	if val := os.Getenv(EnvServerPort); val != "" {
		port, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvServerPort, err)
		}
		c.ServerPort = port
	}

	if val := os.Getenv(EnvLogLevel); val != "" {
		c.LogLevel = val
	}

	if val := os.Getenv(EnvShutdownTimeout); val != "" {
		timeout, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvShutdownTimeout, err)
		}
		c.ShutdownTimeout = timeout
	}

	if val := os.Getenv(EnvMetricsEnabled); val != "" {
		enabled, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvMetricsEnabled, err)
		}
		c.MetricsEnabled = enabled
	}

	if val := os.Getenv(EnvCORSAllowedOrigins); val != "" {
		c.CORSAllowedOrigins = splitList(val)
	}

	return nil
}

// loadStoreEnv loads storage-related environment variables.
func (c *Config) loadStoreEnv() {
	if val := os.Getenv(EnvStoreDriver); val != "" {
		c.StoreDriver = strings.ToLower(val)
	}

	if val := os.Getenv(EnvSQLitePath); val != "" {
		c.SQLitePath = val
	}
}

// loadEventsEnv loads event publishing environment variables.
func (c *Config) loadEventsEnv() {
	if val := os.Getenv(EnvNATSURL); val != "" {
		c.NATSURL = val
	}

	if val := os.Getenv(EnvNATSSubject); val != "" {
		c.NATSSubject = val
	}
}

// Validate checks if the configuration values are valid.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateStore(); err != nil {
		return err
	}

	if c.NATSURL != "" && c.NATSSubject == "" {
		return ErrInvalidNATSSubject
	}

	return nil
}

// validateServer validates server-related configuration.
func (c *Config) validateServer() error {
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return ErrInvalidServerPort
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return ErrInvalidLogLevel
	}

	if c.ShutdownTimeout <= 0 {
		return ErrInvalidShutdownTimeout
	}

	if len(c.CORSAllowedOrigins) == 0 {
		return ErrInvalidCORSOrigins
	}

	return nil
}

// validateStore validates storage configuration.
func (c *Config) validateStore() error {
	switch c.StoreDriver {
	case StoreDriverMemory:
		return nil
	case StoreDriverSQLite:
		if c.SQLitePath == "" {
			return ErrInvalidSQLitePath
		}
		return nil
	default:
		return ErrInvalidStoreDriver
	}
}

// Address returns the server address in host:port format.
func (c *Config) Address() string {
	return fmt.Sprintf(":%d", c.ServerPort)
}

// splitList splits a comma-separated value, dropping empty entries.
func splitList(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
