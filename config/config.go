// Package config loads server configuration from an optional .env file,
// the environment, and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config holds all server configuration.
type Config struct {
	Server  ServerConfig
	Logging LoggingConfig
	Storage StorageConfig
	Anaplan AnaplanConfig
	Mock    MockConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `env:"HOST" default:""`
	Port int    `env:"PORT" default:"3001"`

	// AllowedOrigins feeds the CORS handler. "*" allows any origin.
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" default:"*"`

	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"90s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level       string `env:"LOG_LEVEL" default:"info"`
	Development bool   `env:"LOG_DEVELOPMENT" default:"false"`
}

// StorageConfig holds the saved-connection database settings.
type StorageConfig struct {
	// DBPath is the SQLite file. ":memory:" keeps nothing across restarts.
	DBPath string `env:"DB_PATH" default:"planning.db"`
}

// AnaplanConfig holds the Anaplan adapter settings. Credentials here are
// the defaults used when a connect request carries none.
type AnaplanConfig struct {
	Email    string        `env:"ANAPLAN_EMAIL"`
	Password string        `env:"ANAPLAN_PASSWORD"`
	Token    string        `env:"ANAPLAN_TOKEN"`
	AuthURL  string        `env:"ANAPLAN_AUTH_URL" default:"https://auth.anaplan.com/token/authenticate"`
	APIBase  string        `env:"ANAPLAN_API_BASE" default:"https://api.anaplan.com/2/0"`
	Timeout  time.Duration `env:"ANAPLAN_TIMEOUT" default:"60s"`

	// DiscoveryConcurrency bounds parallel line item requests in schema discovery.
	DiscoveryConcurrency int `env:"ANAPLAN_DISCOVERY_CONCURRENCY" default:"4"`
}

// MockConfig holds the simulator settings.
type MockConfig struct {
	Seed int64 `env:"MOCK_SEED" default:"42"`
}

// Validate checks that the configuration is usable.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.WriteTimeout < 0 {
		errs = append(errs, "SERVER_WRITE_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}
	if len(c.Server.AllowedOrigins) == 0 {
		errs = append(errs, "CORS_ALLOWED_ORIGINS must not be empty")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("LOG_LEVEL %q must be debug, info, warn or error", c.Logging.Level))
	}

	if c.Storage.DBPath == "" {
		errs = append(errs, "DB_PATH is required")
	}

	if c.Anaplan.Timeout <= 0 {
		errs = append(errs, "ANAPLAN_TIMEOUT must be positive")
	}
	if c.Anaplan.DiscoveryConcurrency <= 0 {
		errs = append(errs, "ANAPLAN_DISCOVERY_CONCURRENCY must be positive")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
