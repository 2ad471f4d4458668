package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v9"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	BigIP    BigIPConfig
	Apply    ApplyConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" envDefault:"8080"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Driver string `env:"DB_DRIVER" envDefault:"sqlite3"`
	DSN    string `env:"DB_DSN" envDefault:"data/rule-manager.db"`
}

// BigIPConfig holds BIG-IP connection configuration.
type BigIPConfig struct {
	Host          string        `env:"BIGIP_HOST"`
	Username      string        `env:"BIGIP_USERNAME"`
	Password      string        `env:"BIGIP_PASSWORD"`
	LoginProvider string        `env:"BIGIP_LOGIN_PROVIDER" envDefault:"tmos"`
	SkipVerify    bool          `env:"BIGIP_SKIP_VERIFY" envDefault:"false"`
	Timeout       time.Duration `env:"BIGIP_TIMEOUT" envDefault:"30s"`
	FileShim      string        `env:"BIGIP_FILE_SHIM"` // Path to file for testing shim (disables real API)
}

// ApplyConfig holds apply behavior configuration.
type ApplyConfig struct {
	AutoApply       bool          `env:"AUTO_APPLY" envDefault:"true"`
	Debounce        time.Duration `env:"APPLY_DEBOUNCE" envDefault:"5s"`
	BootstrapAPIKey string        `env:"BOOTSTRAP_API_KEY"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(&cfg.Server); err != nil {
		return nil, fmt.Errorf("parsing server config: %w", err)
	}
	if err := env.Parse(&cfg.Database); err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	if err := env.Parse(&cfg.BigIP); err != nil {
		return nil, fmt.Errorf("parsing bigip config: %w", err)
	}
	if err := env.Parse(&cfg.Apply); err != nil {
		return nil, fmt.Errorf("parsing apply config: %w", err)
	}

	return cfg, nil
}

// Addr returns the server address in host:port format.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	// If using file shim, device credentials are not required
	if c.BigIP.FileShim == "" {
		if c.BigIP.Host == "" {
			return fmt.Errorf("BIGIP_HOST is required (or set BIGIP_FILE_SHIM for testing)")
		}
		if c.BigIP.Username == "" {
			return fmt.Errorf("BIGIP_USERNAME is required (or set BIGIP_FILE_SHIM for testing)")
		}
		if c.BigIP.Password == "" {
			return fmt.Errorf("BIGIP_PASSWORD is required (or set BIGIP_FILE_SHIM for testing)")
		}
	}
	return nil
}

// UseFileShim returns true if the file shim should be used instead of the real API.
func (c *Config) UseFileShim() bool {
	return c.BigIP.FileShim != ""
}
