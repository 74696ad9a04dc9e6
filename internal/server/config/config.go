// Package config loads the vault server configuration from a YAML file and
// ZIMX_-prefixed environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all server configuration
type Config struct {
	Listen    string          `mapstructure:"listen"`
	DBPath    string          `mapstructure:"db_path"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Log       LogConfig       `mapstructure:"log"`
}

// AuthConfig holds token issuing settings
type AuthConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

// RateLimitConfig holds request throttling settings
type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Listen: ":8080",
		DBPath: "zimx-vault.db",
		Auth: AuthConfig{
			AccessTokenTTL: 24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			Requests: 600,
			Window:   time.Minute,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("listen", defaults.Listen)
	v.SetDefault("db_path", defaults.DBPath)
	// Registered empty so Unmarshal picks the value up from the environment.
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.access_token_ttl", defaults.Auth.AccessTokenTTL)
	v.SetDefault("rate_limit.requests", defaults.RateLimit.Requests)
	v.SetDefault("rate_limit.window", defaults.RateLimit.Window)
	v.SetDefault("log.level", defaults.Log.Level)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("zimx-sync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/zimx-sync")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("ZIMX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file is fine: environment variables can carry everything.
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required settings are present and sane
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required (set ZIMX_AUTH_JWT_SECRET)")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 bytes")
	}
	if c.Auth.AccessTokenTTL <= 0 {
		return fmt.Errorf("auth.access_token_ttl must be positive")
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate_limit.requests and rate_limit.window must be positive")
	}
	return nil
}
