package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration for the projection service.
type Config struct {
	ServiceName string
	Env         string
	Port        string

	DatabaseURL string
	RedisURL    string

	// Text-generation service settings
	ClaudeAPIKey   string
	ClaudeBaseURL  string
	ClaudeModel    string
	ClaudeTimeout  time.Duration
	ClaudeMaxToken int

	// Default model version served when the request omits one
	DefaultModelVersion string

	LogLevel string
}

// LoadConfig reads configuration from environment variables with sane defaults.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("ENV", "development")
	v.SetDefault("PORT", "8085")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CLAUDE_BASE_URL", "https://api.anthropic.com/v1")
	v.SetDefault("CLAUDE_MODEL", "claude-sonnet-4-20250514")
	v.SetDefault("CLAUDE_TIMEOUT_SECONDS", 15)
	v.SetDefault("CLAUDE_MAX_TOKENS", 4000)
	v.SetDefault("DEFAULT_MODEL_VERSION", "nightly-latest")

	cfg := &Config{
		ServiceName:         "projection-service",
		Env:                 v.GetString("ENV"),
		Port:                v.GetString("PORT"),
		DatabaseURL:         v.GetString("DATABASE_URL"),
		RedisURL:            v.GetString("REDIS_URL"),
		ClaudeAPIKey:        v.GetString("CLAUDE_API_KEY"),
		ClaudeBaseURL:       v.GetString("CLAUDE_BASE_URL"),
		ClaudeModel:         v.GetString("CLAUDE_MODEL"),
		ClaudeTimeout:       time.Duration(v.GetInt("CLAUDE_TIMEOUT_SECONDS")) * time.Second,
		ClaudeMaxToken:      v.GetInt("CLAUDE_MAX_TOKENS"),
		DefaultModelVersion: v.GetString("DEFAULT_MODEL_VERSION"),
		LogLevel:            v.GetString("LOG_LEVEL"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	return cfg, nil
}

// IsDevelopment returns true when running in a development environment
func (c *Config) IsDevelopment() bool {
	return c.Env == "development" || c.Env == "dev" || c.Env == "local"
}
