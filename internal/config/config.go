package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

// Config holds the application configuration.
type Config struct {
	APIBaseURL     string `env:"API_BASE_URL"`
	LogLevel       string `env:"LOG_LEVEL" default:"info"`
	LogDevelopment bool   `env:"LOG_DEVELOPMENT" default:"false"`

	SourceWidth  int `env:"SOURCE_WIDTH" default:"1280"`
	SourceHeight int `env:"SOURCE_HEIGHT" default:"720"`
	SourceFPS    int `env:"SOURCE_FPS" default:"30"`
}

// Load reads configuration from a .env file (if present) and environment variables.
// Environment variables take precedence over .env values.
func Load() (*Config, error) {
	// godotenv.Load does not overwrite existing env vars
	_ = godotenv.Load()

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// RequireAPIBaseURL fails when no token backend is configured.
func (c *Config) RequireAPIBaseURL() error {
	if c.APIBaseURL == "" {
		return errors.New("API_BASE_URL environment variable is required")
	}
	return nil
}

func validate(cfg *Config) error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error, got %q", cfg.LogLevel)
	}

	dims := []struct {
		name  string
		value int
	}{
		{"SOURCE_WIDTH", cfg.SourceWidth},
		{"SOURCE_HEIGHT", cfg.SourceHeight},
	}
	for _, d := range dims {
		if d.value <= 0 || d.value%2 != 0 {
			return fmt.Errorf("%s must be a positive even number, got %d", d.name, d.value)
		}
	}

	if cfg.SourceFPS <= 0 {
		return fmt.Errorf("SOURCE_FPS must be positive, got %d", cfg.SourceFPS)
	}
	return nil
}
