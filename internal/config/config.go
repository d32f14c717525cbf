package config

import (
	"fmt"
	"strings"

	"wagate/internal/models"

	"github.com/ilyakaznacheev/cleanenv"
)

var (
	ErrMissingDatabaseURI = models.ConfigError{Message: "missing database URI (set WAGATE_DATABASE_URI)"}
	ErrMissingEngineURL   = models.ConfigError{Message: "missing engine URL"}
	ErrInvalidPort        = models.ConfigError{Message: "listen port must be between 1 and 65535"}
)

// Load builds the immutable configuration snapshot from the environment.
// The database URI is the only mandatory value; its absence is a fatal
// configuration error raised before any connection attempt.
func Load() (*models.Config, error) {
	var cfg models.Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(c *models.Config) error {
	if c.DatabaseURI == "" {
		return ErrMissingDatabaseURI
	}
	if c.EngineURL == "" {
		return ErrMissingEngineURL
	}
	if !strings.HasPrefix(c.EngineURL, "ws://") && !strings.HasPrefix(c.EngineURL, "wss://") {
		return models.ConfigError{Message: fmt.Sprintf("engine URL must be a ws:// or wss:// endpoint, got %q", c.EngineURL)}
	}
	if c.Port <= 0 || c.Port > 65535 {
		return ErrInvalidPort
	}
	if c.SessionName == "" {
		return models.ConfigError{Message: "session name must not be empty"}
	}

	if c.RetentionDays <= 0 {
		c.RetentionDays = 30
	}
	if c.CleanupIntervalHours <= 0 {
		c.CleanupIntervalHours = 24
	}
	return nil
}
