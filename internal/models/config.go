package models

import "strings"

// Config is the immutable environment-derived configuration snapshot.
// It is built once at startup and never mutated afterwards.
type Config struct {
	BotName       string `env:"WAGATE_BOT_NAME" env-default:"wagate"`
	SessionName   string `env:"WAGATE_SESSION_NAME" env-default:"default"`
	CommandPrefix string `env:"WAGATE_COMMAND_PREFIX" env-default:"!"`

	// Moderators holds the raw comma-space-separated moderator phone number
	// list as provided in the environment. Use ModeratorList for lookups.
	Moderators string `env:"WAGATE_MODERATORS"`

	ChatBotURL  string `env:"WAGATE_CHATBOT_URL"`
	Port        int    `env:"WAGATE_PORT" env-default:"8082"`
	EngineURL   string `env:"WAGATE_ENGINE_URL" env-default:"ws://localhost:3001"`
	DatabaseURI string `env:"WAGATE_DATABASE_URI"`
	LogLevel    string `env:"WAGATE_LOG_LEVEL" env-default:"info"`

	RetentionDays        int `env:"WAGATE_RETENTION_DAYS" env-default:"30"`
	CleanupIntervalHours int `env:"WAGATE_CLEANUP_INTERVAL_HOURS" env-default:"24"`

	Tracing TracingConfig
}

// TracingConfig contains the OpenTelemetry knobs.
type TracingConfig struct {
	Enabled      bool    `env:"WAGATE_TRACING_ENABLED" env-default:"false"`
	UseStdout    bool    `env:"WAGATE_TRACING_STDOUT" env-default:"true"`
	OTLPEndpoint string  `env:"WAGATE_TRACING_OTLP_ENDPOINT" env-default:"localhost:4318"`
	SampleRate   float64 `env:"WAGATE_TRACING_SAMPLE_RATE" env-default:"0.1"`
	Environment  string  `env:"WAGATE_ENV" env-default:"development"`
}

// ModeratorList returns the parsed moderator phone numbers. The raw value is
// comma-space separated ("123, 456"); stray whitespace around entries is
// trimmed and empty entries dropped.
func (c *Config) ModeratorList() []string {
	if c.Moderators == "" {
		return nil
	}
	parts := strings.Split(c.Moderators, ",")
	mods := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			mods = append(mods, p)
		}
	}
	return mods
}

// IsModerator reports whether the given phone number is configured as a moderator.
func (c *Config) IsModerator(phoneNumber string) bool {
	for _, m := range c.ModeratorList() {
		if m == phoneNumber {
			return true
		}
	}
	return false
}

// ConfigError represents a configuration validation failure.
type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
