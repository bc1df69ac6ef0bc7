package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v10"
)

// Config carries every environment-driven setting of the chat API.
type Config struct {
	HTTPPort  int    `env:"HTTP_PORT" envDefault:"8080"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Completion provider
	CompletionBaseURL string `env:"COMPLETION_BASE_URL,notEmpty"`
	CompletionAPIKey  string `env:"COMPLETION_API_KEY"`
	CompletionModel   string `env:"COMPLETION_MODEL" envDefault:"llama-3.3-70b-versatile"`
	VisionModel       string `env:"VISION_MODEL" envDefault:"meta-llama/llama-4-scout-17b-16e-instruct"`
	WhisperModel      string `env:"WHISPER_MODEL" envDefault:"whisper-large-v3"`
	CompletionTokens  int    `env:"COMPLETION_MAX_TOKENS" envDefault:"1000"`

	// Context budget
	MaxTokens     int `env:"MAX_TOKENS" envDefault:"128000"`
	ReserveTokens int `env:"RESERVE_TOKENS" envDefault:"1000"`

	// Sampling
	Temperature      float32 `env:"TEMPERATURE" envDefault:"0.7"`
	RegenTemperature float32 `env:"REGEN_TEMPERATURE" envDefault:"0.9"`

	// Session identity. Empty means anonymous: memory is disabled and threads
	// persist to the local store instead of the database.
	UserID string `env:"USER_ID"`

	// Memory service
	MemoryBaseURL string `env:"MEMORY_BASE_URL"`
	MemoryAPIKey  string `env:"MEMORY_API_KEY"`

	// Persistence
	DatabaseURL    string `env:"DATABASE_URL"`
	LocalStorePath string `env:"LOCAL_STORE_PATH" envDefault:"data/openchat"`
}

// Load parses the environment into a Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints env tags cannot express.
func (c *Config) Validate() error {
	if c.ReserveTokens >= c.MaxTokens {
		return fmt.Errorf("RESERVE_TOKENS (%d) must be smaller than MAX_TOKENS (%d)", c.ReserveTokens, c.MaxTokens)
	}
	if c.Authenticated() && strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required when USER_ID is set")
	}
	return nil
}

// Authenticated reports whether the session has a user identity.
func (c *Config) Authenticated() bool {
	return strings.TrimSpace(c.UserID) != ""
}
