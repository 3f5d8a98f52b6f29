package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/vchat-meme-blip/polymarket-cafe/internal/director"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	Env         string
	DatabaseURL string
	SQLitePath  string
	RedisURL    string

	// Completion provider
	OpenAIKeys    []string
	OpenAIBaseURL string
	OpenAIModel   string

	// ControlTokenHash is the bcrypt hash guarding mutating routes.
	ControlTokenHash string

	// AgentsFile seeds the ledger at startup.
	AgentsFile string
	// DirectorConfig is an optional YAML file of director tuning.
	DirectorConfig string
	// EventsChannel is the Redis pub/sub channel for cross-instance events.
	EventsChannel string

	Director director.Config
}

// Load reads configuration from environment variables. envFiles are
// loaded first (variables already set win); with none given, a .env in
// the working directory is used if present. Production requires a
// ledger database, Redis, provider keys and a control token.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return nil, fmt.Errorf("load env files: %w", err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		Env:              getEnv("ENV", "development"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		SQLitePath:       os.Getenv("SQLITE_PATH"),
		RedisURL:         os.Getenv("REDIS_URL"),
		OpenAIKeys:       splitList(os.Getenv("OPENAI_API_KEYS")),
		OpenAIBaseURL:    os.Getenv("OPENAI_BASE_URL"),
		OpenAIModel:      os.Getenv("OPENAI_MODEL"),
		ControlTokenHash: os.Getenv("CONTROL_TOKEN_HASH"),
		AgentsFile:       os.Getenv("AGENTS_FILE"),
		DirectorConfig:   os.Getenv("DIRECTOR_CONFIG"),
		EventsChannel:    getEnv("EVENTS_CHANNEL", "cafe:events"),
		Director:         director.DefaultConfig(),
	}

	if cfg.DirectorConfig != "" {
		if err := loadDirectorConfig(cfg.DirectorConfig, &cfg.Director); err != nil {
			return nil, err
		}
	}

	if !cfg.IsDevelopment() {
		if err := cfg.validateProduction(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) validateProduction() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required in production"))
	}
	if c.RedisURL == "" {
		errs = append(errs, errors.New("REDIS_URL is required in production"))
	}
	if len(c.OpenAIKeys) == 0 {
		errs = append(errs, errors.New("OPENAI_API_KEYS is required in production"))
	}
	if c.ControlTokenHash == "" {
		errs = append(errs, errors.New("CONTROL_TOKEN_HASH is required in production"))
	}
	return errors.Join(errs...)
}

// loadDirectorConfig overlays the YAML file onto dst. Keys missing from
// the file keep their current values.
func loadDirectorConfig(path string, dst *director.Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read director config: %w", err)
	}
	if err := yaml.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("parse director config %s: %w", path, err)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, entry := range strings.Split(v, ",") {
		if entry = strings.TrimSpace(entry); entry != "" {
			out = append(out, entry)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
