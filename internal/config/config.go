// Package config loads process configuration from the environment.
//
// Every setting is read from a SNIPPETS_-prefixed variable (SNIPPETS_PORT,
// SNIPPETS_STORE_BACKEND, ...). A .env file in the working directory is
// loaded first when present; real environment variables win over it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is the environment variable prefix.
const Prefix = "snippets"

// Store backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config is the full set of settings shared by every entry point.
type Config struct {
	// Port is the HTTP listen port of cmd/server.
	Port int `split_words:"true" default:"8080"`

	// StoreBackend selects the synchronized store: sqlite, redis or memory.
	// Processes only see each other's changes when they share a backend.
	StoreBackend string `split_words:"true" default:"sqlite"`

	// DBPath is the sqlite database file. ":memory:" keeps it in-process.
	DBPath string `envconfig:"DB_PATH" default:"data/snippets.db"`

	// WatchPollInterval is how often the sqlite backend rescans the database
	// in case a file notification was missed.
	WatchPollInterval time.Duration `split_words:"true" default:"2s"`

	// RedisURL is parsed with redis.ParseURL.
	RedisURL    string `split_words:"true" default:"redis://127.0.0.1:6379/0"`
	RedisPrefix string `split_words:"true" default:"snippet-sync:"`

	// NatsURL enables the NATS transport of the background router. Empty
	// disables it.
	NatsURL     string `split_words:"true"`
	NatsSubject string `split_words:"true" default:"snippets.router"`

	// DefaultLanguage is used when neither the snippet nor the stored
	// settings name a language.
	DefaultLanguage string `split_words:"true" default:"javascript"`

	// NotifyDelay is how long UI notifications stay visible.
	NotifyDelay time.Duration `split_words:"true" default:"3s"`

	LogLevel  string `split_words:"true" default:"info"`
	LogFormat string `split_words:"true" default:"text"`

	ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
}

// Load reads envFile (ignored when missing) and then the environment.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case BackendSQLite, BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("invalid store backend %q: want %s, %s or %s",
			c.StoreBackend, BackendSQLite, BackendRedis, BackendMemory)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q: want text or json", c.LogFormat)
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}
