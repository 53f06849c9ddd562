package config

import (
	"fmt"
	"regexp"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// collection names are interpolated into DDL, so they must be bare identifiers
var collectionPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config application configuration
type Config struct {
	// Mail server
	IMAPServer      string        `env:"IMAP_SERVER,required"` // host:port
	IMAPEmail       string        `env:"IMAP_EMAIL,required"`
	IMAPPassword    string        `env:"IMAP_PASSWORD,required"`
	IMAPMailbox     string        `env:"IMAP_MAILBOX" envDefault:"INBOX"`
	IMAPTLS         bool          `env:"IMAP_TLS" envDefault:"true"`
	IMAPDialTimeout time.Duration `env:"IMAP_DIAL_TIMEOUT" envDefault:"30s"`

	// Document store
	StorePath       string        `env:"STORE_PATH" envDefault:"./data/mailvault.db"`
	StoreCollection string        `env:"STORE_COLLECTION" envDefault:"messages"`
	StoreTimeout    time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`

	// Scheduling
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"5m"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"
}

// Load loads configuration from environment variables. Extra env files are
// loaded first (a missing default .env is not an error).
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if !collectionPattern.MatchString(cfg.StoreCollection) {
		return nil, fmt.Errorf("STORE_COLLECTION must be a bare identifier, got %q", cfg.StoreCollection)
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("POLL_INTERVAL must be positive, got %s", cfg.PollInterval)
	}

	return cfg, nil
}
