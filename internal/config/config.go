package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL string `env:"RABBITMQ_URL,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`

	OrderSearchURL     string        `env:"ORDER_SEARCH_URL,required=true"`
	OrderSearchAPIKey  string        `env:"ORDER_SEARCH_API_KEY"`
	OrderSearchTimeout time.Duration `env:"ORDER_SEARCH_TIMEOUT,default=30s"`
	RateLimitPerSec    int           `env:"RATE_LIMIT_PER_SEC,default=10"`

	FetchMaxRetries    int           `env:"FETCH_MAX_RETRIES,default=3"`
	FetchRetryDelay    time.Duration `env:"FETCH_RETRY_DELAY,default=2s"`
	FetchBatchDelay    time.Duration `env:"FETCH_BATCH_DELAY,default=300ms"`
	FetchBatchSize     int           `env:"FETCH_BATCH_SIZE,default=50"`
	FetchValidStatuses []string      `env:"FETCH_VALID_STATUSES,default=success|failed"`
	// FetchFailFast skips retries for permanent order search errors (4xx, bad payloads).
	FetchFailFast bool `env:"FETCH_FAIL_FAST,default=false"`

	// ImportSchedule is a standard cron expression; empty disables scheduled imports.
	ImportSchedule string        `env:"IMPORT_SCHEDULE"`
	CacheTTL       time.Duration `env:"CACHE_TTL,default=5m"`

	ArchiveBucket          string `env:"ARCHIVE_BUCKET"`
	ArchivePrefix          string `env:"ARCHIVE_PREFIX"`
	ArchiveRegion          string `env:"ARCHIVE_REGION,default=us-east-1"`
	ArchiveEndpoint        string `env:"ARCHIVE_ENDPOINT"`
	ArchiveAccessKeyID     string `env:"ARCHIVE_ACCESS_KEY_ID"`
	ArchiveSecretAccessKey string `env:"ARCHIVE_SECRET_ACCESS_KEY"`

	APIPort  int    `env:"API_PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
}

// Load reads the environment. A .env file in the working directory is
// applied first when present; real environment variables win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// ArchiveEnabled reports whether completed runs are uploaded to object storage.
func (c *Config) ArchiveEnabled() bool {
	return c.ArchiveBucket != ""
}

func (c *Config) validate() error {
	switch {
	case c.FetchMaxRetries < 0:
		return fmt.Errorf("FETCH_MAX_RETRIES must not be negative")
	case c.FetchBatchSize < 0:
		return fmt.Errorf("FETCH_BATCH_SIZE must not be negative")
	case c.RateLimitPerSec <= 0:
		return fmt.Errorf("RATE_LIMIT_PER_SEC must be positive")
	case c.APIPort <= 0 || c.APIPort > 65535:
		return fmt.Errorf("API_PORT %d is out of range", c.APIPort)
	}
	return nil
}
