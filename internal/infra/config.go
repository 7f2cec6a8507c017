package infra

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	// Server
	APIPort  int    `env:"API_PORT" envDefault:"3100"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Local durable store
	LocalDBPath string `env:"LOCAL_DB_PATH" envDefault:"data/progress.db"`

	// Remote mirror (Postgres)
	RemoteMirrorEnabled bool   `env:"REMOTE_MIRROR_ENABLED" envDefault:"false"`
	DatabaseURL         string `env:"DATABASE_URL"`
	PGHost              string `env:"PGHOST" envDefault:"localhost"`
	PGPort              int    `env:"PGPORT" envDefault:"5432"`
	PGUser              string `env:"PGUSER" envDefault:"progress"`
	PGPassword          string `env:"PGPASSWORD" envDefault:"progress"`
	PGDatabase          string `env:"PGDATABASE" envDefault:"progress"`

	// Mirror retries
	MirrorMaxAttempts    int           `env:"MIRROR_MAX_ATTEMPTS" envDefault:"6"`
	MirrorInitialBackoff time.Duration `env:"MIRROR_INITIAL_BACKOFF" envDefault:"500ms"`
	MirrorMaxBackoff     time.Duration `env:"MIRROR_MAX_BACKOFF" envDefault:"30s"`
	MirrorAttemptTimeout time.Duration `env:"MIRROR_ATTEMPT_TIMEOUT" envDefault:"5s"`
	BreakerFailThreshold int           `env:"BREAKER_FAIL_THRESHOLD" envDefault:"5"`
	BreakerResetTimeout  time.Duration `env:"BREAKER_RESET_TIMEOUT" envDefault:"30s"`

	// Progression
	StreakTimezone string `env:"STREAK_TIMEZONE" envDefault:"UTC"`

	// Leaderboard
	LeaderboardRefreshSpec     string        `env:"LEADERBOARD_REFRESH_SPEC" envDefault:"@every 1m"`
	LeaderboardStaleAfter      time.Duration `env:"LEADERBOARD_STALE_AFTER" envDefault:"5m"`
	LeaderboardFriendlyBuckets int           `env:"LEADERBOARD_FRIENDLY_BUCKETS" envDefault:"8"`

	// Kafka
	KafkaBrokers       string        `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaEnabled       bool          `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaTopicPrefix   string        `env:"KAFKA_TOPIC_PREFIX" envDefault:"progress"`
	KafkaConsumerGroup string        `env:"KAFKA_CONSUMER_GROUP" envDefault:"progress-notifier"`
	OutboxPollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"2s"`
	OutboxBatchSize    int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`
	OutboxRetention    time.Duration `env:"OUTBOX_RETENTION" envDefault:"168h"`

	// Submission rate limit per user
	RateLimitSubmissions int           `env:"RATE_LIMIT_SUBMISSIONS" envDefault:"60"`
	RateLimitWindow      time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`

	// CORS
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`
}

// LoadConfig parses environment variables into a Config struct.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate rejects configuration the service cannot run with.
func (c *Config) Validate() error {
	if c.LocalDBPath == "" {
		return fmt.Errorf("LOCAL_DB_PATH must be set")
	}
	if c.MirrorMaxAttempts < 1 {
		return fmt.Errorf("MIRROR_MAX_ATTEMPTS must be at least 1, got %d", c.MirrorMaxAttempts)
	}
	if c.MirrorInitialBackoff <= 0 || c.MirrorMaxBackoff < c.MirrorInitialBackoff {
		return fmt.Errorf("mirror backoff must satisfy 0 < MIRROR_INITIAL_BACKOFF <= MIRROR_MAX_BACKOFF")
	}
	if c.BreakerFailThreshold < 1 {
		return fmt.Errorf("BREAKER_FAIL_THRESHOLD must be at least 1, got %d", c.BreakerFailThreshold)
	}
	if _, err := c.StreakLocation(); err != nil {
		return err
	}
	if c.LeaderboardFriendlyBuckets < 1 {
		return fmt.Errorf("LEADERBOARD_FRIENDLY_BUCKETS must be at least 1, got %d", c.LeaderboardFriendlyBuckets)
	}
	if c.LeaderboardRefreshSpec == "" {
		return fmt.Errorf("LEADERBOARD_REFRESH_SPEC must be set")
	}
	if c.OutboxBatchSize < 1 {
		return fmt.Errorf("OUTBOX_BATCH_SIZE must be at least 1, got %d", c.OutboxBatchSize)
	}
	if c.OutboxPollInterval <= 0 {
		return fmt.Errorf("OUTBOX_POLL_INTERVAL must be positive")
	}
	return nil
}

// StreakLocation loads the zone used for streak day boundaries when an
// activity carries no zone of its own.
func (c *Config) StreakLocation() (*time.Location, error) {
	loc, err := time.LoadLocation(c.StreakTimezone)
	if err != nil {
		return nil, fmt.Errorf("STREAK_TIMEZONE %q: %w", c.StreakTimezone, err)
	}
	return loc, nil
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// DSN returns the PostgreSQL connection string, preferring DATABASE_URL if set.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.PGUser, c.PGPassword, c.PGHost, c.PGPort, c.PGDatabase)
}
