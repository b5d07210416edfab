// Package config provides configuration for the curator service: a YAML
// file with environment variable overrides, .env files loaded first.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/jonesrussell/north-cloud/curator/internal/models"
)

const (
	defaultDatabasePort    = 5432
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5 * time.Minute
	defaultRedisAddress    = "localhost:6379"

	defaultTickInterval      = time.Minute
	defaultFetchInterval     = 15 * time.Minute
	defaultFetchTimeout      = 30 * time.Second
	defaultFetchConcurrency  = 4
	defaultErrorThreshold    = 3
	defaultRateLimitCooldown = 15 * time.Minute

	defaultTaskPollInterval = 5 * time.Second
	defaultTaskBatchSize    = 10
	defaultTaskMaxAttempts  = 3
	defaultTaskTimeout      = 60 * time.Second
	defaultTaskBackoffBase  = 30 * time.Second
	defaultTaskBackoffCap   = 10 * time.Minute
	defaultTaskStaleAfter   = 5 * time.Minute

	defaultScorerPollInterval = 10 * time.Second
	defaultScorerBatchSize    = 20
	defaultScorerAIWait       = 90 * time.Second
	defaultRecencyHalfLife    = 24 * time.Hour
	defaultScorerStaleAfter   = 10 * time.Minute

	defaultPriorityStep  = 1
	defaultPriorityFloor = -10

	defaultDigestCron     = "0 6 * * *"
	defaultDigestMaxItems = 50
	defaultDigestAIWait   = 2 * time.Minute

	defaultServerAddr = ":9090"
)

// Config is the root configuration for the curator service.
type Config struct {
	Debug     bool            `env:"APP_DEBUG" yaml:"debug"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	AI        AIConfig        `yaml:"ai"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Tasks     TasksConfig     `yaml:"tasks"`
	Scorer    ScorerConfig    `yaml:"scorer"`
	Review    ReviewConfig    `yaml:"review"`
	Digest    DigestConfig    `yaml:"digest"`
	Server    ServerConfig    `yaml:"server"`
}

// ServerConfig holds the metrics/health listener settings.
type ServerConfig struct {
	Addr string `env:"SERVER_ADDR" yaml:"addr"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `env:"DB_HOST"     yaml:"host"`
	Port            int           `env:"DB_PORT"     yaml:"port"`
	User            string        `env:"DB_USER"     yaml:"user"`
	Password        string        `env:"DB_PASSWORD" yaml:"password"`
	DBName          string        `env:"DB_NAME"     yaml:"dbname"`
	SSLMode         string        `env:"DB_SSLMODE"  yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// RedisConfig holds Redis connection settings for event publishing.
type RedisConfig struct {
	Address  string `env:"REDIS_ADDRESS"        yaml:"address"`
	Password string `env:"REDIS_PASSWORD"       yaml:"password"`
	DB       int    `env:"REDIS_DB"             yaml:"db"`
	Enabled  bool   `env:"REDIS_EVENTS_ENABLED" yaml:"enabled"`
}

// AIConfig holds settings for the external AI function.
type AIConfig struct {
	APIKey  string `env:"ANTHROPIC_API_KEY" yaml:"api_key"`
	Model   string `env:"ANTHROPIC_MODEL"   yaml:"model"`
	Enabled bool   `env:"AI_ENABLED"        yaml:"enabled"`
}

// SchedulerConfig tunes the ingestion scheduler.
type SchedulerConfig struct {
	TickInterval      time.Duration                       `yaml:"tick_interval"`
	FetchIntervals    map[models.SourceType]time.Duration `yaml:"fetch_intervals"`
	FetchTimeout      time.Duration                       `yaml:"fetch_timeout"`
	FetchConcurrency  int                                 `yaml:"fetch_concurrency"`
	ErrorThreshold    int                                 `yaml:"error_threshold"`
	RateLimitCooldown time.Duration                       `yaml:"rate_limit_cooldown"`
}

// FetchInterval returns the per-type fetch interval, falling back to the
// default when no override is configured.
func (c SchedulerConfig) FetchInterval(t models.SourceType) time.Duration {
	if iv, ok := c.FetchIntervals[t]; ok && iv > 0 {
		return iv
	}
	return defaultFetchInterval
}

// TasksConfig tunes the AI task orchestrator.
type TasksConfig struct {
	PollInterval time.Duration            `yaml:"poll_interval"`
	BatchSize    int                      `yaml:"batch_size"`
	Workers      int                      `yaml:"workers"`
	MaxAttempts  int                      `yaml:"max_attempts"`
	Timeouts     map[string]time.Duration `yaml:"timeouts"`
	BackoffBase  time.Duration            `yaml:"backoff_base"`
	BackoffCap   time.Duration            `yaml:"backoff_cap"`
	StaleAfter   time.Duration            `yaml:"stale_after"`
}

// Timeout returns the per-task-type execution timeout.
func (c TasksConfig) Timeout(taskType string) time.Duration {
	if d, ok := c.Timeouts[taskType]; ok && d > 0 {
		return d
	}
	return defaultTaskTimeout
}

// ScorerConfig tunes the content scorer/classifier sweep.
type ScorerConfig struct {
	PollInterval    time.Duration       `yaml:"poll_interval"`
	BatchSize       int                 `yaml:"batch_size"`
	AIWaitTimeout   time.Duration       `yaml:"ai_wait_timeout"`
	RecencyHalfLife time.Duration       `yaml:"recency_half_life"`
	TrustWeights    map[string]float64  `yaml:"trust_weights"`
	AISourceTypes   []models.SourceType `yaml:"ai_source_types"`
	StaleAfter      time.Duration       `yaml:"stale_after"`
}

// ReviewConfig tunes the review workflow. PriorityFloor is a pointer so an
// explicit floor of 0 is distinguishable from an unset one.
type ReviewConfig struct {
	PriorityStep  int  `yaml:"priority_step"`
	PriorityFloor *int `yaml:"priority_floor"`
}

// Floor returns the configured priority floor, or the default when unset.
func (c ReviewConfig) Floor() int {
	if c.PriorityFloor != nil {
		return *c.PriorityFloor
	}
	return defaultPriorityFloor
}

// DigestConfig tunes the daily digest builder.
type DigestConfig struct {
	Cron          string        `yaml:"cron"`
	MaxItems      int           `yaml:"max_items"`
	AIWaitTimeout time.Duration `yaml:"ai_wait_timeout"`
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return errors.New("database.host is required")
	}
	if c.Database.Port <= 0 {
		return errors.New("database.port is required and must be positive")
	}
	if c.Database.User == "" {
		return errors.New("database.user is required")
	}
	if c.Database.DBName == "" {
		return errors.New("database.dbname is required")
	}
	if c.AI.Enabled && c.AI.APIKey == "" {
		return errors.New("ai.api_key is required when ai.enabled")
	}
	if c.Review.PriorityStep < 0 {
		return errors.New("review.priority_step must not be negative")
	}
	return nil
}

// Load reads the YAML config at path, applies .env files and environment
// overrides, fills defaults, and validates.
func Load(path string) (*Config, error) {
	cfg, err := loadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Database.Port == 0 {
		cfg.Database.Port = defaultDatabasePort
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = defaultMaxOpenConns
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = defaultMaxIdleConns
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = defaultConnMaxLifetime
	}
	if cfg.Redis.Address == "" {
		cfg.Redis.Address = defaultRedisAddress
	}

	if cfg.Scheduler.TickInterval == 0 {
		cfg.Scheduler.TickInterval = defaultTickInterval
	}
	if cfg.Scheduler.FetchTimeout == 0 {
		cfg.Scheduler.FetchTimeout = defaultFetchTimeout
	}
	if cfg.Scheduler.FetchConcurrency == 0 {
		cfg.Scheduler.FetchConcurrency = defaultFetchConcurrency
	}
	if cfg.Scheduler.ErrorThreshold == 0 {
		cfg.Scheduler.ErrorThreshold = defaultErrorThreshold
	}
	if cfg.Scheduler.RateLimitCooldown == 0 {
		cfg.Scheduler.RateLimitCooldown = defaultRateLimitCooldown
	}

	if cfg.Tasks.PollInterval == 0 {
		cfg.Tasks.PollInterval = defaultTaskPollInterval
	}
	if cfg.Tasks.BatchSize == 0 {
		cfg.Tasks.BatchSize = defaultTaskBatchSize
	}
	if cfg.Tasks.Workers == 0 {
		cfg.Tasks.Workers = 1
	}
	if cfg.Tasks.MaxAttempts == 0 {
		cfg.Tasks.MaxAttempts = defaultTaskMaxAttempts
	}
	if cfg.Tasks.BackoffBase == 0 {
		cfg.Tasks.BackoffBase = defaultTaskBackoffBase
	}
	if cfg.Tasks.BackoffCap == 0 {
		cfg.Tasks.BackoffCap = defaultTaskBackoffCap
	}
	if cfg.Tasks.StaleAfter == 0 {
		cfg.Tasks.StaleAfter = defaultTaskStaleAfter
	}

	if cfg.Scorer.PollInterval == 0 {
		cfg.Scorer.PollInterval = defaultScorerPollInterval
	}
	if cfg.Scorer.BatchSize == 0 {
		cfg.Scorer.BatchSize = defaultScorerBatchSize
	}
	if cfg.Scorer.AIWaitTimeout == 0 {
		cfg.Scorer.AIWaitTimeout = defaultScorerAIWait
	}
	if cfg.Scorer.RecencyHalfLife == 0 {
		cfg.Scorer.RecencyHalfLife = defaultRecencyHalfLife
	}
	if cfg.Scorer.StaleAfter == 0 {
		cfg.Scorer.StaleAfter = defaultScorerStaleAfter
	}

	if cfg.Review.PriorityStep == 0 {
		cfg.Review.PriorityStep = defaultPriorityStep
	}

	if cfg.Digest.Cron == "" {
		cfg.Digest.Cron = defaultDigestCron
	}
	if cfg.Digest.MaxItems == 0 {
		cfg.Digest.MaxItems = defaultDigestMaxItems
	}
	if cfg.Digest.AIWaitTimeout == 0 {
		cfg.Digest.AIWaitTimeout = defaultDigestAIWait
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultServerAddr
	}
}
