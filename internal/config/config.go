// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port           int           `yaml:"port" env:"PORT"`
	PublicBaseURL  string        `yaml:"public_base_url" env:"PUBLIC_BASE_URL"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type LogConfig struct {
	Level    string `yaml:"level" env:"LOG_LEVEL"`   // trace|debug|info|warn|error
	Format   string `yaml:"format" env:"LOG_FORMAT"` // json|console
	Sampling bool   `yaml:"sampling"`                // enable sampling in prod
}

type AdminConfig struct {
	APIKey    string        `yaml:"api_key" env:"ADMIN_API_KEY"`
	JWTSecret string        `yaml:"jwt_secret" env:"ADMIN_JWT_SECRET"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type DatabaseConfig struct {
	URL string `yaml:"url" env:"DATABASE_URL"`
}

type RedisConfig struct {
	URL      string        `yaml:"url" env:"REDIS_URL"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"pool_size"`
	TTL      time.Duration `yaml:"ttl"`
}

type AIConfig struct {
	Provider        string            `yaml:"provider" env:"AI_PROVIDER"`             // openai | gemini | anthropic | noop
	ImageProvider   string            `yaml:"image_provider" env:"AI_IMAGE_PROVIDER"` // openai | gemini
	OpenAIKey       string            `yaml:"openai_key" env:"OPENAI_API_KEY"`
	OpenAIBaseURL   string            `yaml:"openai_base_url"`
	GeminiKey       string            `yaml:"gemini_key" env:"GEMINI_API_KEY"`
	GeminiURL       string            `yaml:"gemini_url"`
	AnthropicKey    string            `yaml:"anthropic_key" env:"ANTHROPIC_API_KEY"`
	DefaultModel    string            `yaml:"default_model" env:"AI_DEFAULT_MODEL"`
	ImageModel      string            `yaml:"image_model"`
	ModelProviders  map[string]string `yaml:"model_providers"`  // model -> provider
	ConcurrentLimit int               `yaml:"concurrent_limit"` // max concurrent AI calls
	Timeout         time.Duration     `yaml:"timeout"`
	Temperature     float64           `yaml:"temperature"`
	MaxTokens       int               `yaml:"max_tokens"`
	Retry           RetryConfig       `yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

type PipelineConfig struct {
	Workers      int           `yaml:"workers"`
	QueueSize    int           `yaml:"queue_size"`
	StageTimeout time.Duration `yaml:"stage_timeout"`
}

type ChatConfig struct {
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	HandlerTimeout time.Duration `yaml:"handler_timeout"`
	HistoryWindow  int           `yaml:"history_window"`
	ContextTokens  int           `yaml:"context_tokens"`
	RateLimit      int           `yaml:"rate_limit"` // messages per RateWindow, 0 disables
	RateWindow     time.Duration `yaml:"rate_window"`
}

type JobsConfig struct {
	Store     string        `yaml:"store" env:"JOB_STORE"` // memory | redis | postgres
	Retention int           `yaml:"retention"`             // max jobs kept by the memory store
	TTL       time.Duration `yaml:"ttl"`                   // redis key TTL, postgres purge age
}

type StorageConfig struct {
	Driver       string        `yaml:"driver" env:"STORAGE_DRIVER"` // local | s3
	LocalDir     string        `yaml:"local_dir"`
	S3Endpoint   string        `yaml:"s3_endpoint" env:"S3_ENDPOINT"`
	S3AccessKey  string        `yaml:"s3_access_key" env:"S3_ACCESS_KEY"`
	S3SecretKey  string        `yaml:"s3_secret_key" env:"S3_SECRET_KEY"`
	S3Bucket     string        `yaml:"s3_bucket" env:"S3_BUCKET"`
	S3Region     string        `yaml:"s3_region"`
	S3UseSSL     bool          `yaml:"s3_use_ssl"`
	PresignTTL   time.Duration `yaml:"presign_ttl"`
	ArchiveStore string        `yaml:"archive_store"` // storage | redis
}

type SMTPConfig struct {
	Host      string        `yaml:"host" env:"SMTP_SERVER"`
	Port      int           `yaml:"port" env:"SMTP_PORT"`
	Username  string        `yaml:"username" env:"SMTP_USERNAME"`
	Password  string        `yaml:"password" env:"SMTP_PASSWORD"`
	FromEmail string        `yaml:"from_email" env:"SMTP_FROM_EMAIL"`
	FromName  string        `yaml:"from_name"`
	Timeout   time.Duration `yaml:"timeout"`
}

type TelegramConfig struct {
	Token  string `yaml:"token" env:"TELEGRAM_BOT_TOKEN"`
	ChatID int64  `yaml:"chat_id" env:"TELEGRAM_ALERT_CHAT_ID"`
}

type CollectorConfig struct {
	UserAgent      string        `yaml:"user_agent"`
	Timeout        time.Duration `yaml:"timeout"`
	RequestsPerSec float64       `yaml:"requests_per_sec"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
}

type SchedulerConfig struct {
	SessionSweepCron string        `yaml:"session_sweep_cron"`
	JobPurgeCron     string        `yaml:"job_purge_cron"` // postgres job store only
	TaskTimeout      time.Duration `yaml:"task_timeout"`
	DistributedLock  bool          `yaml:"distributed_lock"` // needs redis.url
}

type SecurityConfig struct {
	EncryptionKey string `yaml:"encryption_key" env:"ENCRYPTION_KEY"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Admin     AdminConfig     `yaml:"admin"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	AI        AIConfig        `yaml:"ai"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Chat      ChatConfig      `yaml:"chat"`
	Jobs      JobsConfig      `yaml:"jobs"`
	Storage   StorageConfig   `yaml:"storage"`
	SMTP      SMTPConfig      `yaml:"smtp"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Collector CollectorConfig `yaml:"collector"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Security  SecurityConfig  `yaml:"security"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the yaml file at path (optional), applies .env and
// environment overrides, then fills defaults and validates.
func LoadConfig(path string, dev bool) (*Config, error) {
	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
			// env-only deployments
		default:
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.PublicBaseURL == "" {
		cfg.Server.PublicBaseURL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}
	cfg.Server.PublicBaseURL = strings.TrimRight(cfg.Server.PublicBaseURL, "/")
	if cfg.Server.RequestTimeout <= 0 {
		cfg.Server.RequestTimeout = 2 * time.Minute
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Admin.TokenTTL <= 0 {
		cfg.Admin.TokenTTL = 30 * time.Minute
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	if cfg.AI.Provider == "" {
		cfg.AI.Provider = "openai"
	}
	cfg.AI.Provider = strings.ToLower(cfg.AI.Provider)
	if cfg.AI.ImageProvider == "" {
		cfg.AI.ImageProvider = "openai"
	}
	if cfg.AI.DefaultModel == "" {
		cfg.AI.DefaultModel = "gpt-4o-mini"
	}
	if cfg.AI.ImageModel == "" {
		cfg.AI.ImageModel = "dall-e-3"
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 16
	}
	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = 90 * time.Second
	}
	if cfg.AI.Temperature <= 0 {
		cfg.AI.Temperature = 0.7
	}
	if cfg.AI.MaxTokens <= 0 {
		cfg.AI.MaxTokens = 1500
	}
	if cfg.AI.Retry.MaxAttempts <= 0 {
		cfg.AI.Retry.MaxAttempts = 3
	}
	if cfg.AI.Retry.BaseDelay <= 0 {
		cfg.AI.Retry.BaseDelay = 500 * time.Millisecond
	}
	if cfg.AI.Retry.MaxDelay <= 0 {
		cfg.AI.Retry.MaxDelay = 8 * time.Second
	}

	if cfg.Pipeline.Workers <= 0 {
		cfg.Pipeline.Workers = 4
	}
	if cfg.Pipeline.QueueSize <= 0 {
		cfg.Pipeline.QueueSize = cfg.Pipeline.Workers * 4
	}
	if cfg.Pipeline.StageTimeout <= 0 {
		cfg.Pipeline.StageTimeout = 3 * time.Minute
	}

	if cfg.Chat.IdleTimeout <= 0 {
		cfg.Chat.IdleTimeout = 30 * time.Minute
	}
	if cfg.Chat.HandlerTimeout <= 0 {
		cfg.Chat.HandlerTimeout = 2 * time.Minute
	}
	if cfg.Chat.HistoryWindow <= 0 {
		cfg.Chat.HistoryWindow = 10
	}
	if cfg.Chat.ContextTokens <= 0 {
		cfg.Chat.ContextTokens = 6000
	}
	if cfg.Chat.RateWindow <= 0 {
		cfg.Chat.RateWindow = time.Minute
	}

	if cfg.Jobs.Store == "" {
		cfg.Jobs.Store = "memory"
	}
	if cfg.Jobs.Retention <= 0 {
		cfg.Jobs.Retention = 1000
	}
	if cfg.Jobs.TTL <= 0 {
		cfg.Jobs.TTL = 7 * 24 * time.Hour
	}

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "local"
	}
	if cfg.Storage.LocalDir == "" {
		cfg.Storage.LocalDir = "data"
	}
	if cfg.Storage.PresignTTL <= 0 {
		cfg.Storage.PresignTTL = 24 * time.Hour
	}
	if cfg.Storage.ArchiveStore == "" {
		cfg.Storage.ArchiveStore = "storage"
	}

	if cfg.SMTP.Port <= 0 {
		cfg.SMTP.Port = 587
	}
	if cfg.SMTP.FromName == "" {
		cfg.SMTP.FromName = "Pixaro AI Agent"
	}
	if cfg.SMTP.FromEmail == "" {
		cfg.SMTP.FromEmail = cfg.SMTP.Username
	}
	if cfg.SMTP.Timeout <= 0 {
		cfg.SMTP.Timeout = 30 * time.Second
	}

	if cfg.Collector.UserAgent == "" {
		cfg.Collector.UserAgent = "Mozilla/5.0 (compatible; MarketGenomeBot/1.0)"
	}
	if cfg.Collector.Timeout <= 0 {
		cfg.Collector.Timeout = 10 * time.Second
	}
	if cfg.Collector.RequestsPerSec <= 0 {
		cfg.Collector.RequestsPerSec = 2
	}
	if cfg.Collector.MaxBodyBytes <= 0 {
		cfg.Collector.MaxBodyBytes = 2 << 20
	}

	if cfg.Scheduler.SessionSweepCron == "" {
		cfg.Scheduler.SessionSweepCron = "@every 1m"
	}
	if cfg.Scheduler.JobPurgeCron == "" {
		cfg.Scheduler.JobPurgeCron = "@hourly"
	}
	if cfg.Scheduler.TaskTimeout <= 0 {
		cfg.Scheduler.TaskTimeout = 30 * time.Second
	}
}

// Validate reports configuration that cannot start the service.
func (c *Config) Validate() error {
	switch c.AI.Provider {
	case "openai":
		if c.AI.OpenAIKey == "" {
			return errors.New("ai.openai_key is required for provider openai")
		}
	case "gemini":
		if c.AI.GeminiKey == "" {
			return errors.New("ai.gemini_key is required for provider gemini")
		}
	case "anthropic":
		if c.AI.AnthropicKey == "" {
			return errors.New("ai.anthropic_key is required for provider anthropic")
		}
	case "noop":
	default:
		return fmt.Errorf("ai.provider %q is not supported", c.AI.Provider)
	}

	switch c.Jobs.Store {
	case "memory":
	case "redis":
		if c.Redis.URL == "" {
			return errors.New("redis.url is required for jobs.store=redis")
		}
	case "postgres":
		if c.Database.URL == "" {
			return errors.New("database.url is required for jobs.store=postgres")
		}
	default:
		return fmt.Errorf("jobs.store %q is not supported", c.Jobs.Store)
	}

	switch c.Storage.Driver {
	case "local":
	case "s3":
		if c.Storage.S3Endpoint == "" || c.Storage.S3Bucket == "" {
			return errors.New("storage.s3_endpoint and storage.s3_bucket are required for driver s3")
		}
	default:
		return fmt.Errorf("storage.driver %q is not supported", c.Storage.Driver)
	}
	if c.Storage.ArchiveStore == "redis" && c.Redis.URL == "" {
		return errors.New("redis.url is required for storage.archive_store=redis")
	}

	if c.Scheduler.DistributedLock && c.Redis.URL == "" {
		return errors.New("redis.url is required for scheduler.distributed_lock")
	}

	if c.Admin.APIKey != "" && c.Admin.JWTSecret == "" {
		return errors.New("admin.jwt_secret is required when admin.api_key is set")
	}
	if k := c.Security.EncryptionKey; k != "" && len(k) != 32 {
		return errors.New("security.encryption_key must be 32 bytes")
	}
	return nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
