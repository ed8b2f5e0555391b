package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"metaphorlab/internal/gateway"
	"metaphorlab/internal/retry"
)

const (
	DefaultPath = "config.yaml"
	EnvPrefix   = "METAPHOR_"
)

type Config struct {
	Log      LogConfig      `koanf:"log"`
	Server   ServerConfig   `koanf:"server"`
	Gateway  gateway.Config `koanf:"gateway"`
	Batch    BatchConfig    `koanf:"batch"`
	History  HistoryConfig  `koanf:"history"`
	View     ViewConfig     `koanf:"view"`
	Queue    QueueConfig    `koanf:"queue"`
	Storage  StorageConfig  `koanf:"storage"`
	Redis    RedisConfig    `koanf:"redis"`
	Ingest   IngestConfig   `koanf:"ingest"`
	Notifier NotifierConfig `koanf:"notifier"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type ServerConfig struct {
	Port string `koanf:"port"`
}

type BatchConfig struct {
	CallTimeout time.Duration `koanf:"call_timeout"`
	Concurrency int           `koanf:"concurrency"`
}

type HistoryConfig struct {
	MaxRecent int `koanf:"max_recent"`
	TopK      int `koanf:"top_k"`
}

type ViewConfig struct {
	PageSize int `koanf:"page_size"`
}

type QueueConfig struct {
	Brokers []string `koanf:"brokers"`
	Topic   string   `koanf:"topic"`
	GroupID string   `koanf:"group_id"`
}

// StorageConfig selects the archive: Postgres when DSN is set, else SQLite
// when SQLitePath is set, else memory.
type StorageConfig struct {
	DSN        string `koanf:"dsn"`
	SQLitePath string `koanf:"sqlite_path"`
}

type RedisConfig struct {
	Addr     string        `koanf:"addr"`
	Password string        `koanf:"password"`
	DB       int           `koanf:"db"`
	Prefix   string        `koanf:"prefix"`
	TTL      time.Duration `koanf:"ttl"`
}

type IngestConfig struct {
	Feeds     []string      `koanf:"feeds"`
	FeedsFile string        `koanf:"feeds_file"`
	Interval  time.Duration `koanf:"interval"`
}

type NotifierConfig struct {
	TelegramToken   string   `koanf:"telegram_token"`
	TelegramChatIDs []string `koanf:"telegram_chat_ids"`
}

// Load reads path (DefaultPath when empty), then a .env file, then
// METAPHOR_* environment variables. Later sources win. A missing default
// config file is not an error; a missing explicit one is.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	k := koanf.New(".")

	if _, err := os.Stat(path); err == nil || explicit {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envKey maps METAPHOR_GATEWAY__BASE_URL to gateway.base_url.
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.Gateway.BaseURL == "" {
		cfg.Gateway.BaseURL = "http://localhost:8000"
	}
	if cfg.Gateway.Timeout == 0 {
		cfg.Gateway.Timeout = 30 * time.Second
	}
	if cfg.Gateway.Retry == (retry.Config{}) {
		cfg.Gateway.Retry = retry.DefaultConfig()
	}
	if cfg.Batch.CallTimeout == 0 {
		cfg.Batch.CallTimeout = 20 * time.Second
	}
	if cfg.History.MaxRecent == 0 {
		cfg.History.MaxRecent = 5
	}
	if cfg.History.TopK == 0 {
		cfg.History.TopK = 5
	}
	if cfg.View.PageSize == 0 {
		cfg.View.PageSize = 5
	}
	if cfg.Queue.Topic == "" {
		cfg.Queue.Topic = "analysis-jobs"
	}
	if cfg.Queue.GroupID == "" {
		cfg.Queue.GroupID = "metaphorlab-consumer"
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "metaphorlab"
	}
	if cfg.Ingest.Interval == 0 {
		cfg.Ingest.Interval = 5 * time.Minute
	}
}

func (c *Config) Validate() error {
	if c.Batch.Concurrency < 0 {
		return errors.New("config: batch.concurrency must not be negative")
	}
	if c.History.MaxRecent < 0 || c.History.TopK < 0 {
		return errors.New("config: history sizes must not be negative")
	}
	if c.View.PageSize < 0 {
		return errors.New("config: view.page_size must not be negative")
	}
	if c.Gateway.Retry.MaxRetries < 0 {
		return errors.New("config: gateway.retry.max_retries must not be negative")
	}
	return nil
}
