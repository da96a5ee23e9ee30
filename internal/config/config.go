package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type AIConfig struct {
	OpenAIKey       string  `yaml:"openai_key"`
	BaseURL         string  `yaml:"base_url"`
	TextModel       string  `yaml:"text_model"`
	StructuredModel string  `yaml:"structured_model"`
	EmbeddingModel  string  `yaml:"embedding_model"`
	Temperature     float64 `yaml:"temperature"`
	ConcurrentLimit int     `yaml:"concurrent_limit"` // max concurrent AI calls
	MaxAttempts     int     `yaml:"max_attempts"`     // per generation call
}

type VideoConfig struct {
	GeminiKey       string `yaml:"gemini_key"`
	Model           string `yaml:"model"`
	DurationSeconds int    `yaml:"duration_seconds"`
	FPS             int    `yaml:"fps"`
	AspectRatio     string `yaml:"aspect_ratio"`
	Resolution      string `yaml:"resolution"`
	PollInterval    time.Duration `yaml:"poll_interval"`
}

type WorkerConfig struct {
	PollInterval   time.Duration `yaml:"poll_interval"`
	BatchSize      int           `yaml:"batch_size"`
	Concurrency    int           `yaml:"concurrency"`
	SweepInterval  time.Duration `yaml:"sweep_interval"` // 0 disables the periodic orphan sweep
	ShutdownGrace  time.Duration `yaml:"shutdown_grace"`
}

type WebConfig struct {
	Port      int    `yaml:"port"`
	JWTSecret string `yaml:"jwt_secret"`
}

type WebhookConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type StorageConfig struct {
	Root    string `yaml:"root"`
	BaseURL string `yaml:"base_url"`
}

type SecurityConfig struct {
	EncryptionKey string `yaml:"encryption_key"`
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	AI       AIConfig       `yaml:"ai"`
	Video    VideoConfig    `yaml:"video"`
	Worker   WorkerConfig   `yaml:"worker"`
	Web      WebConfig      `yaml:"web"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Storage  StorageConfig  `yaml:"storage"`
	Security SecurityConfig `yaml:"security"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig() (*Config, error) {
	var configPath string = ""
	var dev bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	flag.BoolVar(&dev, "dev", false, "development mode")
	flag.Parse()

	b, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.AI.OpenAIKey == "" {
		return nil, errors.New("ai.openai_key is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	if cfg.AI.TextModel == "" {
		cfg.AI.TextModel = "gpt-4o"
	}
	if cfg.AI.StructuredModel == "" {
		cfg.AI.StructuredModel = "gpt-4o-mini"
	}
	if cfg.AI.EmbeddingModel == "" {
		cfg.AI.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.AI.Temperature <= 0 {
		cfg.AI.Temperature = 0.9
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 16
	}
	if cfg.AI.MaxAttempts <= 0 {
		cfg.AI.MaxAttempts = 3
	}

	if cfg.Video.Model == "" {
		cfg.Video.Model = "veo-3.0-generate-001"
	}
	if cfg.Video.DurationSeconds <= 0 {
		cfg.Video.DurationSeconds = 8
	}
	if cfg.Video.FPS <= 0 {
		cfg.Video.FPS = 24
	}
	if cfg.Video.AspectRatio == "" {
		cfg.Video.AspectRatio = "9:16"
	}
	if cfg.Video.Resolution == "" {
		cfg.Video.Resolution = "720p"
	}
	if cfg.Video.PollInterval <= 0 {
		cfg.Video.PollInterval = 10 * time.Second
	}

	if cfg.Worker.PollInterval <= 0 {
		cfg.Worker.PollInterval = 5 * time.Second
	}
	if cfg.Worker.BatchSize <= 0 {
		cfg.Worker.BatchSize = 4
	}
	if cfg.Worker.Concurrency <= 0 {
		cfg.Worker.Concurrency = 4
	}
	if cfg.Worker.ShutdownGrace <= 0 {
		cfg.Worker.ShutdownGrace = 30 * time.Second
	}

	if cfg.Web.Port <= 0 {
		cfg.Web.Port = 8080
	}
	if cfg.Webhook.Timeout <= 0 {
		cfg.Webhook.Timeout = 5 * time.Second
	}
	if cfg.Storage.Root == "" {
		cfg.Storage.Root = "./assets"
	}
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
