package config

import (
	"log"
	"time"

	"nexus/pkg/config"
)

// GitHubConfig holds GitHub App credentials and webhook settings.
type GitHubConfig struct {
	AppID          string `yaml:"app_id" env:"GITHUB_APP_ID"`
	PrivateKeyPath string `yaml:"private_key_path" env:"GITHUB_PRIVATE_KEY_PATH"`
	WebhookSecret  string `yaml:"webhook_secret" env:"GITHUB_WEBHOOK_SECRET"`
	APIBaseURL     string `yaml:"api_base_url" env:"GITHUB_API_URL" env-default:"https://api.github.com"`
	TokenCache     string `yaml:"token_cache" env:"GITHUB_TOKEN_CACHE" env-default:"memory"` // memory / redis
	SyncLimit      int    `yaml:"sync_limit" env-default:"30"`
}

// SlackConfig 通知渠道
type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url" env:"SLACK_WEBHOOK_URL"`
}

// AIConfig configures the hosted model used for executive briefs.
type AIConfig struct {
	APIKey   string        `yaml:"api_key" env:"GEMINI_API_KEY"`
	Model    string        `yaml:"model" env:"GEMINI_MODEL" env-default:"gemini-1.5-flash"`
	BaseURL  string        `yaml:"base_url" env:"GEMINI_BASE_URL" env-default:"https://generativelanguage.googleapis.com/v1beta"`
	CacheTTL time.Duration `yaml:"cache_ttl" env:"BRIEF_CACHE_TTL" env-default:"24h"`
	Timeout  time.Duration `yaml:"timeout" env-default:"30s"`
}

// GoogleConfig is used to verify Google sign-in ID tokens.
type GoogleConfig struct {
	ClientID     string `yaml:"client_id" env:"GOOGLE_CLIENT_ID"`
	TokenInfoURL string `yaml:"token_info_url" env-default:"https://oauth2.googleapis.com/tokeninfo"`
}

// EventsConfig 事件投递配置
type EventsConfig struct {
	// Durable routes Slack delivery through the outbox and RabbitMQ instead of
	// calling Slack from the request path.
	Durable          bool          `yaml:"durable" env:"EVENTS_DURABLE"`
	OutboxInterval   time.Duration `yaml:"outbox_interval" env-default:"1s"`
	OutboxMaxRetries int           `yaml:"outbox_max_retries" env-default:"5"`
	ConsumerRetries  int64         `yaml:"consumer_retries" env-default:"3"`
}

type Config struct {
	Server  config.ServerConfig  `yaml:"server"`
	Storage config.StorageConfig `yaml:"storage"`
	DB      config.DBConfig      `yaml:"db"`
	Mongo   config.MongoConfig   `yaml:"mongo"`
	Redis   config.RedisConfig   `yaml:"redis"`
	MQ      config.MQConfig      `yaml:"mq"`
	JWT     config.JWTConfig     `yaml:"jwt"`
	Log     config.LogConfig     `yaml:"log"`
	Otel    config.OtelConfig    `yaml:"otel"`
	GitHub  GitHubConfig         `yaml:"github"`
	Slack   SlackConfig          `yaml:"slack"`
	AI      AIConfig             `yaml:"ai"`
	Google  GoogleConfig         `yaml:"google"`
	Events  EventsConfig         `yaml:"events"`
}

// Load reads config/<CONFIG_ENV>.yaml on top of config/base.yaml and applies
// environment overrides. It exits the process on failure.
func Load() *Config {
	cfg, err := LoadFrom(config.GetConfigEnv(), config.GetEnv("CONFIG_DIR", "config"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func LoadFrom(env, dir string) (*Config, error) {
	var cfg Config
	if err := config.Decode(env, dir, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
