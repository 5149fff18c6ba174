package config

import (
	"os"
	"time"
)

// DBConfig 数据库配置
type DBConfig struct {
	Host        string        `yaml:"host" env:"DB_HOST"`
	Port        int           `yaml:"port" env:"DB_PORT"`
	User        string        `yaml:"user" env:"DB_USER"`
	Password    string        `yaml:"password" env:"DB_PASSWORD"`
	Name        string        `yaml:"name" env:"DB_NAME"`
	SSLMode     string        `yaml:"ssl_mode" env:"DB_SSL_MODE" env-default:"disable"`
	MaxConns    int32         `yaml:"max_conns" env:"DB_MAX_CONNS" env-default:"10"`
	MinConns    int32         `yaml:"min_conns" env-default:"2"`
	AutoMigrate bool          `yaml:"auto_migrate" env:"DB_AUTO_MIGRATE"`
	SlowQuery   time.Duration `yaml:"slow_query" env-default:"100ms"` // 慢查询阈值
}

// MongoConfig document store settings, used when storage.driver is "mongo".
type MongoConfig struct {
	URI      string `yaml:"uri" env:"MONGO_URI"`
	Database string `yaml:"database" env:"MONGO_DB_NAME" env-default:"nexus"`
}

// StorageConfig selects the project/user store backend.
type StorageConfig struct {
	Driver string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"postgres"` // postgres / mongo / memory
}

// MQConfig 消息队列配置
type MQConfig struct {
	URL     string `yaml:"url" env:"MQ_URL"`
	Enabled bool   `yaml:"enabled" env:"MQ_ENABLED"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
}

// JWTConfig JWT配置
type JWTConfig struct {
	Secret string        `yaml:"secret" env:"JWT_SECRET"`
	TTL    time.Duration `yaml:"ttl" env:"JWT_TTL" env-default:"168h"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port        string   `yaml:"port" env:"SERVER_PORT" env-default:":5000"`
	CORSOrigins []string `yaml:"cors_origins" env:"CORS_ORIGINS" env-separator:","`
}

// LogConfig controls the zap logger and the optional rotating file sink.
type LogConfig struct {
	Level      string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	File       string `yaml:"file" env:"LOG_FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" env-default:"10"`
	MaxBackups int    `yaml:"max_backups" env-default:"3"`
	MaxAgeDays int    `yaml:"max_age_days" env-default:"28"`
}

// OtelConfig OpenTelemetry 配置
type OtelConfig struct {
	Enabled     bool    `yaml:"enabled" env:"OTEL_ENABLED"`
	Endpoint    string  `yaml:"endpoint" env:"OTEL_ENDPOINT"`
	ServiceName string  `yaml:"service_name" env:"OTEL_SERVICE_NAME" env-default:"nexus"`
	Insecure    bool    `yaml:"insecure" env:"OTEL_INSECURE"`
	SampleRatio float64 `yaml:"sample_ratio" env:"OTEL_SAMPLE_RATIO"`
}

// GetEnv 获取环境变量，如果未设置则返回默认值
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetConfigEnv 获取配置环境（从环境变量 CONFIG_ENV，默认为 local）
func GetConfigEnv() string {
	return GetEnv("CONFIG_ENV", "local")
}
