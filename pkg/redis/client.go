package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"nexus/pkg/config"
)

// NewRedisClient returns a client and logs whether Redis answered a ping.
// An unreachable Redis is not fatal: callers fail open.
func NewRedisClient(cfg config.RedisConfig, logger *zap.Logger) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("Redis not reachable, dedupe and caches degrade", zap.String("addr", cfg.Addr), zap.Error(err))
	} else {
		logger.Info("Redis connected", zap.String("addr", cfg.Addr))
	}
	return rdb
}
