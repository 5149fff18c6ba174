package github

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// refreshSkew is how long before expiry a cached token stops being reused.
const refreshSkew = time.Minute

// InstallationToken is a short-lived credential for one App installation.
type InstallationToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Usable reports whether the token can still be used at now.
func (t InstallationToken) Usable(now time.Time) bool {
	return t.Token != "" && t.ExpiresAt.Add(-refreshSkew).After(now)
}

// TokenCache stores installation tokens keyed by installation id.
type TokenCache interface {
	Get(ctx context.Context, installationID int64) (InstallationToken, bool)
	Set(ctx context.Context, installationID int64, tok InstallationToken)
	Delete(ctx context.Context, installationID int64)
}

type MemoryTokenCache struct {
	mu     sync.Mutex
	tokens map[int64]InstallationToken
}

func NewMemoryTokenCache() *MemoryTokenCache {
	return &MemoryTokenCache{tokens: make(map[int64]InstallationToken)}
}

func (c *MemoryTokenCache) Get(_ context.Context, id int64) (InstallationToken, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tokens[id]
	return t, ok
}

func (c *MemoryTokenCache) Set(_ context.Context, id int64, tok InstallationToken) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[id] = tok
}

func (c *MemoryTokenCache) Delete(_ context.Context, id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tokens, id)
}

// RedisTokenCache shares tokens between instances. Redis errors are logged
// and treated as cache misses.
type RedisTokenCache struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewRedisTokenCache(rdb *redis.Client, logger *zap.Logger) *RedisTokenCache {
	return &RedisTokenCache{rdb: rdb, logger: logger}
}

func tokenKey(id int64) string {
	return "github:installation-token:" + strconv.FormatInt(id, 10)
}

func (c *RedisTokenCache) Get(ctx context.Context, id int64) (InstallationToken, bool) {
	raw, err := c.rdb.Get(ctx, tokenKey(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Token cache read failed", zap.Int64("installation_id", id), zap.Error(err))
		}
		return InstallationToken{}, false
	}
	var tok InstallationToken
	if err := json.Unmarshal(raw, &tok); err != nil {
		return InstallationToken{}, false
	}
	return tok, true
}

func (c *RedisTokenCache) Set(ctx context.Context, id int64, tok InstallationToken) {
	ttl := time.Until(tok.ExpiresAt)
	if ttl <= 0 {
		return
	}
	raw, err := json.Marshal(tok)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, tokenKey(id), raw, ttl).Err(); err != nil {
		c.logger.Warn("Token cache write failed", zap.Int64("installation_id", id), zap.Error(err))
	}
}

func (c *RedisTokenCache) Delete(ctx context.Context, id int64) {
	if err := c.rdb.Del(ctx, tokenKey(id)).Err(); err != nil {
		c.logger.Warn("Token cache delete failed", zap.Int64("installation_id", id), zap.Error(err))
	}
}
