package usercache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"eterna-home/internal/model"
	"eterna-home/pkg/logger"
	"eterna-home/prometheus"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisCache is a shared user cache for multi-instance deployments. All
// operations are best-effort: a Redis error is logged and treated as a
// miss, never surfaced to the caller.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects to Redis using the given URL
func NewRedisCache(redisURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client, ttl: ttl}, nil
}

// NewRedisCacheWithClient wraps an existing client. Used by tests.
func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func cacheKey(email string) string {
	return "user:" + email
}

func (c *RedisCache) Get(ctx context.Context, email string) (*model.User, bool) {
	data, err := c.client.Get(ctx, cacheKey(email)).Result()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		prometheus.RecordCacheLookup("error")
		logger.FromContext(ctx).Debug("user cache read failed", zap.Error(err))
		return nil, false
	}

	var user model.User
	if err := json.Unmarshal([]byte(data), &user); err != nil {
		// Drop corrupt entries so they do not mask fresh data
		c.client.Del(ctx, cacheKey(email))
		prometheus.RecordCacheLookup("error")
		logger.FromContext(ctx).Debug("user cache entry corrupt", zap.Error(err))
		return nil, false
	}
	return &user, true
}

func (c *RedisCache) Set(ctx context.Context, email string, user *model.User) {
	if user == nil {
		return
	}
	data, err := json.Marshal(user)
	if err != nil {
		logger.FromContext(ctx).Debug("user cache marshal failed", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, cacheKey(email), data, c.ttl).Err(); err != nil {
		logger.FromContext(ctx).Debug("user cache write failed", zap.Error(err))
	}
}

func (c *RedisCache) Invalidate(ctx context.Context, email string) {
	if err := c.client.Del(ctx, cacheKey(email)).Err(); err != nil {
		logger.FromContext(ctx).Debug("user cache invalidate failed", zap.Error(err))
	}
}

// Close releases the underlying Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}
