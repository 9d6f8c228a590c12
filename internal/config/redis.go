package config

// Redis backs the performance-availability cache and the checkout rate
// limit. Both are optional: when no address is configured, or the initial
// ping fails, callers receive nil and degrade to uncached, unlimited
// operation rather than refusing to start.

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient builds a Redis client from the loaded Config. It returns
// nil when Redis is unconfigured or unreachable.
func NewRedisClient(cfg Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil
	}
	return client
}
