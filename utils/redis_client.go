package utils

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisOptions builds client options from a redis:// URL or a bare host:port.
func RedisOptions(url, password string, db int) *redis.Options {
	opts, err := redis.ParseURL(url)
	if err != nil {
		// Fall back to simple connection
		opts = &redis.Options{
			Addr:     url,
			Password: password,
			DB:       db,
		}
	}

	// Configure connection pool
	opts.PoolSize = 50
	opts.MinIdleConns = 5
	opts.MaxRetries = 3
	return opts
}

// NewRedisClient creates a pooled client and verifies it answers PING.
func NewRedisClient(ctx context.Context, url, password string, db int, logger *zap.Logger) (*redis.Client, error) {
	client := redis.NewClient(RedisOptions(url, password, db))

	// Test connection
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("NewRedisClient: ping: %w", err)
	}

	logger.Info("connected to redis", zap.String("addr", client.Options().Addr))
	return client, nil
}

// RedisHealthCheck performs a health check on Redis connection
func RedisHealthCheck(ctx context.Context, client *redis.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}

	return nil
}
