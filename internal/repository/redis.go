package repository

import (
	"context"
	"fmt"
	"time"

	"ratesync/internal/config"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient builds a client from config.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// RedisDeliveryCache shares the dedupe set across instances.
type RedisDeliveryCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDeliveryCache(client *redis.Client, ttl time.Duration) *RedisDeliveryCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisDeliveryCache{client: client, ttl: ttl}
}

func (c *RedisDeliveryCache) Seen(ctx context.Context, channelID int64, otaBookingID string) (bool, error) {
	if c.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	n, err := c.client.Exists(ctx, deliveryKey(channelID, otaBookingID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check delivery key: %w", err)
	}
	return n > 0, nil
}

func (c *RedisDeliveryCache) MarkSeen(ctx context.Context, channelID int64, otaBookingID string) error {
	if c.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := c.client.Set(ctx, deliveryKey(channelID, otaBookingID), "1", c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set delivery key: %w", err)
	}
	return nil
}

// Ping verifies the redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	return nil
}

// Close closes the redis connection.
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
