package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/smartwallet/internal/domain"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "smartwallet:"

// RedisCache implements domain.Cache using Redis.
// Used by the distributed profile and as L2 in two-phase caching.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new Redis cache.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// Get retrieves a value from Redis.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Set stores a value in Redis with TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, redisKeyPrefix+key, value, ttl).Err()
}

// Delete removes a value from Redis.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, redisKeyPrefix+key).Err()
}

// GetRecommendation retrieves a memoized recommendation.
func (c *RedisCache) GetRecommendation(ctx context.Context, key string) (*domain.Recommendation, error) {
	return getRecommendation(ctx, c, key)
}

// SetRecommendation memoizes a recommendation.
func (c *RedisCache) SetRecommendation(ctx context.Context, key string, rec *domain.Recommendation, ttl time.Duration) error {
	return setRecommendation(ctx, c, key, rec, ttl)
}

// Ping checks Redis connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
