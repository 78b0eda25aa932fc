package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opensource-finance/claimwatch/internal/domain"
)

// keyPrefix namespaces every key this service writes to a shared Redis.
const keyPrefix = "claimwatch:"

// RedisCache shares cached search results between ClaimWatch nodes.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to cfg.RedisAddr and fails if the server does not
// answer a PING within five seconds.
func NewRedisCache(cfg domain.CacheConfig) (*RedisCache, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		ClientName:   "claimwatch",
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return &RedisCache{client: client}, nil
}

func redisKey(scope, key string) (string, error) {
	if scope == "" {
		return "", ErrScopeRequired
	}
	return keyPrefix + scopedKey(scope, key), nil
}

func (c *RedisCache) Get(ctx context.Context, scope string, key string) ([]byte, error) {
	k, err := redisKey(scope, key)
	if err != nil {
		return nil, err
	}
	val, err := c.client.Get(ctx, k).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("redis get %s: %w", k, err)
	}
	return val, nil
}

func (c *RedisCache) Set(ctx context.Context, scope string, key string, value []byte, ttl time.Duration) error {
	k, err := redisKey(scope, key)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, k, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", k, err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, scope string, key string) error {
	k, err := redisKey(scope, key)
	if err != nil {
		return err
	}
	return c.client.Del(ctx, k).Err()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
