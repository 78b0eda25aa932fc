package domain

import (
	"context"
	"time"
)

// Cache stores opaque values under a scope and key. Search results are cached
// per company, so the scope is always a company id or GlobalScope.
// A miss is reported as a nil value with a nil error.
type Cache interface {
	Get(ctx context.Context, scope string, key string) ([]byte, error)
	Set(ctx context.Context, scope string, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, scope string, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// CacheConfig selects and sizes the cache.
type CacheConfig struct {
	// Type is "memory" or "redis".
	Type string `yaml:"type"`

	LocalMaxSize int           `yaml:"localMaxSize"`
	LocalTTL     time.Duration `yaml:"localTtl"`

	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	RedisDB       int    `yaml:"redisDb"`

	// EnableTwoPhase puts the local LRU in front of Redis.
	EnableTwoPhase bool `yaml:"enableTwoPhase"`
}
