// Package cache provides the TTL cache behind priority-rank lookups, backed
// by process memory or Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/javajoker/catalog-backend/internal/config"
)

var ErrCacheMiss = errors.New("cache miss")

// Cache stores opaque values with a time-to-live. Implementations serialize
// access internally; callers hold no locks.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// GetJSON decodes the cached value for key into dst.
func GetJSON(ctx context.Context, c Cache, key string, dst interface{}) error {
	data, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to decode cached %s: %w", key, err)
	}
	return nil
}

func SetJSON(ctx context.Context, c Cache, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return c.Set(ctx, key, data, ttl)
}

// Store is a Cache that holds connections or goroutines until closed.
type Store interface {
	Cache
	Close() error
}

// New builds the backend named by cfg.Cache.Type.
func New(cfg *config.Config) (Store, error) {
	switch cfg.Cache.Type {
	case "redis":
		return NewRedisCache(cfg.Redis, "catalog:")
	case "memory", "":
		return NewMemoryCache(time.Minute), nil
	default:
		return nil, fmt.Errorf("unknown cache type %q", cfg.Cache.Type)
	}
}
