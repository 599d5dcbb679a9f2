// Package cache provides a Redis backed analytics cache.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eventdesk/api/internal/services"
)

// RedisCache stores JSON encoded analytics snapshots under a namespaced key.
type RedisCache struct {
	client    redis.UniversalClient
	namespace string
}

var _ services.AnalyticsCache = (*RedisCache)(nil)

// Options configure the Redis connection.
type Options struct {
	Addr      string
	Password  string
	DB        int
	Namespace string
}

// NewRedisClient opens a client for opts. The connection is established lazily.
func NewRedisClient(opts Options) (*redis.Client, error) {
	addr := strings.TrimSpace(opts.Addr)
	if addr == "" {
		return nil, errors.New("cache: redis address is required")
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

// NewRedisCache wraps client. Keys are prefixed with namespace when one is set.
func NewRedisCache(client redis.UniversalClient, namespace string) (*RedisCache, error) {
	if client == nil {
		return nil, errors.New("cache: redis client is required")
	}
	return &RedisCache{client: client, namespace: strings.TrimSpace(namespace)}, nil
}

func (c *RedisCache) key(key string) string {
	if c.namespace == "" {
		return key
	}
	return fmt.Sprintf("%s:%s", c.namespace, key)
}

// GetAnalytics returns the cached value and whether it was present.
func (c *RedisCache) GetAnalytics(ctx context.Context, key string) (services.OrderAnalytics, bool, error) {
	raw, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return services.OrderAnalytics{}, false, nil
	}
	if err != nil {
		return services.OrderAnalytics{}, false, fmt.Errorf("cache: get %s: %w", key, err)
	}
	var value services.OrderAnalytics
	if err := json.Unmarshal(raw, &value); err != nil {
		return services.OrderAnalytics{}, false, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return value, true, nil
}

// SetAnalytics stores value for ttl.
func (c *RedisCache) SetAnalytics(ctx context.Context, key string, value services.OrderAnalytics, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	if err := c.client.Set(ctx, c.key(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("cache: set %s: %w", key, err)
	}
	return nil
}

// Ping reports whether the Redis server answers.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
