// Package redis implements types.Cache on Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/arloliu/reach/types"
)

// Config configures the Redis cache.
type Config struct {
	// URL is a redis:// or rediss:// connection URL.
	URL string `yaml:"url"`

	// DialTimeout bounds the initial connection check (default: 3s).
	DialTimeout time.Duration `yaml:"dialTimeout"`
}

// Cache stores derived values in Redis with native key expiry.
type Cache struct {
	client goredis.UniversalClient
	owned  bool
}

var _ types.Cache = (*Cache)(nil)

// New connects to Redis and verifies the connection with PING.
//
// Parameters:
//   - ctx: Context for the connection check
//   - cfg: Connection configuration
//
// Returns:
//   - *Cache: Cache owning the client (Close releases it)
//   - error: URL parse failure, or a ping failure wrapping types.ErrUnavailable
//
// Example:
//
//	c, err := redis.New(ctx, redis.Config{URL: os.Getenv("REDIS_URL")})
//	resolver, err := reach.NewResolver(&cfg, dir, reach.WithCache(c))
func New(ctx context.Context, cfg Config) (*Cache, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("redis: %w: url is required", types.ErrInvalidConfig)
	}
	opt, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	client := goredis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, classify("ping", err)
	}

	return &Cache{client: client, owned: true}, nil
}

// NewWithClient wraps an existing client. Close does not close it.
func NewWithClient(client goredis.UniversalClient) *Cache {
	return &Cache{client: client}
}

// Get returns the value stored under key, or types.ErrCacheMiss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, types.ErrCacheMiss
	}
	if err != nil {
		return nil, classify("get", err)
	}

	return b, nil
}

// Set stores value under key for ttl (ttl <= 0 keeps the key without expiry).
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return classify("set", err)
	}

	return nil
}

// Ping verifies connectivity with Redis.
func (c *Cache) Ping(ctx context.Context) error {
	return classify("ping", c.client.Ping(ctx).Err())
}

// Close releases the client if the cache created it.
func (c *Cache) Close() error {
	if !c.owned {
		return nil
	}

	return c.client.Close()
}

// classify wraps err with op. Server replies (goredis.Error) are plain errors;
// everything else is a transport failure and wraps types.ErrUnavailable.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var reply goredis.Error
	if errors.As(err, &reply) && !types.IsUnavailable(err) {
		return fmt.Errorf("redis %s: %w", op, err)
	}

	return fmt.Errorf("redis %s: %w: %w", op, types.ErrUnavailable, err)
}
