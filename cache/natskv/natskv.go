// Package natskv implements types.Cache on a NATS JetStream KeyValue bucket.
package natskv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/reach/internal/kvutil"
	"github.com/arloliu/reach/internal/natsutil"
	"github.com/arloliu/reach/types"
)

// Config configures the KV-backed cache.
type Config struct {
	// Bucket is the KV bucket name (default: "reach-cache").
	Bucket string `yaml:"bucket"`

	// TTL expires every entry of the bucket (default: 24h). NATS KV applies
	// expiry per bucket, so the ttl passed to Set is not used per key.
	TTL time.Duration `yaml:"ttl"`

	// Replicas is the JetStream replication factor (default: 1).
	Replicas int `yaml:"replicas"`

	// MaxRetries bounds bucket creation attempts (default: 3).
	MaxRetries int `yaml:"maxRetries"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Bucket == "" {
		c.Bucket = "reach-cache"
	}
	if c.TTL <= 0 {
		c.TTL = 24 * time.Hour
	}
	if c.Replicas <= 0 {
		c.Replicas = 1
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
}

// Cache stores derived values in a KV bucket.
type Cache struct {
	kv jetstream.KeyValue
}

var _ types.Cache = (*Cache)(nil)

// New opens (or creates) the cache bucket.
//
// Parameters:
//   - ctx: Context for bucket creation
//   - nc: Connected NATS client
//   - cfg: Bucket configuration (zero values take defaults)
//
// Returns:
//   - *Cache: Cache bound to the bucket
//   - error: JetStream or bucket failure (connectivity wraps types.ErrUnavailable)
//
// Example:
//
//	nc, _ := nats.Connect(nats.DefaultURL)
//	c, err := natskv.New(ctx, nc, natskv.Config{Bucket: "reach-cache"})
func New(ctx context.Context, nc *nats.Conn, cfg Config) (*Cache, error) {
	cfg.SetDefaults()

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, natsutil.Classify("natskv: jetstream", err)
	}

	kv, err := kvutil.EnsureBucket(ctx, js, kvutil.BucketSpec{
		Name:        cfg.Bucket,
		TTL:         cfg.TTL,
		Replicas:    cfg.Replicas,
		Description: "messageable-user derived values",
	}, cfg.MaxRetries)
	if err != nil {
		return nil, natsutil.Classify("natskv: open bucket", err)
	}

	return &Cache{kv: kv}, nil
}

// NewWithKeyValue wraps an already opened bucket.
func NewWithKeyValue(kv jetstream.KeyValue) *Cache {
	return &Cache{kv: kv}
}

// Get returns the value stored under key, or types.ErrCacheMiss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	entry, err := c.kv.Get(ctx, EncodeKey(key))
	if errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted) {
		return nil, types.ErrCacheMiss
	}
	if err != nil {
		return nil, natsutil.Classify("natskv get", err)
	}

	return entry.Value(), nil
}

// Set stores value under key. Expiry is the bucket TTL.
func (c *Cache) Set(ctx context.Context, key string, value []byte, _ time.Duration) error {
	if _, err := c.kv.Put(ctx, EncodeKey(key), value); err != nil {
		return natsutil.Classify("natskv put", err)
	}

	return nil
}

// EncodeKey maps a cache key onto the KV key alphabet [-/_=.a-zA-Z0-9].
//
// ':' separators become '.', which NATS treats as a token separator.
// Every other invalid byte becomes '_', so keys that differ only in such
// bytes collide. Resolver keys cannot: the prefix is restricted to
// [A-Za-z0-9_-] and the remaining parts are decimal ids, names and hex digests.
func EncodeKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for i := 0; i < len(key); i++ {
		ch := key[i]
		switch {
		case ch == ':':
			b.WriteByte('.')
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
			b.WriteByte(ch)
		case ch == '-' || ch == '/' || ch == '_' || ch == '=' || ch == '.':
			b.WriteByte(ch)
		default:
			b.WriteByte('_')
		}
	}

	return b.String()
}

// String describes the cache for logs.
func (c *Cache) String() string {
	return fmt.Sprintf("natskv(%s)", c.kv.Bucket())
}
