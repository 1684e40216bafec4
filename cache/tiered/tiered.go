// Package tiered layers a fast local cache in front of a shared one.
package tiered

import (
	"context"
	"errors"
	"time"

	"github.com/arloliu/reach/types"
)

// Cache reads L1 first, falls back to L2 and back-fills L1 on an L2 hit.
// Writes go to both tiers. Back-fill needs an L1 bound: the remaining L2 lifetime
// is unknown, so without l1TTL an L2 hit is not copied down.
type Cache struct {
	l1    types.Cache
	l2    types.Cache
	l1TTL time.Duration
}

var _ types.Cache = (*Cache)(nil)

// New creates a two-tier cache.
//
// Parameters:
//   - l1: Local cache (e.g. memory.New())
//   - l2: Shared cache (e.g. redis or natskv)
//   - l1TTL: Upper bound on L1 entry lifetime (0 keeps the caller's ttl and disables back-fill)
//
// Returns:
//   - *Cache: Tiered cache
func New(l1, l2 types.Cache, l1TTL time.Duration) *Cache {
	return &Cache{l1: l1, l2: l2, l1TTL: l1TTL}
}

// Get returns the L1 value, else the L2 value.
//
// L1 failures other than a miss are ignored; an L2 failure is returned.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	if v, err := c.l1.Get(ctx, key); err == nil {
		return v, nil
	}

	v, err := c.l2.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if c.l1TTL > 0 {
		_ = c.l1.Set(ctx, key, v, c.l1TTL)
	}

	return v, nil
}

// Set writes both tiers. An L2 failure is returned after L1 is written.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	l1Err := c.l1.Set(ctx, key, value, c.localTTL(ttl))
	l2Err := c.l2.Set(ctx, key, value, ttl)

	return errors.Join(l2Err, l1Err)
}

func (c *Cache) localTTL(ttl time.Duration) time.Duration {
	if c.l1TTL > 0 && (ttl <= 0 || ttl > c.l1TTL) {
		return c.l1TTL
	}

	return ttl
}
