// Package memory implements an in-process types.Cache with per-entry TTL.
package memory

import (
	"context"
	"slices"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/arloliu/reach/types"
)

type entry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// Cache is an in-process TTL cache backed by a concurrent map.
//
// Expired entries are dropped lazily on Get; call Sweep periodically for
// long-lived processes with many distinct keys.
type Cache struct {
	entries *xsync.Map[string, entry]
	now     func() time.Time
}

var _ types.Cache = (*Cache)(nil)

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: xsync.NewMap[string, entry](),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Get returns a copy of the stored value, or types.ErrCacheMiss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e, ok := c.entries.Load(key)
	if !ok {
		return nil, types.ErrCacheMiss
	}
	if c.expired(e) {
		// Only delete the entry we saw; a concurrent Set may have replaced it.
		c.entries.Compute(key, func(cur entry, loaded bool) (entry, xsync.ComputeOp) {
			if loaded && c.expired(cur) {
				return cur, xsync.DeleteOp
			}

			return cur, xsync.CancelOp
		})

		return nil, types.ErrCacheMiss
	}

	return slices.Clone(e.value), nil
}

// Set stores a copy of value for ttl. A ttl <= 0 stores without expiry.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e := entry{value: slices.Clone(value)}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	c.entries.Store(key, e)

	return nil
}

// Delete removes key.
func (c *Cache) Delete(key string) {
	c.entries.Delete(key)
}

// Sweep removes every expired entry and returns how many were removed.
func (c *Cache) Sweep() int {
	var expired []string
	c.entries.Range(func(key string, e entry) bool {
		if c.expired(e) {
			expired = append(expired, key)
		}

		return true
	})

	removed := 0
	for _, key := range expired {
		c.entries.Compute(key, func(cur entry, loaded bool) (entry, xsync.ComputeOp) {
			if loaded && c.expired(cur) {
				removed++
				return cur, xsync.DeleteOp
			}

			return cur, xsync.CancelOp
		})
	}

	return removed
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (c *Cache) Len() int {
	return c.entries.Size()
}

func (c *Cache) expired(e entry) bool {
	return !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt)
}
