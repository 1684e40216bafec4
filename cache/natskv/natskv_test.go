package natskv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	reachtest "github.com/arloliu/reach/testing"
	"github.com/arloliu/reach/types"
)

func TestCache(t *testing.T) {
	_, nc := reachtest.StartEmbeddedNATS(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c, err := New(ctx, nc, Config{Bucket: "reach-test"})
	require.NoError(t, err)
	require.Equal(t, "natskv(reach-test)", c.String())

	key := "reach:7:0:visible_section_ids:courses:00ff"

	_, err = c.Get(ctx, key)
	require.ErrorIs(t, err, types.ErrCacheMiss)

	require.NoError(t, c.Set(ctx, key, []byte("[3,5]"), time.Hour))

	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, []byte("[3,5]"), got)

	require.NoError(t, c.Set(ctx, key, []byte("[3]"), time.Hour))
	got, err = c.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, []byte("[3]"), got, "last writer wins")
}

func TestCache_BucketTTL(t *testing.T) {
	_, nc := reachtest.StartEmbeddedNATS(t)
	ctx := context.Background()

	c, err := New(ctx, nc, Config{Bucket: "reach-ttl", TTL: time.Second})
	require.NoError(t, err)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Hour))
	require.Eventually(t, func() bool {
		_, err := c.Get(ctx, "k")
		return err != nil
	}, 5*time.Second, 100*time.Millisecond)
}

func TestCache_ClosedConnection(t *testing.T) {
	_, nc := reachtest.StartEmbeddedNATS(t)
	ctx := context.Background()

	c, err := New(ctx, nc, Config{Bucket: "reach-closed"})
	require.NoError(t, err)

	nc.Close()

	_, err = c.Get(ctx, "k")
	require.Error(t, err)
	require.True(t, types.IsUnavailable(err))
}

func TestEncodeKey(t *testing.T) {
	require.Equal(t, "reach.7.0.visible_section_ids", EncodeKey("reach:7:0:visible_section_ids"))
	require.Equal(t, "a_b_c", EncodeKey("a b*c"))
	require.Equal(t, "x-y/z=w", EncodeKey("x-y/z=w"))
}

func TestConfig_SetDefaults(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()

	require.Equal(t, "reach-cache", cfg.Bucket)
	require.Equal(t, 24*time.Hour, cfg.TTL)
	require.Equal(t, 1, cfg.Replicas)
	require.Equal(t, 3, cfg.MaxRetries)
}
