package redis

import (
	"context"
	"errors"
	"net"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/reach/types"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()

	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set; skipping Redis integration test")
	}

	c, err := New(context.Background(), Config{URL: url})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return c
}

func TestCache_Integration(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	key := "reach:test:" + strconv.FormatInt(time.Now().UnixNano(), 10)

	_, err := c.Get(ctx, key)
	require.ErrorIs(t, err, types.ErrCacheMiss)

	require.NoError(t, c.Set(ctx, key, []byte("[4,8]"), time.Minute))

	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, []byte("[4,8]"), got)

	require.NoError(t, c.Set(ctx, key, []byte("[1]"), time.Second))
	require.Eventually(t, func() bool {
		_, err := c.Get(ctx, key)
		return errors.Is(err, types.ErrCacheMiss)
	}, 5*time.Second, 100*time.Millisecond)
}

func TestNew_RequiresURL(t *testing.T) {
	_, err := New(context.Background(), Config{})
	require.ErrorIs(t, err, types.ErrInvalidConfig)
}

func TestNew_Unreachable(t *testing.T) {
	// Port 1 on loopback refuses connections.
	_, err := New(context.Background(), Config{URL: "redis://127.0.0.1:1/0", DialTimeout: 500 * time.Millisecond})
	require.Error(t, err)
	require.True(t, types.IsUnavailable(err))
}

type replyErr string

func (e replyErr) Error() string { return string(e) }
func (e replyErr) RedisError()   {}

func TestClassify(t *testing.T) {
	require.NoError(t, classify("get", nil))

	netErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	require.ErrorIs(t, classify("get", netErr), types.ErrUnavailable)
	require.ErrorIs(t, classify("get", context.DeadlineExceeded), types.ErrUnavailable)

	err := classify("set", replyErr("WRONGTYPE Operation against a key holding the wrong kind of value"))
	require.NotErrorIs(t, err, types.ErrUnavailable)
	require.Contains(t, err.Error(), "WRONGTYPE")
}
