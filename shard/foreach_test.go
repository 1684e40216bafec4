package shard

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/reach/types"
)

func TestForEach(t *testing.T) {
	shards := []types.ShardID{0, 1, 2, 3, 4}

	t.Run("returns results in shard order", func(t *testing.T) {
		for _, concurrency := range []int{1, 3, 10} {
			got, err := ForEach(context.Background(), shards, concurrency, func(_ context.Context, s types.ShardID) (int, error) {
				return int(s) * 10, nil
			})

			require.NoError(t, err)
			require.Equal(t, []int{0, 10, 20, 30, 40}, got)
		}
	})

	t.Run("empty shard list", func(t *testing.T) {
		got, err := ForEach(context.Background(), nil, 4, func(_ context.Context, _ types.ShardID) (int, error) {
			t.Fatal("job must not run")
			return 0, nil
		})

		require.NoError(t, err)
		require.Empty(t, got)
	})

	t.Run("propagates first error", func(t *testing.T) {
		boom := errors.New("boom")
		for _, concurrency := range []int{1, 4} {
			_, err := ForEach(context.Background(), shards, concurrency, func(_ context.Context, s types.ShardID) (int, error) {
				if s == 2 {
					return 0, boom
				}

				return 1, nil
			})

			require.ErrorIs(t, err, boom)
		}
	})

	t.Run("bounds concurrency", func(t *testing.T) {
		var running, peak atomic.Int32
		_, err := ForEach(context.Background(), shards, 2, func(_ context.Context, _ types.ShardID) (int, error) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			running.Add(-1)

			return 0, nil
		})

		require.NoError(t, err)
		require.LessOrEqual(t, peak.Load(), int32(2))
	})

	t.Run("stops on cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := ForEach(ctx, shards, 1, func(_ context.Context, _ types.ShardID) (int, error) {
			return 0, nil
		})

		require.ErrorIs(t, err, context.Canceled)
	})
}
