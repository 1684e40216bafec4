package shard

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/reach/types"
)

func TestSingle(t *testing.T) {
	p := NewSingle()

	require.Equal(t, []types.ShardID{0}, p.Shards())
	for _, id := range []int64{0, 1, 42, -7, 1 << 40} {
		require.Equal(t, types.ShardID(0), p.ShardFor(id))
	}
}

func TestModulo(t *testing.T) {
	t.Run("rejects zero shards", func(t *testing.T) {
		_, err := NewModulo(0)
		require.ErrorIs(t, err, ErrNoShards)
	})

	t.Run("places ids by remainder", func(t *testing.T) {
		p, err := NewModulo(3)
		require.NoError(t, err)

		require.Equal(t, []types.ShardID{0, 1, 2}, p.Shards())
		require.Equal(t, types.ShardID(0), p.ShardFor(9))
		require.Equal(t, types.ShardID(1), p.ShardFor(10))
		require.Equal(t, types.ShardID(2), p.ShardFor(-5))
	})
}

func TestConsistentHash(t *testing.T) {
	t.Run("rejects empty shard list", func(t *testing.T) {
		_, err := NewConsistentHash(nil)
		require.ErrorIs(t, err, ErrNoShards)
	})

	t.Run("covers every shard", func(t *testing.T) {
		shards := []types.ShardID{0, 1, 2, 3}
		p, err := NewConsistentHash(shards, WithVirtualNodes(200))
		require.NoError(t, err)
		require.Equal(t, shards, p.Shards())

		seen := make(map[types.ShardID]int)
		for id := int64(1); id <= 2000; id++ {
			seen[p.ShardFor(id)]++
		}

		require.Len(t, seen, len(shards))
		for s, n := range seen {
			require.Greater(t, n, 200, "shard %d is underloaded", s)
		}
	})

	t.Run("is deterministic", func(t *testing.T) {
		a, err := NewConsistentHash([]types.ShardID{0, 1, 2}, WithHashSeed(7))
		require.NoError(t, err)
		b, err := NewConsistentHash([]types.ShardID{2, 1, 0}, WithHashSeed(7))
		require.NoError(t, err)

		for id := int64(0); id < 500; id++ {
			require.Equal(t, a.ShardFor(id), b.ShardFor(id))
		}
	})
}

func TestSplit(t *testing.T) {
	p, err := NewModulo(2)
	require.NoError(t, err)

	parts := Split(p, []types.UserID{5, 2, 3, 4, 1})

	require.Equal(t, map[types.ShardID][]types.UserID{
		0: {2, 4},
		1: {5, 3, 1},
	}, parts)
	require.Equal(t, []types.ShardID{0, 1}, SortedKeys(parts))
}
