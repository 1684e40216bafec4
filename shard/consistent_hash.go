package shard

import (
	"github.com/arloliu/reach/internal/hash"
	"github.com/arloliu/reach/types"
)

// ConsistentHash places ids on shards with a consistent hash ring.
type ConsistentHash struct {
	ring *hash.Ring
}

var _ types.ShardPartitioner = (*ConsistentHash)(nil)

type consistentHashConfig struct {
	virtualNodes int
	hashSeed     uint64
}

// ConsistentHashOption configures a ConsistentHash strategy.
type ConsistentHashOption func(*consistentHashConfig)

// WithVirtualNodes sets the number of virtual nodes per shard.
//
// Higher values provide better distribution but increase memory usage.
// Recommended range: 100-300 (default: 150).
func WithVirtualNodes(nodes int) ConsistentHashOption {
	return func(c *consistentHashConfig) {
		c.virtualNodes = nodes
	}
}

// WithHashSeed sets a custom hash seed.
func WithHashSeed(seed uint64) ConsistentHashOption {
	return func(c *consistentHashConfig) {
		c.hashSeed = seed
	}
}

// NewConsistentHash creates a consistent hash strategy over the given shards.
//
// Parameters:
//   - shards: Shard ids to place on the ring
//   - opts: Optional configuration (WithVirtualNodes, WithHashSeed)
//
// Returns:
//   - *ConsistentHash: Initialized strategy
//   - error: ErrNoShards if shards is empty
//
// Example:
//
//	p, err := shard.NewConsistentHash([]types.ShardID{0, 1, 2},
//	    shard.WithVirtualNodes(300),
//	)
func NewConsistentHash(shards []types.ShardID, opts ...ConsistentHashOption) (*ConsistentHash, error) {
	if len(shards) == 0 {
		return nil, ErrNoShards
	}

	cfg := consistentHashConfig{virtualNodes: 150}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.virtualNodes <= 0 {
		cfg.virtualNodes = 150
	}

	return &ConsistentHash{ring: hash.NewRing(shards, cfg.virtualNodes, cfg.hashSeed)}, nil
}

// ShardFor returns the shard owning id.
func (c *ConsistentHash) ShardFor(id int64) types.ShardID {
	return c.ring.ShardFor(id)
}

// Shards lists the ring's shards in ascending order.
func (c *ConsistentHash) Shards() []types.ShardID {
	return c.ring.Shards()
}
