package shard

import "github.com/arloliu/reach/types"

// Single places every id on shard 0.
type Single struct{}

var _ types.ShardPartitioner = (*Single)(nil)

// NewSingle creates the single-shard strategy.
//
// Returns:
//   - *Single: Strategy mapping every id to shard 0
func NewSingle() *Single {
	return &Single{}
}

// ShardFor always returns shard 0.
func (*Single) ShardFor(_ int64) types.ShardID { return 0 }

// Shards returns the single shard.
func (*Single) Shards() []types.ShardID { return []types.ShardID{0} }
