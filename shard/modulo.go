package shard

import "github.com/arloliu/reach/types"

// Modulo places id on shard |id| % n.
type Modulo struct {
	n int
}

var _ types.ShardPartitioner = (*Modulo)(nil)

// NewModulo creates a modulo strategy over n shards.
//
// Parameters:
//   - n: Number of shards (must be > 0)
//
// Returns:
//   - *Modulo: Initialized strategy
//   - error: ErrNoShards if n <= 0
//
// Example:
//
//	p, err := shard.NewModulo(4)
//	resolver, err := reach.NewResolver(&cfg, dir, reach.WithPartitioner(p))
func NewModulo(n int) (*Modulo, error) {
	if n <= 0 {
		return nil, ErrNoShards
	}

	return &Modulo{n: n}, nil
}

// ShardFor returns the shard owning id.
func (m *Modulo) ShardFor(id int64) types.ShardID {
	if id < 0 {
		id = -id
	}

	return types.ShardID(id % int64(m.n))
}

// Shards lists shards 0..n-1.
func (m *Modulo) Shards() []types.ShardID {
	out := make([]types.ShardID, m.n)
	for i := range out {
		out[i] = types.ShardID(i)
	}

	return out
}
