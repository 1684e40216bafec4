package hash

import (
	"encoding/binary"
	"slices"

	"github.com/zeebo/xxh3"

	"github.com/arloliu/reach/types"
)

// Ring implements a consistent hash ring of shards with virtual nodes.
//
// The ring maps record ids to shards using consistent hashing, so adding a
// shard relocates only about 1/n of the ids.
type Ring struct {
	// nodes contains all virtual nodes on the ring, sorted by hash
	nodes []virtualNode

	// shards holds the unique, ascending list of shards present on the ring
	shards []types.ShardID

	// seed for hash function (0 means no seed)
	seed uint64
}

// virtualNode represents a virtual node on the hash ring.
type virtualNode struct {
	hash  uint64        // Position on the ring
	shard types.ShardID // Shard owning this virtual node
}

// NewRing creates a new consistent hash ring.
//
// Parameters:
//   - shards: Shards to place on the ring (duplicates are ignored)
//   - virtualNodesPerShard: Number of virtual nodes per shard (higher = better distribution)
//   - seed: Seed for hash function (0 for the unseeded hash)
//
// Returns:
//   - *Ring: Initialized hash ring
//
// Example:
//
//	ring := hash.NewRing([]types.ShardID{0, 1, 2}, 150, 0)
//	shard := ring.ShardFor(userID)
func NewRing(shards []types.ShardID, virtualNodesPerShard int, seed uint64) *Ring {
	uniq := slices.Clone(shards)
	slices.Sort(uniq)
	uniq = slices.Compact(uniq)

	ring := &Ring{
		nodes:  make([]virtualNode, 0, len(uniq)*virtualNodesPerShard),
		shards: uniq,
		seed:   seed,
	}

	for _, shard := range ring.shards {
		ring.addShard(shard, virtualNodesPerShard)
	}

	slices.SortFunc(ring.nodes, func(a, b virtualNode) int {
		if a.hash < b.hash {
			return -1
		}
		if a.hash > b.hash {
			return 1
		}

		return int(a.shard) - int(b.shard)
	})

	return ring
}

// ShardFor finds the shard responsible for an id.
//
// Uses binary search to find the first virtual node whose hash is >= the id hash,
// wrapping around to the first node past the end of the ring.
//
// Parameters:
//   - id: Record id
//
// Returns:
//   - types.ShardID: Owning shard (0 if the ring is empty)
func (r *Ring) ShardFor(id int64) types.ShardID {
	if len(r.nodes) == 0 {
		return 0
	}

	return r.shardByHash(r.hashID(id))
}

// Shards returns the shards on the ring in ascending order.
func (r *Ring) Shards() []types.ShardID {
	return slices.Clone(r.shards)
}

// Size returns the total number of virtual nodes on the ring.
func (r *Ring) Size() int {
	return len(r.nodes)
}

// addShard adds virtual nodes for a shard to the ring.
func (r *Ring) addShard(shard types.ShardID, virtualNodes int) {
	var sb [8]byte
	binary.LittleEndian.PutUint64(sb[:], uint64(shard)) //nolint:gosec

	for i := range virtualNodes {
		// Fold the shard id, then the vnode index using the previous hash as seed.
		var h uint64
		if r.seed != 0 {
			h = xxh3.HashSeed(sb[:], r.seed)
		} else {
			h = xxh3.Hash(sb[:])
		}

		var ib [8]byte
		binary.LittleEndian.PutUint64(ib[:], uint64(i)) //nolint:gosec
		h = xxh3.HashSeed(ib[:], h)

		r.nodes = append(r.nodes, virtualNode{hash: h, shard: shard})
	}
}

func (r *Ring) hashID(id int64) uint64 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(id)) //nolint:gosec
	if r.seed != 0 {
		return xxh3.HashSeed(b[:], r.seed)
	}

	return xxh3.Hash(b[:])
}

// shardByHash returns the shard for a given hash value using binary search over the ring.
func (r *Ring) shardByHash(target uint64) types.ShardID {
	idx, found := slices.BinarySearchFunc(r.nodes, target, func(node virtualNode, t uint64) int {
		if node.hash < t {
			return -1
		}
		if node.hash > t {
			return 1
		}

		return 0
	})

	if !found && idx >= len(r.nodes) {
		idx = 0
	}

	return r.nodes[idx].shard
}
