package balance

import (
	"slices"

	"github.com/arloliu/reach/types"
)

// buckets groups group ids by member count. smallest always names a
// non-empty bucket.
type buckets struct {
	bySize   map[int][]types.GroupID
	smallest int
}

func newBuckets(groups []types.GroupID, counts map[types.GroupID]int) *buckets {
	b := &buckets{bySize: make(map[int][]types.GroupID)}
	for _, g := range groups {
		size := counts[g]
		b.bySize[size] = append(b.bySize[size], g)
	}
	b.smallest = slices.Min(sizes(b.bySize))

	return b
}

// pick returns the first group of the smallest bucket.
func (b *buckets) pick() types.GroupID {
	return b.bySize[b.smallest][0]
}

// promote moves the picked group into the next bucket up.
func (b *buckets) promote() {
	group := b.bySize[b.smallest][0]
	b.bySize[b.smallest] = b.bySize[b.smallest][1:]
	b.bySize[b.smallest+1] = append(b.bySize[b.smallest+1], group)

	if len(b.bySize[b.smallest]) == 0 {
		delete(b.bySize, b.smallest)
		b.smallest++
	}
}

func sizes(m map[int][]types.GroupID) []int {
	out := make([]int, 0, len(m))
	for size := range m {
		out = append(out, size)
	}

	return out
}
