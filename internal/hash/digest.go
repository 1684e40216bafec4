// Package hash provides xxh3-based hashing: a consistent hash ring for shard
// placement and order-independent content digests for cache keys.
package hash

import (
	"encoding/binary"
	"slices"
	"strconv"

	"github.com/zeebo/xxh3"
)

// Digest returns a content hash of an id set.
//
// The ids are sorted and de-duplicated first, so the digest depends only on
// set membership, never on input order. The empty set hashes to a fixed value.
//
// Returns:
//   - string: 16-character lowercase hex digest
func Digest[T ~int64](ids []T) string {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	h := xxh3.New()
	var b [8]byte
	for _, id := range sorted {
		binary.LittleEndian.PutUint64(b[:], uint64(id)) //nolint:gosec
		_, _ = h.Write(b[:])
	}

	return hex16(h.Sum64())
}

func hex16(v uint64) string {
	s := strconv.FormatUint(v, 16)
	for len(s) < 16 {
		s = "0" + s
	}

	return s
}
