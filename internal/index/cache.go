package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/arloliu/reach/types"
)

type input struct {
	name   string
	digest string
}

// cacheKey returns prefix:viewer:shard:name[:input:digest...].
func (ix *Index) cacheKey(shard, name string, inputs []input) string {
	var b strings.Builder
	b.WriteString(ix.opts.KeyPrefix)
	b.WriteByte(':')
	b.WriteString(strconv.FormatInt(int64(ix.viewer), 10))
	b.WriteByte(':')
	b.WriteString(shard)
	b.WriteByte(':')
	b.WriteString(name)
	for _, in := range inputs {
		b.WriteByte(':')
		b.WriteString(in.name)
		b.WriteByte(':')
		b.WriteString(in.digest)
	}

	return b.String()
}

// cachedIDs returns a derived id set from the per-call memo, the cache, or
// compute, in that order.
//
// Values are stored sorted and de-duplicated, so a cached value decodes to
// exactly what compute would return. A cache read failure other than a miss
// aborts the call; a write failure is logged and counted only, because the
// value is already in hand and the next call will recompute it.
func cachedIDs[T ~int64](ctx context.Context, ix *Index, shard, name string, inputs []input,
	compute func(context.Context) ([]T, error),
) ([]T, error) {
	key := ix.cacheKey(shard, name, inputs)

	ix.mu.Lock()
	if v, ok := ix.memo[key]; ok {
		ix.mu.Unlock()
		return fromInt64s[T](v), nil
	}
	ix.mu.Unlock()

	if ix.opts.Cache != nil {
		raw, err := ix.opts.Cache.Get(ctx, key)
		switch {
		case err == nil:
			var ids []int64
			if jerr := json.Unmarshal(raw, &ids); jerr == nil {
				ix.recordLookup(name, true)
				ix.remember(key, ids)

				return fromInt64s[T](ids), nil
			}
			ix.opts.Logger.Warn("discarding undecodable cache entry", "key", key)
		case errors.Is(err, types.ErrCacheMiss):
		default:
			ix.recordError("get")
			if !types.IsUnavailable(err) {
				err = fmt.Errorf("%w: %w", types.ErrUnavailable, err)
			}

			return nil, fmt.Errorf("cache get %s: %w", key, err)
		}
		ix.recordLookup(name, false)
	}

	vals, err := compute(ctx)
	if err != nil {
		return nil, fmt.Errorf("compute %s: %w", name, err)
	}

	ids := canonical(vals)
	ix.remember(key, ids)

	if ix.opts.Cache != nil {
		raw, err := json.Marshal(ids)
		if err == nil {
			err = ix.opts.Cache.Set(ctx, key, raw, ix.opts.TTL)
		}
		if err != nil {
			ix.recordError("set")
			ix.opts.Logger.Warn("failed to cache derived ids", "key", key, "error", err)
		}
	}

	return fromInt64s[T](ids), nil
}

func (ix *Index) remember(key string, ids []int64) {
	ix.mu.Lock()
	ix.memo[key] = ids
	ix.mu.Unlock()
}

func (ix *Index) recordLookup(name string, hit bool) {
	if ix.opts.Metrics != nil {
		ix.opts.Metrics.RecordCacheLookup(name, hit)
	}
}

func (ix *Index) recordError(op string) {
	if ix.opts.Metrics != nil {
		ix.opts.Metrics.RecordCacheError(op)
	}
}

// canonical returns ids sorted ascending without duplicates, never nil.
func canonical[T ~int64](vals []T) []int64 {
	ids := make([]int64, 0, len(vals))
	for _, v := range vals {
		ids = append(ids, int64(v))
	}
	slices.Sort(ids)

	return slices.Compact(ids)
}

func fromInt64s[T ~int64](ids []int64) []T {
	out := make([]T, len(ids))
	for i, id := range ids {
		out[i] = T(id)
	}

	return out
}

func onShard[T ~int64](p types.ShardPartitioner, ids []T, shard types.ShardID) []T {
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		if p == nil || p.ShardFor(int64(id)) == shard {
			out = append(out, id)
		}
	}

	return out
}

func toSet[T comparable](ids []T) map[T]bool {
	out := make(map[T]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}

	return out
}
