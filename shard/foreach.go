package shard

import (
	"context"
	"slices"
	"sync"

	"github.com/arloliu/reach/types"
)

// Split groups ids by owning shard, preserving input order within each shard.
//
// Returns:
//   - map[types.ShardID][]T: Non-empty per-shard id lists
func Split[T ~int64](p types.ShardPartitioner, ids []T) map[types.ShardID][]T {
	out := make(map[types.ShardID][]T)
	for _, id := range ids {
		s := p.ShardFor(int64(id))
		out[s] = append(out[s], id)
	}

	return out
}

// Job is the per-shard unit of work run by ForEach.
type Job[R any] func(ctx context.Context, shard types.ShardID) (R, error)

// ForEach runs job once for each shard in shards and returns the results in
// the same order as shards.
//
// With concurrency <= 1 the shards run sequentially. Otherwise at most
// concurrency jobs run at once; each job returns its own result value so no
// result is shared between goroutines. The first error cancels the context
// passed to the remaining jobs and is returned.
//
// Parameters:
//   - ctx: Context for cancellation
//   - shards: Shards to visit
//   - concurrency: Maximum concurrent jobs
//   - job: Work to run per shard
//
// Returns:
//   - []R: Results in shard order
//   - error: First job error, if any
func ForEach[R any](ctx context.Context, shards []types.ShardID, concurrency int, job Job[R]) ([]R, error) {
	results := make([]R, len(shards))
	if len(shards) == 0 {
		return results, nil
	}

	if concurrency <= 1 || len(shards) == 1 {
		for i, s := range shards {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			r, err := job(ctx, s)
			if err != nil {
				return nil, err
			}
			results[i] = r
		}

		return results, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
		sem      = make(chan struct{}, concurrency)
	)

	for i, s := range shards {
		wg.Add(1) //nolint:revive // Standard pattern for concurrent operations
		go func(idx int, s types.ShardID) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				errOnce.Do(func() { firstErr = ctx.Err() })
				return
			}
			defer func() { <-sem }()

			r, err := job(ctx, s)
			if err != nil {
				errOnce.Do(func() {
					firstErr = err
					cancel()
				})

				return
			}
			results[idx] = r
		}(i, s)
	}

	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}

	return results, nil
}

// SortedKeys returns the shards of a Split result in ascending order.
func SortedKeys[T any](m map[types.ShardID]T) []types.ShardID {
	out := make([]types.ShardID, 0, len(m))
	for s := range m {
		out = append(out, s)
	}
	slices.Sort(out)

	return out
}
