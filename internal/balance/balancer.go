// Package balance distributes users evenly across a set of groups.
//
// Groups are kept in buckets keyed by their current member count. Members
// are shuffled, then each one joins the first group of the smallest bucket,
// which then moves one bucket up. With no failed adds the final sizes differ
// by at most one.
package balance

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/arloliu/reach/types"
)

// Balancer assigns members to groups through a types.GroupStore.
//
// Balancer is safe for concurrent use; runs against the same groups are not
// coordinated and may overshoot evenness by the number of concurrent runs.
type Balancer struct {
	cfg Config
	mu  sync.Mutex // guards cfg.Rand
}

// New creates a balancer.
//
// Parameters:
//   - cfg: Balancer configuration (validated, defaults applied)
//
// Returns:
//   - *Balancer: Ready balancer
//   - error: Validation error
func New(cfg *Config) (*Balancer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg.SetDefaults()

	return &Balancer{cfg: *cfg}, nil
}

// Distribute adds each member to one of groups, always picking a group of
// the smallest current size.
//
// Members are visited in uniformly random order. An add rejected with
// types.ErrMembershipConflict skips the member without retrying another
// group. Every group that received a member is touched once, in a single
// batch, after the run. Duplicate members and groups are ignored.
//
// Parameters:
//   - ctx: Context for store calls
//   - members: Users to place
//   - groups: Candidate groups
//
// Returns:
//   - []types.GroupMembership: Created memberships in creation order
//   - error: Store failure other than a conflict; adds made before the
//     failure are kept and their groups touched
//
// Example:
//
//	added, err := b.Distribute(ctx, []types.UserID{4, 5, 6}, []types.GroupID{20, 21})
func (b *Balancer) Distribute(ctx context.Context, members []types.UserID, groups []types.GroupID) ([]types.GroupMembership, error) {
	groups = dedupe(groups)
	if len(groups) == 0 {
		return []types.GroupMembership{}, nil
	}

	counts, err := b.cfg.Store.MemberCounts(ctx, groups)
	if err != nil {
		return nil, fmt.Errorf("load group sizes: %w", err)
	}

	buckets := newBuckets(groups, counts)
	order := b.shuffle(dedupe(members))

	added := make([]types.GroupMembership, 0, len(order))
	var touched []types.GroupID
	seen := make(map[types.GroupID]bool)
	skipped := 0

	for _, member := range order {
		group := buckets.pick()
		m, err := b.cfg.Store.AddMember(ctx, group, member)
		if errors.Is(err, types.ErrMembershipConflict) {
			skipped++
			b.cfg.Logger.Debug("skipped member during distribution", "group", group, "user", member)

			continue
		}
		if err != nil {
			_ = b.finish(ctx, added, touched, skipped)
			return added, fmt.Errorf("add member %s to group %s: %w", member, group, err)
		}

		added = append(added, m)
		if !seen[group] {
			seen[group] = true
			touched = append(touched, group)
		}
		buckets.promote()
	}

	if err := b.finish(ctx, added, touched, skipped); err != nil {
		return added, err
	}

	return added, nil
}

func (b *Balancer) finish(ctx context.Context, added []types.GroupMembership, touched []types.GroupID, skipped int) error {
	b.cfg.Metrics.RecordDistribution(len(added), skipped)
	if len(touched) == 0 {
		return nil
	}
	if err := b.cfg.Store.TouchGroups(ctx, touched, b.cfg.Now().UTC()); err != nil {
		return fmt.Errorf("touch groups: %w", err)
	}

	return nil
}

// shuffle returns a uniformly permuted copy of ids (Fisher-Yates).
func (b *Balancer) shuffle(ids []types.UserID) []types.UserID {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.cfg.Rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })

	return ids
}

// dedupe returns the ids in first-occurrence order without repeats, as a new slice.
func dedupe[T comparable](ids []T) []T {
	seen := make(map[T]bool, len(ids))
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}

	return out
}
