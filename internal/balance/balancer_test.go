package balance

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/reach/directory/memory"
	"github.com/arloliu/reach/internal/logger"
	"github.com/arloliu/reach/types"
)

type distribution struct {
	added, skipped int
}

type recordingMetrics struct {
	runs []distribution
}

func (m *recordingMetrics) RecordDistribution(added, skipped int) {
	m.runs = append(m.runs, distribution{added, skipped})
}

func groupsDir(ids ...types.GroupID) *memory.Directory {
	d := memory.New()
	for _, id := range ids {
		d.AddGroup(types.Group{ID: id, ContextType: types.GroupContextCourse, ContextID: 10, Active: true})
	}

	return d
}

func newBalancer(t *testing.T, store types.GroupStore, mutate ...func(*Config)) *Balancer {
	t.Helper()

	cfg := &Config{Store: store, Rand: rand.New(rand.NewPCG(1, 2))} //nolint:gosec
	for _, m := range mutate {
		m(cfg)
	}
	b, err := New(cfg)
	require.NoError(t, err)

	return b
}

func userRange(from, to types.UserID) []types.UserID {
	var out []types.UserID
	for id := from; id <= to; id++ {
		out = append(out, id)
	}

	return out
}

func TestNew_RequiresStore(t *testing.T) {
	_, err := New(&Config{})
	require.Error(t, err)
}

func TestDistribute_Evenness(t *testing.T) {
	for _, tc := range []struct {
		groups, members int
	}{
		{1, 5}, {3, 10}, {4, 4}, {5, 3}, {7, 100},
	} {
		groups := make([]types.GroupID, tc.groups)
		for i := range groups {
			groups[i] = types.GroupID(100 + i)
		}
		dir := groupsDir(groups...)
		b := newBalancer(t, dir)

		added, err := b.Distribute(context.Background(), userRange(1, types.UserID(tc.members)), groups)
		require.NoError(t, err)
		require.Len(t, added, tc.members)

		counts, err := dir.MemberCounts(context.Background(), groups)
		require.NoError(t, err)

		lo, hi, sum := tc.members, 0, 0
		for _, n := range counts {
			lo, hi, sum = min(lo, n), max(hi, n), sum+n
		}
		require.LessOrEqual(t, hi-lo, 1, "groups=%d members=%d counts=%v", tc.groups, tc.members, counts)
		require.Equal(t, tc.members, sum)
	}
}

func TestDistribute_OnlyTouchesInputGroups(t *testing.T) {
	dir := groupsDir(20, 21, 22)
	b := newBalancer(t, dir)

	added, err := b.Distribute(context.Background(), userRange(1, 4), []types.GroupID{20, 21})
	require.NoError(t, err)
	require.Len(t, added, 4)

	for _, m := range added {
		require.Contains(t, []types.GroupID{20, 21}, m.GroupID)
		require.Equal(t, types.MembershipAccepted, m.State)
	}

	_, ok := dir.TouchedAt(20)
	require.True(t, ok)
	_, ok = dir.TouchedAt(21)
	require.True(t, ok)
	_, ok = dir.TouchedAt(22)
	require.False(t, ok)
}

func TestDistribute_EmptyGroups(t *testing.T) {
	b := newBalancer(t, groupsDir())

	added, err := b.Distribute(context.Background(), userRange(1, 3), nil)
	require.NoError(t, err)
	require.NotNil(t, added)
	require.Empty(t, added)
}

func TestDistribute_NoMembers(t *testing.T) {
	dir := groupsDir(20)
	b := newBalancer(t, dir)

	added, err := b.Distribute(context.Background(), nil, []types.GroupID{20})
	require.NoError(t, err)
	require.Empty(t, added)

	_, ok := dir.TouchedAt(20)
	require.False(t, ok)
}

func TestDistribute_FillsSmallestFirst(t *testing.T) {
	dir := groupsDir(20, 21).
		AddMembership(20, 90, types.MembershipAccepted).
		AddMembership(20, 91, types.MembershipInvited).
		AddMembership(20, 92, types.MembershipDeleted)
	b := newBalancer(t, dir)

	added, err := b.Distribute(context.Background(), userRange(1, 3), []types.GroupID{20, 21})
	require.NoError(t, err)
	require.Len(t, added, 3)

	got := []types.GroupID{added[0].GroupID, added[1].GroupID, added[2].GroupID}
	require.Equal(t, []types.GroupID{21, 21, 20}, got)
}

func TestDistribute_SkipsConflicts(t *testing.T) {
	dir := groupsDir(20).AddMembership(20, 2, types.MembershipAccepted)
	rec := logger.NewRecorder()
	m := &recordingMetrics{}
	b := newBalancer(t, dir, func(c *Config) {
		c.Logger = rec
		c.Metrics = m
	})

	added, err := b.Distribute(context.Background(), []types.UserID{1, 2, 3, 3}, []types.GroupID{20, 20})
	require.NoError(t, err)
	require.Len(t, added, 2)
	for _, a := range added {
		require.NotEqual(t, types.UserID(2), a.UserID)
	}

	require.Equal(t, []distribution{{added: 2, skipped: 1}}, m.runs)
	require.Len(t, rec.Find("debug", "skipped member"), 1)
}

func TestDistribute_InactiveGroupSkipsEveryone(t *testing.T) {
	dir := memory.New().AddGroup(types.Group{ID: 20, Active: false})
	b := newBalancer(t, dir)

	added, err := b.Distribute(context.Background(), userRange(1, 3), []types.GroupID{20})
	require.NoError(t, err)
	require.Empty(t, added)

	_, ok := dir.TouchedAt(20)
	require.False(t, ok)
}

func TestDistribute_TouchUsesClock(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	dir := groupsDir(20)
	b := newBalancer(t, dir, func(c *Config) { c.Now = func() time.Time { return at } })

	_, err := b.Distribute(context.Background(), userRange(1, 1), []types.GroupID{20})
	require.NoError(t, err)

	touched, ok := dir.TouchedAt(20)
	require.True(t, ok)
	require.Equal(t, at, touched)
}

func TestDistribute_SeededShuffleIsReproducible(t *testing.T) {
	run := func() []types.UserID {
		dir := groupsDir(20, 21, 22)
		b := newBalancer(t, dir)

		added, err := b.Distribute(context.Background(), userRange(1, 12), []types.GroupID{20, 21, 22})
		require.NoError(t, err)

		order := make([]types.UserID, len(added))
		for i, m := range added {
			order[i] = m.UserID
		}

		return order
	}

	first := run()
	require.Equal(t, first, run())
	require.ElementsMatch(t, userRange(1, 12), first)
}

type failingStore struct {
	*memory.Directory
	failOn types.UserID
}

func (s failingStore) AddMember(ctx context.Context, groupID types.GroupID, userID types.UserID) (types.GroupMembership, error) {
	if userID == s.failOn {
		return types.GroupMembership{}, errors.New("connection reset")
	}

	return s.Directory.AddMember(ctx, groupID, userID)
}

func TestDistribute_StoreFailureStops(t *testing.T) {
	dir := groupsDir(20)
	b := newBalancer(t, failingStore{Directory: dir, failOn: 2})

	_, err := b.Distribute(context.Background(), []types.UserID{2}, []types.GroupID{20})
	require.Error(t, err)
	require.NotErrorIs(t, err, types.ErrMembershipConflict)
}

func TestDistribute_SizeLookupFailure(t *testing.T) {
	b := newBalancer(t, groupsDir(20))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.Distribute(ctx, userRange(1, 2), []types.GroupID{20})
	require.Error(t, err)
	require.True(t, types.IsUnavailable(err))
}
