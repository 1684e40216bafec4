package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/reach/cache/memory"
	dirmem "github.com/arloliu/reach/directory/memory"
	"github.com/arloliu/reach/shard"
	"github.com/arloliu/reach/types"
)

const viewer types.UserID = 1

// school builds the shared scenario. The viewer (user 1) is:
//
//	course 10: teacher (Full); 2, 3 students, 4 observer of 2, 6 TA, 7 deleted student
//	course 11: student (Full, student course); 8 observer of nobody, 9 observer of the viewer
//	course 12: TA limited to section 120 (Sectioned); 10 in 120, 11 in 121
//	course 13: observer of 12 (Restricted); 12, 13 students, 14 teacher
//	group 31 (account): viewer and 15; group 32 (account): 5; group 33 (course 12): 10, 11
//	conversation 40: viewer and 5; conversation 41: 5 and 16
//	account 50: viewer reads the roster; 17 is associated without enrollments
func school() *dirmem.Directory {
	active := types.EnrollmentActive
	d := dirmem.New()
	for id := types.UserID(1); id <= 17; id++ {
		state := types.UserRegistered
		if id == 7 {
			state = types.UserDeleted
		}
		d.AddUser(types.User{ID: id, Name: fmt.Sprintf("User %02d", id), SortableName: fmt.Sprintf("%02d, User", id), State: state})
	}

	for _, c := range []types.CourseID{10, 11, 12, 13} {
		d.AddCourse(types.Course{ID: c, AccountID: 1, Name: fmt.Sprintf("Course %d", c), State: types.CourseAvailable})
	}

	for _, e := range []types.Enrollment{
		{UserID: 1, CourseID: 10, SectionID: 100, Role: types.RoleTeacher},
		{UserID: 2, CourseID: 10, SectionID: 100, Role: types.RoleStudent},
		{UserID: 3, CourseID: 10, SectionID: 101, Role: types.RoleStudent},
		{UserID: 4, CourseID: 10, SectionID: 100, Role: types.RoleObserver, AssociatedUserID: 2},
		{UserID: 6, CourseID: 10, SectionID: 100, Role: types.RoleTA},
		{UserID: 7, CourseID: 10, SectionID: 100, Role: types.RoleStudent},
		{UserID: 1, CourseID: 11, SectionID: 110, Role: types.RoleStudent},
		{UserID: 8, CourseID: 11, SectionID: 110, Role: types.RoleObserver},
		{UserID: 9, CourseID: 11, SectionID: 110, Role: types.RoleObserver, AssociatedUserID: 1},
		{UserID: 1, CourseID: 12, SectionID: 120, Role: types.RoleTA, LimitToSection: true},
		{UserID: 10, CourseID: 12, SectionID: 120, Role: types.RoleStudent},
		{UserID: 11, CourseID: 12, SectionID: 121, Role: types.RoleStudent},
		{UserID: 1, CourseID: 13, SectionID: 130, Role: types.RoleObserver, AssociatedUserID: 12},
		{UserID: 12, CourseID: 13, SectionID: 130, Role: types.RoleStudent},
		{UserID: 13, CourseID: 13, SectionID: 130, Role: types.RoleStudent},
		{UserID: 14, CourseID: 13, SectionID: 130, Role: types.RoleTeacher},
	} {
		e.State = active
		d.Enroll(e)
	}

	return d.
		AddGroup(types.Group{ID: 31, ContextType: types.GroupContextAccount, ContextID: 1, Active: true}).
		AddGroup(types.Group{ID: 32, ContextType: types.GroupContextAccount, ContextID: 1, Active: true}).
		AddGroup(types.Group{ID: 33, ContextType: types.GroupContextCourse, ContextID: 12, Active: true}).
		AddMembership(31, 1, types.MembershipAccepted).
		AddMembership(31, 15, types.MembershipAccepted).
		AddMembership(32, 5, types.MembershipAccepted).
		AddMembership(33, 10, types.MembershipAccepted).
		AddMembership(33, 11, types.MembershipAccepted).
		AddConversation(40, 1, 5).
		AddConversation(41, 5, 16).
		GrantAccount(1, 50, true).
		GrantAccount(17, 50, false)
}

func newEngine(t *testing.T, dir *dirmem.Directory, mutate ...func(*Config)) *Engine {
	t.Helper()

	cfg := &Config{Directory: dir, Participants: dir, Cache: memory.New()}
	for _, m := range mutate {
		m(cfg)
	}
	e, err := NewEngine(cfg)
	require.NoError(t, err)

	return e
}

func ids(users []*types.MessageableUser) []types.UserID {
	out := make([]types.UserID, len(users))
	for i, u := range users {
		out[i] = u.ID
	}

	return out
}

func load(t *testing.T, e *Engine, opts Options, targets ...types.UserID) []*types.MessageableUser {
	t.Helper()

	users, err := e.Load(context.Background(), viewer, types.IDs(targets...), opts)
	require.NoError(t, err)

	return users
}

func TestNewEngine_RequiresDirectory(t *testing.T) {
	_, err := NewEngine(&Config{})
	require.Error(t, err)
}

func TestLoad_Empty(t *testing.T) {
	e := newEngine(t, school())

	users, err := e.Load(context.Background(), viewer, nil, DefaultOptions())
	require.NoError(t, err)
	require.Empty(t, users)
}

func TestLoad_SelfOnly(t *testing.T) {
	e := newEngine(t, school())

	users := load(t, e, DefaultOptions(), viewer)
	require.Equal(t, []types.UserID{viewer}, ids(users))
	require.False(t, users[0].HasCommonContext())
}

func TestLoad_DeletedViewerSelf(t *testing.T) {
	e := newEngine(t, school())

	users, err := e.Load(context.Background(), 7, types.IDs(7), DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, []types.UserID{7}, ids(users))
	require.Equal(t, types.UserDeleted, users[0].State)

	users, err = e.Load(context.Background(), 7, types.IDs(7, 2), DefaultOptions())
	require.NoError(t, err)
	require.Contains(t, ids(users), types.UserID(7), "self survives alongside other targets")
}

func TestLoad_CommonCourse(t *testing.T) {
	e := newEngine(t, school())

	users := load(t, e, DefaultOptions(), 2)
	require.Len(t, users, 1)
	require.Equal(t, types.RoleSet{types.RoleStudent}, users[0].CommonCourses[10])
	require.Equal(t, "User 02", users[0].Name)
}

func TestLoad_StrictExcludesStrangers(t *testing.T) {
	e := newEngine(t, school())

	require.Empty(t, load(t, e, DefaultOptions(), 16))

	loose := load(t, e, Options{StrictChecks: false}, 16)
	require.Equal(t, []types.UserID{16}, ids(loose))
}

func TestLoad_ObserverRestriction(t *testing.T) {
	e := newEngine(t, school())

	users := load(t, e, DefaultOptions(), 8, 9)
	require.Equal(t, []types.UserID{9}, ids(users), "only observers linked to the viewer show in its student courses")
	require.Equal(t, types.RoleSet{types.RoleObserver}, users[0].CommonCourses[11])

	// Observers in courses the viewer teaches are unaffected.
	users = load(t, e, DefaultOptions(), 4)
	require.Equal(t, []types.UserID{4}, ids(users))
}

func TestLoad_ConversationEscapeHatch(t *testing.T) {
	e := newEngine(t, school())

	users := load(t, e, Options{StrictChecks: true, Conversation: 40}, 5)
	require.Equal(t, []types.UserID{5}, ids(users))
	require.False(t, users[0].HasCommonContext())

	require.Empty(t, load(t, e, Options{StrictChecks: true, Conversation: 41}, 16),
		"the viewer must participate in the conversation too")
}

func TestLoad_SectionedCourse(t *testing.T) {
	e := newEngine(t, school())

	users := load(t, e, DefaultOptions(), 10, 11)
	require.Equal(t, []types.UserID{10}, ids(users))
	require.Equal(t, types.RoleSet{types.RoleStudent}, users[0].CommonCourses[12])
}

func TestLoad_RestrictedCourse(t *testing.T) {
	e := newEngine(t, school())

	users := load(t, e, DefaultOptions(), 12, 13, 14)
	require.Equal(t, []types.UserID{12, 14}, ids(users), "observers see their students and the course admins")
}

func TestLoad_GroupsAndAccounts(t *testing.T) {
	e := newEngine(t, school())

	users := load(t, e, DefaultOptions(), 15, 17)
	require.Equal(t, []types.UserID{15, 17}, ids(users))
	require.Equal(t, []types.GroupID{31}, users[0].GroupIDs())
	require.Equal(t, types.RoleSet{types.RoleAccountUser}, users[1].CommonCourses[types.AccountRosterCourse])
}

func TestLoad_DeletedUsers(t *testing.T) {
	e := newEngine(t, school())

	require.Empty(t, load(t, e, DefaultOptions(), 7))
	require.Equal(t, []types.UserID{7}, ids(load(t, e, Options{StrictChecks: false}, 7)))
}

func TestLoad_OrderAndDuplicates(t *testing.T) {
	e := newEngine(t, school())

	users := load(t, e, DefaultOptions(), 3, 999, 2, 3, viewer)
	require.Equal(t, []types.UserID{3, 2, viewer}, ids(users))
}

func TestLoad_AdminContext(t *testing.T) {
	e := newEngine(t, school())

	users := load(t, e, Options{StrictChecks: true, Admin: types.AdminSection(121)}, 11)
	require.Equal(t, []types.UserID{11}, ids(users))
	require.Equal(t, types.RoleSet{types.RoleStudent}, users[0].CommonCourses[12])

	users = load(t, e, Options{StrictChecks: true, Admin: types.AdminCourse(13)}, 13)
	require.Equal(t, []types.UserID{13}, ids(users))

	users = load(t, e, Options{StrictChecks: true, Admin: types.AdminGroup(32)}, 5)
	require.Equal(t, []types.UserID{5}, ids(users))
	require.Equal(t, []types.GroupID{32}, users[0].GroupIDs())

	require.Empty(t, load(t, e, Options{StrictChecks: true, Admin: types.AdminGroup(999)}, 5),
		"an unknown admin context grants nothing")
}

func TestLoad_TargetKinds(t *testing.T) {
	e := newEngine(t, school())

	given := types.NewMessageableUser(types.User{ID: 9, Name: "Given Nine", State: types.UserRegistered})
	targets := []types.Target{
		types.ByID(3),
		types.ByUser(types.User{ID: 2, Name: "stale"}),
		types.ByMessageable(given),
	}

	users, err := e.Load(context.Background(), viewer, targets, DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, []types.UserID{3, 2, 9}, ids(users))
	require.Equal(t, "User 02", users[1].Name, "user targets are reloaded")
	require.Equal(t, "Given Nine", users[2].Name, "messageable targets are used as given")
	require.Equal(t, types.RoleSet{types.RoleStudent}, users[0].CommonCourses[10])
}

func TestLoad_NilMessageableTargetIsSkipped(t *testing.T) {
	e := newEngine(t, school())

	var users []*types.MessageableUser
	var err error
	require.NotPanics(t, func() {
		users, err = e.Load(context.Background(), viewer, []types.Target{types.ByMessageable(nil)}, DefaultOptions())
	})
	require.NoError(t, err)
	require.Empty(t, users)

	users, err = e.Load(context.Background(), viewer,
		[]types.Target{types.ByMessageable(nil), nil, types.ByID(2)}, DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, []types.UserID{2}, ids(users))
}

func TestLoad_MessageableTargetsAreCloned(t *testing.T) {
	e := newEngine(t, school())

	given := types.NewMessageableUser(types.User{ID: 16, Name: "User 16"})
	given.AddGroup(99)

	users, err := e.Load(context.Background(), viewer, []types.Target{types.ByMessageable(given)}, DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, []types.UserID{16}, ids(users))
	require.NotSame(t, given, users[0])
	require.Equal(t, []types.GroupID{99}, given.GroupIDs())
}

func TestLoad_CacheDeterminism(t *testing.T) {
	dir := school()
	cache := memory.New()
	e := newEngine(t, dir, func(c *Config) { c.Cache = cache })

	targets := []types.UserID{2, 3, 4, 9, 10, 12, 14, 15, 17}
	first, err := json.Marshal(load(t, e, DefaultOptions(), targets...))
	require.NoError(t, err)
	require.Positive(t, cache.Len())

	second, err := json.Marshal(load(t, e, DefaultOptions(), targets...))
	require.NoError(t, err)
	require.JSONEq(t, string(first), string(second))
}

func TestLoad_ShardedMatchesSingle(t *testing.T) {
	dir := school()
	modulo, err := shard.NewModulo(3)
	require.NoError(t, err)
	ring, err := shard.NewConsistentHash([]types.ShardID{0, 1, 2, 3})
	require.NoError(t, err)

	targets := []types.UserID{2, 3, 4, 5, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17}
	want, err := json.Marshal(load(t, newEngine(t, dir), DefaultOptions(), targets...))
	require.NoError(t, err)

	for name, p := range map[string]types.ShardPartitioner{"modulo": modulo, "ring": ring} {
		t.Run(name, func(t *testing.T) {
			e := newEngine(t, dir, func(c *Config) {
				c.Partitioner = p
				c.ShardConcurrency = 4
			})
			got, err := json.Marshal(load(t, e, DefaultOptions(), targets...))
			require.NoError(t, err)
			require.JSONEq(t, string(want), string(got))
		})
	}
}

type unavailableDirectory struct {
	*dirmem.Directory
}

func (unavailableDirectory) EnrollmentsInCourses(context.Context, []types.CourseID, []types.UserID) ([]types.Enrollment, error) {
	return nil, fmt.Errorf("replica lag: %w", types.ErrUnavailable)
}

func TestLoad_DependencyFailurePropagates(t *testing.T) {
	dir := school()
	e, err := NewEngine(&Config{Directory: unavailableDirectory{dir}})
	require.NoError(t, err)

	_, err = e.Load(context.Background(), viewer, types.IDs(2), DefaultOptions())
	require.Error(t, err)
	require.True(t, types.IsUnavailable(err))
}

func TestLoad_CancelledContext(t *testing.T) {
	e := newEngine(t, school())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Load(ctx, viewer, types.IDs(2), DefaultOptions())
	require.Error(t, err)
	require.True(t, types.IsUnavailable(err))
}

func TestConfig_SetDefaults(t *testing.T) {
	cfg := &Config{Directory: school()}
	require.NoError(t, cfg.Validate())
	cfg.SetDefaults()

	require.Equal(t, 24*time.Hour, cfg.CacheTTL)
	require.Equal(t, 720*time.Hour, cfg.RecentWindow)
	require.Equal(t, "reach", cfg.KeyPrefix)
	require.Equal(t, 1, cfg.ShardConcurrency)
	require.NotNil(t, cfg.Partitioner)

	cfg.ShardConcurrency = -1
	require.Error(t, cfg.Validate())
}
