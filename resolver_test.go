package reach

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/reach/cache/memory"
	"github.com/arloliu/reach/directory"
	"github.com/arloliu/reach/directory/directorytest"
	dirmem "github.com/arloliu/reach/directory/memory"
	"github.com/arloliu/reach/directory/sqlite"
	"github.com/arloliu/reach/types"
)

// dataset extends the conformance fixture with a stranger (6) who shares
// only conversation 8 with user 1, an observer (7) of student 3, and three
// empty groups in course 10.
func dataset() directory.Dataset {
	ds := directorytest.Fixture()
	ds.Users = append(ds.Users,
		types.User{ID: 6, Name: "Sol Stranger", SortableName: "Stranger, Sol", State: types.UserRegistered},
		types.User{ID: 7, Name: "Olga Observer", SortableName: "Observer, Olga", State: types.UserRegistered},
	)
	ds.Enrollments = append(ds.Enrollments, types.Enrollment{
		UserID: 7, CourseID: 10, SectionID: 101, Role: types.RoleObserver, State: types.EnrollmentActive, AssociatedUserID: 3,
	})
	for _, id := range []types.GroupID{30, 31, 32} {
		ds.Groups = append(ds.Groups, types.Group{ID: id, Name: "Project " + id.String(), ContextType: types.GroupContextCourse, ContextID: 10, Active: true})
	}
	ds.Participations = append(ds.Participations,
		directory.Participation{ConversationID: 8, UserID: 1},
		directory.Participation{ConversationID: 8, UserID: 6},
	)

	return ds
}

type backend func(t *testing.T) Directory

func backends() map[string]backend {
	return map[string]backend{
		"memory": func(t *testing.T) Directory {
			t.Helper()
			return dirmem.Load(dataset())
		},
		"sqlite": func(t *testing.T) Directory {
			t.Helper()

			ctx := context.Background()
			dir, err := sqlite.Open(ctx, sqlite.Config{DSN: filepath.Join(t.TempDir(), "reach.db"), InitSchema: true})
			require.NoError(t, err)
			t.Cleanup(func() { _ = dir.Close() })
			require.NoError(t, dir.Seed(ctx, dataset()))

			return dir
		},
	}
}

func newResolver(t *testing.T, dir Directory, opts ...Option) *Resolver {
	t.Helper()

	cfg := TestConfig()
	r, err := NewResolver(&cfg, dir, opts...)
	require.NoError(t, err)

	return r
}

func userIDs(users []*MessageableUser) []UserID {
	out := make([]UserID, len(users))
	for i, u := range users {
		out[i] = u.ID
	}

	return out
}

func TestNewResolver_Validation(t *testing.T) {
	_, err := NewResolver(nil, dirmem.New())
	require.ErrorIs(t, err, ErrInvalidConfig)

	cfg := DefaultConfig()
	_, err = NewResolver(&cfg, nil)
	require.ErrorIs(t, err, ErrDirectoryRequired)

	cfg.CacheKeyPrefix = "bad:prefix"
	_, err = NewResolver(&cfg, dirmem.New())
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestResolver_Properties(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			r := newResolver(t, open(t), WithCache(memory.New()))

			t.Run("self inclusion", func(t *testing.T) {
				users, err := r.LoadMessageableUsers(ctx, 6, IDs(6))
				require.NoError(t, err)
				require.Equal(t, []UserID{6}, userIDs(users))
			})

			t.Run("common course", func(t *testing.T) {
				u, err := r.LoadMessageableUser(ctx, 1, ByID(2))
				require.NoError(t, err)
				require.NotNil(t, u)
				require.Equal(t, RoleSet{RoleStudent}, u.CommonCourses[10])
				require.False(t, u.HasCourse(11), "student enrollments in unpublished courses do not count")
				require.Equal(t, RoleSet{RoleStudent}, u.CommonCourses[AccountRosterCourse])
			})

			t.Run("nil messageable target", func(t *testing.T) {
				u, err := r.LoadMessageableUser(ctx, 1, ByMessageable(nil))
				require.NoError(t, err)
				require.Nil(t, u)
			})

			t.Run("strangers", func(t *testing.T) {
				u, err := r.LoadMessageableUser(ctx, 1, ByID(6))
				require.NoError(t, err)
				require.Nil(t, u)

				users, err := r.LoadMessageableUsers(ctx, 1, IDs(6), WithoutStrictChecks())
				require.NoError(t, err)
				require.Equal(t, []UserID{6}, userIDs(users))
			})

			t.Run("observer exclusion", func(t *testing.T) {
				users, err := r.LoadMessageableUsers(ctx, 2, IDs(4, 7))
				require.NoError(t, err)
				require.Equal(t, []UserID{4}, userIDs(users))

				roster, err := r.MessageableUsersInContext(ctx, 2, "course_10_observers")
				require.NoError(t, err)
				require.Equal(t, []UserID{4}, userIDs(roster))
			})

			t.Run("conversation escape hatch", func(t *testing.T) {
				users, err := r.LoadMessageableUsers(ctx, 1, IDs(6), InConversation(8))
				require.NoError(t, err)
				require.Equal(t, []UserID{6}, userIDs(users))

				users, err = r.LoadMessageableUsers(ctx, 1, IDs(6), InConversation(7))
				require.NoError(t, err)
				require.Empty(t, users)
			})

			t.Run("cache determinism", func(t *testing.T) {
				targets := IDs(2, 3, 4, 5, 6, 7)
				first, err := r.LoadMessageableUsers(ctx, 1, targets)
				require.NoError(t, err)
				second, err := r.LoadMessageableUsers(ctx, 1, targets)
				require.NoError(t, err)

				a, err := json.Marshal(first)
				require.NoError(t, err)
				b, err := json.Marshal(second)
				require.NoError(t, err)
				require.Equal(t, string(a), string(b))
			})

			t.Run("context tokens", func(t *testing.T) {
				students, err := r.MessageableUsersInContext(ctx, 1, "course_10_students")
				require.NoError(t, err)
				require.Equal(t, []UserID{2, 3}, userIDs(students))

				admins, err := r.MessageableUsersInContext(ctx, 1, "course_10_admins")
				require.NoError(t, err)
				require.Equal(t, []UserID{1}, userIDs(admins))

				none, err := r.MessageableUsersInContext(ctx, 1, "course-10")
				require.NoError(t, err)
				require.NotNil(t, none)
				require.Empty(t, none)
			})

			t.Run("group context", func(t *testing.T) {
				users, err := r.MessageableUsersInContext(ctx, 1, "group_22")
				require.NoError(t, err)
				require.Equal(t, []UserID{1}, userIDs(users))
				require.Equal(t, []GroupID{22}, users[0].GroupIDs())
			})
		})
	}
}

func TestResolver_BackendsAgree(t *testing.T) {
	ctx := context.Background()
	targets := IDs(1, 2, 3, 4, 5, 6, 7)

	results := make(map[string]string)
	for name, open := range backends() {
		r := newResolver(t, open(t))
		for _, viewer := range []UserID{1, 2, 3, 4} {
			users, err := r.LoadMessageableUsers(ctx, viewer, targets)
			require.NoError(t, err)
			data, err := json.Marshal(users)
			require.NoError(t, err)
			results[name] += string(data)
		}
	}

	require.Equal(t, results["memory"], results["sqlite"])
}

func TestResolver_DistributeMembers(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			dir := open(t)
			r := newResolver(t, dir)

			groups := []GroupID{30, 31, 32}
			added, err := r.DistributeMembers(ctx, []UserID{1, 2, 3, 4, 6, 7, 5}, groups)
			require.NoError(t, err)
			require.Len(t, added, 7)

			counts, err := dir.(GroupStore).MemberCounts(ctx, groups)
			require.NoError(t, err)
			for _, g := range groups {
				require.Contains(t, []int{2, 3}, counts[g])
			}
			for _, m := range added {
				require.Contains(t, groups, m.GroupID)
			}

			added, err = r.DistributeMembers(ctx, []UserID{1}, nil)
			require.NoError(t, err)
			require.Empty(t, added)
		})
	}
}

func TestResolver_AssignUnassignedMembers(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			r := newResolver(t, open(t))

			byGroup, err := r.AssignUnassignedMembers(ctx, 10, []GroupID{20, 30, 31, 21, 22, 404})
			require.NoError(t, err)
			require.Empty(t, byGroup, "students 2 and 3 already belong to group 20")

			byGroup, err = r.AssignUnassignedMembers(ctx, 10, []GroupID{30, 31})
			require.NoError(t, err)
			require.Len(t, byGroup, 2)

			var placed []UserID
			for g, ms := range byGroup {
				require.Contains(t, []GroupID{30, 31}, g)
				require.Len(t, ms, 1)
				placed = append(placed, ms[0].UserID)
			}
			require.ElementsMatch(t, []UserID{2, 3}, placed)

			again, err := r.AssignUnassignedMembers(ctx, 10, []GroupID{30, 31})
			require.NoError(t, err)
			require.Empty(t, again)
		})
	}
}

type readOnly struct {
	Directory
}

func TestResolver_GroupStoreRequired(t *testing.T) {
	r := newResolver(t, readOnly{dirmem.Load(dataset())})

	_, err := r.DistributeMembers(context.Background(), []UserID{2}, []GroupID{30})
	require.ErrorIs(t, err, ErrGroupStoreRequired)

	_, err = r.AssignUnassignedMembers(context.Background(), 10, []GroupID{30})
	require.ErrorIs(t, err, ErrGroupStoreRequired)
}

type stalledDirectory struct {
	*dirmem.Directory
}

func (stalledDirectory) EnrollmentsOf(ctx context.Context, _ types.UserID) ([]types.Enrollment, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestResolver_OperationTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OperationTimeout = 20 * time.Millisecond
	r, err := NewResolver(&cfg, stalledDirectory{dirmem.Load(dataset())})
	require.NoError(t, err)

	_, err = r.LoadMessageableUsers(context.Background(), 1, IDs(2))
	require.Error(t, err)
	require.True(t, IsUnavailable(err))

	_, err = r.MessageableUsersInContext(context.Background(), 1, "course_10")
	require.True(t, IsUnavailable(err))
}
