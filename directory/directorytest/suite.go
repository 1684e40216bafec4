// Package directorytest provides a conformance suite run against every
// directory.Backend implementation.
package directorytest

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/reach/directory"
	"github.com/arloliu/reach/types"
)

// Opener builds a backend seeded with ds.
type Opener func(t *testing.T, ds directory.Dataset) directory.Backend

// Fixture returns the dataset the suite runs against.
//
//	account 1: course 10 (available; sections 100, 101), course 11 (unpublished; section 110)
//	account 2: course 12 (deleted)
//	user 1 teacher, 2 and 3 students, 4 observer of 2, 5 deleted
//	group 20 (course 10), 21 (course 10, inactive), 22 (account 1)
//	conversation 7: users 1 and 3
func Fixture() directory.Dataset {
	active := types.EnrollmentActive

	return directory.Dataset{
		Users: []types.User{
			{ID: 1, Name: "Tess Teacher", SortableName: "Teacher, Tess", State: types.UserRegistered},
			{ID: 2, Name: "Sam Student", SortableName: "Student, Sam", State: types.UserRegistered},
			{ID: 3, Name: "Sue Student", SortableName: "Student, Sue", State: types.UserPreRegistered},
			{ID: 4, Name: "Oz Observer", SortableName: "Observer, Oz", State: types.UserRegistered},
			{ID: 5, Name: "Del Deleted", SortableName: "Deleted, Del", State: types.UserDeleted},
		},
		Courses: []types.Course{
			{ID: 10, AccountID: 1, Name: "Biology", State: types.CourseAvailable},
			{ID: 11, AccountID: 1, Name: "Chemistry", State: types.CourseUnpublished},
			{ID: 12, AccountID: 2, Name: "Physics", State: types.CourseDeleted},
		},
		Sections: []types.Section{
			{ID: 100, CourseID: 10, Name: "Biology A"},
			{ID: 101, CourseID: 10, Name: "Biology B"},
		},
		Enrollments: []types.Enrollment{
			{UserID: 1, CourseID: 10, SectionID: 100, Role: types.RoleTeacher, State: active},
			{UserID: 2, CourseID: 10, SectionID: 100, Role: types.RoleStudent, State: active},
			{UserID: 3, CourseID: 10, SectionID: 101, Role: types.RoleStudent, State: active},
			{UserID: 4, CourseID: 10, SectionID: 100, Role: types.RoleObserver, State: active, AssociatedUserID: 2},
			{UserID: 1, CourseID: 11, SectionID: 110, Role: types.RoleTeacher, State: active},
			{UserID: 2, CourseID: 11, SectionID: 110, Role: types.RoleStudent, State: active},
		},
		Groups: []types.Group{
			{ID: 20, Name: "Lab 1", ContextType: types.GroupContextCourse, ContextID: 10, Active: true},
			{ID: 21, Name: "Lab 2", ContextType: types.GroupContextCourse, ContextID: 10, Active: false},
			{ID: 22, Name: "Staff", ContextType: types.GroupContextAccount, ContextID: 1, Active: true},
		},
		Memberships: []types.GroupMembership{
			{GroupID: 20, UserID: 2, State: types.MembershipAccepted},
			{GroupID: 20, UserID: 3, State: types.MembershipInvited},
			{GroupID: 22, UserID: 1, State: types.MembershipAccepted},
		},
		Accounts: []directory.AccountGrant{
			{UserID: 1, AccountID: 1, CanReadRoster: true},
			{UserID: 2, AccountID: 1},
		},
		Participations: []directory.Participation{
			{ConversationID: 7, UserID: 1},
			{ConversationID: 7, UserID: 3},
		},
	}
}

// Run exercises every Directory, ParticipantLookup and GroupStore method.
func Run(t *testing.T, open Opener) {
	t.Helper()

	ctx := context.Background()

	t.Run("UsersByID", func(t *testing.T) {
		b := open(t, Fixture())

		users, err := b.UsersByID(ctx, []types.UserID{3, 99, 1})
		require.NoError(t, err)
		require.Len(t, users, 2)
		require.ElementsMatch(t, []types.UserID{1, 3}, userIDs(users))

		for _, u := range users {
			if u.ID == 3 {
				require.Equal(t, "Student, Sue", u.SortableName)
				require.Equal(t, types.UserPreRegistered, u.State)
			}
		}
	})

	t.Run("EnrollmentsOf", func(t *testing.T) {
		b := open(t, Fixture())

		es, err := b.EnrollmentsOf(ctx, 2)
		require.NoError(t, err)
		require.Len(t, es, 2)

		none, err := b.EnrollmentsOf(ctx, 99)
		require.NoError(t, err)
		require.Empty(t, none)
	})

	t.Run("GroupMembershipsOf", func(t *testing.T) {
		b := open(t, Fixture())

		ms, err := b.GroupMembershipsOf(ctx, 3)
		require.NoError(t, err)
		require.Len(t, ms, 1)
		require.Equal(t, types.GroupID(20), ms[0].GroupID)
		require.Equal(t, types.MembershipInvited, ms[0].State)
		require.NotEmpty(t, ms[0].ID)
	})

	t.Run("AccountsOf", func(t *testing.T) {
		b := open(t, Fixture())

		accounts, err := b.AccountsOf(ctx, 1)
		require.NoError(t, err)
		require.Equal(t, []types.AccountAccess{{AccountID: 1, CanReadRoster: true}}, accounts)

		accounts, err = b.AccountsOf(ctx, 2)
		require.NoError(t, err)
		require.Equal(t, []types.AccountAccess{{AccountID: 1}}, accounts)
	})

	t.Run("CoursesByID", func(t *testing.T) {
		b := open(t, Fixture())

		courses, err := b.CoursesByID(ctx, []types.CourseID{11, 10, 404})
		require.NoError(t, err)
		require.Len(t, courses, 2)

		byID := make(map[types.CourseID]types.Course)
		for _, c := range courses {
			byID[c.ID] = c
		}
		require.Equal(t, types.CourseUnpublished, byID[11].State)
		require.Equal(t, types.AccountID(1), byID[10].AccountID)
		require.Nil(t, byID[10].ConcludeAt)
	})

	t.Run("Find", func(t *testing.T) {
		b := open(t, Fixture())

		c, err := b.FindCourse(ctx, 10)
		require.NoError(t, err)
		require.Equal(t, "Biology", c.Name)
		_, err = b.FindCourse(ctx, 404)
		require.ErrorIs(t, err, types.ErrNotFound)

		s, err := b.FindSection(ctx, 101)
		require.NoError(t, err)
		require.Equal(t, types.CourseID(10), s.CourseID)
		_, err = b.FindSection(ctx, 404)
		require.ErrorIs(t, err, types.ErrNotFound)

		s, err = b.FindSection(ctx, 110)
		require.NoError(t, err, "sections referenced by enrollments exist")
		require.Equal(t, types.CourseID(11), s.CourseID)

		g, err := b.FindGroup(ctx, 22)
		require.NoError(t, err)
		require.Equal(t, types.GroupContextAccount, g.ContextType)
		require.Equal(t, types.CourseID(0), g.CourseID())
		_, err = b.FindGroup(ctx, 404)
		require.ErrorIs(t, err, types.ErrNotFound)
	})

	t.Run("EnrollmentsInCourses", func(t *testing.T) {
		b := open(t, Fixture())

		all, err := b.EnrollmentsInCourses(ctx, []types.CourseID{10}, nil)
		require.NoError(t, err)
		require.Len(t, all, 4)

		some, err := b.EnrollmentsInCourses(ctx, []types.CourseID{10, 11}, []types.UserID{2})
		require.NoError(t, err)
		require.Len(t, some, 2)
		for _, e := range some {
			require.Equal(t, types.UserID(2), e.UserID)
		}

		none, err := b.EnrollmentsInCourses(ctx, []types.CourseID{10}, []types.UserID{})
		require.NoError(t, err)
		require.Empty(t, none)

		observer, err := b.EnrollmentsInCourses(ctx, []types.CourseID{10}, []types.UserID{4})
		require.NoError(t, err)
		require.Len(t, observer, 1)
		require.Equal(t, types.UserID(2), observer[0].AssociatedUserID)
		require.Equal(t, types.SectionID(100), observer[0].SectionID)
	})

	t.Run("MembershipsInGroups", func(t *testing.T) {
		b := open(t, Fixture())

		ms, err := b.MembershipsInGroups(ctx, []types.GroupID{20}, nil)
		require.NoError(t, err)
		require.Len(t, ms, 2)

		ms, err = b.MembershipsInGroups(ctx, []types.GroupID{20, 22}, []types.UserID{1})
		require.NoError(t, err)
		require.Len(t, ms, 1)
		require.Equal(t, types.GroupID(22), ms[0].GroupID)
	})

	t.Run("GroupsInCourses", func(t *testing.T) {
		b := open(t, Fixture())

		groups, err := b.GroupsInCourses(ctx, []types.CourseID{10, 11})
		require.NoError(t, err)
		require.Len(t, groups, 1)
		require.Equal(t, types.GroupID(20), groups[0].ID)
	})

	t.Run("LinkedObservers", func(t *testing.T) {
		b := open(t, Fixture())

		ids, err := b.LinkedObservers(ctx, 2)
		require.NoError(t, err)
		require.Equal(t, []types.UserID{4}, ids)

		ids, err = b.LinkedObservers(ctx, 3)
		require.NoError(t, err)
		require.Empty(t, ids)
	})

	t.Run("AccountMembers", func(t *testing.T) {
		b := open(t, Fixture())

		members, err := b.AccountMembers(ctx, []types.AccountID{1}, []types.UserID{1, 2, 3})
		require.NoError(t, err)
		require.Len(t, members, 2)

		roles := make(map[types.UserID]types.EnrollmentRole)
		for _, m := range members {
			require.Equal(t, types.AccountID(1), m.AccountID)
			roles[m.UserID] = m.PrimaryRole
		}
		require.Equal(t, types.RoleTeacher, roles[1])
		require.Equal(t, types.RoleStudent, roles[2])
	})

	t.Run("ParticipantsOf", func(t *testing.T) {
		b := open(t, Fixture())

		ids, err := b.ParticipantsOf(ctx, 7, []types.UserID{1, 2, 3})
		require.NoError(t, err)
		require.ElementsMatch(t, []types.UserID{1, 3}, ids)

		ids, err = b.ParticipantsOf(ctx, 404, []types.UserID{1})
		require.NoError(t, err)
		require.Empty(t, ids)
	})

	t.Run("GroupStore", func(t *testing.T) {
		b := open(t, Fixture())

		counts, err := b.MemberCounts(ctx, []types.GroupID{20, 22, 404})
		require.NoError(t, err)
		require.Equal(t, map[types.GroupID]int{20: 2, 22: 1, 404: 0}, counts)

		m, err := b.AddMember(ctx, 20, 1)
		require.NoError(t, err)
		require.Equal(t, types.GroupID(20), m.GroupID)
		require.Equal(t, types.UserID(1), m.UserID)
		require.Equal(t, types.MembershipAccepted, m.State)
		require.NotEmpty(t, m.ID)

		_, err = b.AddMember(ctx, 20, 1)
		require.ErrorIs(t, err, types.ErrMembershipConflict)

		_, err = b.AddMember(ctx, 20, 3)
		require.ErrorIs(t, err, types.ErrMembershipConflict, "invited member already present")

		_, err = b.AddMember(ctx, 21, 1)
		require.ErrorIs(t, err, types.ErrMembershipConflict, "inactive group")

		counts, err = b.MemberCounts(ctx, []types.GroupID{20})
		require.NoError(t, err)
		require.Equal(t, 3, counts[20])

		require.NoError(t, b.TouchGroups(ctx, []types.GroupID{20, 22}, time.Now()))
		require.NoError(t, b.TouchGroups(ctx, nil, time.Now()))
	})
}

func userIDs(users []types.User) []types.UserID {
	out := make([]types.UserID, len(users))
	for i, u := range users {
		out[i] = u.ID
	}
	slices.Sort(out)

	return out
}
