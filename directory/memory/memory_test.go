package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/reach/directory"
	"github.com/arloliu/reach/directory/directorytest"
	"github.com/arloliu/reach/types"
)

func TestDirectory_Conformance(t *testing.T) {
	directorytest.Run(t, func(_ *testing.T, ds directory.Dataset) directory.Backend {
		return Load(ds)
	})
}

func TestDirectory_Builder(t *testing.T) {
	ctx := context.Background()
	d := New().
		AddUser(types.User{ID: 1, Name: "Ada"}).
		AddCourse(types.Course{ID: 10, AccountID: 1, State: types.CourseAvailable}).
		Enroll(types.Enrollment{UserID: 1, CourseID: 10, SectionID: 100, Role: types.RoleTeacher, State: types.EnrollmentActive}).
		AddGroup(types.Group{ID: 20, ContextType: types.GroupContextCourse, ContextID: 10, Active: true}).
		AddMembership(20, 1, types.MembershipAccepted).
		GrantAccount(1, 1, false).
		GrantAccount(1, 1, true).
		AddConversation(7, 1)

	s, err := d.FindSection(ctx, 100)
	require.NoError(t, err)
	require.Equal(t, types.CourseID(10), s.CourseID)

	accounts, err := d.AccountsOf(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, []types.AccountAccess{{AccountID: 1, CanReadRoster: true}}, accounts)

	ms, err := d.GroupMembershipsOf(ctx, 1)
	require.NoError(t, err)
	require.Len(t, ms, 1)
	require.Len(t, ms[0].ID, 36, "uuid membership id")
}

func TestDirectory_TouchGroups(t *testing.T) {
	ctx := context.Background()
	d := New()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, d.TouchGroups(ctx, []types.GroupID{3, 4}, at))

	got, ok := d.TouchedAt(3)
	require.True(t, ok)
	require.Equal(t, at, got)

	_, ok = d.TouchedAt(5)
	require.False(t, ok)
}

func TestDirectory_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := Load(directorytest.Fixture())

	_, err := d.EnrollmentsOf(ctx, 1)
	require.ErrorIs(t, err, context.Canceled)
	_, err = d.AddMember(ctx, 20, 1)
	require.ErrorIs(t, err, context.Canceled)
}
