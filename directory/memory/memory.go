// Package memory implements types.Directory, types.ParticipantLookup and
// types.GroupStore over an in-process dataset.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arloliu/reach/directory"
	"github.com/arloliu/reach/internal/visibility"
	"github.com/arloliu/reach/types"
)

// Directory is an in-memory dataset. All methods are safe for concurrent use.
//
// Build a dataset with the Add* methods, which return the receiver so calls
// can be chained:
//
//	dir := memory.New().
//	    AddUser(types.User{ID: 1, Name: "Ada"}).
//	    AddCourse(types.Course{ID: 10, AccountID: 1, State: types.CourseAvailable}).
//	    Enroll(types.Enrollment{UserID: 1, CourseID: 10, SectionID: 100, Role: types.RoleTeacher, State: types.EnrollmentActive})
type Directory struct {
	mu sync.RWMutex

	users         map[types.UserID]types.User
	courses       map[types.CourseID]types.Course
	sections      map[types.SectionID]types.Section
	groups        map[types.GroupID]types.Group
	enrollments   []types.Enrollment
	memberships   []types.GroupMembership
	accounts      map[types.UserID][]types.AccountAccess
	conversations map[types.ConversationID]map[types.UserID]bool
	touched       map[types.GroupID]time.Time

	newID func() string
}

var (
	_ types.Directory         = (*Directory)(nil)
	_ types.ParticipantLookup = (*Directory)(nil)
	_ types.GroupStore        = (*Directory)(nil)
)

// New creates an empty dataset.
func New() *Directory {
	return &Directory{
		users:         make(map[types.UserID]types.User),
		courses:       make(map[types.CourseID]types.Course),
		sections:      make(map[types.SectionID]types.Section),
		groups:        make(map[types.GroupID]types.Group),
		accounts:      make(map[types.UserID][]types.AccountAccess),
		conversations: make(map[types.ConversationID]map[types.UserID]bool),
		touched:       make(map[types.GroupID]time.Time),
		newID:         func() string { return uuid.NewString() },
	}
}

// AddUser adds or replaces a user.
func (d *Directory) AddUser(u types.User) *Directory {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.users[u.ID] = u

	return d
}

// AddCourse adds or replaces a course.
func (d *Directory) AddCourse(c types.Course) *Directory {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.courses[c.ID] = c

	return d
}

// AddSection adds or replaces a course section.
func (d *Directory) AddSection(s types.Section) *Directory {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.sections[s.ID] = s

	return d
}

// Enroll adds an enrollment. A missing section record is created.
func (d *Directory) Enroll(e types.Enrollment) *Directory {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.sections[e.SectionID]; !ok && e.SectionID != 0 {
		d.sections[e.SectionID] = types.Section{ID: e.SectionID, CourseID: e.CourseID}
	}
	d.enrollments = append(d.enrollments, e)

	return d
}

// AddGroup adds or replaces a group.
func (d *Directory) AddGroup(g types.Group) *Directory {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.groups[g.ID] = g

	return d
}

// AddMembership adds a group membership in the given state.
func (d *Directory) AddMembership(groupID types.GroupID, userID types.UserID, state types.MembershipState) *Directory {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.memberships = append(d.memberships, types.GroupMembership{
		ID:      d.newID(),
		GroupID: groupID,
		UserID:  userID,
		State:   state,
	})

	return d
}

// GrantAccount associates userID with an account. canReadRoster marks the
// user as able to read the account roster.
func (d *Directory) GrantAccount(userID types.UserID, account types.AccountID, canReadRoster bool) *Directory {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, a := range d.accounts[userID] {
		if a.AccountID == account {
			d.accounts[userID][i].CanReadRoster = canReadRoster
			return d
		}
	}
	d.accounts[userID] = append(d.accounts[userID], types.AccountAccess{AccountID: account, CanReadRoster: canReadRoster})

	return d
}

// AddConversation records the participants of a conversation.
func (d *Directory) AddConversation(id types.ConversationID, participants ...types.UserID) *Directory {
	d.mu.Lock()
	defer d.mu.Unlock()

	set := d.conversations[id]
	if set == nil {
		set = make(map[types.UserID]bool)
		d.conversations[id] = set
	}
	for _, p := range participants {
		set[p] = true
	}

	return d
}

// TouchedAt returns the last TouchGroups time of a group.
func (d *Directory) TouchedAt(id types.GroupID) (time.Time, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	t, ok := d.touched[id]

	return t, ok
}

// UsersByID loads users in the order of ids, skipping unknown ids.
func (d *Directory) UsersByID(ctx context.Context, ids []types.UserID) ([]types.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]types.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := d.users[id]; ok {
			out = append(out, u)
		}
	}

	return out, nil
}

// EnrollmentsOf returns every enrollment of a user.
func (d *Directory) EnrollmentsOf(ctx context.Context, userID types.UserID) ([]types.Enrollment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []types.Enrollment
	for _, e := range d.enrollments {
		if e.UserID == userID {
			out = append(out, e)
		}
	}

	return out, nil
}

// GroupMembershipsOf returns every membership of a user.
func (d *Directory) GroupMembershipsOf(ctx context.Context, userID types.UserID) ([]types.GroupMembership, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []types.GroupMembership
	for _, m := range d.memberships {
		if m.UserID == userID {
			out = append(out, m)
		}
	}

	return out, nil
}

// AccountsOf returns the accounts a user can act in.
func (d *Directory) AccountsOf(ctx context.Context, userID types.UserID) ([]types.AccountAccess, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	return slices.Clone(d.accounts[userID]), nil
}

// CoursesByID loads courses, skipping unknown ids.
func (d *Directory) CoursesByID(ctx context.Context, ids []types.CourseID) ([]types.Course, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]types.Course, 0, len(ids))
	for _, id := range ids {
		if c, ok := d.courses[id]; ok {
			out = append(out, c)
		}
	}

	return out, nil
}

// FindCourse loads one course or returns types.ErrNotFound.
func (d *Directory) FindCourse(ctx context.Context, id types.CourseID) (types.Course, error) {
	if err := ctx.Err(); err != nil {
		return types.Course{}, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	c, ok := d.courses[id]
	if !ok {
		return types.Course{}, fmt.Errorf("course %d: %w", id, types.ErrNotFound)
	}

	return c, nil
}

// FindSection loads one section or returns types.ErrNotFound.
func (d *Directory) FindSection(ctx context.Context, id types.SectionID) (types.Section, error) {
	if err := ctx.Err(); err != nil {
		return types.Section{}, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	s, ok := d.sections[id]
	if !ok {
		return types.Section{}, fmt.Errorf("section %d: %w", id, types.ErrNotFound)
	}

	return s, nil
}

// FindGroup loads one group or returns types.ErrNotFound.
func (d *Directory) FindGroup(ctx context.Context, id types.GroupID) (types.Group, error) {
	if err := ctx.Err(); err != nil {
		return types.Group{}, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	g, ok := d.groups[id]
	if !ok {
		return types.Group{}, fmt.Errorf("group %d: %w", id, types.ErrNotFound)
	}

	return g, nil
}

// EnrollmentsInCourses returns the enrollments of userIDs (nil: everyone) in courseIDs.
func (d *Directory) EnrollmentsInCourses(ctx context.Context, courseIDs []types.CourseID, userIDs []types.UserID) ([]types.Enrollment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	courses := toSet(courseIDs)
	users := toSet(userIDs)

	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []types.Enrollment
	for _, e := range d.enrollments {
		if !courses[e.CourseID] {
			continue
		}
		if userIDs != nil && !users[e.UserID] {
			continue
		}
		out = append(out, e)
	}

	return out, nil
}

// MembershipsInGroups returns the memberships of userIDs (nil: everyone) in groupIDs.
func (d *Directory) MembershipsInGroups(ctx context.Context, groupIDs []types.GroupID, userIDs []types.UserID) ([]types.GroupMembership, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	groups := toSet(groupIDs)
	users := toSet(userIDs)

	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []types.GroupMembership
	for _, m := range d.memberships {
		if !groups[m.GroupID] {
			continue
		}
		if userIDs != nil && !users[m.UserID] {
			continue
		}
		out = append(out, m)
	}

	return out, nil
}

// GroupsInCourses returns the active course groups of courseIDs, ordered by id.
func (d *Directory) GroupsInCourses(ctx context.Context, courseIDs []types.CourseID) ([]types.Group, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	courses := toSet(courseIDs)

	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []types.Group
	for _, g := range d.groups {
		if g.Active && g.ContextType == types.GroupContextCourse && courses[g.CourseID()] {
			out = append(out, g)
		}
	}
	slices.SortFunc(out, func(a, b types.Group) int { return cmp.Compare(a.ID, b.ID) })

	return out, nil
}

// LinkedObservers returns the users observing userID through a current
// observer enrollment.
func (d *Directory) LinkedObservers(ctx context.Context, userID types.UserID) ([]types.UserID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []types.UserID
	for _, e := range d.enrollments {
		if e.Role != types.RoleObserver || e.AssociatedUserID != userID {
			continue
		}
		if e.State == types.EnrollmentDeleted || e.State == types.EnrollmentRejected {
			continue
		}
		if !slices.Contains(out, e.UserID) {
			out = append(out, e.UserID)
		}
	}
	slices.Sort(out)

	return out, nil
}

// AccountMembers returns the associations of userIDs (nil: everyone) with
// accountIDs. PrimaryRole is the best role among the user's active or invited
// enrollments in courses of that account, or "" when there is none.
func (d *Directory) AccountMembers(ctx context.Context, accountIDs []types.AccountID, userIDs []types.UserID) ([]types.AccountMember, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	accounts := toSet(accountIDs)
	users := toSet(userIDs)

	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []types.AccountMember
	for userID, associated := range d.accounts {
		if userIDs != nil && !users[userID] {
			continue
		}
		for _, a := range associated {
			if !accounts[a.AccountID] {
				continue
			}
			out = append(out, types.AccountMember{
				AccountID:   a.AccountID,
				UserID:      userID,
				PrimaryRole: d.primaryRoleLocked(userID, a.AccountID),
			})
		}
	}
	slices.SortFunc(out, func(a, b types.AccountMember) int {
		if c := cmp.Compare(a.UserID, b.UserID); c != 0 {
			return c
		}

		return cmp.Compare(a.AccountID, b.AccountID)
	})

	return out, nil
}

func (d *Directory) primaryRoleLocked(userID types.UserID, account types.AccountID) types.EnrollmentRole {
	var roles []types.EnrollmentRole
	for _, e := range d.enrollments {
		if e.UserID != userID {
			continue
		}
		c, ok := d.courses[e.CourseID]
		if !ok || c.AccountID != account {
			continue
		}
		if visibility.Eligible(e, c, true, false) {
			roles = append(roles, e.Role)
		}
	}

	return types.BestRole(roles...)
}

// ParticipantsOf returns the candidates participating in the conversation.
func (d *Directory) ParticipantsOf(ctx context.Context, id types.ConversationID, candidates []types.UserID) ([]types.UserID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	set := d.conversations[id]
	var out []types.UserID
	for _, c := range candidates {
		if set[c] {
			out = append(out, c)
		}
	}

	return out, nil
}

// AddMember creates an accepted membership.
//
// Returns types.ErrMembershipConflict when the group is unknown or inactive,
// or when the user already has a non-deleted membership in it.
func (d *Directory) AddMember(ctx context.Context, groupID types.GroupID, userID types.UserID) (types.GroupMembership, error) {
	if err := ctx.Err(); err != nil {
		return types.GroupMembership{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	g, ok := d.groups[groupID]
	if !ok || !g.Active {
		return types.GroupMembership{}, fmt.Errorf("group %d does not accept members: %w", groupID, types.ErrMembershipConflict)
	}
	for _, m := range d.memberships {
		if m.GroupID == groupID && m.UserID == userID && m.State != types.MembershipDeleted {
			return types.GroupMembership{}, fmt.Errorf("user %d already in group %d: %w", userID, groupID, types.ErrMembershipConflict)
		}
	}

	m := types.GroupMembership{ID: d.newID(), GroupID: groupID, UserID: userID, State: types.MembershipAccepted}
	d.memberships = append(d.memberships, m)

	return m, nil
}

// TouchGroups records at as the updated time of every group.
func (d *Directory) TouchGroups(ctx context.Context, groupIDs []types.GroupID, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, id := range groupIDs {
		d.touched[id] = at
	}

	return nil
}

// MemberCounts counts the non-deleted memberships of each group.
func (d *Directory) MemberCounts(ctx context.Context, groupIDs []types.GroupID) (map[types.GroupID]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[types.GroupID]int, len(groupIDs))
	for _, id := range groupIDs {
		out[id] = 0
	}
	for _, m := range d.memberships {
		if _, ok := out[m.GroupID]; ok && m.State != types.MembershipDeleted {
			out[m.GroupID]++
		}
	}

	return out, nil
}

func toSet[T comparable](ids []T) map[T]bool {
	set := make(map[T]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}

	return set
}

// Load builds a directory from a dataset. Memberships without an id get one.
func Load(ds directory.Dataset) *Directory {
	d := New()
	for _, u := range ds.Users {
		d.AddUser(u)
	}
	for _, c := range ds.Courses {
		d.AddCourse(c)
	}
	for _, s := range ds.AllSections() {
		d.AddSection(s)
	}
	for _, e := range ds.Enrollments {
		d.Enroll(e)
	}
	for _, g := range ds.Groups {
		d.AddGroup(g)
	}
	for _, m := range ds.Memberships {
		if m.ID == "" {
			m.ID = d.newID()
		}
		d.memberships = append(d.memberships, m)
	}
	for _, a := range ds.Accounts {
		d.GrantAccount(a.UserID, a.AccountID, a.CanReadRoster)
	}
	for _, p := range ds.Participations {
		d.AddConversation(p.ConversationID, p.UserID)
	}

	return d
}
