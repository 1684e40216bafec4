package types

import (
	"maps"
	"slices"
)

// MessageableUser is a user annotated with the contexts it shares with a
// viewing user.
//
// CommonCourses maps a course id to the role tags the user holds there (the
// synthetic AccountRosterCourse id carries account-roster discoveries).
// CommonGroups maps a group id to the RoleGroupMember tag.
//
// A MessageableUser with both maps empty and an id different from the viewer
// is questionable: nothing proves it messageable yet.
type MessageableUser struct {
	User

	CommonCourses map[CourseID]RoleSet       `json:"common_courses"`
	CommonGroups  map[GroupID]EnrollmentRole `json:"common_groups"`
}

// NewMessageableUser wraps u with empty common-context maps.
func NewMessageableUser(u User) *MessageableUser {
	return &MessageableUser{
		User:          u,
		CommonCourses: make(map[CourseID]RoleSet),
		CommonGroups:  make(map[GroupID]EnrollmentRole),
	}
}

// AddCourse records role for course.
func (m *MessageableUser) AddCourse(course CourseID, role EnrollmentRole) {
	if m.CommonCourses == nil {
		m.CommonCourses = make(map[CourseID]RoleSet)
	}
	m.CommonCourses[course] = m.CommonCourses[course].Add(role)
}

// AddGroup records group as common.
func (m *MessageableUser) AddGroup(group GroupID) {
	if m.CommonGroups == nil {
		m.CommonGroups = make(map[GroupID]EnrollmentRole)
	}
	m.CommonGroups[group] = RoleGroupMember
}

// Merge folds the common contexts of other into m.
func (m *MessageableUser) Merge(other *MessageableUser) {
	for course, roles := range other.CommonCourses {
		for _, r := range roles {
			m.AddCourse(course, r)
		}
	}
	for group := range other.CommonGroups {
		m.AddGroup(group)
	}
}

// HasCourse reports whether course is already a common course.
func (m *MessageableUser) HasCourse(course CourseID) bool {
	_, ok := m.CommonCourses[course]
	return ok
}

// HasGroup reports whether group is already a common group.
func (m *MessageableUser) HasGroup(group GroupID) bool {
	_, ok := m.CommonGroups[group]
	return ok
}

// HasCommonContext reports whether any common course or group was found.
func (m *MessageableUser) HasCommonContext() bool {
	return len(m.CommonCourses) > 0 || len(m.CommonGroups) > 0
}

// CourseIDs returns the common course ids in ascending order.
func (m *MessageableUser) CourseIDs() []CourseID {
	return slices.Sorted(maps.Keys(m.CommonCourses))
}

// GroupIDs returns the common group ids in ascending order.
func (m *MessageableUser) GroupIDs() []GroupID {
	return slices.Sorted(maps.Keys(m.CommonGroups))
}

// Clone returns a deep copy of m.
func (m *MessageableUser) Clone() *MessageableUser {
	c := NewMessageableUser(m.User)
	c.Merge(m)

	return c
}

// IsMessageable is the messageability predicate applied to a candidate.
//
// A target is messageable when strict checks are off, when it is the viewer,
// when it shares a course or group with the viewer, or when it was confirmed
// as a participant of the conversation named by the caller.
//
// Parameters:
//   - viewer: Viewing user id
//   - target: Candidate with its discovered common contexts
//   - strict: Whether strict checks are enabled
//   - inConversation: Whether target is a confirmed participant of the supplied conversation
//
// Returns:
//   - bool: true if target may be messaged by viewer
func IsMessageable(viewer UserID, target *MessageableUser, strict bool, inConversation bool) bool {
	if !strict {
		return true
	}
	if target.ID == viewer {
		return true
	}
	if target.HasCommonContext() {
		return true
	}

	return inConversation
}
