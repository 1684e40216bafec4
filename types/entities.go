package types

import "time"

// UserState is the workflow state of a user record.
type UserState string

const (
	UserRegistered    UserState = "registered"
	UserPreRegistered UserState = "pre_registered"
	UserDeleted       UserState = "deleted"
)

// User is a read-only user record.
type User struct {
	ID           UserID    `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	SortableName string    `json:"sortable_name" db:"sortable_name"`
	State        UserState `json:"state" db:"workflow_state"`
}

// Active reports whether the user may appear in strict results.
func (u User) Active() bool {
	return u.State == UserRegistered || u.State == UserPreRegistered || u.State == ""
}

// CourseState is the workflow state of a course.
type CourseState string

const (
	CourseAvailable   CourseState = "available"
	CourseUnpublished CourseState = "unpublished"
	CourseCompleted   CourseState = "completed"
	CourseDeleted     CourseState = "deleted"
)

// Course is a read-only course record.
type Course struct {
	ID         CourseID    `json:"id" db:"id"`
	AccountID  AccountID   `json:"account_id" db:"account_id"`
	Name       string      `json:"name" db:"name"`
	State      CourseState `json:"state" db:"workflow_state"`
	ConcludeAt *time.Time  `json:"conclude_at,omitempty" db:"conclude_at"`
}

// ConcludedBefore reports whether the course concluded before t.
func (c Course) ConcludedBefore(t time.Time) bool {
	return c.ConcludeAt != nil && c.ConcludeAt.Before(t)
}

// Section is a course section.
type Section struct {
	ID       SectionID `json:"id" db:"id"`
	CourseID CourseID  `json:"course_id" db:"course_id"`
	Name     string    `json:"name" db:"name"`
}

// EnrollmentState is the workflow state of an enrollment.
type EnrollmentState string

const (
	EnrollmentActive    EnrollmentState = "active"
	EnrollmentInvited   EnrollmentState = "invited"
	EnrollmentCompleted EnrollmentState = "completed"
	EnrollmentInactive  EnrollmentState = "inactive"
	EnrollmentRejected  EnrollmentState = "rejected"
	EnrollmentDeleted   EnrollmentState = "deleted"
)

// Enrollment ties a user to a course section with a role.
type Enrollment struct {
	UserID    UserID          `json:"user_id" db:"user_id"`
	CourseID  CourseID        `json:"course_id" db:"course_id"`
	SectionID SectionID       `json:"course_section_id" db:"course_section_id"`
	Role      EnrollmentRole  `json:"type" db:"type"`
	State     EnrollmentState `json:"workflow_state" db:"workflow_state"`

	// AssociatedUserID is the observed student for observer enrollments (0 otherwise).
	AssociatedUserID UserID `json:"associated_user_id,omitempty" db:"associated_user_id"`

	// LimitToSection restricts the enrollment's visibility to its own section.
	LimitToSection bool `json:"limit_privileges_to_course_section" db:"limit_privileges_to_course_section"`
}

// GroupContextType is the kind of context a group belongs to.
type GroupContextType string

const (
	GroupContextCourse  GroupContextType = "Course"
	GroupContextAccount GroupContextType = "Account"
)

// Group is a read-only group record.
type Group struct {
	ID          GroupID          `json:"id" db:"id"`
	Name        string           `json:"name" db:"name"`
	ContextType GroupContextType `json:"context_type" db:"context_type"`
	ContextID   int64            `json:"context_id" db:"context_id"`
	Active      bool             `json:"active" db:"active"`
}

// CourseID returns the owning course id, or 0 for account groups.
func (g Group) CourseID() CourseID {
	if g.ContextType != GroupContextCourse {
		return 0
	}

	return CourseID(g.ContextID)
}

// MembershipState is the workflow state of a group membership.
type MembershipState string

const (
	MembershipAccepted  MembershipState = "accepted"
	MembershipInvited   MembershipState = "invited"
	MembershipRequested MembershipState = "requested"
	MembershipDeleted   MembershipState = "deleted"
)

// GroupMembership ties a user to a group.
type GroupMembership struct {
	ID      string          `json:"id" db:"id"`
	GroupID GroupID         `json:"group_id" db:"group_id"`
	UserID  UserID          `json:"user_id" db:"user_id"`
	State   MembershipState `json:"workflow_state" db:"workflow_state"`
}

// AccountAccess describes a viewer's association with an account.
type AccountAccess struct {
	AccountID     AccountID `json:"account_id" db:"account_id"`
	CanReadRoster bool      `json:"can_read_roster" db:"can_read_roster"`
}

// AccountMember is a user associated with an account together with the
// user's highest-ranked current enrollment role in that account.
type AccountMember struct {
	AccountID   AccountID      `json:"account_id" db:"account_id"`
	UserID      UserID         `json:"user_id" db:"user_id"`
	PrimaryRole EnrollmentRole `json:"primary_role" db:"primary_role"`
}
