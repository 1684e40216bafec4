package reach

import "github.com/arloliu/reach/types"

// Re-export types from the types package.
//
// Internal packages depend on types rather than on the root package, which
// keeps the dependency graph acyclic while callers can still write
// reach.UserID, reach.Directory and so on.
type (
	UserID         = types.UserID
	CourseID       = types.CourseID
	SectionID      = types.SectionID
	GroupID        = types.GroupID
	AccountID      = types.AccountID
	ConversationID = types.ConversationID
	ShardID        = types.ShardID

	User            = types.User
	Course          = types.Course
	Section         = types.Section
	Enrollment      = types.Enrollment
	Group           = types.Group
	GroupMembership = types.GroupMembership
	EnrollmentRole  = types.EnrollmentRole
	RoleSet         = types.RoleSet
	MessageableUser = types.MessageableUser
	Target          = types.Target
	AdminContext    = types.AdminContext
)

// Re-export interfaces from the types package for convenience.
type (
	Directory         = types.Directory
	ParticipantLookup = types.ParticipantLookup
	GroupStore        = types.GroupStore
	Cache             = types.Cache
	ShardPartitioner  = types.ShardPartitioner
	MetricsCollector  = types.MetricsCollector
	Logger            = types.Logger
)

// Re-export role constants from the types package.
const (
	RoleTeacher     = types.RoleTeacher
	RoleTA          = types.RoleTA
	RoleDesigner    = types.RoleDesigner
	RoleStudent     = types.RoleStudent
	RoleObserver    = types.RoleObserver
	RoleStudentView = types.RoleStudentView
	RoleAccountUser = types.RoleAccountUser
	RoleGroupMember = types.RoleGroupMember

	// AccountRosterCourse is the synthetic course id under which account
	// roster visibility is reported.
	AccountRosterCourse = types.AccountRosterCourse
)

// ByID names a target by user id.
func ByID(id UserID) Target { return types.ByID(id) }

// ByUser names a target by an already loaded user record.
func ByUser(u User) Target { return types.ByUser(u) }

// ByMessageable names a target by a pre-annotated record; its existing
// common contexts are kept and merged with the resolved ones.
func ByMessageable(m *MessageableUser) Target { return types.ByMessageable(m) }

// IDs names several targets by user id.
func IDs(ids ...UserID) []Target { return types.IDs(ids...) }

// AdminCourse names a course the viewer administers for one call.
func AdminCourse(id CourseID) *AdminContext { return types.AdminCourse(id) }

// AdminSection names a course section the viewer administers for one call.
func AdminSection(id SectionID) *AdminContext { return types.AdminSection(id) }

// AdminGroup names a group the viewer administers for one call.
func AdminGroup(id GroupID) *AdminContext { return types.AdminGroup(id) }
