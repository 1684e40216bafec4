package types

import (
	"context"
	"time"
)

// Directory is the read-only relational view of users, courses, groups and
// enrollments that the resolver queries.
//
// Implementations must:
//   - Return ErrNotFound from the Find* methods for unknown ids
//   - Return empty slices (not errors) when nothing matches a bulk query
//   - Wrap transport failures so IsUnavailable reports them
//   - Honor context cancellation
//
// A nil userIDs argument means "all users"; an empty non-nil slice matches nothing.
type Directory interface {
	// UsersByID loads user records. Unknown ids are skipped.
	UsersByID(ctx context.Context, ids []UserID) ([]User, error)

	// EnrollmentsOf returns every enrollment of a user.
	EnrollmentsOf(ctx context.Context, userID UserID) ([]Enrollment, error)

	// GroupMembershipsOf returns every group membership of a user.
	GroupMembershipsOf(ctx context.Context, userID UserID) ([]GroupMembership, error)

	// AccountsOf returns the accounts a user is associated with.
	AccountsOf(ctx context.Context, userID UserID) ([]AccountAccess, error)

	// CoursesByID loads course records. Unknown ids are skipped.
	CoursesByID(ctx context.Context, ids []CourseID) ([]Course, error)

	// FindCourse loads one course.
	FindCourse(ctx context.Context, id CourseID) (Course, error)

	// FindSection loads one course section.
	FindSection(ctx context.Context, id SectionID) (Section, error)

	// FindGroup loads one group.
	FindGroup(ctx context.Context, id GroupID) (Group, error)

	// EnrollmentsInCourses returns the enrollments of userIDs in courseIDs.
	EnrollmentsInCourses(ctx context.Context, courseIDs []CourseID, userIDs []UserID) ([]Enrollment, error)

	// MembershipsInGroups returns the memberships of userIDs in groupIDs, any state.
	MembershipsInGroups(ctx context.Context, groupIDs []GroupID, userIDs []UserID) ([]GroupMembership, error)

	// GroupsInCourses returns the active groups whose context is one of courseIDs.
	GroupsInCourses(ctx context.Context, courseIDs []CourseID) ([]Group, error)

	// LinkedObservers returns the users holding an observer enrollment linked to userID.
	LinkedObservers(ctx context.Context, userID UserID) ([]UserID, error)

	// AccountMembers returns the associations of userIDs with accountIDs,
	// each carrying the user's best current role in that account.
	AccountMembers(ctx context.Context, accountIDs []AccountID, userIDs []UserID) ([]AccountMember, error)
}

// ParticipantLookup resolves conversation membership.
type ParticipantLookup interface {
	// ParticipantsOf returns the subset of candidates that participate in the
	// conversation. Unknown conversations yield an empty result.
	ParticipantsOf(ctx context.Context, conversationID ConversationID, candidates []UserID) ([]UserID, error)
}

// GroupStore applies group membership changes made by the balancer.
type GroupStore interface {
	// AddMember creates an accepted membership. It returns
	// ErrMembershipConflict if the user cannot be added (e.g. duplicate).
	AddMember(ctx context.Context, groupID GroupID, userID UserID) (GroupMembership, error)

	// TouchGroups bumps the updated timestamp of every given group in one batch.
	TouchGroups(ctx context.Context, groupIDs []GroupID, at time.Time) error

	// MemberCounts returns the number of non-deleted memberships of each group.
	// Groups without members are reported with 0.
	MemberCounts(ctx context.Context, groupIDs []GroupID) (map[GroupID]int, error)
}

// Cache is a key-value cache with per-entry TTL.
//
// Implementations must be safe for concurrent use; concurrent writers to the
// same key resolve last-writer-wins.
type Cache interface {
	// Get returns the stored value or ErrCacheMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key for ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// ShardPartitioner maps ids to storage shards.
//
// Strategies should be deterministic and stateless; the single-shard strategy
// is the default for non-distributed deployments.
type ShardPartitioner interface {
	// ShardFor returns the shard owning id.
	ShardFor(id int64) ShardID

	// Shards lists every shard in ascending order.
	Shards() []ShardID
}
