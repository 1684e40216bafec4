package types

import "strconv"

// UserID identifies a user. In a sharded deployment this is the global id.
type UserID int64

// CourseID identifies a course. The zero CourseID is reserved for the synthetic
// account-roster context.
type CourseID int64

// SectionID identifies a course section.
type SectionID int64

// GroupID identifies a group.
type GroupID int64

// AccountID identifies an account.
type AccountID int64

// ConversationID identifies a conversation.
type ConversationID int64

// ShardID identifies a storage shard.
type ShardID int

// AccountRosterCourse is the course id under which users discovered through an
// account roster are recorded in MessageableUser.CommonCourses.
const AccountRosterCourse CourseID = 0

func (id UserID) String() string    { return strconv.FormatInt(int64(id), 10) }
func (id CourseID) String() string  { return strconv.FormatInt(int64(id), 10) }
func (id SectionID) String() string { return strconv.FormatInt(int64(id), 10) }
func (id GroupID) String() string   { return strconv.FormatInt(int64(id), 10) }
func (id ShardID) String() string   { return strconv.Itoa(int(id)) }
