package types

// Target is one entry of the target list passed to the resolver.
//
// It is a closed sum type with three cases:
//   - IDTarget: a bare user id, loaded from the directory
//   - UserTarget: a user record; only its id is used and the user is reloaded
//   - MessageableTarget: an already-annotated user, used as-is
//
// Use ByID, ByUser and ByMessageable to build targets.
type Target interface {
	targetUserID() UserID
}

// IDTarget is a target given by user id.
type IDTarget UserID

// UserTarget is a target given by user record.
type UserTarget struct{ User User }

// MessageableTarget is a target that already carries common-context data.
type MessageableTarget struct{ User *MessageableUser }

func (t IDTarget) targetUserID() UserID          { return UserID(t) }
func (t UserTarget) targetUserID() UserID        { return t.User.ID }
func (t MessageableTarget) targetUserID() UserID {
	if t.User == nil {
		return 0
	}

	return t.User.ID
}

// ByID returns a target for a user id.
func ByID(id UserID) Target { return IDTarget(id) }

// ByUser returns a target for a user record.
func ByUser(u User) Target { return UserTarget{User: u} }

// ByMessageable returns a target for an already-annotated user.
func ByMessageable(m *MessageableUser) Target { return MessageableTarget{User: m} }

// TargetUserID returns the user id a target refers to, 0 for a nil messageable user.
func TargetUserID(t Target) UserID { return t.targetUserID() }

// IDs converts user ids into targets.
func IDs(ids ...UserID) []Target {
	out := make([]Target, len(ids))
	for i, id := range ids {
		out[i] = IDTarget(id)
	}

	return out
}
