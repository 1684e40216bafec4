package directory

import "github.com/arloliu/reach/types"

// Backend is a complete collaborator set for the resolver.
type Backend interface {
	types.Directory
	types.ParticipantLookup
	types.GroupStore
}

// AccountGrant associates a user with an account.
type AccountGrant struct {
	UserID        types.UserID    `json:"user_id" yaml:"userId"`
	AccountID     types.AccountID `json:"account_id" yaml:"accountId"`
	CanReadRoster bool            `json:"can_read_roster" yaml:"canReadRoster"`
}

// Participation places a user in a conversation.
type Participation struct {
	ConversationID types.ConversationID `json:"conversation_id" yaml:"conversationId"`
	UserID         types.UserID         `json:"user_id" yaml:"userId"`
}

// Dataset is a backend-neutral snapshot used to seed a directory.
type Dataset struct {
	Users          []types.User            `json:"users" yaml:"users"`
	Courses        []types.Course          `json:"courses" yaml:"courses"`
	Sections       []types.Section         `json:"sections" yaml:"sections"`
	Enrollments    []types.Enrollment      `json:"enrollments" yaml:"enrollments"`
	Groups         []types.Group           `json:"groups" yaml:"groups"`
	Memberships    []types.GroupMembership `json:"memberships" yaml:"memberships"`
	Accounts       []AccountGrant          `json:"accounts" yaml:"accounts"`
	Participations []Participation         `json:"participations" yaml:"participations"`
}

// AllSections returns ds.Sections plus a record for every enrollment section
// that has none.
func (ds Dataset) AllSections() []types.Section {
	out := append([]types.Section(nil), ds.Sections...)
	seen := make(map[types.SectionID]bool, len(out))
	for _, s := range out {
		seen[s.ID] = true
	}
	for _, e := range ds.Enrollments {
		if e.SectionID != 0 && !seen[e.SectionID] {
			seen[e.SectionID] = true
			out = append(out, types.Section{ID: e.SectionID, CourseID: e.CourseID})
		}
	}

	return out
}
