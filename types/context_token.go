package types

import (
	"regexp"
	"strconv"
	"strings"
)

// ContextKind is the kind of context named by a context token.
type ContextKind string

const (
	ContextCourse  ContextKind = "course"
	ContextSection ContextKind = "section"
	ContextGroup   ContextKind = "group"
)

var contextTokenPattern = regexp.MustCompile(`\A(course|section|group)_(\d+)(_([a-z]+))?\z`)

// ContextToken is a parsed context recipient string such as "course_42_students".
type ContextToken struct {
	Kind ContextKind
	ID   int64

	// Filter is the raw enrollment filter ("" when absent).
	Filter string

	// Roles restricts results to these enrollment roles. Nil means no
	// restriction; an empty non-nil slice matches nothing (unknown filter).
	Roles []EnrollmentRole
}

var filterRoles = map[string][]EnrollmentRole{
	"students":  {RoleStudent},
	"teachers":  {RoleTeacher},
	"tas":       {RoleTA},
	"designers": {RoleDesigner},
	"observers": {RoleObserver},
	"admins":    {RoleTeacher, RoleTA},
}

// ParseContextToken parses a token of the form
// {course|section|group}_<id>[_<filter>], with an optional trailing "_all".
//
// Parameters:
//   - token: Context token string
//
// Returns:
//   - ContextToken: Parsed token
//   - bool: false if the token does not match the grammar
func ParseContextToken(token string) (ContextToken, bool) {
	m := contextTokenPattern.FindStringSubmatch(strings.TrimSuffix(token, "_all"))
	if m == nil {
		return ContextToken{}, false
	}

	id, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return ContextToken{}, false
	}

	tok := ContextToken{Kind: ContextKind(m[1]), ID: id, Filter: m[4]}
	if tok.Filter != "" {
		roles, ok := filterRoles[tok.Filter]
		if !ok {
			roles = []EnrollmentRole{}
		}
		tok.Roles = roles
	}

	return tok, true
}

// AllowsRole reports whether role passes the token's enrollment filter.
func (t ContextToken) AllowsRole(role EnrollmentRole) bool {
	if t.Roles == nil {
		return true
	}
	for _, r := range t.Roles {
		if r == role {
			return true
		}
	}

	return false
}
