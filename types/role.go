package types

import "slices"

// EnrollmentRole is the role tag attached to a course enrollment.
//
// The string values match the enrollment type names used by the host
// application so they can be stored and compared verbatim.
type EnrollmentRole string

const (
	RoleTeacher     EnrollmentRole = "TeacherEnrollment"
	RoleTA          EnrollmentRole = "TaEnrollment"
	RoleDesigner    EnrollmentRole = "DesignerEnrollment"
	RoleStudent     EnrollmentRole = "StudentEnrollment"
	RoleObserver    EnrollmentRole = "ObserverEnrollment"
	RoleStudentView EnrollmentRole = "StudentViewEnrollment"

	// RoleAccountUser tags an account-roster user that has no current
	// enrollment in the account.
	RoleAccountUser EnrollmentRole = "AccountUser"

	// RoleGroupMember is the tag recorded for every common group.
	RoleGroupMember EnrollmentRole = "Member"
)

// unranked sorts after every real role.
const unranked = 100

// Rank returns the privilege rank of the role. Lower is more privileged:
// Teacher, TA, Designer, Student, Observer. StudentView and unknown roles are
// unranked.
func (r EnrollmentRole) Rank() int {
	switch r {
	case RoleTeacher:
		return 0
	case RoleTA:
		return 1
	case RoleDesigner:
		return 2
	case RoleStudent:
		return 3
	case RoleObserver:
		return 4
	default:
		return unranked
	}
}

// IsAdmin reports whether the role is a course admin role (Teacher or TA).
func (r EnrollmentRole) IsAdmin() bool {
	return r == RoleTeacher || r == RoleTA
}

// CanMessage reports whether an enrollment with this role grants the
// permission to send messages within its course.
func (r EnrollmentRole) CanMessage() bool {
	switch r {
	case RoleTeacher, RoleTA, RoleDesigner, RoleStudent:
		return true
	default:
		return false
	}
}

// BestRole returns the highest-ranked role in roles, ignoring StudentView.
//
// Returns:
//   - EnrollmentRole: Best role ("" when roles holds no ranked role)
func BestRole(roles ...EnrollmentRole) EnrollmentRole {
	var best EnrollmentRole
	for _, r := range roles {
		if r.Rank() == unranked {
			continue
		}
		if best == "" || r.Rank() < best.Rank() {
			best = r
		}
	}

	return best
}

// RoleSet is a sorted, de-duplicated list of role tags.
type RoleSet []EnrollmentRole

// Add returns the set with role included, keeping it sorted.
func (s RoleSet) Add(role EnrollmentRole) RoleSet {
	idx, found := slices.BinarySearch(s, role)
	if found {
		return s
	}

	return slices.Insert(s, idx, role)
}

// Union returns the set with every role of other included.
func (s RoleSet) Union(other RoleSet) RoleSet {
	for _, r := range other {
		s = s.Add(r)
	}

	return s
}

// Has reports whether role is in the set.
func (s RoleSet) Has(role EnrollmentRole) bool {
	_, found := slices.BinarySearch(s, role)
	return found
}
