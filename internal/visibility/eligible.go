package visibility

import "github.com/arloliu/reach/types"

// Eligible reports whether an enrollment counts as a common-course link.
//
// StudentView enrollments and deleted courses never count. The enrollment
// must be active or invited, or completed when includeCompleted is set; an
// enrollment in a completed course counts as completed. With strict checks,
// student-side enrollments (Student, Observer) in unpublished courses do not
// count.
func Eligible(e types.Enrollment, c types.Course, strict, includeCompleted bool) bool {
	if e.Role == types.RoleStudentView || c.State == types.CourseDeleted {
		return false
	}

	state := e.State
	if c.State == types.CourseCompleted && (state == types.EnrollmentActive || state == types.EnrollmentInvited) {
		state = types.EnrollmentCompleted
	}

	switch state {
	case types.EnrollmentActive, types.EnrollmentInvited:
	case types.EnrollmentCompleted:
		if !includeCompleted {
			return false
		}
	default:
		return false
	}

	if strict && c.State == types.CourseUnpublished {
		return e.Role != types.RoleStudent && e.Role != types.RoleObserver
	}

	return true
}
