package visibility

import "github.com/arloliu/reach/types"

// Classify returns the visibility tier of a viewer in a course.
//
// Parameters:
//   - enrollments: The viewer's eligible, non-StudentView enrollments in the course
//   - canReadRoster: Whether the viewer can read the roster of the course's account
//
// Returns:
//   - types.VisibilityTier: TierFull for roster readers; TierRestricted when no
//     enrollment grants messaging; TierSectioned when every enrollment is
//     limited to its section; TierFull otherwise
func Classify(enrollments []types.Enrollment, canReadRoster bool) types.VisibilityTier {
	if canReadRoster {
		return types.TierFull
	}

	canMessage := false
	allLimited := len(enrollments) > 0
	for _, e := range enrollments {
		if e.Role == types.RoleStudentView {
			continue
		}
		if e.Role.CanMessage() {
			canMessage = true
		}
		if !e.LimitToSection {
			allLimited = false
		}
	}

	switch {
	case !canMessage:
		return types.TierRestricted
	case allLimited:
		return types.TierSectioned
	default:
		return types.TierFull
	}
}

// Classifier memoizes tiers for one viewer during a single resolution.
// It is not safe for concurrent use.
type Classifier struct {
	enrollments    map[types.CourseID][]types.Enrollment
	rosterAccounts map[types.AccountID]bool
	memo           map[types.CourseID]types.VisibilityTier
}

// NewClassifier indexes the viewer's enrollments and roster-readable accounts.
func NewClassifier(enrollments []types.Enrollment, accounts []types.AccountAccess) *Classifier {
	c := &Classifier{
		enrollments:    make(map[types.CourseID][]types.Enrollment),
		rosterAccounts: make(map[types.AccountID]bool),
		memo:           make(map[types.CourseID]types.VisibilityTier),
	}
	for _, e := range enrollments {
		c.enrollments[e.CourseID] = append(c.enrollments[e.CourseID], e)
	}
	for _, a := range accounts {
		if a.CanReadRoster {
			c.rosterAccounts[a.AccountID] = true
		}
	}

	return c
}

// Tier returns the viewer's tier in course, computing it at most once.
func (c *Classifier) Tier(course types.Course) types.VisibilityTier {
	if t, ok := c.memo[course.ID]; ok {
		return t
	}

	t := Classify(c.enrollments[course.ID], c.rosterAccounts[course.AccountID])
	c.memo[course.ID] = t

	return t
}

// CanReadRoster reports whether the viewer can read the roster of account.
func (c *Classifier) CanReadRoster(account types.AccountID) bool {
	return c.rosterAccounts[account]
}
