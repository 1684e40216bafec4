// Package index builds the per-viewer context index: the viewer's courses
// split by visibility tier and shard, plus the derived id sets (visible
// sections, observed students, linked observers, visible accounts, visible
// groups) that the resolver restricts its queries with.
//
// An Index lives for one resolution call. Derived sets are memoized on the
// Index and cached across calls under content-hashed keys.
package index

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/arloliu/reach/internal/hash"
	"github.com/arloliu/reach/internal/logger"
	"github.com/arloliu/reach/internal/visibility"
	"github.com/arloliu/reach/types"
)

// Cache key names of the derived sets.
const (
	KeyVisibleSections      = "visible_section_ids"
	KeyObservedStudents     = "observed_student_ids"
	KeyLinkedObservers      = "linked_observer_ids"
	KeyVisibleAccounts      = "visible_account_ids"
	KeyFullyVisibleGroups   = "fully_visible_group_ids"
	KeySectionVisibleGroups = "section_visible_group_ids"
)

// allShards labels derived sets that are not partitioned by shard.
const allShards = "all"

// Options configures index construction.
type Options struct {
	// Cache stores derived sets across calls. Nil disables cross-call caching.
	Cache types.Cache

	// Partitioner assigns courses, groups and accounts to shards.
	Partitioner types.ShardPartitioner

	// TTL is the lifetime of cached derived sets.
	TTL time.Duration

	// RecentWindow bounds how long ago a course may have concluded and still
	// contribute groups.
	RecentWindow time.Duration

	// KeyPrefix namespaces cache keys.
	KeyPrefix string

	// Now returns the current time.
	Now func() time.Time

	// Logger defaults to a no-op logger.
	Logger  types.Logger
	Metrics types.CacheMetrics
}

// Index is the context index of one viewer.
type Index struct {
	viewer types.UserID
	dir    types.Directory
	opts   Options

	courses     map[types.CourseID]types.Course
	primary     map[types.CourseID]types.EnrollmentRole
	enrollments []types.Enrollment
	accounts    []types.AccountAccess
	memberships []types.GroupMembership
	classifier  *visibility.Classifier

	byTier  map[types.VisibilityTier][]types.CourseID
	student map[types.CourseID]bool

	mu   sync.Mutex
	memo map[string][]int64
}

// Build loads the viewer's enrollments, courses, accounts and memberships and
// classifies every course the viewer holds an eligible enrollment in.
//
// Completed enrollments count: concluded courses remain common contexts.
//
// Parameters:
//   - ctx: Context for directory reads
//   - dir: Directory to read from
//   - viewer: Viewing user
//   - opts: Cache, partitioner and window settings
//
// Returns:
//   - *Index: Index of the viewer
//   - error: Directory failure
func Build(ctx context.Context, dir types.Directory, viewer types.UserID, opts Options) (*Index, error) {
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}

	enrollments, err := dir.EnrollmentsOf(ctx, viewer)
	if err != nil {
		return nil, fmt.Errorf("load viewer enrollments: %w", err)
	}
	accounts, err := dir.AccountsOf(ctx, viewer)
	if err != nil {
		return nil, fmt.Errorf("load viewer accounts: %w", err)
	}
	memberships, err := dir.GroupMembershipsOf(ctx, viewer)
	if err != nil {
		return nil, fmt.Errorf("load viewer memberships: %w", err)
	}

	courseIDs := make([]types.CourseID, 0, len(enrollments))
	for _, e := range enrollments {
		courseIDs = append(courseIDs, e.CourseID)
	}
	slices.Sort(courseIDs)
	courseIDs = slices.Compact(courseIDs)

	courses, err := dir.CoursesByID(ctx, courseIDs)
	if err != nil {
		return nil, fmt.Errorf("load viewer courses: %w", err)
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	ix := &Index{
		viewer:      viewer,
		dir:         dir,
		opts:        opts,
		courses:     make(map[types.CourseID]types.Course, len(courses)),
		primary:     make(map[types.CourseID]types.EnrollmentRole, len(courses)),
		accounts:    accounts,
		memberships: memberships,
		byTier:      make(map[types.VisibilityTier][]types.CourseID, 3),
		student:     make(map[types.CourseID]bool),
		memo:        make(map[string][]int64),
	}

	known := make(map[types.CourseID]types.Course, len(courses))
	for _, c := range courses {
		known[c.ID] = c
	}
	for _, e := range enrollments {
		c, ok := known[e.CourseID]
		if !ok || !visibility.Eligible(e, c, true, true) {
			continue
		}
		ix.enrollments = append(ix.enrollments, e)
		ix.courses[c.ID] = c
		ix.primary[c.ID] = types.BestRole(ix.primary[c.ID], e.Role)
	}

	ix.classifier = visibility.NewClassifier(ix.enrollments, accounts)
	for _, id := range slices.Sorted(maps.Keys(ix.courses)) {
		tier := ix.classifier.Tier(ix.courses[id])
		ix.byTier[tier] = append(ix.byTier[tier], id)
		if ix.primary[id] == types.RoleStudent {
			ix.student[id] = true
		}
	}

	return ix, nil
}

// Viewer returns the viewing user.
func (ix *Index) Viewer() types.UserID { return ix.viewer }

// Course returns the viewer's course by id.
func (ix *Index) Course(id types.CourseID) (types.Course, bool) {
	c, ok := ix.courses[id]
	return c, ok
}

// Tier returns the viewer's visibility tier in a course of the index.
func (ix *Index) Tier(course types.CourseID) types.VisibilityTier {
	return ix.classifier.Tier(ix.courses[course])
}

// PrimaryRole returns the viewer's best role in a course ("" when none).
func (ix *Index) PrimaryRole(course types.CourseID) types.EnrollmentRole {
	return ix.primary[course]
}

// Courses returns the viewer's courses of a tier on a shard, ascending.
func (ix *Index) Courses(tier types.VisibilityTier, shard types.ShardID) []types.CourseID {
	return onShard(ix.opts.Partitioner, ix.byTier[tier], shard)
}

// AllCourses returns every course of the viewer on a shard, ascending.
func (ix *Index) AllCourses(shard types.ShardID) []types.CourseID {
	ids := make([]types.CourseID, 0, len(ix.courses))
	for _, tier := range []types.VisibilityTier{types.TierFull, types.TierSectioned, types.TierRestricted} {
		ids = append(ids, onShard(ix.opts.Partitioner, ix.byTier[tier], shard)...)
	}
	slices.Sort(ids)

	return ids
}

// FullyVisibleCourses returns the viewer's Full-tier courses on every shard.
func (ix *Index) FullyVisibleCourses() []types.CourseID {
	return slices.Clone(ix.byTier[types.TierFull])
}

// SectionVisibleCourses returns the viewer's Sectioned-tier courses on every shard.
func (ix *Index) SectionVisibleCourses() []types.CourseID {
	return slices.Clone(ix.byTier[types.TierSectioned])
}

// RestrictedVisibilityCourses returns the viewer's Restricted-tier courses on every shard.
func (ix *Index) RestrictedVisibilityCourses() []types.CourseID {
	return slices.Clone(ix.byTier[types.TierRestricted])
}

// HasStudentCourses reports whether the viewer's best role is Student in any course.
func (ix *Index) HasStudentCourses() bool {
	return len(ix.student) > 0
}

// IsStudentCourse reports whether the viewer's best role in course is Student.
func (ix *Index) IsStudentCourse(course types.CourseID) bool {
	return ix.student[course]
}

// VisibleSectionIDs returns the sections the viewer sees in its Sectioned
// courses on shard.
func (ix *Index) VisibleSectionIDs(ctx context.Context, shard types.ShardID) ([]types.SectionID, error) {
	courses := ix.Courses(types.TierSectioned, shard)

	return cachedIDs(ctx, ix, shard.String(), KeyVisibleSections, []input{{"courses", hash.Digest(courses)}},
		func(context.Context) ([]types.SectionID, error) {
			want := toSet(courses)
			var out []types.SectionID
			for _, e := range ix.enrollments {
				if want[e.CourseID] {
					out = append(out, e.SectionID)
				}
			}

			return out, nil
		})
}

// ObservedStudentIDs returns the students the viewer observes in its
// Restricted courses on shard.
func (ix *Index) ObservedStudentIDs(ctx context.Context, shard types.ShardID) ([]types.UserID, error) {
	courses := ix.Courses(types.TierRestricted, shard)

	return cachedIDs(ctx, ix, shard.String(), KeyObservedStudents, []input{{"courses", hash.Digest(courses)}},
		func(context.Context) ([]types.UserID, error) {
			want := toSet(courses)
			var out []types.UserID
			for _, e := range ix.enrollments {
				if want[e.CourseID] && e.Role == types.RoleObserver && e.AssociatedUserID != 0 {
					out = append(out, e.AssociatedUserID)
				}
			}

			return out, nil
		})
}

// LinkedObserverIDs returns the users observing the viewer.
func (ix *Index) LinkedObserverIDs(ctx context.Context) ([]types.UserID, error) {
	return cachedIDs(ctx, ix, allShards, KeyLinkedObservers, nil,
		func(ctx context.Context) ([]types.UserID, error) {
			return ix.dir.LinkedObservers(ctx, ix.viewer)
		})
}

// VisibleAccountIDs returns the accounts whose roster the viewer can read.
func (ix *Index) VisibleAccountIDs(ctx context.Context) ([]types.AccountID, error) {
	all := make([]types.AccountID, 0, len(ix.accounts))
	for _, a := range ix.accounts {
		all = append(all, a.AccountID)
	}

	return cachedIDs(ctx, ix, allShards, KeyVisibleAccounts, []input{{"accounts", hash.Digest(all)}},
		func(context.Context) ([]types.AccountID, error) {
			var out []types.AccountID
			for _, a := range ix.accounts {
				if a.CanReadRoster {
					out = append(out, a.AccountID)
				}
			}

			return out, nil
		})
}

// VisibleAccountIDsOn returns the visible accounts owned by shard.
func (ix *Index) VisibleAccountIDsOn(ctx context.Context, shard types.ShardID) ([]types.AccountID, error) {
	ids, err := ix.VisibleAccountIDs(ctx)
	if err != nil {
		return nil, err
	}

	return onShard(ix.opts.Partitioner, ids, shard), nil
}

// FullyVisibleGroupIDs returns the active groups of the viewer's recent Full
// courses plus the viewer's own current groups, across all shards.
func (ix *Index) FullyVisibleGroupIDs(ctx context.Context) ([]types.GroupID, error) {
	courses := ix.recent(ix.byTier[types.TierFull])
	own := ix.ownGroupIDs()
	inputs := []input{{"courses", hash.Digest(courses)}, {"groups", hash.Digest(own)}}

	return cachedIDs(ctx, ix, allShards, KeyFullyVisibleGroups, inputs,
		func(ctx context.Context) ([]types.GroupID, error) {
			groups, err := ix.dir.GroupsInCourses(ctx, courses)
			if err != nil {
				return nil, err
			}
			out := make([]types.GroupID, 0, len(groups)+len(own))
			for _, g := range groups {
				out = append(out, g.ID)
			}

			for _, id := range own {
				g, err := ix.dir.FindGroup(ctx, id)
				if errors.Is(err, types.ErrNotFound) {
					continue
				}
				if err != nil {
					return nil, err
				}
				if g.Active {
					out = append(out, g.ID)
				}
			}

			return out, nil
		})
}

// FullyVisibleGroupIDsOn returns the fully visible groups owned by shard.
func (ix *Index) FullyVisibleGroupIDsOn(ctx context.Context, shard types.ShardID) ([]types.GroupID, error) {
	ids, err := ix.FullyVisibleGroupIDs(ctx)
	if err != nil {
		return nil, err
	}

	return onShard(ix.opts.Partitioner, ids, shard), nil
}

// SectionVisibleGroupIDs returns the active groups of the viewer's recent
// Sectioned courses that are not fully visible, across all shards.
func (ix *Index) SectionVisibleGroupIDs(ctx context.Context) ([]types.GroupID, error) {
	courses := ix.recent(ix.byTier[types.TierSectioned])
	if len(courses) == 0 {
		return nil, nil
	}

	full, err := ix.FullyVisibleGroupIDs(ctx)
	if err != nil {
		return nil, err
	}
	inputs := []input{{"courses", hash.Digest(courses)}, {"fully_visible", hash.Digest(full)}}

	return cachedIDs(ctx, ix, allShards, KeySectionVisibleGroups, inputs,
		func(ctx context.Context) ([]types.GroupID, error) {
			groups, err := ix.dir.GroupsInCourses(ctx, courses)
			if err != nil {
				return nil, err
			}
			exclude := toSet(full)
			var out []types.GroupID
			for _, g := range groups {
				if !exclude[g.ID] {
					out = append(out, g.ID)
				}
			}

			return out, nil
		})
}

// recent drops courses that concluded more than RecentWindow ago.
func (ix *Index) recent(ids []types.CourseID) []types.CourseID {
	cutoff := ix.opts.Now().Add(-ix.opts.RecentWindow)
	out := make([]types.CourseID, 0, len(ids))
	for _, id := range ids {
		if !ix.courses[id].ConcludedBefore(cutoff) {
			out = append(out, id)
		}
	}

	return out
}

// ownGroupIDs returns the groups the viewer is an accepted member of.
func (ix *Index) ownGroupIDs() []types.GroupID {
	var out []types.GroupID
	for _, m := range ix.memberships {
		if m.State == types.MembershipAccepted {
			out = append(out, m.GroupID)
		}
	}
	slices.Sort(out)

	return slices.Compact(out)
}
