package resolve

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/arloliu/reach/internal/visibility"
	"github.com/arloliu/reach/types"
)

// InContext lists the users the viewer may message within one course,
// section or group, named by a context token such as "course_42_students".
//
// Annotations carry only the queried context. A malformed token, an unknown
// context, or a context the viewer cannot see yields an empty result. The
// result is ordered by sortable name, then id.
//
// Parameters:
//   - ctx: Context for directory and cache reads
//   - viewer: Viewing user
//   - token: Context token
//
// Returns:
//   - []*types.MessageableUser: Visible users of the context
//   - error: Directory or cache failure
func (e *Engine) InContext(ctx context.Context, viewer types.UserID, token string) ([]*types.MessageableUser, error) {
	tok, ok := types.ParseContextToken(token)
	if !ok {
		e.cfg.Logger.Debug("ignoring malformed context token", "token", token)
		return []*types.MessageableUser{}, nil
	}
	if tok.Kind != types.ContextGroup && tok.Roles != nil && len(tok.Roles) == 0 {
		return []*types.MessageableUser{}, nil
	}

	r, err := e.newResolution(ctx, viewer, DefaultOptions())
	if err != nil {
		return nil, err
	}

	var found partial
	switch tok.Kind {
	case types.ContextCourse:
		found, err = r.inCourse(ctx, tok)
	case types.ContextSection:
		found, err = r.inSection(ctx, tok)
	case types.ContextGroup:
		found, err = r.inGroup(ctx, tok)
	}
	if err != nil {
		return nil, err
	}

	return r.materialize(ctx, found)
}

func (r *resolution) inCourse(ctx context.Context, tok types.ContextToken) (partial, error) {
	c, ok := r.ix.Course(types.CourseID(tok.ID))
	if !ok {
		return nil, nil
	}

	return r.courseRoster(ctx, c, 0, tok)
}

func (r *resolution) inSection(ctx context.Context, tok types.ContextToken) (partial, error) {
	sec, err := r.e.cfg.Directory.FindSection(ctx, types.SectionID(tok.ID))
	if errors.Is(err, types.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load section: %w", err)
	}

	c, ok := r.ix.Course(sec.CourseID)
	if !ok {
		return nil, nil
	}

	switch r.ix.Tier(c.ID) {
	case types.TierFull:
	case types.TierSectioned:
		sections, err := r.ix.VisibleSectionIDs(ctx, r.shardOf(int64(c.ID)))
		if err != nil {
			return nil, err
		}
		if !slices.Contains(sections, sec.ID) {
			return nil, nil
		}
	default:
		return nil, nil
	}

	return r.courseRoster(ctx, c, sec.ID, tok)
}

// courseRoster loads the visible enrollments of course (optionally one
// section) that pass the token's role filter.
func (r *resolution) courseRoster(ctx context.Context, c types.Course, section types.SectionID, tok types.ContextToken) (partial, error) {
	s := r.shardOf(int64(c.ID))
	sc, err := r.scopeFor(ctx, s)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	enrollments, err := r.e.cfg.Directory.EnrollmentsInCourses(ctx, []types.CourseID{c.ID}, nil)
	r.e.cfg.Metrics.RecordShardQuery("enrollments", time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("load course enrollments: %w", err)
	}

	found := make(partial)
	for _, e := range enrollments {
		if section != 0 && e.SectionID != section {
			continue
		}
		if !tok.AllowsRole(e.Role) || !visibility.Eligible(e, c, true, true) {
			continue
		}
		if !r.visible(e, sc) || !r.observerAllowed(e, sc) {
			continue
		}
		found.course(e.UserID, c.ID, e.Role)
	}

	return found, nil
}

// inGroup lists a fully visible group's accepted members, or for a
// section-visible group the members (any membership state) whose current
// enrollment in the group's course falls in one of the viewer's sections.
// The role filter does not apply to groups.
func (r *resolution) inGroup(ctx context.Context, tok types.ContextToken) (partial, error) {
	g, err := r.e.cfg.Directory.FindGroup(ctx, types.GroupID(tok.ID))
	if errors.Is(err, types.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load group: %w", err)
	}

	full, err := r.ix.FullyVisibleGroupIDs(ctx)
	if err != nil {
		return nil, err
	}
	if slices.Contains(full, g.ID) {
		memberships, err := r.e.cfg.Directory.MembershipsInGroups(ctx, []types.GroupID{g.ID}, nil)
		if err != nil {
			return nil, fmt.Errorf("load group memberships: %w", err)
		}

		found := make(partial)
		for _, m := range memberships {
			if m.State == types.MembershipAccepted {
				found.group(m.UserID, g.ID)
			}
		}

		return found, nil
	}

	sectioned, err := r.ix.SectionVisibleGroupIDs(ctx)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(sectioned, g.ID) {
		return nil, nil
	}

	return r.sectionGroupRoster(ctx, g)
}

func (r *resolution) sectionGroupRoster(ctx context.Context, g types.Group) (partial, error) {
	c, ok := r.ix.Course(g.CourseID())
	if !ok {
		return nil, nil
	}

	s := r.shardOf(int64(c.ID))
	sc, err := r.scopeFor(ctx, s)
	if err != nil {
		return nil, err
	}

	enrollments, err := r.e.cfg.Directory.EnrollmentsInCourses(ctx, []types.CourseID{c.ID}, nil)
	if err != nil {
		return nil, fmt.Errorf("load course enrollments: %w", err)
	}

	roles := make(map[types.UserID][]types.EnrollmentRole)
	for _, e := range enrollments {
		if !sc.sections[e.SectionID] || !visibility.Eligible(e, c, true, false) || !r.observerAllowed(e, sc) {
			continue
		}
		roles[e.UserID] = append(roles[e.UserID], e.Role)
	}
	if len(roles) == 0 {
		return nil, nil
	}

	candidates := make([]types.UserID, 0, len(roles))
	for id := range roles {
		candidates = append(candidates, id)
	}
	slices.Sort(candidates)

	memberships, err := r.e.cfg.Directory.MembershipsInGroups(ctx, []types.GroupID{g.ID}, candidates)
	if err != nil {
		return nil, fmt.Errorf("load group memberships: %w", err)
	}

	found := make(partial)
	for _, m := range memberships {
		for _, role := range roles[m.UserID] {
			found.course(m.UserID, c.ID, role)
		}
		found.group(m.UserID, g.ID)
	}

	return found, nil
}

// materialize loads the user records of found (active users only) and
// orders them by sortable name, then id.
func (r *resolution) materialize(ctx context.Context, found partial) ([]*types.MessageableUser, error) {
	if len(found) == 0 {
		return []*types.MessageableUser{}, nil
	}

	ids := make([]types.UserID, 0, len(found))
	for id := range found {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	users, _, err := r.e.normalize(ctx, 0, types.IDs(ids...), true)
	if err != nil {
		return nil, err
	}

	out := make([]*types.MessageableUser, 0, len(users))
	for _, id := range ids {
		u, ok := users[id]
		if !ok {
			continue
		}
		u.Merge(found[id])
		out = append(out, u)
	}

	slices.SortFunc(out, func(a, b *types.MessageableUser) int {
		return cmp.Or(cmp.Compare(a.SortableName, b.SortableName), cmp.Compare(a.ID, b.ID))
	})

	return out, nil
}
