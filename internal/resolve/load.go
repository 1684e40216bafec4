package resolve

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/reach/internal/visibility"
	"github.com/arloliu/reach/shard"
	"github.com/arloliu/reach/types"
)

// partial holds the common contexts found on one shard, keyed by user.
type partial map[types.UserID]*types.MessageableUser

func (p partial) course(id types.UserID, course types.CourseID, role types.EnrollmentRole) {
	p.get(id).AddCourse(course, role)
}

func (p partial) group(id types.UserID, group types.GroupID) {
	p.get(id).AddGroup(group)
}

func (p partial) get(id types.UserID) *types.MessageableUser {
	m, ok := p[id]
	if !ok {
		m = types.NewMessageableUser(types.User{ID: id})
		p[id] = m
	}

	return m
}

// admin is the resolved admin context of a call.
type admin struct {
	course  *types.Course
	section types.SectionID
	group   *types.Group
}

// Load annotates targets with the contexts they share with viewer and, under
// strict checks, drops the ones without any.
//
// The result keeps the input order of first occurrence. The viewer's own
// record is returned as given and never filtered. Unknown user ids are
// dropped silently.
//
// Parameters:
//   - ctx: Context for directory and cache reads
//   - viewer: Viewing user
//   - targets: Users to resolve
//   - opts: Load options
//
// Returns:
//   - []*types.MessageableUser: Messageable targets with their common contexts
//   - error: Directory or cache failure (wraps types.ErrUnavailable when retryable)
func (e *Engine) Load(ctx context.Context, viewer types.UserID, targets []types.Target, opts Options) ([]*types.MessageableUser, error) {
	if len(targets) == 0 {
		return []*types.MessageableUser{}, nil
	}

	users, order, err := e.normalize(ctx, viewer, targets, opts.StrictChecks)
	if err != nil {
		return nil, err
	}

	others := make([]types.UserID, 0, len(order))
	for _, id := range order {
		if id != viewer {
			others = append(others, id)
		}
	}
	if len(others) == 0 {
		return collect(users, order), nil
	}

	r, err := e.newResolution(ctx, viewer, opts)
	if err != nil {
		return nil, err
	}

	adm, err := r.resolveAdmin(ctx)
	if err != nil {
		return nil, err
	}

	partials, err := shard.ForEach(ctx, r.shards, e.cfg.ShardConcurrency,
		func(ctx context.Context, s types.ShardID) (partial, error) {
			return r.commonContexts(ctx, s, others, adm)
		})
	if err != nil {
		return nil, err
	}

	for _, p := range partials {
		for id, found := range p {
			if u, ok := users[id]; ok {
				u.Merge(found)
			}
		}
	}

	keep, err := r.filter(ctx, users, others)
	if err != nil {
		return nil, err
	}

	out := make([]*types.MessageableUser, 0, len(order))
	for _, id := range order {
		if id == viewer || keep[id] {
			out = append(out, users[id])
		}
	}

	return out, nil
}

// normalize turns targets into MessageableUser records keyed by id, loading
// id and user targets from the directory shard by shard. Nil messageable
// targets are skipped. The viewer's own record is never dropped.
func (e *Engine) normalize(ctx context.Context, viewer types.UserID, targets []types.Target, strict bool) (map[types.UserID]*types.MessageableUser, []types.UserID, error) {
	users := make(map[types.UserID]*types.MessageableUser, len(targets))
	given := make(map[types.UserID]bool, len(targets))
	var order, load []types.UserID

	for _, t := range targets {
		if t == nil {
			continue
		}
		mt, isMessageable := t.(types.MessageableTarget)
		if isMessageable && mt.User == nil {
			continue
		}

		id := types.TargetUserID(t)
		if isMessageable {
			if u, seen := users[id]; seen {
				u.Merge(mt.User)
				continue
			}
			users[id] = mt.User.Clone()
			if !given[id] {
				order = append(order, id)
				given[id] = true
			}

			continue
		}
		if !given[id] {
			order = append(order, id)
			given[id] = true
			load = append(load, id)
		}
	}

	if len(load) > 0 {
		split := shard.Split(e.cfg.Partitioner, load)
		loaded, err := shard.ForEach(ctx, shard.SortedKeys(split), e.cfg.ShardConcurrency,
			func(ctx context.Context, s types.ShardID) ([]types.User, error) {
				return e.cfg.Directory.UsersByID(ctx, split[s])
			})
		if err != nil {
			return nil, nil, fmt.Errorf("load target users: %w", err)
		}

		for _, batch := range loaded {
			for _, u := range batch {
				if strict && !u.Active() && u.ID != viewer {
					continue
				}
				if _, ok := users[u.ID]; !ok {
					users[u.ID] = types.NewMessageableUser(u)
				}
			}
		}
	}

	kept := order[:0]
	for _, id := range order {
		if _, ok := users[id]; ok {
			kept = append(kept, id)
		}
	}

	return users, kept, nil
}

// resolveAdmin looks up the admin context. Unknown ids disable it.
func (r *resolution) resolveAdmin(ctx context.Context) (admin, error) {
	var adm admin
	a := r.opts.Admin
	if a == nil {
		return adm, nil
	}

	dir := r.e.cfg.Directory
	var err error
	switch a.Kind {
	case types.ContextCourse:
		var c types.Course
		c, err = dir.FindCourse(ctx, types.CourseID(a.ID))
		if err == nil {
			adm.course = &c
		}
	case types.ContextSection:
		var sec types.Section
		sec, err = dir.FindSection(ctx, types.SectionID(a.ID))
		if err == nil {
			var c types.Course
			c, err = dir.FindCourse(ctx, sec.CourseID)
			if err == nil {
				adm.course = &c
				adm.section = sec.ID
			}
		}
	case types.ContextGroup:
		var g types.Group
		g, err = dir.FindGroup(ctx, types.GroupID(a.ID))
		if err == nil {
			adm.group = &g
		}
	}
	if errors.Is(err, types.ErrNotFound) {
		r.e.cfg.Logger.Debug("admin context not found", "kind", a.Kind, "id", a.ID)
		return admin{}, nil
	}
	if err != nil {
		return admin{}, fmt.Errorf("load admin context: %w", err)
	}

	return adm, nil
}

// commonContexts finds the courses and groups on shard that the viewer
// shares with others.
func (r *resolution) commonContexts(ctx context.Context, s types.ShardID, others []types.UserID, adm admin) (partial, error) {
	found := make(partial)

	if err := r.courseContexts(ctx, s, others, found); err != nil {
		return nil, err
	}
	if adm.course != nil && r.shardOf(int64(adm.course.ID)) == s {
		if err := r.adminCourse(ctx, others, adm, found); err != nil {
			return nil, err
		}
	}
	if err := r.accountContexts(ctx, s, others, found); err != nil {
		return nil, err
	}
	if err := r.groupContexts(ctx, s, others, found); err != nil {
		return nil, err
	}
	if adm.group != nil && r.shardOf(int64(adm.group.ID)) == s {
		if err := r.adminGroup(ctx, others, adm, found); err != nil {
			return nil, err
		}
	}

	return found, nil
}

func (r *resolution) courseContexts(ctx context.Context, s types.ShardID, others []types.UserID, found partial) error {
	courses := r.ix.AllCourses(s)
	if len(courses) == 0 {
		return nil
	}

	sc, err := r.scopeFor(ctx, s)
	if err != nil {
		return err
	}

	start := time.Now()
	enrollments, err := r.e.cfg.Directory.EnrollmentsInCourses(ctx, courses, others)
	r.e.cfg.Metrics.RecordShardQuery("enrollments", time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("shard %s: load enrollments: %w", s, err)
	}

	for _, e := range enrollments {
		c, _ := r.ix.Course(e.CourseID)
		if !visibility.Eligible(e, c, r.opts.StrictChecks, true) {
			continue
		}
		if !r.visible(e, sc) || !r.observerAllowed(e, sc) {
			continue
		}
		found.course(e.UserID, e.CourseID, e.Role)
	}

	return nil
}

// adminCourse adds the admin course (or section) for users the visibility
// query did not already tie to it, without any visibility restriction.
func (r *resolution) adminCourse(ctx context.Context, others []types.UserID, adm admin, found partial) error {
	c := *adm.course
	missing := make([]types.UserID, 0, len(others))
	for _, id := range others {
		if u, ok := found[id]; !ok || !u.HasCourse(c.ID) {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	start := time.Now()
	enrollments, err := r.e.cfg.Directory.EnrollmentsInCourses(ctx, []types.CourseID{c.ID}, missing)
	r.e.cfg.Metrics.RecordShardQuery("admin_enrollments", time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("load admin course enrollments: %w", err)
	}

	for _, e := range enrollments {
		if adm.section != 0 && e.SectionID != adm.section {
			continue
		}
		if !visibility.Eligible(e, c, r.opts.StrictChecks, true) {
			continue
		}
		found.course(e.UserID, c.ID, e.Role)
	}

	return nil
}

// accountContexts tags members of roster-readable accounts with the
// synthetic account roster course.
func (r *resolution) accountContexts(ctx context.Context, s types.ShardID, others []types.UserID, found partial) error {
	accounts, err := r.ix.VisibleAccountIDsOn(ctx, s)
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		return nil
	}

	start := time.Now()
	members, err := r.e.cfg.Directory.AccountMembers(ctx, accounts, others)
	r.e.cfg.Metrics.RecordShardQuery("accounts", time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("shard %s: load account members: %w", s, err)
	}

	for _, m := range members {
		role := m.PrimaryRole
		if role == "" {
			role = types.RoleAccountUser
		}
		found.course(m.UserID, types.AccountRosterCourse, role)
	}

	return nil
}

func (r *resolution) groupContexts(ctx context.Context, s types.ShardID, others []types.UserID, found partial) error {
	groups, err := r.ix.FullyVisibleGroupIDsOn(ctx, s)
	if err != nil {
		return err
	}
	if len(groups) == 0 {
		return nil
	}

	start := time.Now()
	memberships, err := r.e.cfg.Directory.MembershipsInGroups(ctx, groups, others)
	r.e.cfg.Metrics.RecordShardQuery("groups", time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("shard %s: load memberships: %w", s, err)
	}

	for _, m := range memberships {
		if m.State == types.MembershipAccepted {
			found.group(m.UserID, m.GroupID)
		}
	}

	return nil
}

// adminGroup adds the admin group for accepted members the group query did
// not already find.
func (r *resolution) adminGroup(ctx context.Context, others []types.UserID, adm admin, found partial) error {
	g := *adm.group
	missing := make([]types.UserID, 0, len(others))
	for _, id := range others {
		if u, ok := found[id]; !ok || !u.HasGroup(g.ID) {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	start := time.Now()
	memberships, err := r.e.cfg.Directory.MembershipsInGroups(ctx, []types.GroupID{g.ID}, missing)
	r.e.cfg.Metrics.RecordShardQuery("admin_groups", time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("load admin group memberships: %w", err)
	}

	for _, m := range memberships {
		if m.State == types.MembershipAccepted {
			found.group(m.UserID, g.ID)
		}
	}

	return nil
}

// filter returns the targets among others that pass the messageability
// predicate, rescuing questionable ones through the conversation when the
// viewer participates in it too.
func (r *resolution) filter(ctx context.Context, users map[types.UserID]*types.MessageableUser, others []types.UserID) (map[types.UserID]bool, error) {
	viewer := r.viewer()
	strict := r.opts.StrictChecks
	keep := make(map[types.UserID]bool, len(others))

	var questionable []types.UserID
	for _, id := range others {
		if types.IsMessageable(viewer, users[id], strict, false) {
			keep[id] = true
		} else {
			questionable = append(questionable, id)
		}
	}

	rescued := 0
	if len(questionable) > 0 && r.opts.Conversation != 0 && r.e.cfg.Participants != nil {
		candidates := append([]types.UserID{viewer}, questionable...)
		participants, err := r.e.cfg.Participants.ParticipantsOf(ctx, r.opts.Conversation, candidates)
		if err != nil {
			return nil, fmt.Errorf("load conversation participants: %w", err)
		}

		in := toSet(participants)
		if in[viewer] {
			for _, id := range questionable {
				if types.IsMessageable(viewer, users[id], strict, in[id]) {
					keep[id] = true
					rescued++
				}
			}
		}
	}

	dropped := len(others) - len(keep)
	r.e.cfg.Metrics.RecordTargets(len(keep), dropped)
	if rescued > 0 {
		r.e.cfg.Metrics.RecordConversationRescue(rescued)
	}
	if dropped > 0 {
		r.e.cfg.Logger.Debug("dropped targets without common context",
			"viewer", viewer, "dropped", dropped, "rescued", rescued)
	}

	return keep, nil
}

func collect(users map[types.UserID]*types.MessageableUser, order []types.UserID) []*types.MessageableUser {
	out := make([]*types.MessageableUser, 0, len(order))
	for _, id := range order {
		out = append(out, users[id])
	}

	return out
}
