package reach

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arloliu/reach/internal/balance"
	"github.com/arloliu/reach/internal/logger"
	"github.com/arloliu/reach/internal/logging"
	"github.com/arloliu/reach/internal/metrics"
	"github.com/arloliu/reach/internal/resolve"
	"github.com/arloliu/reach/types"
)

// Resolver answers which users a viewer may message, and places users into
// groups.
//
// A Resolver holds no per-viewer state; every call builds and discards its
// own resolution. It is safe for concurrent use.
type Resolver struct {
	cfg       Config
	directory Directory
	engine    *resolve.Engine
	balancer  *balance.Balancer // nil without a GroupStore
	metrics   MetricsCollector
	logger    Logger
}

// NewResolver creates a resolver over dir.
//
// Parameters:
//   - cfg: Configuration (defaults applied in place, then validated)
//   - dir: Read model of users, courses, enrollments and groups
//   - opts: Optional dependencies (cache, partitioner, logger, ...)
//
// Returns:
//   - *Resolver: Ready resolver
//   - error: ErrInvalidConfig or ErrDirectoryRequired
//
// Example:
//
//	cfg := reach.DefaultConfig()
//	resolver, err := reach.NewResolver(&cfg, dir, reach.WithCache(memory.New()))
//	if err != nil {
//	    return err
//	}
//	users, err := resolver.LoadMessageableUsers(ctx, viewerID, reach.IDs(2, 3, 4))
func NewResolver(cfg *Config, dir Directory, opts ...Option) (*Resolver, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}
	if dir == nil {
		return nil, ErrDirectoryRequired
	}

	SetDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	options := &resolverOptions{}
	for _, opt := range opts {
		opt(options)
	}

	metricsCollector := options.metrics
	if metricsCollector == nil {
		metricsCollector = metrics.NewNop()
	}

	loggerInstance := options.logger
	if loggerInstance == nil {
		loggerInstance = logger.NewNop()
	}

	cfg.ValidateWithWarnings(loggerInstance)

	participants := options.participants
	if p, ok := dir.(ParticipantLookup); ok && participants == nil {
		participants = p
	}

	engine, err := resolve.NewEngine(&resolve.Config{
		Directory:        dir,
		Participants:     participants,
		Cache:            options.cache,
		Partitioner:      options.partitioner,
		Metrics:          metricsCollector,
		Logger:           loggerInstance,
		Now:              options.now,
		CacheTTL:         cfg.CacheTTL,
		RecentWindow:     cfg.RecentCourseWindow,
		KeyPrefix:        cfg.CacheKeyPrefix,
		ShardConcurrency: cfg.ShardConcurrency,
	})
	if err != nil {
		return nil, err
	}

	r := &Resolver{
		cfg:       *cfg,
		directory: dir,
		engine:    engine,
		metrics:   metricsCollector,
		logger:    loggerInstance,
	}

	store := options.groupStore
	if s, ok := dir.(GroupStore); ok && store == nil {
		store = s
	}
	if store != nil {
		r.balancer, err = balance.New(&balance.Config{
			Store:   store,
			Rand:    options.rand,
			Metrics: metricsCollector,
			Logger:  loggerInstance,
			Now:     options.now,
		})
		if err != nil {
			return nil, err
		}
	}

	return r, nil
}

// LoadMessageableUsers annotates targets with the courses and groups they
// share with viewer and drops the ones viewer may not message.
//
// Strict checks are on unless WithoutStrictChecks is given. The result keeps
// the order of first occurrence in targets; duplicates and unknown ids are
// dropped. A target equal to viewer is always returned.
//
// Parameters:
//   - ctx: Context for cancellation and deadline
//   - viewer: Viewing user
//   - targets: Users to resolve (see ByID, ByUser, ByMessageable)
//   - opts: Per-call options
//
// Returns:
//   - []*MessageableUser: Messageable targets, never nil
//   - error: Dependency failure; IsUnavailable reports it as retryable
func (r *Resolver) LoadMessageableUsers(ctx context.Context, viewer UserID, targets []Target, opts ...LoadOption) ([]*MessageableUser, error) {
	o := loadOptions{strict: true}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	users, err := r.engine.Load(ctx, viewer, targets, resolve.Options{
		StrictChecks: o.strict,
		Admin:        o.admin,
		Conversation: o.conversation,
	})
	r.metrics.RecordResolveDuration("load", time.Since(start).Seconds(), err == nil)
	if err != nil {
		return nil, fmt.Errorf("load messageable users: %w", err)
	}

	return users, nil
}

// LoadMessageableUser resolves a single target. It returns nil without error
// when the target is unknown or not messageable.
func (r *Resolver) LoadMessageableUser(ctx context.Context, viewer UserID, target Target, opts ...LoadOption) (*MessageableUser, error) {
	users, err := r.LoadMessageableUsers(ctx, viewer, []Target{target}, opts...)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, nil
	}

	return users[0], nil
}

// MessageableUsersInContext lists the users viewer may message within a
// course, section or group, named by a token such as "course_42",
// "section_7_students" or "group_9".
//
// Recognized filters are students, teachers, tas, designers, observers and
// admins; an unknown filter or a malformed token yields an empty result, as
// does a context the viewer cannot see. Results are ordered by sortable name.
//
// Parameters:
//   - ctx: Context for cancellation and deadline
//   - viewer: Viewing user
//   - token: Context token
//
// Returns:
//   - []*MessageableUser: Visible users annotated with this context only
//   - error: Dependency failure
func (r *Resolver) MessageableUsersInContext(ctx context.Context, viewer UserID, token string) ([]*MessageableUser, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	users, err := r.engine.InContext(ctx, viewer, token)
	r.metrics.RecordResolveDuration("context", time.Since(start).Seconds(), err == nil)
	if err != nil {
		return nil, fmt.Errorf("load users in context %q: %w", token, err)
	}

	return users, nil
}

// DistributeMembers spreads members over groups so group sizes stay as even
// as possible, always filling the currently smallest group first.
//
// Members whose add is rejected with ErrMembershipConflict are skipped.
// Every group that gained a member is touched once at the end.
//
// Parameters:
//   - ctx: Context for cancellation and deadline
//   - members: Users to place
//   - groups: Candidate groups
//
// Returns:
//   - []GroupMembership: Created memberships, empty when groups is empty
//   - error: ErrGroupStoreRequired or a store failure
func (r *Resolver) DistributeMembers(ctx context.Context, members []UserID, groups []GroupID) ([]GroupMembership, error) {
	if r.balancer == nil {
		return nil, ErrGroupStoreRequired
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	added, err := r.balancer.Distribute(ctx, members, groups)
	if err != nil {
		return added, fmt.Errorf("distribute members: %w", err)
	}

	return added, nil
}

// AssignUnassignedMembers distributes the course's current students that
// belong to none of groups over the active ones among groups.
//
// Groups outside the course, inactive groups and unknown ids are ignored.
// Students count as current when their enrollment is active or invited and
// their user record is not deleted; invited and requested memberships count
// as belonging to a group.
//
// Parameters:
//   - ctx: Context for cancellation and deadline
//   - course: Course whose students are placed
//   - groups: Groups of one category in the course
//
// Returns:
//   - map[GroupID][]GroupMembership: New memberships by group
//   - error: ErrGroupStoreRequired or a dependency failure
func (r *Resolver) AssignUnassignedMembers(ctx context.Context, course CourseID, groups []GroupID) (map[GroupID][]GroupMembership, error) {
	if r.balancer == nil {
		return nil, ErrGroupStoreRequired
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	active, err := r.activeGroups(ctx, course, groups)
	if err != nil {
		return nil, err
	}
	if len(active) == 0 {
		return map[GroupID][]GroupMembership{}, nil
	}

	unassigned, err := r.unassignedStudents(ctx, course, groups)
	if err != nil {
		return nil, err
	}

	added, err := r.balancer.Distribute(ctx, unassigned, active)
	out := make(map[GroupID][]GroupMembership)
	for _, m := range added {
		out[m.GroupID] = append(out[m.GroupID], m)
	}
	if err != nil {
		return out, fmt.Errorf("assign unassigned members: %w", err)
	}

	r.logger.Debug("assigned unassigned members", "course", course, "groups", len(active), "added", len(added))

	return out, nil
}

func (r *Resolver) activeGroups(ctx context.Context, course CourseID, groups []GroupID) ([]GroupID, error) {
	var active []GroupID
	for _, id := range groups {
		g, err := r.directory.FindGroup(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load group %s: %w", id, err)
		}
		if g.Active && g.CourseID() == course && !slices.Contains(active, id) {
			active = append(active, id)
		}
	}

	return active, nil
}

func (r *Resolver) unassignedStudents(ctx context.Context, course CourseID, groups []GroupID) ([]UserID, error) {
	enrollments, err := r.directory.EnrollmentsInCourses(ctx, []CourseID{course}, nil)
	if err != nil {
		return nil, fmt.Errorf("load course enrollments: %w", err)
	}

	var candidates []UserID
	for _, e := range enrollments {
		if e.Role != RoleStudent {
			continue
		}
		if e.State != types.EnrollmentActive && e.State != types.EnrollmentInvited {
			continue
		}
		candidates = append(candidates, e.UserID)
	}
	slices.Sort(candidates)
	candidates = slices.Compact(candidates)
	if len(candidates) == 0 {
		return nil, nil
	}

	memberships, err := r.directory.MembershipsInGroups(ctx, groups, candidates)
	if err != nil {
		return nil, fmt.Errorf("load group memberships: %w", err)
	}
	assigned := make(map[UserID]bool, len(memberships))
	for _, m := range memberships {
		if m.State != types.MembershipDeleted {
			assigned[m.UserID] = true
		}
	}

	users, err := r.directory.UsersByID(ctx, candidates)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}

	out := make([]UserID, 0, len(users))
	for _, u := range users {
		if u.Active() && !assigned[u.ID] {
			out = append(out, u.ID)
		}
	}

	return out, nil
}

func (r *Resolver) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.OperationTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, r.cfg.OperationTimeout)
}

// NewSlogLogger adapts a *slog.Logger to Logger. A nil logger uses slog.Default().
func NewSlogLogger(l *slog.Logger) Logger {
	return logging.NewSlog(l)
}

// NewPrometheusMetrics creates a MetricsCollector registering its collectors
// with reg under namespace on first use.
func NewPrometheusMetrics(reg prometheus.Registerer, namespace string) MetricsCollector {
	return metrics.NewPrometheus(reg, namespace)
}
