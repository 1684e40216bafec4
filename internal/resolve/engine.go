// Package resolve implements messageable-user resolution: common-context
// discovery between a viewer and target users, strict messageability
// filtering, and context-scoped roster listings.
//
// Every public call builds one short-lived resolution (viewer index plus
// options) and discards it when the call returns.
package resolve

import (
	"context"
	"fmt"

	"github.com/arloliu/reach/internal/index"
	"github.com/arloliu/reach/types"
)

// Options carries the per-call load options.
type Options struct {
	// StrictChecks drops targets without a proven common context and loads
	// only active users and eligible enrollments.
	StrictChecks bool

	// Admin is treated as fully visible to the viewer for this call.
	Admin *types.AdminContext

	// Conversation, when non-zero, retains questionable targets that are
	// participants of this conversation together with the viewer.
	Conversation types.ConversationID
}

// DefaultOptions returns strict options without admin context or conversation.
func DefaultOptions() Options {
	return Options{StrictChecks: true}
}

// Engine resolves messageable users against a Directory.
type Engine struct {
	cfg Config
}

// NewEngine creates an engine.
//
// Parameters:
//   - cfg: Engine configuration (validated, defaults applied)
//
// Returns:
//   - *Engine: Ready engine
//   - error: Validation error
func NewEngine(cfg *Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg.SetDefaults()

	return &Engine{cfg: *cfg}, nil
}

// resolution is the state of one call: viewer index, options and the
// shard list to iterate.
type resolution struct {
	e      *Engine
	ix     *index.Index
	opts   Options
	shards []types.ShardID
}

func (e *Engine) newResolution(ctx context.Context, viewer types.UserID, opts Options) (*resolution, error) {
	ix, err := index.Build(ctx, e.cfg.Directory, viewer, index.Options{
		Cache:        e.cfg.Cache,
		Partitioner:  e.cfg.Partitioner,
		TTL:          e.cfg.CacheTTL,
		RecentWindow: e.cfg.RecentWindow,
		KeyPrefix:    e.cfg.KeyPrefix,
		Now:          e.cfg.Now,
		Logger:       e.cfg.Logger,
		Metrics:      e.cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}

	return &resolution{e: e, ix: ix, opts: opts, shards: e.cfg.Partitioner.Shards()}, nil
}

func (r *resolution) viewer() types.UserID { return r.ix.Viewer() }

// shardOf returns the shard owning id.
func (r *resolution) shardOf(id int64) types.ShardID {
	return r.e.cfg.Partitioner.ShardFor(id)
}

// scope holds the per-shard sets the visibility clause reads.
type scope struct {
	sections  map[types.SectionID]bool
	observed  map[types.UserID]bool
	observers map[types.UserID]bool
}

func (r *resolution) scopeFor(ctx context.Context, shard types.ShardID) (scope, error) {
	sections, err := r.ix.VisibleSectionIDs(ctx, shard)
	if err != nil {
		return scope{}, err
	}
	observed, err := r.ix.ObservedStudentIDs(ctx, shard)
	if err != nil {
		return scope{}, err
	}

	sc := scope{sections: toSet(sections), observed: toSet(observed)}
	if r.ix.HasStudentCourses() {
		observers, err := r.ix.LinkedObserverIDs(ctx)
		if err != nil {
			return scope{}, err
		}
		sc.observers = toSet(observers)
	}

	return sc, nil
}

// visible reports whether the viewer may see enrollment e of another user,
// given the viewer's tier in e's course.
//
// Full courses show everyone; Sectioned courses show the viewer's sections;
// Restricted courses show teachers, TAs, the viewer and the students the
// viewer observes.
func (r *resolution) visible(e types.Enrollment, sc scope) bool {
	switch r.ix.Tier(e.CourseID) {
	case types.TierFull:
		return true
	case types.TierSectioned:
		return sc.sections[e.SectionID]
	case types.TierRestricted:
		return e.Role.IsAdmin() || e.UserID == r.viewer() || sc.observed[e.UserID]
	default:
		return false
	}
}

// observerAllowed applies the observer restriction: in a course where the
// viewer is a student, observers are hidden unless they observe the viewer.
func (r *resolution) observerAllowed(e types.Enrollment, sc scope) bool {
	if !r.ix.HasStudentCourses() || e.Role != types.RoleObserver || !r.ix.IsStudentCourse(e.CourseID) {
		return true
	}

	return sc.observers[e.UserID]
}

func toSet[T comparable](ids []T) map[T]bool {
	out := make(map[T]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}

	return out
}
