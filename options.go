package reach

import (
	"math/rand/v2"
	"time"
)

// Option configures a Resolver with optional dependencies.
type Option func(*resolverOptions)

// resolverOptions holds optional Resolver configuration.
type resolverOptions struct {
	logger       Logger
	metrics      MetricsCollector
	cache        Cache
	partitioner  ShardPartitioner
	participants ParticipantLookup
	groupStore   GroupStore
	now          func() time.Time
	rand         *rand.Rand
}

// WithLogger sets a logger.
//
// Parameters:
//   - logger: Logger implementation (see NewSlogLogger)
//
// Returns:
//   - Option: Functional option for NewResolver
//
// Example:
//
//	logger := reach.NewSlogLogger(slog.Default())
//	resolver, err := reach.NewResolver(&cfg, dir, reach.WithLogger(logger))
func WithLogger(logger Logger) Option {
	return func(o *resolverOptions) {
		o.logger = logger
	}
}

// WithMetrics sets a metrics collector.
//
// Parameters:
//   - metrics: MetricsCollector implementation
//
// Returns:
//   - Option: Functional option for NewResolver
//
// Example:
//
//	metrics := reach.NewPrometheusMetrics(prometheus.DefaultRegisterer, "reach")
//	resolver, err := reach.NewResolver(&cfg, dir, reach.WithMetrics(metrics))
func WithMetrics(metrics MetricsCollector) Option {
	return func(o *resolverOptions) {
		o.metrics = metrics
	}
}

// WithCache sets the cache for derived visibility sets. Without a cache
// every call recomputes them.
//
// Parameters:
//   - cache: Cache implementation (see cache/memory, cache/redis, cache/natskv, cache/tiered)
//
// Returns:
//   - Option: Functional option for NewResolver
//
// Example:
//
//	resolver, err := reach.NewResolver(&cfg, dir, reach.WithCache(memory.New()))
func WithCache(cache Cache) Option {
	return func(o *resolverOptions) {
		o.cache = cache
	}
}

// WithPartitioner sets the shard strategy. The default is a single shard.
//
// Parameters:
//   - partitioner: ShardPartitioner implementation (see package shard)
//
// Returns:
//   - Option: Functional option for NewResolver
//
// Example:
//
//	p, _ := shard.NewModulo(4)
//	resolver, err := reach.NewResolver(&cfg, dir, reach.WithPartitioner(p))
func WithPartitioner(partitioner ShardPartitioner) Option {
	return func(o *resolverOptions) {
		o.partitioner = partitioner
	}
}

// WithParticipants sets the conversation participant lookup used by the
// InConversation load option. When omitted and the Directory implements
// ParticipantLookup, the Directory is used.
func WithParticipants(participants ParticipantLookup) Option {
	return func(o *resolverOptions) {
		o.participants = participants
	}
}

// WithGroupStore sets the store DistributeMembers writes to. When omitted and
// the Directory implements GroupStore, the Directory is used.
func WithGroupStore(store GroupStore) Option {
	return func(o *resolverOptions) {
		o.groupStore = store
	}
}

// WithClock overrides time.Now for course recency and group touches.
func WithClock(now func() time.Time) Option {
	return func(o *resolverOptions) {
		o.now = now
	}
}

// WithRand sets the random source DistributeMembers shuffles members with.
// A seeded source makes distributions reproducible.
func WithRand(r *rand.Rand) Option {
	return func(o *resolverOptions) {
		o.rand = r
	}
}

// LoadOption adjusts a single LoadMessageableUsers call.
type LoadOption func(*loadOptions)

type loadOptions struct {
	strict       bool
	admin        *AdminContext
	conversation ConversationID
}

// WithoutStrictChecks keeps targets without a common context and loads
// deleted users and non-current enrollments.
func WithoutStrictChecks() LoadOption {
	return func(o *loadOptions) {
		o.strict = false
	}
}

// WithAdminContext treats a course, section or group as fully visible to the
// viewer for this call.
//
// Example:
//
//	users, err := resolver.LoadMessageableUsers(ctx, viewer, targets,
//	    reach.WithAdminContext(reach.AdminSection(42)))
func WithAdminContext(admin *AdminContext) LoadOption {
	return func(o *loadOptions) {
		o.admin = admin
	}
}

// InConversation keeps targets without a common context when they and the
// viewer both participate in the conversation.
func InConversation(id ConversationID) LoadOption {
	return func(o *loadOptions) {
		o.conversation = id
	}
}
