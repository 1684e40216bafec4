package types

// MetricsCollector defines methods for recording operational metrics.
//
// Implementations should be non-blocking and handle failures gracefully.
// Methods may be called concurrently from per-shard goroutines and must be
// thread-safe.
type MetricsCollector interface {
	ResolverMetrics
	CacheMetrics
	BalancerMetrics
}

// ResolverMetrics defines metrics for messageable-user resolution.
type ResolverMetrics interface {
	// RecordResolveDuration records the time taken by a public resolver call.
	//
	// Parameters:
	//   - operation: "load" or "context"
	//   - duration: Time taken in seconds
	//   - success: false when the call returned an error
	RecordResolveDuration(operation string, duration float64, success bool)

	// RecordTargets records the outcome of strict filtering for one call.
	//
	// Parameters:
	//   - kept: Targets returned to the caller
	//   - dropped: Questionable targets removed
	RecordTargets(kept, dropped int)

	// RecordConversationRescue records targets retained through the
	// conversation participant check.
	RecordConversationRescue(count int)

	// RecordShardQuery records the latency of one per-shard directory query.
	//
	// Parameters:
	//   - kind: "enrollments", "admin_enrollments", "accounts", "groups", "admin_groups"
	//   - duration: Time taken in seconds
	RecordShardQuery(kind string, duration float64)
}

// CacheMetrics defines metrics for derived-value caching.
type CacheMetrics interface {
	// RecordCacheLookup records a cache lookup for a derived value.
	//
	// Parameters:
	//   - name: Semantic key name (e.g. "visible_section_ids")
	//   - hit: true when the value came from the cache
	RecordCacheLookup(name string, hit bool)

	// RecordCacheError records a failed cache operation ("get" or "set").
	RecordCacheError(operation string)
}

// BalancerMetrics defines metrics for group membership distribution.
type BalancerMetrics interface {
	// RecordDistribution records one distribution run.
	//
	// Parameters:
	//   - added: Memberships created
	//   - skipped: Members whose add failed
	RecordDistribution(added, skipped int)
}
