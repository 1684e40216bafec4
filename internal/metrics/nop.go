// Package metrics provides MetricsCollector implementations: a no-op default
// and a Prometheus-backed collector.
package metrics

import "github.com/arloliu/reach/types"

// NopMetrics implements a no-op metrics collector.
//
// All metrics are discarded. Used when no WithMetrics option is given.
type NopMetrics struct{}

var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNop creates a new no-op metrics collector.
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

// ResolverMetrics implementation

// RecordResolveDuration discards the resolve duration metric.
func (n *NopMetrics) RecordResolveDuration(_ string, _ float64, _ bool) {}

// RecordTargets discards the strict-filter outcome metric.
func (n *NopMetrics) RecordTargets(_, _ int) {}

// RecordConversationRescue discards the conversation rescue metric.
func (n *NopMetrics) RecordConversationRescue(_ int) {}

// RecordShardQuery discards the per-shard query latency metric.
func (n *NopMetrics) RecordShardQuery(_ string, _ float64) {}

// CacheMetrics implementation

// RecordCacheLookup discards the cache lookup metric.
func (n *NopMetrics) RecordCacheLookup(_ string, _ bool) {}

// RecordCacheError discards the cache error metric.
func (n *NopMetrics) RecordCacheError(_ string) {}

// BalancerMetrics implementation

// RecordDistribution discards the distribution metric.
func (n *NopMetrics) RecordDistribution(_, _ int) {}
