package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arloliu/reach/types"
)

// PrometheusCollector implements types.MetricsCollector backed by Prometheus.
//
// Metrics are created and registered lazily on first use, so constructing a
// collector that is never exercised registers nothing.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	resolveDuration    *prometheus.HistogramVec
	targets            *prometheus.CounterVec
	conversationRescue prometheus.Counter
	shardQuery         *prometheus.HistogramVec

	cacheLookups *prometheus.CounterVec
	cacheErrors  *prometheus.CounterVec

	distributed *prometheus.CounterVec
}

var _ types.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheus creates a new Prometheus-backed metrics collector.
//
// Parameters:
//   - reg: Prometheus registerer interface (uses prometheus.DefaultRegisterer if nil)
//   - namespace: Prometheus metrics namespace (defaults to "reach" if empty)
//
// Returns:
//   - *PrometheusCollector: A MetricsCollector implementation using Prometheus
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "reach"
	}

	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.resolveDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "resolver",
			Name:      "duration_seconds",
			Help:      "Latency of resolver calls in seconds by operation and outcome.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms .. ~2s
		}, []string{"operation", "success"})

		p.targets = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "resolver",
			Name:      "targets_total",
			Help:      "Targets returned (kept) or removed as questionable (dropped).",
		}, []string{"outcome"})

		p.conversationRescue = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "resolver",
			Name:      "conversation_rescues_total",
			Help:      "Questionable targets retained as conversation participants.",
		})

		p.shardQuery = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "resolver",
			Name:      "shard_query_seconds",
			Help:      "Latency of per-shard directory queries in seconds by kind.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"kind"})

		p.cacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Derived-value cache lookups by key name and result (hit/miss).",
		}, []string{"name", "result"})

		p.cacheErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "cache",
			Name:      "errors_total",
			Help:      "Failed cache operations by operation (get/set).",
		}, []string{"operation"})

		p.distributed = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "balancer",
			Name:      "members_total",
			Help:      "Members processed by the group balancer by result (added/skipped).",
		}, []string{"result"})

		p.reg.MustRegister(p.resolveDuration)
		p.reg.MustRegister(p.targets)
		p.reg.MustRegister(p.conversationRescue)
		p.reg.MustRegister(p.shardQuery)
		p.reg.MustRegister(p.cacheLookups)
		p.reg.MustRegister(p.cacheErrors)
		p.reg.MustRegister(p.distributed)
	})
}

// RecordResolveDuration observes one resolver call.
func (p *PrometheusCollector) RecordResolveDuration(operation string, duration float64, success bool) {
	p.ensureRegistered()
	p.resolveDuration.WithLabelValues(operation, strconv.FormatBool(success)).Observe(duration)
}

// RecordTargets counts kept and dropped targets.
func (p *PrometheusCollector) RecordTargets(kept, dropped int) {
	p.ensureRegistered()
	if kept > 0 {
		p.targets.WithLabelValues("kept").Add(float64(kept))
	}
	if dropped > 0 {
		p.targets.WithLabelValues("dropped").Add(float64(dropped))
	}
}

// RecordConversationRescue counts targets kept by the conversation check.
func (p *PrometheusCollector) RecordConversationRescue(count int) {
	p.ensureRegistered()
	if count > 0 {
		p.conversationRescue.Add(float64(count))
	}
}

// RecordShardQuery observes one per-shard query.
func (p *PrometheusCollector) RecordShardQuery(kind string, duration float64) {
	p.ensureRegistered()
	p.shardQuery.WithLabelValues(kind).Observe(duration)
}

// RecordCacheLookup counts a derived-value lookup.
func (p *PrometheusCollector) RecordCacheLookup(name string, hit bool) {
	p.ensureRegistered()
	result := "miss"
	if hit {
		result = "hit"
	}
	p.cacheLookups.WithLabelValues(name, result).Inc()
}

// RecordCacheError counts a failed cache operation.
func (p *PrometheusCollector) RecordCacheError(operation string) {
	p.ensureRegistered()
	p.cacheErrors.WithLabelValues(operation).Inc()
}

// RecordDistribution counts balancer outcomes.
func (p *PrometheusCollector) RecordDistribution(added, skipped int) {
	p.ensureRegistered()
	if added > 0 {
		p.distributed.WithLabelValues("added").Add(float64(added))
	}
	if skipped > 0 {
		p.distributed.WithLabelValues("skipped").Add(float64(skipped))
	}
}
