package resolve

import (
	"errors"
	"time"

	"github.com/arloliu/reach/internal/logger"
	"github.com/arloliu/reach/internal/metrics"
	"github.com/arloliu/reach/shard"
	"github.com/arloliu/reach/types"
)

// Config holds engine configuration.
//
// Use NewEngine(cfg) to create an engine with validated configuration and
// sensible defaults for optional fields.
type Config struct {
	// Required dependencies
	Directory types.Directory

	// Optional dependencies
	Participants types.ParticipantLookup // Conversation lookup (default: escape hatch disabled)
	Cache        types.Cache             // Derived-set cache (default: none)
	Partitioner  types.ShardPartitioner  // Shard strategy (default: single shard)
	Metrics      types.MetricsCollector  // Metrics collector (default: no-op)
	Logger       types.Logger            // Logger (default: no-op)
	Now          func() time.Time        // Clock (default: time.Now)

	// Optional configuration (with defaults)
	CacheTTL         time.Duration // Lifetime of cached derived sets (default: 24h)
	RecentWindow     time.Duration // Group recency window for concluded courses (default: 720h)
	KeyPrefix        string        // Cache key prefix (default: "reach")
	ShardConcurrency int           // Shards queried in parallel (default: 1, sequential)
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.Directory == nil {
		return errors.New("the Directory is required")
	}
	if c.CacheTTL < 0 {
		return errors.New("the CacheTTL must not be negative")
	}
	if c.RecentWindow < 0 {
		return errors.New("the RecentWindow must not be negative")
	}
	if c.ShardConcurrency < 0 {
		return errors.New("the ShardConcurrency must not be negative")
	}

	return nil
}

// SetDefaults applies default values for optional fields.
//
// Fields that are already set (non-zero) are not overwritten.
func (c *Config) SetDefaults() {
	if c.Partitioner == nil {
		c.Partitioner = shard.NewSingle()
	}
	if c.Metrics == nil {
		c.Metrics = metrics.NewNop()
	}
	if c.Logger == nil {
		c.Logger = logger.NewNop()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = 24 * time.Hour
	}
	if c.RecentWindow == 0 {
		c.RecentWindow = 30 * 24 * time.Hour
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "reach"
	}
	if c.ShardConcurrency == 0 {
		c.ShardConcurrency = 1
	}
}
