package balance

import (
	"errors"
	"math/rand/v2"
	"time"

	"github.com/arloliu/reach/internal/logger"
	"github.com/arloliu/reach/internal/metrics"
	"github.com/arloliu/reach/types"
)

// Config holds balancer configuration.
//
// Use New(cfg) to create a balancer with validated configuration and
// sensible defaults for optional fields.
type Config struct {
	// Required dependencies
	Store types.GroupStore // Membership writes and group sizes

	// Optional dependencies
	Rand    *rand.Rand            // Shuffle source (default: randomly seeded PCG)
	Metrics types.BalancerMetrics // Metrics collector (default: no-op)
	Logger  types.Logger          // Logger (default: no-op)
	Now     func() time.Time      // Clock for group touches (default: time.Now)
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.Store == nil {
		return errors.New("the Store is required")
	}

	return nil
}

// SetDefaults applies default values for optional fields.
//
// Fields that are already set (non-zero) are not overwritten.
func (c *Config) SetDefaults() {
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec
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
}
