package reach

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the configuration for the Resolver.
//
// All duration fields accept standard Go duration strings like "30s", "5m", "720h".
type Config struct {
	// CacheTTL is how long derived visibility sets (visible sections, observed
	// students, visible groups, ...) stay in the cache.
	//
	// Entries are keyed by a digest of their inputs, so a changed course or
	// group set never reads a stale entry. The TTL only bounds how long
	// unreachable entries occupy the cache.
	// Recommended: 24 hours.
	CacheTTL time.Duration `yaml:"cacheTtl"`

	// RecentCourseWindow is how long after its conclusion a course still
	// contributes its groups to the viewer's visible groups.
	// Recommended: 30 days (720h).
	RecentCourseWindow time.Duration `yaml:"recentCourseWindow"`

	// OperationTimeout bounds every public Resolver call. Zero disables the
	// timeout and relies on the caller's context.
	// Recommended: 10 seconds.
	OperationTimeout time.Duration `yaml:"operationTimeout"`

	// ShardConcurrency is the number of shards queried in parallel.
	// 1 queries shards sequentially.
	ShardConcurrency int `yaml:"shardConcurrency"`

	// CacheKeyPrefix namespaces cache keys when the cache is shared.
	CacheKeyPrefix string `yaml:"cacheKeyPrefix"`
}

// DefaultConfig returns a Config with sensible defaults.
//
// Returns:
//   - Config: Configuration with default values
func DefaultConfig() Config {
	return Config{
		CacheTTL:           24 * time.Hour,
		RecentCourseWindow: 30 * 24 * time.Hour,
		OperationTimeout:   10 * time.Second,
		ShardConcurrency:   1,
		CacheKeyPrefix:     "reach",
	}
}

// SetDefaults fills in missing configuration values with production defaults.
//
// Parameters:
//   - cfg: Config to apply defaults to (modified in place)
func SetDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = defaults.CacheTTL
	}
	if cfg.RecentCourseWindow == 0 {
		cfg.RecentCourseWindow = defaults.RecentCourseWindow
	}
	if cfg.ShardConcurrency == 0 {
		cfg.ShardConcurrency = defaults.ShardConcurrency
	}
	if cfg.CacheKeyPrefix == "" {
		cfg.CacheKeyPrefix = defaults.CacheKeyPrefix
	}
	// Note: OperationTimeout of 0 is valid (no timeout), so we don't apply default
}

// Validate checks configuration constraints and returns error for invalid values.
//
// Hard Validation Rules:
//   - CacheTTL > 0
//   - RecentCourseWindow >= 0
//   - OperationTimeout >= 0
//   - ShardConcurrency >= 1
//   - CacheKeyPrefix is non-empty and uses only [A-Za-z0-9_-]; ':' separates key
//     parts and other bytes are not portable to every cache backend
//
// Returns:
//   - error: Validation error wrapping ErrInvalidConfig, nil if valid
func (cfg *Config) Validate() error {
	if cfg.CacheTTL <= 0 {
		return fmt.Errorf("%w: CacheTTL must be > 0, got %v", ErrInvalidConfig, cfg.CacheTTL)
	}

	if cfg.RecentCourseWindow < 0 {
		return fmt.Errorf("%w: RecentCourseWindow must be >= 0, got %v", ErrInvalidConfig, cfg.RecentCourseWindow)
	}

	if cfg.OperationTimeout < 0 {
		return fmt.Errorf("%w: OperationTimeout must be >= 0, got %v", ErrInvalidConfig, cfg.OperationTimeout)
	}

	if cfg.ShardConcurrency < 1 {
		return fmt.Errorf("%w: ShardConcurrency must be >= 1, got %d", ErrInvalidConfig, cfg.ShardConcurrency)
	}

	if !validKeyPrefix(cfg.CacheKeyPrefix) {
		return fmt.Errorf("%w: CacheKeyPrefix %q must be non-empty and use only [A-Za-z0-9_-]", ErrInvalidConfig, cfg.CacheKeyPrefix)
	}

	return nil
}

func validKeyPrefix(prefix string) bool {
	if prefix == "" {
		return false
	}
	for _, ch := range prefix {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
		case ch == '-' || ch == '_':
		default:
			return false
		}
	}

	return true
}

// ValidateWithWarnings logs warnings for valid but non-recommended values.
//
// This is called after Validate() in NewResolver() to provide operator guidance.
//
// Parameters:
//   - logger: Logger instance for warning output
func (cfg *Config) ValidateWithWarnings(logger Logger) {
	if cfg.CacheTTL < time.Minute {
		logger.Warn(
			"CacheTTL is very short, most derived sets will be recomputed",
			"cacheTTL", cfg.CacheTTL,
			"recommended", "24h",
		)
	}

	if cfg.OperationTimeout == 0 {
		logger.Warn(
			"OperationTimeout is disabled, calls are bounded only by the caller's context",
			"recommended", "10s",
		)
	}

	if cfg.ShardConcurrency > 64 {
		logger.Warn(
			"ShardConcurrency is high, directory connection pools may be exhausted",
			"shardConcurrency", cfg.ShardConcurrency,
		)
	}
}

// TestConfig returns a configuration for tests: short cache lifetime and
// no operation timeout so debugger pauses do not cancel calls.
//
// Returns:
//   - Config: Configuration for tests
//
// Example:
//
//	cfg := reach.TestConfig()
//	resolver, err := reach.NewResolver(cfg, dir)
func TestConfig() Config {
	cfg := DefaultConfig()
	cfg.CacheTTL = time.Minute
	cfg.OperationTimeout = 0

	return cfg
}

// LoadConfig reads a YAML configuration file.
//
// Missing fields take their defaults; unknown fields are rejected.
//
// Parameters:
//   - path: Path to the YAML file
//
// Returns:
//   - Config: Parsed, defaulted and validated configuration
//   - error: Read, parse or validation error
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	return ParseConfig(data)
}

// ParseConfig parses YAML configuration. See LoadConfig.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	SetDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
