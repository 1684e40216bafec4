package reach

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/arloliu/reach/internal/logger"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.Equal(t, 24*time.Hour, cfg.CacheTTL)
	require.Equal(t, 720*time.Hour, cfg.RecentCourseWindow)
	require.Equal(t, 10*time.Second, cfg.OperationTimeout)
	require.Equal(t, 1, cfg.ShardConcurrency)
	require.Equal(t, "reach", cfg.CacheKeyPrefix)
	require.NoError(t, cfg.Validate())
}

func TestSetDefaults(t *testing.T) {
	t.Run("applies defaults to empty config", func(t *testing.T) {
		cfg := Config{}
		SetDefaults(&cfg)

		require.Equal(t, 24*time.Hour, cfg.CacheTTL)
		require.Equal(t, 720*time.Hour, cfg.RecentCourseWindow)
		require.Equal(t, 1, cfg.ShardConcurrency)
		require.Equal(t, "reach", cfg.CacheKeyPrefix)
		require.Zero(t, cfg.OperationTimeout, "zero timeout means disabled")
	})

	t.Run("preserves custom values", func(t *testing.T) {
		cfg := Config{
			CacheTTL:           time.Hour,
			RecentCourseWindow: 48 * time.Hour,
			OperationTimeout:   3 * time.Second,
			ShardConcurrency:   8,
			CacheKeyPrefix:     "school-a",
		}
		SetDefaults(&cfg)

		require.Equal(t, time.Hour, cfg.CacheTTL)
		require.Equal(t, 48*time.Hour, cfg.RecentCourseWindow)
		require.Equal(t, 3*time.Second, cfg.OperationTimeout)
		require.Equal(t, 8, cfg.ShardConcurrency)
		require.Equal(t, "school-a", cfg.CacheKeyPrefix)
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero cache ttl", func(c *Config) { c.CacheTTL = 0 }},
		{"negative window", func(c *Config) { c.RecentCourseWindow = -time.Hour }},
		{"negative timeout", func(c *Config) { c.OperationTimeout = -time.Second }},
		{"zero concurrency", func(c *Config) { c.ShardConcurrency = 0 }},
		{"empty prefix", func(c *Config) { c.CacheKeyPrefix = "" }},
		{"prefix with separator", func(c *Config) { c.CacheKeyPrefix = "a:b" }},
		{"prefix with space", func(c *Config) { c.CacheKeyPrefix = "school a" }},
		{"prefix with dot", func(c *Config) { c.CacheKeyPrefix = "school.a" }},
		{"prefix with non-ascii", func(c *Config) { c.CacheKeyPrefix = "école" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestConfig_ValidateWithWarnings(t *testing.T) {
	rec := logger.NewRecorder()
	cfg := DefaultConfig()
	cfg.ValidateWithWarnings(rec)
	require.Empty(t, rec.Entries())

	cfg.CacheTTL = time.Second
	cfg.OperationTimeout = 0
	cfg.ShardConcurrency = 128
	cfg.ValidateWithWarnings(rec)
	require.Len(t, rec.Find("warn", "CacheTTL"), 1)
	require.Len(t, rec.Find("warn", "OperationTimeout"), 1)
	require.Len(t, rec.Find("warn", "ShardConcurrency"), 1)
}

func TestTestConfig(t *testing.T) {
	cfg := TestConfig()

	require.NoError(t, cfg.Validate())
	require.Zero(t, cfg.OperationTimeout)
	require.Less(t, cfg.CacheTTL, DefaultConfig().CacheTTL)
}

func TestParseConfig(t *testing.T) {
	t.Run("partial document takes defaults", func(t *testing.T) {
		cfg, err := ParseConfig([]byte("cacheTtl: 2h\nshardConcurrency: 4\n"))
		require.NoError(t, err)

		require.Equal(t, 2*time.Hour, cfg.CacheTTL)
		require.Equal(t, 4, cfg.ShardConcurrency)
		require.Equal(t, 720*time.Hour, cfg.RecentCourseWindow)
		require.Equal(t, "reach", cfg.CacheKeyPrefix)
	})

	t.Run("empty document", func(t *testing.T) {
		cfg, err := ParseConfig(nil)
		require.NoError(t, err)
		require.Equal(t, 24*time.Hour, cfg.CacheTTL)
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := ParseConfig([]byte("cacheTTL: 2h\n"))
		require.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("invalid value", func(t *testing.T) {
		_, err := ParseConfig([]byte("cacheKeyPrefix: \"a:b\"\n"))
		require.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestConfig_YAMLRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CacheKeyPrefix = "district"

	data, err := yaml.Marshal(&cfg)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "reach.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, cfg, loaded)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
