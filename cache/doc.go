// Package cache holds the types.Cache backends used for the resolver's
// derived values.
//
// Backends:
//   - memory: in-process TTL map (xsync), the default
//   - redis: shared cache on Redis (go-redis)
//   - natskv: shared cache on a NATS JetStream KeyValue bucket
//   - tiered: an in-process L1 in front of a shared L2
//
// Every backend returns types.ErrCacheMiss for absent or expired keys, and
// wraps transport failures with types.ErrUnavailable.
package cache
