// Package shard provides built-in ShardPartitioner strategies and helpers to
// split id sets by shard and run per-shard work.
//
// The package includes three strategies:
//
//   - Single: every id lives on shard 0 (default for non-distributed deployments)
//   - Modulo: id % n, for deployments that place records by id range arithmetic
//   - ConsistentHash: xxh3 hash ring with virtual nodes
//
// # Strategy Selection Guide
//
// Single:
//   - Use when the read model is one database
//   - ForEach degenerates to a single call
//
// Modulo:
//   - Use when the storage layer already places rows by id modulo
//   - Cheap and deterministic, but resharding moves most ids
//
// ConsistentHash:
//   - Use when shards are added over time
//   - Adding a shard relocates only about 1/n of ids
//
// Custom strategies can be implemented by satisfying the types.ShardPartitioner interface.
package shard
