package shard

import "errors"

// ErrNoShards indicates that a strategy was configured without shards.
var ErrNoShards = errors.New("no shards configured")
