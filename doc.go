// Package reach decides which users a viewer may message.
//
// Two users can message each other when they share a context: a course both
// are enrolled in (seen at the viewer's visibility tier there), a group both
// belong to, or an account roster the viewer may read. The Resolver finds
// those common contexts against a Directory read model and filters out
// targets without one.
//
// # Quick Start
//
//	import (
//	    "github.com/arloliu/reach"
//	    "github.com/arloliu/reach/cache/memory"
//	    "github.com/arloliu/reach/directory/sqlite"
//	)
//
//	dir, err := sqlite.Open(ctx, sqlite.Config{DSN: "file:school.db", InitSchema: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer dir.Close()
//
//	cfg := reach.DefaultConfig()
//	resolver, err := reach.NewResolver(&cfg, dir, reach.WithCache(memory.New()))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	users, err := resolver.LoadMessageableUsers(ctx, viewerID, reach.IDs(2, 3, 4))
//	roster, err := resolver.MessageableUsersInContext(ctx, viewerID, "course_42_students")
//
// # Visibility Tiers
//
// In each course the viewer's enrollments give one tier:
//
//   - Full: the whole roster is visible
//   - Sectioned: only the viewer's own sections are visible (the viewer's
//     enrollments are all limited to their section)
//   - Restricted: only teachers, TAs and observed students are visible (the
//     viewer cannot message in that course at all)
//
// In courses where the viewer is a student, observers are hidden unless they
// observe the viewer.
//
// # Caching and Sharding
//
// Derived per-viewer sets (visible sections, observed students, visible
// groups) are cached through the Cache interface under keys that include a
// digest of their inputs, so cached entries never go stale when enrollments
// change. Implementations live in cache/memory, cache/redis, cache/natskv and
// cache/tiered.
//
// Directory queries can be partitioned with a ShardPartitioner (see package
// shard); per-shard queries run with bounded concurrency and their partial
// results are merged.
//
// # Group Balancing
//
// DistributeMembers and AssignUnassignedMembers place users into groups,
// always filling the currently smallest group, through a GroupStore.
//
// See the examples/ directory for complete working examples.
package reach
