// Package types provides core type definitions and interfaces for the reach library.
//
// This package contains shared types that are used across multiple packages in the
// library. By keeping these types in a separate package, we avoid import cycles
// between the root reach package and its internal implementations.
//
// Key types:
//   - User, Course, Section, Enrollment, Group, GroupMembership: read-only records
//   - MessageableUser: a user annotated with common courses and groups
//   - Target: the id / user / messageable-user input union
//   - VisibilityTier: full, sectioned or restricted roster visibility
//   - Directory, ParticipantLookup, GroupStore, Cache, ShardPartitioner: collaborators
//   - Logger, MetricsCollector: observability interfaces
package types
