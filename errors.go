package reach

import "github.com/arloliu/reach/types"

// Sentinel errors returned by the Resolver and its collaborators.
//
// They are the same values as in the types package, so errors.Is works
// against either.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = types.ErrInvalidConfig

	// ErrDirectoryRequired is returned when NewResolver gets a nil Directory.
	ErrDirectoryRequired = types.ErrDirectoryRequired

	// ErrGroupStoreRequired is returned by DistributeMembers and
	// AssignUnassignedMembers when no GroupStore is configured.
	ErrGroupStoreRequired = types.ErrGroupStoreRequired

	// ErrNotFound is returned by Directory lookups for unknown ids.
	ErrNotFound = types.ErrNotFound

	// ErrCacheMiss is returned by Cache.Get for absent or expired keys.
	ErrCacheMiss = types.ErrCacheMiss

	// ErrUnavailable marks a retryable dependency failure.
	ErrUnavailable = types.ErrUnavailable

	// ErrMembershipConflict is returned by GroupStore.AddMember on a constraint violation.
	ErrMembershipConflict = types.ErrMembershipConflict
)

// IsUnavailable reports whether err is a retryable dependency failure:
// ErrUnavailable, a context deadline or a cancellation.
func IsUnavailable(err error) bool {
	return types.IsUnavailable(err)
}
