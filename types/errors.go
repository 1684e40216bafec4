package types

import (
	"context"
	"errors"
)

// Sentinel errors for the reach library.
//
// Components wrap external errors with context using fmt.Errorf("%s: %w", msg, err)
// and callers check them with errors.Is.

// Resolver errors - Public API errors returned by the Resolver.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrDirectoryRequired is returned when no Directory is supplied.
	ErrDirectoryRequired = errors.New("directory is required")

	// ErrGroupStoreRequired is returned when balancing without a GroupStore.
	ErrGroupStoreRequired = errors.New("group store is required")
)

// Collaborator errors - returned by Directory, Cache and GroupStore implementations.
var (
	// ErrNotFound is returned by Directory lookups for unknown ids.
	// The resolver never surfaces it: an absent context is an empty result.
	ErrNotFound = errors.New("not found")

	// ErrCacheMiss is returned by Cache.Get when the key is absent or expired.
	ErrCacheMiss = errors.New("cache miss")

	// ErrUnavailable marks a dependency failure (timeout, lost connection).
	// It is retryable and must never be read as "no results".
	ErrUnavailable = errors.New("dependency unavailable")

	// ErrMembershipConflict is returned by GroupStore.AddMember when the
	// membership violates a constraint.
	ErrMembershipConflict = errors.New("membership conflict")
)

// IsUnavailable reports whether err is a retryable dependency failure.
//
// Parameters:
//   - err: Error to classify
//
// Returns:
//   - bool: true for ErrUnavailable, context deadlines and cancellations
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}

	return errors.Is(err, ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}
