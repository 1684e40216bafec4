// Package kvutil opens the JetStream KeyValue buckets used as shared caches.
package kvutil

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// BucketSpec describes a cache bucket.
type BucketSpec struct {
	// Name is the bucket name.
	Name string

	// TTL expires every entry of the bucket. NATS KV has no per-key TTL on
	// plain Put, so the cache TTL is a bucket property.
	TTL time.Duration

	// Replicas is the JetStream replication factor (0 means 1).
	Replicas int

	// Description is stored on the bucket for operators.
	Description string
}

func (s BucketSpec) keyValueConfig() jetstream.KeyValueConfig {
	replicas := s.Replicas
	if replicas <= 0 {
		replicas = 1
	}

	return jetstream.KeyValueConfig{
		Bucket:      s.Name,
		Description: s.Description,
		History:     1,
		TTL:         s.TTL,
		Replicas:    replicas,
	}
}

// EnsureBucket creates or opens a cache bucket with retry logic.
//
// Several resolver processes may start at once and race on bucket creation;
// an ErrBucketExists outcome opens the existing bucket instead. Transient
// failures are retried with exponential backoff.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - js: JetStream context
//   - spec: Bucket description
//   - maxRetries: Maximum number of attempts (default: 3)
//
// Returns:
//   - jetstream.KeyValue: The KV bucket instance
//   - error: Last error after all attempts
//
// Example:
//
//	kv, err := kvutil.EnsureBucket(ctx, js, kvutil.BucketSpec{
//	    Name: "reach-cache",
//	    TTL:  24 * time.Hour,
//	}, 3)
func EnsureBucket(ctx context.Context, js jetstream.JetStream, spec BucketSpec, maxRetries int) (jetstream.KeyValue, error) {
	if spec.Name == "" {
		return nil, errors.New("bucket name is required")
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}

	cfg := spec.keyValueConfig()
	var lastErr error

	for attempt := range maxRetries {
		kv, err := js.CreateKeyValue(ctx, cfg)
		if err == nil {
			return kv, nil
		}

		if errors.Is(err, jetstream.ErrBucketExists) {
			kv, openErr := js.KeyValue(ctx, cfg.Bucket)
			if openErr == nil {
				return kv, nil
			}
			lastErr = fmt.Errorf("bucket exists but failed to open: %w", openErr)
		} else {
			lastErr = err
		}

		if ctx.Err() != nil {
			return nil, fmt.Errorf("context cancelled while opening bucket %s: %w", cfg.Bucket, ctx.Err())
		}

		// 10ms, 20ms, 40ms...
		if attempt < maxRetries-1 {
			backoff := time.Duration(1<<uint(attempt)) * 10 * time.Millisecond //nolint:gosec // attempt is bounded by maxRetries
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return nil, fmt.Errorf("failed to create/open bucket %s after %d attempts: %w", cfg.Bucket, maxRetries, lastErr)
}
