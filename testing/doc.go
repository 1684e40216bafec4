// Package testing provides test utilities for the reach library.
//
// It follows Go's convention of shipping test helpers in a dedicated package
// (similar to net/http/httptest).
//
// Key utilities:
//   - StartEmbeddedNATS: single NATS server with JetStream for the KV cache
//   - RunNATSServer: the same server outside of a test, for examples and local runs
//   - NewTestLogger: types.Logger that writes through testing.T
//
// Example usage:
//
//	import (
//	    "testing"
//	    reachtest "github.com/arloliu/reach/testing"
//	)
//
//	func TestMyCache(t *testing.T) {
//	    _, nc := reachtest.StartEmbeddedNATS(t)
//	    // Use nc for your tests
//	}
package testing
