// Package natsutil classifies NATS client errors for the cache backends.
//
// Kept in internal/ so the types package stays free of NATS imports.
package natsutil

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/reach/types"
)

// IsConnectivityError checks if an error is caused by connectivity issues.
//
// This includes NATS timeouts, connection refused, disconnections, etc.
//
// Parameters:
//   - err: Error to check
//
// Returns:
//   - bool: true if error indicates connectivity issue
func IsConnectivityError(err error) bool {
	if err == nil {
		return false
	}

	return errors.Is(err, types.ErrUnavailable) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrDisconnected) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, nats.ErrNoResponders) ||
		errors.Is(err, jetstream.ErrNoStreamResponse) ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "i/o timeout")
}

// Classify wraps a NATS error for the caller.
//
// Connectivity failures and context errors are wrapped with
// types.ErrUnavailable so types.IsUnavailable reports them; other errors are
// wrapped with op only.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsConnectivityError(err) || types.IsUnavailable(err) {
		return fmt.Errorf("%s: %w: %w", op, types.ErrUnavailable, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}
