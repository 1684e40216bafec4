package testing

import (
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// ErrServerNotReady is returned when the embedded server does not accept
// connections in time.
var ErrServerNotReady = errors.New("embedded NATS server not ready")

// RunNATSServer starts an in-process NATS server with JetStream enabled.
//
// The server listens on a random loopback port and stores JetStream data in
// storeDir. The caller owns the server and must call Shutdown.
//
// Parameters:
//   - storeDir: JetStream storage directory
//
// Returns:
//   - *server.Server: Running server
//   - error: Creation failure or ErrServerNotReady
func RunNATSServer(storeDir string) (*server.Server, error) {
	opts := &server.Options{
		Host:      "127.0.0.1",
		Port:      -1,   // random available port
		JetStream: true, // KV buckets need JetStream
		StoreDir:  storeDir,
		NoLog:     true,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, err
	}

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, ErrServerNotReady
	}

	return ns, nil
}

// StartEmbeddedNATS starts an embedded NATS server with JetStream enabled for testing.
//
// The server stores data in t.TempDir() and is shut down, together with the
// returned connection, through t.Cleanup. A random port keeps parallel tests
// from conflicting.
//
// Parameters:
//   - t: Testing context for logging and cleanup
//
// Returns:
//   - *server.Server: The embedded NATS server instance
//   - *nats.Conn: Connected NATS client (closed automatically on test completion)
//
// Example:
//
//	func TestNATSCache(t *testing.T) {
//	    _, nc := reachtest.StartEmbeddedNATS(t)
//	    c, err := natskv.New(ctx, nc, natskv.Config{Bucket: "test"})
//	}
func StartEmbeddedNATS(t *testing.T) (*server.Server, *nats.Conn) {
	t.Helper()

	ns, err := RunNATSServer(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to start embedded NATS server: %v", err)
	}

	nc, err := nats.Connect(ns.ClientURL(),
		nats.Timeout(2*time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(3),
	)
	if err != nil {
		ns.Shutdown()
		t.Fatalf("Failed to connect to embedded NATS server: %v", err)
	}

	// Executed in reverse order of registration.
	t.Cleanup(func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	})

	return ns, nc
}
