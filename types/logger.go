package types

// Logger is the structured logger the resolver writes to.
//
// Each call takes a message and alternating key/value pairs, the same shape
// log/slog uses, so reach.NewSlogLogger adapts any *slog.Logger.
type Logger interface {
	// Debug logs per-call details: dropped targets, ignored tokens, skipped members.
	Debug(msg string, keysAndValues ...any)

	// Info logs notable events.
	Info(msg string, keysAndValues ...any)

	// Warn logs recoverable failures such as a cache write that did not land.
	Warn(msg string, keysAndValues ...any)

	// Error logs failures.
	Error(msg string, keysAndValues ...any)

	// Fatal logs and terminates the process (implementations used in tests
	// may fail the test instead).
	Fatal(msg string, keysAndValues ...any)
}
