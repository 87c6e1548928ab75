package audit

import "context"

// Logger is the interface for audit log sinks
type Logger interface {
	// Log persists an audit event
	Log(ctx context.Context, event *Event) error

	// Close closes the logger and flushes any buffered logs
	Close() error
}

// NoopLogger discards all events (used when auditing is disabled)
type NoopLogger struct{}

func (NoopLogger) Log(ctx context.Context, event *Event) error { return nil }
func (NoopLogger) Close() error                                { return nil }
