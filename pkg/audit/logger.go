package audit

import (
	"context"
)

// Logger is the interface for audit trail sinks
type Logger interface {
	// Log persists an audit event
	Log(ctx context.Context, event *Event) error

	// Close closes the logger and flushes any buffered events
	Close() error
}

// NopLogger discards events (used when no audit sink is configured)
type NopLogger struct{}

// NewNopLogger creates a logger that drops everything
func NewNopLogger() *NopLogger {
	return &NopLogger{}
}

func (l *NopLogger) Log(ctx context.Context, event *Event) error {
	return nil
}

func (l *NopLogger) Close() error {
	return nil
}
