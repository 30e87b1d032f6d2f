package audit

import (
	"context"
	"time"

	"github.com/platinummonkey/usher/pkg/contextkeys"
	"github.com/platinummonkey/usher/pkg/sso"
)

// Logger is the interface audit writers implement.
type Logger interface {
	// Log appends one event to the trail.
	Log(ctx context.Context, event *Event) error

	// Close flushes and releases the writer.
	Close() error
}

// WithLogger adds an audit logger to the context.
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return contextkeys.WithAuditLogger(ctx, logger)
}

// FromContext retrieves the audit logger from context. Handlers running
// outside the audit middleware get a no-op writer, never nil.
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(contextkeys.AuditLoggerKey).(Logger); ok && logger != nil {
		return logger
	}
	return &noopLogger{}
}

// NewEvent builds an event stamped with the request context: timestamp,
// request id, and the acting operator when one is authenticated.
func NewEvent(ctx context.Context, eventType EventType, status EventStatus) *Event {
	return &Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		Actor:     actorFromContext(ctx),
		RequestID: contextkeys.GetRequestID(ctx),
		Metadata:  make(map[string]interface{}),
	}
}

// Success builds a success entry for an action against an enterprise.
func Success(ctx context.Context, eventType EventType, enterpriseID, message string) *Event {
	event := NewEvent(ctx, eventType, EventStatusSuccess)
	event.EnterpriseID = enterpriseID
	event.Message = message
	return event
}

// Failure builds a failure entry carrying the causing error.
func Failure(ctx context.Context, eventType EventType, enterpriseID, message string, err error) *Event {
	event := NewEvent(ctx, eventType, EventStatusFailure)
	event.EnterpriseID = enterpriseID
	event.Message = message
	if err != nil {
		event.ErrorMessage = err.Error()
	}
	return event
}

func actorFromContext(ctx context.Context) string {
	if op, ok := ctx.Value(contextkeys.OperatorKey).(*sso.Operator); ok && op != nil {
		if op.Email != "" {
			return op.Email
		}
		return op.Subject
	}
	return "system"
}

// noopLogger swallows events when no trail is configured.
type noopLogger struct{}

func (l *noopLogger) Log(ctx context.Context, event *Event) error { return nil }

func (l *noopLogger) Close() error { return nil }
