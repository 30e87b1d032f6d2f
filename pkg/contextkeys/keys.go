// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//   import "github.com/platinummonkey/usher/pkg/contextkeys"
//   ctx = context.WithValue(ctx, contextkeys.TenantKey, tc)
//   tc := ctx.Value(contextkeys.TenantKey).(*tenant.Context)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// TenantKey contains *tenant.Context
	// Set by: middleware.TenantContext (pkg/middleware/tenant.go)
	// Required by: All tenant-scoped data access (tenant.FromContext, tenant.ScopedConn)
	// Type: *tenant.Context
	TenantKey Key = "tenant_context"

	// OperatorKey contains *sso.Operator
	// Set by: middleware.OperatorAuth (pkg/middleware/auth.go)
	// Required by: Operator-facing registry and onboarding endpoints
	// Type: *sso.Operator
	OperatorKey Key = "operator_claims"

	// InvitationKey contains *onboarding.InvitationClaims
	// Set by: middleware.InvitationAuth (pkg/middleware/auth.go)
	// Required by: The tenant-facing onboard endpoint
	// Type: *onboarding.InvitationClaims
	InvitationKey Key = "invitation_claims"

	// RequestIDKey contains request ID string (UUID)
	// Set by: HTTP middleware, observability layer
	// Used by: Logger, audit trail, distributed tracing
	// Type: string
	RequestIDKey Key = "request_id"

	// LoggerKey contains *observability.Logger
	// Set by: Observability middleware
	// Used by: Handlers that need structured logging with request context
	// Type: *observability.Logger
	LoggerKey Key = "logger"

	// AuditLoggerKey contains audit.Logger interface
	// Set by: Audit middleware (pkg/audit/middleware.go)
	// Used by: Handlers that record audit events
	// Type: audit.Logger
	AuditLoggerKey Key = "audit_logger"

	// RequestStartTimeKey contains request start timestamp
	// Set by: Audit middleware
	// Used by: Duration calculation for audit logs
	// Type: time.Time
	RequestStartTimeKey Key = "request_start_time"
)

// Helper functions for type-safe context operations

// WithTenant adds the resolved tenant context to the context
func WithTenant(ctx context.Context, tc interface{}) context.Context {
	return context.WithValue(ctx, TenantKey, tc)
}

// WithOperator adds operator claims to the context
func WithOperator(ctx context.Context, claims interface{}) context.Context {
	return context.WithValue(ctx, OperatorKey, claims)
}

// WithInvitation adds invitation claims to the context
func WithInvitation(ctx context.Context, claims interface{}) context.Context {
	return context.WithValue(ctx, InvitationKey, claims)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// WithAuditLogger adds audit logger to the context
func WithAuditLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, AuditLoggerKey, logger)
}

// WithRequestStartTime adds request start time to the context
func WithRequestStartTime(ctx context.Context, startTime interface{}) context.Context {
	return context.WithValue(ctx, RequestStartTimeKey, startTime)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}
