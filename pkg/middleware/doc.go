// Package middleware provides the request-gating middleware for the API:
// operator authentication, invitation-token authentication, tenant context
// resolution, and rate limiting.
//
// # Middleware Ordering Requirements
//
// The middleware in this package have strict ordering dependencies.
// Incorrect order causes checks to silently degrade (rate limits keyed by
// IP instead of operator) or tenant reads against the wrong namespace.
//
// REQUIRED ORDERING (outer to inner):
//  1. OperatorAuth / InvitationAuth - establish the caller's identity
//  2. Rate limiting - keys off the authenticated identity when present
//  3. TenantContext - resolves X-Tenant-ID for tenant-scoped reads
//
// Example (correct):
//
//	handler := operatorAuth.Handler(rateLimit.Handler(middleware.TenantContext(resolver)(mux)))
//
// If rate limiting runs before authentication, every caller shares the
// anonymous IP budget. If TenantContext runs before authentication, an
// unauthenticated request can still trigger tenant lookups.
//
// # Tenant Isolation
//
// The tenant context rides only on the request's derived context.Context,
// which dies with the request; nothing in this package keeps per-request
// state anywhere else, so a handler can never observe another request's
// tenant, even after a panic.
//
// # Rate Limiting
//
// Default (Anonymous): 100 req/min, 10 burst
// Per-Operator: 1000 req/min, 50 burst
//
// RateLimiter is in-memory and per-instance; DistributedRateLimiter shares
// one budget across instances through redis and fails open when redis is
// unavailable.
package middleware
