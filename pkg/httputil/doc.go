// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Overview
//
// This package offers helper functions for JSON encoding/decoding, error responses,
// parameter parsing, validation, and common HTTP middleware patterns.
//
// # Response Helpers
//
// JSON responses:
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteSuccess(w, enterprise)
//	httputil.WriteCreated(w, enterprise)
//
// Error responses:
//
//	httputil.WriteError(w, http.StatusBadRequest, err)
//	httputil.WriteBadRequest(w, "Invalid input")
//	httputil.WriteUnauthorized(w, "Token expired")
//	httputil.WriteConflict(w, "Enterprise is not awaiting onboarding")
//	httputil.WriteBadGateway(w, "Identity provider request failed")
//
// # Request Parsing
//
// JSON parsing:
//
//	var req InviteEnterpriseRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//
// Path parameters:
//
//	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
//	name, err := httputil.ParsePathString(r, "name")
//
// Query parameters:
//
//	page, perPage, err := httputil.ParsePagination(r, 25, 100)
//	status := httputil.ParseQueryString(r, "status", "")
//	includeDeleted, err := httputil.ParseQueryBool(r, "include_deleted", false)
//
// # Validation
//
//	httputil.ValidateAll(w,
//		func() (bool, string) { return req.CompanyName != "", "company_name is required" },
//		func() (bool, string) { return req.AdminEmail != "", "admin_email is required" },
//	)
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//		httputil.TimeoutMiddleware(30*time.Second),
//		httputil.MaxBytesMiddleware(1024*1024), // 1MB
//	)
//
// # Related Packages
//
//   - pkg/middleware: Tenant resolution, authentication, and rate limiting middleware
package httputil
