// Package idp adapts the identity provider's management API for the
// onboarding flow: organization creation, SSO setup tickets, and connection
// teardown. Calls authenticate with OAuth2 client credentials; the token is
// fetched and refreshed by the underlying HTTP client. Failures come back as
// UpstreamError values carrying the operation, status code and upstream
// detail.
package idp
