// Package sso persists the SSO onboarding tickets issued while enterprises
// onboard and authenticates control-plane operators against an OpenID
// Connect issuer.
//
// Tickets are append-only. Rows only leave through DeleteExpired, which the
// janitor runs on a schedule; nothing in the serving path deletes them.
package sso
