// Package onboarding orchestrates the enterprise lifecycle from invitation
// to activation.
//
// The service is a saga over external collaborators: the enterprise
// registry, the identity provider's management API, the notification
// publisher, the admin directory cache, and the sso ticket store. Remote
// steps run strictly in order and each step commits its own local state;
// there is never one transaction spanning a remote call. Where a step
// fails midway the record stays in a resumable state (the conditional
// status updates in the registry are the race guard), and ResumeOnboarding
// picks up the one legal partial state.
//
// Failures split into two classes. Fatal errors surface to the caller as
// the typed errors in this package or as upstream errors from the idp and
// messaging packages. Best-effort work (directory cache writes, webhook
// dispatch, audit records, every publish except the first invitation) is
// logged and swallowed.
package onboarding
