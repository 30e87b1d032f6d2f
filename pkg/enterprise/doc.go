// Package enterprise defines the enterprise and admin records at the core of
// customer onboarding, the status lifecycle they move through, and the
// postgres store that persists them.
//
// Every status change goes through a guarded UPDATE that re-checks the
// current status in the statement itself, so two racing callers can never
// both win a transition. Deletion is always soft: the row stays for history,
// and partial unique indexes release the domain and admin email for reuse.
package enterprise
