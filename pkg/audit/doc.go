// Package audit records control-plane actions to a queryable trail.
//
// Every lifecycle mutation (invite, onboard, status change, delete) lands
// here as an Event. The Logger interface keeps writers pluggable; the
// Postgres implementation is the product's trail. Recording is always
// best-effort for callers: a failed audit write is logged and never fails
// the operation that produced it.
package audit
