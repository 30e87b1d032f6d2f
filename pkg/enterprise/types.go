package enterprise

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Status tracks an enterprise through the onboarding lifecycle.
type Status string

const (
	// StatusPending is a freshly created enterprise whose invitation has not
	// been issued yet.
	StatusPending Status = "pending"
	// StatusInvited means an invitation URL has been generated and published.
	StatusInvited Status = "invited"
	// StatusInitiated means onboarding has started and an identity provider
	// organization exists for the enterprise.
	StatusInitiated Status = "initiated"
	// StatusActive means onboarding completed and the enterprise is live.
	StatusActive Status = "active"
	// StatusSuspended means the enterprise is temporarily blocked.
	StatusSuspended Status = "suspended"
	// StatusDeactivated means an operator switched the enterprise off.
	StatusDeactivated Status = "deactivated"
	// StatusDeleted marks a soft-deleted enterprise. Terminal.
	StatusDeleted Status = "deleted"
)

// ValidTransitions enumerates the allowed status changes. The side branches
// (suspended, deactivated, deleted) are reachable once the invitation has
// gone out; pending rows can only become invited, and deleted rows never
// leave. The invited self-loop is what makes reinvites re-entrant.
var ValidTransitions = map[Status][]Status{
	StatusPending:     {StatusInvited},
	StatusInvited:     {StatusInvited, StatusInitiated, StatusSuspended, StatusDeactivated, StatusDeleted},
	StatusInitiated:   {StatusActive, StatusSuspended, StatusDeactivated, StatusDeleted},
	StatusActive:      {StatusSuspended, StatusDeactivated, StatusDeleted},
	StatusSuspended:   {StatusActive, StatusDeactivated, StatusDeleted},
	StatusDeactivated: {StatusActive, StatusSuspended, StatusDeleted},
	StatusDeleted:     {},
}

// Valid reports whether s is one of the known status values.
func (s Status) Valid() bool {
	_, ok := ValidTransitions[s]
	return ok
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range ValidTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Enterprise is a customer organization moving through onboarding. The
// domain is derived from the admin email at invite time and both are unique
// among live (non-deleted) enterprises.
type Enterprise struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	URL            string    `json:"url"`
	Domain         string    `json:"domain"`
	AdminEmail     string    `json:"admin_email"`
	OrganizationID *string   `json:"organization_id,omitempty"`
	Status         Status    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Admin is the designated administrator contact for an enterprise. Exactly
// one admin row exists per enterprise, created in the same transaction as
// the enterprise itself.
type Admin struct {
	ID             int64     `json:"id"`
	EnterpriseID   string    `json:"enterprise_id"`
	Email          string    `json:"email"`
	OrganizationID *string   `json:"organization_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Store is the persistence surface the onboarding flow depends on.
type Store interface {
	CreateWithAdmin(ctx context.Context, e *Enterprise) (*Admin, error)
	Get(ctx context.Context, id string) (*Enterprise, error)
	GetByDomain(ctx context.Context, domain string) (*Enterprise, error)
	GetByAdminEmail(ctx context.Context, email string) (*Enterprise, error)
	GetByOrganizationID(ctx context.Context, organizationID string) (*Enterprise, error)
	GetAdmin(ctx context.Context, enterpriseID string) (*Admin, error)
	List(ctx context.Context, opts ListOptions) ([]*Enterprise, error)
	ForceInvited(ctx context.Context, id string) (*Enterprise, error)
	MarkInitiated(ctx context.Context, id, organizationID string) (*Enterprise, error)
	UpdateStatus(ctx context.Context, id string, next Status) (*Enterprise, error)
	SoftDelete(ctx context.Context, id string) (*Enterprise, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
}

// ErrNotFound is returned by lookups that match no live enterprise row.
var ErrNotFound = errors.New("enterprise not found")

// DuplicateError reports a uniqueness violation on insert or update, mapped
// from the underlying postgres constraint.
type DuplicateError struct {
	Field string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("an enterprise with this %s already exists", e.Field)
}

// IsDuplicate reports whether err is a uniqueness violation.
func IsDuplicate(err error) bool {
	var d *DuplicateError
	return errors.As(err, &d)
}

// TransitionError reports a status change the lifecycle does not allow.
type TransitionError struct {
	ID      string
	Current Status
	Next    Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("enterprise %s cannot move from %s to %s", e.ID, e.Current, e.Next)
}

// IsInvalidTransition reports whether err is a lifecycle violation.
func IsInvalidTransition(err error) bool {
	var t *TransitionError
	return errors.As(err, &t)
}
