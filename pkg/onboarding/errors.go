package onboarding

import (
	"errors"
	"fmt"

	"github.com/platinummonkey/usher/pkg/enterprise"
)

// ValidationError reports invalid or conflicting invite input. Duplicate
// domains and admin emails surface through this type as well, with
// Conflict set so transports can tell a taken value from a malformed one.
type ValidationError struct {
	Field    string
	Reason   string
	Conflict bool
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation checks if an error is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsDuplicate reports whether err is a validation failure caused by a
// uniqueness conflict rather than malformed input.
func IsDuplicate(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) && ve.Conflict
}

// StateConflictError reports a lifecycle guard failure: the enterprise is
// not in the state the operation needs. Current is the status the row
// actually had, which for racing callers is the status the winner set.
type StateConflictError struct {
	EnterpriseID string
	Current      enterprise.Status
	Required     enterprise.Status
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("enterprise %s is %s but the operation requires %s", e.EnterpriseID, e.Current, e.Required)
}

// IsStateConflict checks if an error is a StateConflictError.
func IsStateConflict(err error) bool {
	var sce *StateConflictError
	return errors.As(err, &sce)
}

// NotFoundError reports a missing resource. Soft-deleted enterprises are
// reported as missing, not as deleted.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// IsNotFound checks if an error is a NotFoundError.
func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}
