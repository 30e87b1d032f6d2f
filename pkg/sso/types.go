package sso

import (
	"context"
	"time"
)

// Ticket records an SSO configuration ticket issued for an enterprise admin
// during onboarding. The ticket URL comes from the identity provider and is
// what the admin follows to set up their connection.
type Ticket struct {
	ID             int64     `json:"id"`
	EnterpriseID   string    `json:"enterprise_id"`
	OrganizationID string    `json:"organization_id"`
	AdminEmail     string    `json:"admin_email"`
	TicketURL      string    `json:"ticket_url"`
	CreatedAt      time.Time `json:"created_at"`
}

// Operator is an authenticated control-plane caller.
type Operator struct {
	Subject string `json:"subject"`
	Email   string `json:"email"`
}

// Authenticator verifies operator bearer tokens.
type Authenticator interface {
	Authenticate(ctx context.Context, rawToken string) (*Operator, error)
}
