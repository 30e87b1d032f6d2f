package idp

import (
	"context"
	"errors"
	"fmt"
)

// Organization is an identity provider organization backing one enterprise.
type Organization struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Branding carries the visual identity applied to an organization and its
// SSO setup screens. All fields are optional.
type Branding struct {
	LogoURL         string   `json:"logo_url,omitempty"`
	PrimaryColor    string   `json:"primary_color,omitempty"`
	BackgroundColor string   `json:"background_color,omitempty"`
	IconURL         string   `json:"icon_url,omitempty"`
	DomainAliases   []string `json:"domain_aliases,omitempty"`
}

// Client is the management API surface the onboarding flow depends on.
type Client interface {
	CreateOrganization(ctx context.Context, name string, branding Branding) (*Organization, error)
	CreateSsoTicket(ctx context.Context, name string, branding Branding, organizationID string) (string, error)
	DeleteOrganizationConnection(ctx context.Context, organizationID string) error
}

// UpstreamError carries enough context from a failed management API call for
// an operator to decide whether to retry or resume.
type UpstreamError struct {
	Op         string
	StatusCode int
	Detail     string
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("idp %s failed with status %d: %s", e.Op, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("idp %s failed: %s", e.Op, e.Detail)
}

// IsUpstream reports whether err is a management API failure.
func IsUpstream(err error) bool {
	var u *UpstreamError
	return errors.As(err, &u)
}
