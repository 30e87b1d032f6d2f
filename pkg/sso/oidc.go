package sso

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
)

// AuthenticatorConfig configures OIDC verification of operator tokens.
type AuthenticatorConfig struct {
	// IssuerURL is the OpenID Connect issuer; discovery runs against it.
	IssuerURL string
	// ClientID is the expected audience of presented tokens.
	ClientID string
}

// Validate checks the config for required fields.
func (c *AuthenticatorConfig) Validate() error {
	if c.IssuerURL == "" {
		return fmt.Errorf("issuer_url is required")
	}
	if c.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	return nil
}

// OIDCAuthenticator verifies operator bearer tokens against an OpenID
// Connect issuer discovered at startup.
type OIDCAuthenticator struct {
	config   AuthenticatorConfig
	verifier *oidc.IDTokenVerifier
}

var _ Authenticator = (*OIDCAuthenticator)(nil)

// NewOIDCAuthenticator discovers the issuer and prepares a token verifier.
func NewOIDCAuthenticator(ctx context.Context, config AuthenticatorConfig) (*OIDCAuthenticator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	provider, err := oidc.NewProvider(ctx, config.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{ClientID: config.ClientID})
	return &OIDCAuthenticator{config: config, verifier: verifier}, nil
}

// Authenticate verifies a raw bearer token and returns the operator identity
// from its claims.
func (a *OIDCAuthenticator) Authenticate(ctx context.Context, rawToken string) (*Operator, error) {
	idToken, err := a.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify token: %w", err)
	}

	var claims struct {
		Email string `json:"email"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}

	return &Operator{Subject: idToken.Subject, Email: claims.Email}, nil
}
