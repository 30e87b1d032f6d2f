package onboarding

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultInvitationTTL bounds how long an invitation link stays valid
// unless configured otherwise.
const DefaultInvitationTTL = 72 * time.Hour

// InvitationClaims are the claims carried by a signed invitation token.
// Subject is the invited enterprise id; Email is the admin the invitation
// was addressed to.
type InvitationClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// InvitationSigner issues and verifies the signed onboarding links sent to
// enterprise admins.
type InvitationSigner struct {
	secret  []byte
	baseURL string
	ttl     time.Duration
}

// NewInvitationSigner builds a signer. baseURL is the public onboarding
// page the token is appended to; ttl zero or negative falls back to
// DefaultInvitationTTL.
func NewInvitationSigner(secret, baseURL string, ttl time.Duration) (*InvitationSigner, error) {
	if secret == "" {
		return nil, fmt.Errorf("signing secret is required")
	}
	if baseURL == "" {
		return nil, fmt.Errorf("invitation base URL is required")
	}
	if ttl <= 0 {
		ttl = DefaultInvitationTTL
	}
	return &InvitationSigner{
		secret:  []byte(secret),
		baseURL: strings.TrimRight(baseURL, "/"),
		ttl:     ttl,
	}, nil
}

// Sign issues a token binding the enterprise id and admin email. Each
// token gets its own jti so reissued invitations stay distinguishable.
func (s *InvitationSigner) Sign(enterpriseID, email string) (string, error) {
	now := time.Now()
	claims := &InvitationClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   enterpriseID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign invitation token: %w", err)
	}
	return signed, nil
}

// Verify parses a token and returns its claims. Expired, tampered, or
// foreign-algorithm tokens fail.
func (s *InvitationSigner) Verify(rawToken string) (*InvitationClaims, error) {
	claims := &InvitationClaims{}
	_, err := jwt.ParseWithClaims(rawToken, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, fmt.Errorf("failed to verify invitation token: %w", err)
	}
	return claims, nil
}

// URL builds the signed invitation link for an enterprise admin.
func (s *InvitationSigner) URL(enterpriseID, email string) (string, error) {
	token, err := s.Sign(enterpriseID, email)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/onboard?token=%s", s.baseURL, url.QueryEscape(token)), nil
}
