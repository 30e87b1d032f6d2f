package middleware

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/usher/pkg/contextkeys"
	"github.com/platinummonkey/usher/pkg/httputil"
	"github.com/platinummonkey/usher/pkg/onboarding"
	"github.com/platinummonkey/usher/pkg/sso"
)

// OperatorAuth authenticates control-plane callers with a bearer token
// verified against the configured OIDC issuer.
type OperatorAuth struct {
	authenticator sso.Authenticator
	// disabled bypasses verification for local development. Every request
	// then runs as a synthetic operator.
	disabled bool
}

// NewOperatorAuth creates the operator authentication middleware.
func NewOperatorAuth(authenticator sso.Authenticator, disabled bool) *OperatorAuth {
	return &OperatorAuth{
		authenticator: authenticator,
		disabled:      disabled,
	}
}

// Handler wraps an HTTP handler with operator authentication.
func (m *OperatorAuth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.disabled {
			ctx := contextkeys.WithOperator(r.Context(), &sso.Operator{Subject: "dev-operator"})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			httputil.WriteUnauthorized(w, "invalid authorization header format")
			return
		}

		operator, err := m.authenticator.Authenticate(r.Context(), parts[1])
		if err != nil {
			httputil.WriteUnauthorized(w, "invalid or expired token")
			return
		}

		ctx := contextkeys.WithOperator(r.Context(), operator)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OperatorFromContext returns the authenticated operator, or nil when the
// request did not pass through OperatorAuth.
func OperatorFromContext(r *http.Request) *sso.Operator {
	operator, _ := r.Context().Value(contextkeys.OperatorKey).(*sso.Operator)
	return operator
}

// InvitationAuth admits enterprise admins carrying a signed invitation
// link. The token arrives either as the `token` query parameter (the form
// the emailed link uses) or as a bearer token.
type InvitationAuth struct {
	signer *onboarding.InvitationSigner
}

// NewInvitationAuth creates the invitation-token middleware.
func NewInvitationAuth(signer *onboarding.InvitationSigner) *InvitationAuth {
	return &InvitationAuth{signer: signer}
}

// Handler wraps an HTTP handler with invitation-token authentication. When
// the route carries an {id} path variable, the token subject must match
// it: a valid token for a different enterprise is a real credential
// pointed at the wrong resource, and gets a 403 rather than a 401.
func (m *InvitationAuth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
			if len(parts) == 2 && parts[0] == "Bearer" {
				token = parts[1]
			}
		}
		if token == "" {
			httputil.WriteUnauthorized(w, "missing invitation token")
			return
		}

		claims, err := m.signer.Verify(token)
		if err != nil {
			httputil.WriteUnauthorized(w, "invalid or expired invitation token")
			return
		}

		if enterpriseID := mux.Vars(r)["id"]; enterpriseID != "" && claims.Subject != enterpriseID {
			httputil.WriteForbidden(w, "invitation token does not match this enterprise")
			return
		}

		ctx := contextkeys.WithInvitation(r.Context(), claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// InvitationFromContext returns the verified invitation claims, or nil
// when the request did not pass through InvitationAuth.
func InvitationFromContext(r *http.Request) *onboarding.InvitationClaims {
	claims, _ := r.Context().Value(contextkeys.InvitationKey).(*onboarding.InvitationClaims)
	return claims
}
