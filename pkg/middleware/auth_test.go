package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/usher/pkg/onboarding"
	"github.com/platinummonkey/usher/pkg/sso"
)

// fakeAuthenticator returns a fixed operator or error and records the raw
// tokens it was asked to verify.
type fakeAuthenticator struct {
	operator *sso.Operator
	err      error
	tokens   []string
}

func (f *fakeAuthenticator) Authenticate(ctx context.Context, rawToken string) (*sso.Operator, error) {
	f.tokens = append(f.tokens, rawToken)
	if f.err != nil {
		return nil, f.err
	}
	return f.operator, nil
}

func newTestInvitationSigner(t *testing.T) *onboarding.InvitationSigner {
	t.Helper()
	signer, err := onboarding.NewInvitationSigner("middleware-test-secret", "https://console.usher.test", time.Hour)
	if err != nil {
		t.Fatalf("Failed to create invitation signer: %v", err)
	}
	return signer
}

func TestOperatorAuth_Success(t *testing.T) {
	authenticator := &fakeAuthenticator{
		operator: &sso.Operator{Subject: "auth0|op_1", Email: "ops@usher.test"},
	}
	middleware := NewOperatorAuth(authenticator, false)

	var seen *sso.Operator
	handler := middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = OperatorFromContext(r)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/enterprises", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
	if seen == nil || seen.Subject != "auth0|op_1" {
		t.Errorf("Operator not attached to context: %+v", seen)
	}
	if len(authenticator.tokens) != 1 || authenticator.tokens[0] != "good-token" {
		t.Errorf("Authenticator saw tokens %v, want [good-token]", authenticator.tokens)
	}
}

func TestOperatorAuth_MissingHeader(t *testing.T) {
	middleware := NewOperatorAuth(&fakeAuthenticator{}, false)

	handlerCalled := false
	handler := middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/enterprises", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", rec.Code)
	}
	if handlerCalled {
		t.Error("Handler should not be called without credentials")
	}
	if !strings.Contains(rec.Body.String(), "missing authorization header") {
		t.Errorf("Unexpected body: %s", rec.Body.String())
	}
}

func TestOperatorAuth_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{name: "basic auth", header: "Basic dXNlcjpwYXNz"},
		{name: "no token", header: "Bearer"},
		{name: "lowercase scheme", header: "bearer some-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			middleware := NewOperatorAuth(&fakeAuthenticator{}, false)
			handler := middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Error("Handler should not be called")
			}))

			req := httptest.NewRequest(http.MethodGet, "/enterprises", nil)
			req.Header.Set("Authorization", tt.header)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("Expected 401, got %d", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), "invalid authorization header format") {
				t.Errorf("Unexpected body: %s", rec.Body.String())
			}
		})
	}
}

func TestOperatorAuth_InvalidToken(t *testing.T) {
	authenticator := &fakeAuthenticator{err: errors.New("signature mismatch")}
	middleware := NewOperatorAuth(authenticator, false)

	handler := middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/enterprises", nil)
	req.Header.Set("Authorization", "Bearer bad-token")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "invalid or expired token") {
		t.Errorf("Unexpected body: %s", rec.Body.String())
	}
}

func TestOperatorAuth_Disabled(t *testing.T) {
	middleware := NewOperatorAuth(nil, true)

	var seen *sso.Operator
	handler := middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = OperatorFromContext(r)
		w.WriteHeader(http.StatusOK)
	}))

	// No Authorization header at all
	req := httptest.NewRequest(http.MethodGet, "/enterprises", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 with auth disabled, got %d", rec.Code)
	}
	if seen == nil || seen.Subject != "dev-operator" {
		t.Errorf("Expected dev operator in context, got %+v", seen)
	}
}

func TestOperatorFromContext_Missing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/enterprises", nil)
	if operator := OperatorFromContext(req); operator != nil {
		t.Errorf("Expected nil operator on bare request, got %+v", operator)
	}
}

func TestInvitationAuth_QueryToken(t *testing.T) {
	signer := newTestInvitationSigner(t)
	enterpriseID := "5f0c8b1a-9d3e-4c7b-a2f6-8e1d4b7c9a30"

	token, err := signer.Sign(enterpriseID, "admin@acme.test")
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}

	middleware := NewInvitationAuth(signer)

	var claims *onboarding.InvitationClaims
	router := mux.NewRouter()
	router.Handle("/enterprises/{id}/onboard", middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims = InvitationFromContext(r)
		w.WriteHeader(http.StatusOK)
	}))).Methods(http.MethodPost)

	req := httptest.NewRequest(http.MethodPost, "/enterprises/"+enterpriseID+"/onboard?token="+token, nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if claims == nil {
		t.Fatal("Invitation claims not attached to context")
	}
	if claims.Subject != enterpriseID {
		t.Errorf("Claims subject = %s, want %s", claims.Subject, enterpriseID)
	}
	if claims.Email != "admin@acme.test" {
		t.Errorf("Claims email = %s, want admin@acme.test", claims.Email)
	}
}

func TestInvitationAuth_BearerHeader(t *testing.T) {
	signer := newTestInvitationSigner(t)
	enterpriseID := "5f0c8b1a-9d3e-4c7b-a2f6-8e1d4b7c9a30"

	token, err := signer.Sign(enterpriseID, "admin@acme.test")
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}

	middleware := NewInvitationAuth(signer)

	router := mux.NewRouter()
	router.Handle("/enterprises/{id}/onboard", middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))).Methods(http.MethodPost)

	req := httptest.NewRequest(http.MethodPost, "/enterprises/"+enterpriseID+"/onboard", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestInvitationAuth_MissingToken(t *testing.T) {
	middleware := NewInvitationAuth(newTestInvitationSigner(t))

	handler := middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodPost, "/enterprises/abc/onboard", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "missing invitation token") {
		t.Errorf("Unexpected body: %s", rec.Body.String())
	}
}

func TestInvitationAuth_InvalidToken(t *testing.T) {
	middleware := NewInvitationAuth(newTestInvitationSigner(t))

	handler := middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodPost, "/enterprises/abc/onboard?token=not-a-jwt", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "invalid or expired invitation token") {
		t.Errorf("Unexpected body: %s", rec.Body.String())
	}
}

func TestInvitationAuth_WrongSecret(t *testing.T) {
	otherSigner, err := onboarding.NewInvitationSigner("a-different-secret", "https://console.usher.test", time.Hour)
	if err != nil {
		t.Fatalf("Failed to create signer: %v", err)
	}
	token, err := otherSigner.Sign("5f0c8b1a-9d3e-4c7b-a2f6-8e1d4b7c9a30", "admin@acme.test")
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}

	middleware := NewInvitationAuth(newTestInvitationSigner(t))

	handler := middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodPost, "/enterprises/abc/onboard?token="+token, nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", rec.Code)
	}
}

func TestInvitationAuth_WrongEnterprise(t *testing.T) {
	signer := newTestInvitationSigner(t)

	// Token for one enterprise presented on another's route
	token, err := signer.Sign("5f0c8b1a-9d3e-4c7b-a2f6-8e1d4b7c9a30", "admin@acme.test")
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}

	middleware := NewInvitationAuth(signer)

	router := mux.NewRouter()
	router.Handle("/enterprises/{id}/onboard", middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Handler should not be called")
	}))).Methods(http.MethodPost)

	req := httptest.NewRequest(http.MethodPost, "/enterprises/0e4d2a8c-7b1f-4e6a-9c3d-5a8b2f7e1c40/onboard?token="+token, nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("Expected 403, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "invitation token does not match this enterprise") {
		t.Errorf("Unexpected body: %s", rec.Body.String())
	}
}

func TestInvitationFromContext_Missing(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/enterprises/abc/onboard", nil)
	if claims := InvitationFromContext(req); claims != nil {
		t.Errorf("Expected nil claims on bare request, got %+v", claims)
	}
}
