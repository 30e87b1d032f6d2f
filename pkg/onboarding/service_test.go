package onboarding

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/usher/pkg/audit"
	"github.com/platinummonkey/usher/pkg/enterprise"
	"github.com/platinummonkey/usher/pkg/messaging"
	"github.com/platinummonkey/usher/pkg/observability"
)

func TestNewService_RequiredDeps(t *testing.T) {
	f := newFixture(t)

	base := Deps{
		Store:       f.store,
		Tickets:     f.tickets,
		IdP:         f.idp,
		Publisher:   f.publisher,
		Provisioner: f.prov,
		Signer:      f.svc.signer,
	}

	cases := []struct {
		name   string
		mutate func(*Deps)
		want   string
	}{
		{"store", func(d *Deps) { d.Store = nil }, "enterprise store is required"},
		{"tickets", func(d *Deps) { d.Tickets = nil }, "ticket store is required"},
		{"idp", func(d *Deps) { d.IdP = nil }, "idp client is required"},
		{"publisher", func(d *Deps) { d.Publisher = nil }, "publisher is required"},
		{"provisioner", func(d *Deps) { d.Provisioner = nil }, "schema provisioner is required"},
		{"signer", func(d *Deps) { d.Signer = nil }, "invitation signer is required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			deps := base
			tc.mutate(&deps)
			_, err := NewService(deps, Config{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}

	// The optional collaborators may all be absent.
	svc, err := NewService(base, Config{})
	require.NoError(t, err)
	assert.NotNil(t, svc.logger)
}

func TestInvite(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svc.Invite(context.Background(), InviteRequest{
		Name:       "Acme Rockets",
		AdminEmail: "Admin@ACME.test",
		URL:        "https://acme.test",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.EnterpriseID)
	assert.Equal(t, "Acme Rockets", resp.Name)
	assert.Equal(t, "acme.test", resp.Domain)
	assert.Equal(t, "admin@acme.test", resp.AdminEmail)
	assert.Equal(t, "invitation sent to admin@acme.test", resp.Message)

	row := f.store.current(resp.EnterpriseID)
	require.NotNil(t, row)
	assert.Equal(t, enterprise.StatusInvited, row.Status)

	msgs := f.publisher.published()
	require.Len(t, msgs, 1)
	assert.Equal(t, "enterprise-invitations", msgs[0].Stream)

	var notice InvitationNotice
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &notice))
	assert.Equal(t, resp.EnterpriseID, notice.EnterpriseID)
	assert.Equal(t, "admin@acme.test", notice.AdminEmail)
	assert.False(t, notice.Reinvite)
	assert.True(t, strings.HasPrefix(notice.InvitationURL, "https://console.usher.test/onboard?token="),
		"invitation url %q", notice.InvitationURL)

	assert.Equal(t, []string{"enterprise.invited"}, f.notifier.names())
	require.Len(t, f.audit.byType(audit.EventTypeEnterpriseInvited), 1)
	assert.Equal(t, audit.EventStatusSuccess, f.audit.byType(audit.EventTypeEnterpriseInvited)[0].Status)
}

func TestInvite_Validation(t *testing.T) {
	cases := []struct {
		name  string
		req   InviteRequest
		field string
	}{
		{"empty name", InviteRequest{AdminEmail: "a@b.test", URL: "https://b.test"}, "name"},
		{"empty url", InviteRequest{Name: "B", AdminEmail: "a@b.test"}, "url"},
		{"empty email", InviteRequest{Name: "B", URL: "https://b.test"}, "admin_email"},
		{"malformed email", InviteRequest{Name: "B", URL: "https://b.test", AdminEmail: "not-an-email"}, "admin_email"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.Invite(context.Background(), tc.req)
			require.Error(t, err)
			assert.True(t, IsValidation(err))

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
			assert.Zero(t, f.store.calls("CreateWithAdmin"))
		})
	}
}

func TestInvite_DuplicatePreChecks(t *testing.T) {
	f := newFixture(t, testEnterprise(enterprise.StatusActive))

	_, err := f.svc.Invite(context.Background(), InviteRequest{
		Name: "Other", AdminEmail: "admin@acme.test", URL: "https://other.test",
	})
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "admin_email", verr.Field)

	_, err = f.svc.Invite(context.Background(), InviteRequest{
		Name: "Other", AdminEmail: "someone.else@acme.test", URL: "https://other.test",
	})
	require.Error(t, err)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "domain", verr.Field)

	assert.Zero(t, f.store.calls("CreateWithAdmin"))
}

func TestInvite_DuplicateFromInsert(t *testing.T) {
	// Pre-checks race with concurrent invites; the unique index is the
	// backstop and its violation still surfaces as a validation error.
	f := newFixture(t)
	f.store.failOn("CreateWithAdmin", &enterprise.DuplicateError{Field: "domain"})

	_, err := f.svc.Invite(context.Background(), InviteRequest{
		Name: "Acme", AdminEmail: "admin@acme.test", URL: "https://acme.test",
	})
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestInvite_PublishFailureKeepsRows(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = &messaging.PublishError{Stream: "enterprise-invitations", Err: errors.New("broker down")}

	_, err := f.svc.Invite(context.Background(), InviteRequest{
		Name: "Acme", AdminEmail: "admin@acme.test", URL: "https://acme.test",
	})
	require.Error(t, err)

	var perr *messaging.PublishError
	assert.ErrorAs(t, err, &perr)

	// The created rows stay pending for a later reinvite rather than
	// rolling back and freeing the domain.
	created, lookupErr := f.store.GetByDomain(context.Background(), "acme.test")
	require.NoError(t, lookupErr)
	assert.Equal(t, enterprise.StatusPending, created.Status)
	assert.Zero(t, f.store.calls("ForceInvited"))
	assert.Empty(t, f.notifier.names())
}

func TestReinvite(t *testing.T) {
	f := newFixture(t, testEnterprise(enterprise.StatusInvited))

	resp, err := f.svc.Reinvite(context.Background(), testEnterpriseID)
	require.NoError(t, err)
	assert.Equal(t, "invitation re-sent to admin@acme.test", resp.Message)

	msgs := f.publisher.published()
	require.Len(t, msgs, 1)
	var notice InvitationNotice
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &notice))
	assert.True(t, notice.Reinvite)

	require.Len(t, f.audit.byType(audit.EventTypeEnterpriseReinvited), 1)
}

func TestReinvite_RecoversPendingInvite(t *testing.T) {
	// A row stranded in pending by an earlier publish failure goes out
	// on the next reinvite.
	f := newFixture(t, testEnterprise(enterprise.StatusPending))

	resp, err := f.svc.Reinvite(context.Background(), testEnterpriseID)
	require.NoError(t, err)
	assert.Equal(t, enterprise.StatusInvited, f.store.current(resp.EnterpriseID).Status)
}

func TestReinvite_NotFound(t *testing.T) {
	f := newFixture(t, testEnterprise(enterprise.StatusDeleted))

	_, err := f.svc.Reinvite(context.Background(), testEnterpriseID)
	assert.True(t, IsNotFound(err), "deleted enterprises look absent: %v", err)

	_, err = f.svc.Reinvite(context.Background(), "1e7c9a50-0000-0000-0000-000000000000")
	assert.True(t, IsNotFound(err))
}

func TestReinvite_PublishFailureSwallowed(t *testing.T) {
	f := newFixture(t, testEnterprise(enterprise.StatusInvited))
	f.publisher.err = errors.New("broker down")

	resp, err := f.svc.Reinvite(context.Background(), testEnterpriseID)
	require.NoError(t, err)
	assert.Equal(t, enterprise.StatusInvited, f.store.current(resp.EnterpriseID).Status)
}

func TestReinvite_StateConflict(t *testing.T) {
	f := newFixture(t, testEnterprise(enterprise.StatusInvited))
	f.store.failOn("ForceInvited", &enterprise.TransitionError{
		ID: testEnterpriseID, Current: enterprise.StatusDeleted, Next: enterprise.StatusInvited,
	})

	_, err := f.svc.Reinvite(context.Background(), testEnterpriseID)
	require.Error(t, err)

	var conflict *StateConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, enterprise.StatusDeleted, conflict.Current)
	assert.Equal(t, enterprise.StatusInvited, conflict.Required)
}

func TestInvite_Metrics(t *testing.T) {
	f := newFixture(t)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	f.svc.metrics = metrics

	_, err := f.svc.Invite(context.Background(), InviteRequest{
		Name: "Acme", AdminEmail: "admin@acme.test", URL: "https://acme.test",
	})
	require.NoError(t, err)

	_, err = f.svc.Invite(context.Background(), InviteRequest{Name: "Acme"})
	require.Error(t, err)

	assert.Equal(t, float64(1),
		testutil.ToFloat64(metrics.OnboardingOperationsTotal.WithLabelValues("invite", "success")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(metrics.OnboardingOperationsTotal.WithLabelValues("invite", "rejected")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(metrics.InvitationsRejected.WithLabelValues("url")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(metrics.PublishTotal.WithLabelValues("enterprise-invitations")))
}
