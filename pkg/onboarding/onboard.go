package onboarding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/usher/pkg/audit"
	"github.com/platinummonkey/usher/pkg/enterprise"
	"github.com/platinummonkey/usher/pkg/idp"
	"github.com/platinummonkey/usher/pkg/sso"
)

// OnboardResponse is returned by Onboard and ResumeOnboarding.
type OnboardResponse struct {
	Organization *idp.Organization `json:"organization"`
	Ticket       *sso.Ticket       `json:"ticket"`
}

// Onboard runs the admin-facing onboarding saga for an invited enterprise:
// create the identity provider organization, record it locally, then issue
// and persist the SSO setup ticket.
//
// The conditional MarkInitiated is the serialization point for concurrent
// attempts. The loser of that race deletes the organization it just
// created and reports a state conflict; the winner's organization is the
// one the enterprise keeps. A ticket failure after MarkInitiated leaves
// the enterprise initiated with its organization intact, which is exactly
// the state ResumeOnboarding picks up from.
func (s *Service) Onboard(ctx context.Context, enterpriseID string, branding idp.Branding) (*OnboardResponse, error) {
	start := time.Now()

	ent, err := s.store.Get(ctx, enterpriseID)
	if err != nil {
		if errors.Is(err, enterprise.ErrNotFound) {
			s.observe("onboard", "rejected", start)
			return nil, &NotFoundError{Resource: "enterprise", ID: enterpriseID}
		}
		s.observe("onboard", "failure", start)
		return nil, fmt.Errorf("failed to load enterprise: %w", err)
	}

	if ent.Status != enterprise.StatusInvited {
		s.conflict("onboard")
		s.observe("onboard", "rejected", start)
		return nil, &StateConflictError{EnterpriseID: ent.ID, Current: ent.Status, Required: enterprise.StatusInvited}
	}

	org, err := s.idp.CreateOrganization(ctx, ent.Name, branding)
	if err != nil {
		s.record(ctx, audit.Failure(ctx, audit.EventTypeEnterpriseOnboarded, ent.ID, "organization creation failed", err))
		s.observe("onboard", "failure", start)
		return nil, fmt.Errorf("failed to create idp organization: %w", err)
	}

	ent, err = s.store.MarkInitiated(ctx, ent.ID, org.ID)
	if err != nil {
		var te *enterprise.TransitionError
		switch {
		case errors.As(err, &te):
			// Lost the race to a concurrent onboard. Our organization is
			// an orphan nothing references yet.
			if derr := s.idp.DeleteOrganizationConnection(ctx, org.ID); derr != nil {
				s.logger.WithError(derr).WithField("organization_id", org.ID).
					Warn("Failed to delete orphaned idp organization")
			}
			s.conflict("onboard")
			s.observe("onboard", "rejected", start)
			return nil, &StateConflictError{EnterpriseID: ent.ID, Current: te.Current, Required: enterprise.StatusInvited}
		case errors.Is(err, enterprise.ErrNotFound):
			s.observe("onboard", "rejected", start)
			return nil, &NotFoundError{Resource: "enterprise", ID: ent.ID}
		}
		s.observe("onboard", "failure", start)
		return nil, fmt.Errorf("failed to mark enterprise initiated: %w", err)
	}

	if s.directory != nil {
		if derr := s.directory.SetAdminOrganization(ctx, ent.AdminEmail, org.ID); derr != nil {
			s.logger.WithError(derr).WithField("enterprise_id", ent.ID).
				Warn("Failed to cache admin organization mapping")
		}
	}

	ticket, err := s.issueTicket(ctx, ent, org.ID, branding)
	if err != nil {
		s.record(ctx, audit.Failure(ctx, audit.EventTypeEnterpriseOnboarded, ent.ID, "sso ticket issuance failed", err))
		s.observe("onboard", "failure", start)
		return nil, err
	}

	s.notify(ctx, "enterprise.onboarded", ent)
	event := audit.Success(ctx, audit.EventTypeEnterpriseOnboarded, ent.ID,
		fmt.Sprintf("onboarding completed for %s", ent.Domain))
	event.Metadata["organization_id"] = org.ID
	s.record(ctx, event)
	s.observe("onboard", "success", start)

	return &OnboardResponse{Organization: org, Ticket: ticket}, nil
}

// ResumeOnboarding re-runs the ticket issuance steps for an enterprise
// whose earlier onboard failed after the organization was recorded.
// Branding is accepted again because the original submission is not
// persisted anywhere on our side.
func (s *Service) ResumeOnboarding(ctx context.Context, enterpriseID string, branding idp.Branding) (*OnboardResponse, error) {
	start := time.Now()

	ent, err := s.store.Get(ctx, enterpriseID)
	if err != nil {
		if errors.Is(err, enterprise.ErrNotFound) {
			s.observe("resume", "rejected", start)
			return nil, &NotFoundError{Resource: "enterprise", ID: enterpriseID}
		}
		s.observe("resume", "failure", start)
		return nil, fmt.Errorf("failed to load enterprise: %w", err)
	}

	if ent.Status != enterprise.StatusInitiated || ent.OrganizationID == nil {
		s.conflict("resume")
		s.observe("resume", "rejected", start)
		return nil, &StateConflictError{EnterpriseID: ent.ID, Current: ent.Status, Required: enterprise.StatusInitiated}
	}

	org := &idp.Organization{ID: *ent.OrganizationID, Name: ent.Name}

	ticket, err := s.issueTicket(ctx, ent, org.ID, branding)
	if err != nil {
		s.record(ctx, audit.Failure(ctx, audit.EventTypeEnterpriseResumed, ent.ID, "sso ticket issuance failed", err))
		s.observe("resume", "failure", start)
		return nil, err
	}

	s.record(ctx, audit.Success(ctx, audit.EventTypeEnterpriseResumed, ent.ID,
		fmt.Sprintf("onboarding resumed for %s", ent.Domain)))
	s.observe("resume", "success", start)

	return &OnboardResponse{Organization: org, Ticket: ticket}, nil
}

// issueTicket asks the IdP for an SSO setup ticket and persists it. No
// compensation on failure: the organization stays recorded so the flow
// can be resumed instead of replayed.
func (s *Service) issueTicket(ctx context.Context, ent *enterprise.Enterprise, organizationID string, branding idp.Branding) (*sso.Ticket, error) {
	ticketURL, err := s.idp.CreateSsoTicket(ctx, ent.Name, branding, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to create sso ticket: %w", err)
	}

	ticket := &sso.Ticket{
		EnterpriseID:   ent.ID,
		OrganizationID: organizationID,
		AdminEmail:     ent.AdminEmail,
		TicketURL:      ticketURL,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, fmt.Errorf("failed to persist sso ticket: %w", err)
	}

	if s.metrics != nil {
		s.metrics.SsoTicketsIssued.Inc()
	}
	return ticket, nil
}
