package onboarding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/usher/pkg/enterprise"
	"github.com/platinummonkey/usher/pkg/idp"
	"github.com/platinummonkey/usher/pkg/messaging"
	"github.com/platinummonkey/usher/pkg/observability"
	"github.com/platinummonkey/usher/pkg/sso"
	"github.com/platinummonkey/usher/pkg/tenant"

	"github.com/platinummonkey/usher/pkg/audit"
)

// TicketStore persists issued sso tickets.
type TicketStore interface {
	Create(ctx context.Context, t *sso.Ticket) error
}

// DirectoryCache records which IdP organization an admin belongs to.
type DirectoryCache interface {
	SetAdminOrganization(ctx context.Context, email, organizationID string) error
}

// SchemaProvisioner creates the relational namespace for a tenant.
type SchemaProvisioner interface {
	CreateTenantSchema(ctx context.Context, tenantID string) (*tenant.Context, error)
}

// WebhookNotifier fans a lifecycle event out to subscribed endpoints.
// Implementations own their own delivery guarantees; the saga treats every
// dispatch as fire-and-forget.
type WebhookNotifier interface {
	Notify(ctx context.Context, event string, payload interface{})
}

// TenantInvalidator evicts a tenant from the resolution cache. The saga
// calls it when an enterprise reaches deleted so the id stops resolving
// immediately instead of at cache expiry.
type TenantInvalidator interface {
	Invalidate(tenantID string)
}

// Config carries the saga's stream names and tenant naming.
type Config struct {
	InvitationStream     string
	StorageRequestStream string
	DeletionStream       string
	SchemaPrefix         string
}

// Deps bundles the saga's collaborators. Webhooks, Invalidator, Audit,
// Logger, and Metrics are optional; everything else is required.
type Deps struct {
	Store       enterprise.Store
	Tickets     TicketStore
	IdP         idp.Client
	Publisher   messaging.Publisher
	Directory   DirectoryCache
	Provisioner SchemaProvisioner
	Signer      *InvitationSigner
	Webhooks    WebhookNotifier
	Invalidator TenantInvalidator
	Audit       audit.Logger
	Logger      *logrus.Logger
	Metrics     *observability.Metrics
}

// Service orchestrates the enterprise onboarding saga.
type Service struct {
	store       enterprise.Store
	tickets     TicketStore
	idp         idp.Client
	publisher   messaging.Publisher
	directory   DirectoryCache
	provisioner SchemaProvisioner
	signer      *InvitationSigner
	webhooks    WebhookNotifier
	invalidator TenantInvalidator
	audit       audit.Logger
	logger      *logrus.Logger
	metrics     *observability.Metrics
	config      Config
}

// NewService validates the wiring and builds the saga service.
func NewService(deps Deps, config Config) (*Service, error) {
	switch {
	case deps.Store == nil:
		return nil, fmt.Errorf("enterprise store is required")
	case deps.Tickets == nil:
		return nil, fmt.Errorf("ticket store is required")
	case deps.IdP == nil:
		return nil, fmt.Errorf("idp client is required")
	case deps.Publisher == nil:
		return nil, fmt.Errorf("publisher is required")
	case deps.Provisioner == nil:
		return nil, fmt.Errorf("schema provisioner is required")
	case deps.Signer == nil:
		return nil, fmt.Errorf("invitation signer is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = logrus.New()
	}

	return &Service{
		store:       deps.Store,
		tickets:     deps.Tickets,
		idp:         deps.IdP,
		publisher:   deps.Publisher,
		directory:   deps.Directory,
		provisioner: deps.Provisioner,
		signer:      deps.Signer,
		webhooks:    deps.Webhooks,
		invalidator: deps.Invalidator,
		audit:       deps.Audit,
		logger:      logger,
		metrics:     deps.Metrics,
		config:      config,
	}, nil
}

// InviteRequest is the operator's input for creating an enterprise.
type InviteRequest struct {
	Name       string `json:"name"`
	AdminEmail string `json:"admin_email"`
	URL        string `json:"url"`
}

// InviteResponse is returned by Invite and Reinvite.
type InviteResponse struct {
	EnterpriseID string `json:"enterprise_id"`
	Name         string `json:"name"`
	Domain       string `json:"domain"`
	AdminEmail   string `json:"admin_email"`
	Message      string `json:"message"`
}

// Invite registers an enterprise and sends its admin the onboarding link.
//
// The enterprise and admin rows are created `pending` in one transaction,
// the signed invitation is published, and only then does the status move
// to `invited`. A publish failure is fatal to the call but the created
// rows stay: Reinvite is the recovery path, and rolling back would free
// the domain for a different registrant while the operator retries.
func (s *Service) Invite(ctx context.Context, req InviteRequest) (*InviteResponse, error) {
	start := time.Now()

	adminEmail, domain, err := s.validateInvite(req)
	if err != nil {
		s.rejectInvite(err)
		s.observe("invite", "rejected", start)
		return nil, err
	}

	// Pre-checks keep the common duplicate cases fast and give exact
	// field attribution; the partial unique indexes catch stragglers.
	if err := s.checkInviteUniqueness(ctx, adminEmail, domain); err != nil {
		s.rejectInvite(err)
		s.observe("invite", "rejected", start)
		return nil, err
	}

	ent := &enterprise.Enterprise{
		ID:         uuid.NewString(),
		Name:       req.Name,
		URL:        req.URL,
		Domain:     domain,
		AdminEmail: adminEmail,
		Status:     enterprise.StatusPending,
	}

	if _, err := s.store.CreateWithAdmin(ctx, ent); err != nil {
		var dup *enterprise.DuplicateError
		if errors.As(err, &dup) {
			verr := &ValidationError{Field: dup.Field, Reason: dup.Error(), Conflict: true}
			s.rejectInvite(verr)
			s.observe("invite", "rejected", start)
			return nil, verr
		}
		s.observe("invite", "failure", start)
		return nil, fmt.Errorf("failed to create enterprise: %w", err)
	}

	invitationURL, err := s.signer.URL(ent.ID, adminEmail)
	if err != nil {
		s.observe("invite", "failure", start)
		return nil, fmt.Errorf("failed to build invitation url: %w", err)
	}

	if err := s.publishInvitation(ctx, ent, invitationURL, false); err != nil {
		s.record(ctx, audit.Failure(ctx, audit.EventTypeEnterpriseInvited, ent.ID, "invitation publish failed", err))
		s.observe("invite", "failure", start)
		return nil, err
	}

	invited, err := s.store.ForceInvited(ctx, ent.ID)
	if err != nil {
		s.observe("invite", "failure", start)
		return nil, fmt.Errorf("failed to mark enterprise invited: %w", err)
	}

	s.notify(ctx, "enterprise.invited", InvitationNotice{
		EnterpriseID: invited.ID,
		Name:         invited.Name,
		Domain:       invited.Domain,
		AdminEmail:   invited.AdminEmail,
	})
	s.record(ctx, audit.Success(ctx, audit.EventTypeEnterpriseInvited, invited.ID,
		fmt.Sprintf("invitation sent to %s", invited.AdminEmail)))
	s.observe("invite", "success", start)

	return &InviteResponse{
		EnterpriseID: invited.ID,
		Name:         invited.Name,
		Domain:       invited.Domain,
		AdminEmail:   invited.AdminEmail,
		Message:      fmt.Sprintf("invitation sent to %s", invited.AdminEmail),
	}, nil
}

// Reinvite re-issues the onboarding link for an existing enterprise.
// Unlike Invite, a publish failure here is logged and swallowed: the
// operator asked for a resend, and forcing the status back to invited is
// the part that must not silently fail.
func (s *Service) Reinvite(ctx context.Context, enterpriseID string) (*InviteResponse, error) {
	start := time.Now()

	ent, err := s.store.Get(ctx, enterpriseID)
	if err != nil {
		if errors.Is(err, enterprise.ErrNotFound) {
			s.observe("reinvite", "rejected", start)
			return nil, &NotFoundError{Resource: "enterprise", ID: enterpriseID}
		}
		s.observe("reinvite", "failure", start)
		return nil, fmt.Errorf("failed to load enterprise: %w", err)
	}

	invitationURL, err := s.signer.URL(ent.ID, ent.AdminEmail)
	if err != nil {
		s.observe("reinvite", "failure", start)
		return nil, fmt.Errorf("failed to build invitation url: %w", err)
	}

	if err := s.publishInvitation(ctx, ent, invitationURL, true); err != nil {
		s.logger.WithError(err).WithField("enterprise_id", ent.ID).
			Warn("Failed to publish reinvitation, continuing")
	}

	invited, err := s.store.ForceInvited(ctx, ent.ID)
	if err != nil {
		var te *enterprise.TransitionError
		switch {
		case errors.As(err, &te):
			s.conflict("reinvite")
			s.observe("reinvite", "rejected", start)
			return nil, &StateConflictError{EnterpriseID: ent.ID, Current: te.Current, Required: enterprise.StatusInvited}
		case errors.Is(err, enterprise.ErrNotFound):
			s.observe("reinvite", "rejected", start)
			return nil, &NotFoundError{Resource: "enterprise", ID: ent.ID}
		}
		s.observe("reinvite", "failure", start)
		return nil, fmt.Errorf("failed to mark enterprise invited: %w", err)
	}

	s.notify(ctx, "enterprise.invited", InvitationNotice{
		EnterpriseID: invited.ID,
		Name:         invited.Name,
		Domain:       invited.Domain,
		AdminEmail:   invited.AdminEmail,
		Reinvite:     true,
	})
	s.record(ctx, audit.Success(ctx, audit.EventTypeEnterpriseReinvited, invited.ID,
		fmt.Sprintf("invitation re-sent to %s", invited.AdminEmail)))
	s.observe("reinvite", "success", start)

	return &InviteResponse{
		EnterpriseID: invited.ID,
		Name:         invited.Name,
		Domain:       invited.Domain,
		AdminEmail:   invited.AdminEmail,
		Message:      fmt.Sprintf("invitation re-sent to %s", invited.AdminEmail),
	}, nil
}

func (s *Service) validateInvite(req InviteRequest) (adminEmail, domain string, err error) {
	if strings.TrimSpace(req.Name) == "" {
		return "", "", &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if strings.TrimSpace(req.URL) == "" {
		return "", "", &ValidationError{Field: "url", Reason: "must not be empty"}
	}
	if strings.TrimSpace(req.AdminEmail) == "" {
		return "", "", &ValidationError{Field: "admin_email", Reason: "must not be empty"}
	}

	addr, err := mail.ParseAddress(req.AdminEmail)
	if err != nil {
		return "", "", &ValidationError{Field: "admin_email", Reason: "must be a valid email address"}
	}

	adminEmail = strings.ToLower(addr.Address)
	domain = adminEmail[strings.LastIndex(adminEmail, "@")+1:]
	return adminEmail, domain, nil
}

func (s *Service) checkInviteUniqueness(ctx context.Context, adminEmail, domain string) error {
	if _, err := s.store.GetByAdminEmail(ctx, adminEmail); err == nil {
		return &ValidationError{Field: "admin_email", Reason: "an enterprise with this admin email already exists", Conflict: true}
	} else if !errors.Is(err, enterprise.ErrNotFound) {
		return fmt.Errorf("failed to check admin email uniqueness: %w", err)
	}

	if _, err := s.store.GetByDomain(ctx, domain); err == nil {
		return &ValidationError{Field: "domain", Reason: "an enterprise with this domain already exists", Conflict: true}
	} else if !errors.Is(err, enterprise.ErrNotFound) {
		return fmt.Errorf("failed to check domain uniqueness: %w", err)
	}

	return nil
}

// publishInvitation serializes and publishes the invitation notice. A
// serialization failure is logged and swallowed so the invite still goes
// through; a broker failure comes back for the caller to judge.
func (s *Service) publishInvitation(ctx context.Context, ent *enterprise.Enterprise, invitationURL string, reinvite bool) error {
	payload, err := json.Marshal(InvitationNotice{
		EnterpriseID:  ent.ID,
		Name:          ent.Name,
		Domain:        ent.Domain,
		AdminEmail:    ent.AdminEmail,
		InvitationURL: invitationURL,
		Reinvite:      reinvite,
	})
	if err != nil {
		s.logger.WithError(err).WithField("enterprise_id", ent.ID).
			Warn("Failed to serialize invitation notice, skipping publish")
		return nil
	}

	return s.publish(ctx, s.config.InvitationStream, payload)
}

// publish wraps Publisher.Publish with counters.
func (s *Service) publish(ctx context.Context, stream string, payload []byte) error {
	if s.metrics != nil {
		s.metrics.PublishTotal.WithLabelValues(stream).Inc()
	}
	if err := s.publisher.Publish(ctx, stream, payload); err != nil {
		if s.metrics != nil {
			s.metrics.PublishFailuresTotal.WithLabelValues(stream).Inc()
		}
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

// notify dispatches a webhook event when a dispatcher is wired.
func (s *Service) notify(ctx context.Context, event string, payload interface{}) {
	if s.webhooks == nil {
		return
	}
	s.webhooks.Notify(ctx, event, payload)
}

// revoke evicts the tenant from the resolver cache when one is wired.
func (s *Service) revoke(tenantID string) {
	if s.invalidator == nil {
		return
	}
	s.invalidator.Invalidate(tenantID)
}

// record appends an audit entry when a trail is wired. Audit failures are
// logged and never surface.
func (s *Service) record(ctx context.Context, event *audit.Event) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event); err != nil {
		s.logger.WithError(err).WithField("event_type", string(event.EventType)).
			Warn("Failed to record audit event")
	}
}

func (s *Service) observe(operation, outcome string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.OnboardingOperationsTotal.WithLabelValues(operation, outcome).Inc()
	s.metrics.OnboardingOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (s *Service) conflict(operation string) {
	if s.metrics == nil {
		return
	}
	s.metrics.OnboardingStateConflicts.WithLabelValues(operation).Inc()
}

func (s *Service) rejectInvite(err error) {
	if s.metrics == nil {
		return
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		s.metrics.InvitationsRejected.WithLabelValues(ve.Field).Inc()
	}
}
