package onboarding

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/usher/pkg/async"
	"github.com/platinummonkey/usher/pkg/audit"
	"github.com/platinummonkey/usher/pkg/enterprise"
	"github.com/platinummonkey/usher/pkg/tenant"
)

// teardownTimeout bounds the background IdP teardown after a delete.
const teardownTimeout = 30 * time.Second

// statusEvents maps lifecycle statuses to the webhook events they announce.
// Statuses without an entry are internal transitions subscribers do not see.
var statusEvents = map[enterprise.Status]string{
	enterprise.StatusActive:    "enterprise.activated",
	enterprise.StatusSuspended: "enterprise.suspended",
	enterprise.StatusDeleted:   "enterprise.deleted",
}

// UpdateStatus applies a lifecycle transition under the store's transition
// rules. Moving to active provisions the tenant schema first so the
// namespace exists before the enterprise is reachable; the DDL is
// idempotent, so reinstating a suspended enterprise re-runs it harmlessly.
func (s *Service) UpdateStatus(ctx context.Context, enterpriseID string, next enterprise.Status) (*enterprise.Enterprise, error) {
	start := time.Now()

	if !next.Valid() {
		s.observe("update_status", "rejected", start)
		return nil, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", next)}
	}

	if next == enterprise.StatusActive {
		if _, err := s.store.Get(ctx, enterpriseID); err != nil {
			if errors.Is(err, enterprise.ErrNotFound) {
				s.observe("update_status", "rejected", start)
				return nil, &NotFoundError{Resource: "enterprise", ID: enterpriseID}
			}
			s.observe("update_status", "failure", start)
			return nil, fmt.Errorf("failed to load enterprise: %w", err)
		}
		if err := s.provisionSchema(ctx, enterpriseID); err != nil {
			s.observe("update_status", "failure", start)
			return nil, err
		}
	}

	updated, err := s.store.UpdateStatus(ctx, enterpriseID, next)
	if err != nil {
		var te *enterprise.TransitionError
		switch {
		case errors.As(err, &te):
			s.conflict("update_status")
			s.observe("update_status", "rejected", start)
			return nil, &StateConflictError{EnterpriseID: enterpriseID, Current: te.Current, Required: next}
		case errors.Is(err, enterprise.ErrNotFound):
			s.observe("update_status", "rejected", start)
			return nil, &NotFoundError{Resource: "enterprise", ID: enterpriseID}
		}
		s.observe("update_status", "failure", start)
		return nil, fmt.Errorf("failed to update enterprise status: %w", err)
	}

	if updated.Status == enterprise.StatusDeleted {
		s.revoke(updated.ID)
	}
	if event, ok := statusEvents[updated.Status]; ok {
		s.notify(ctx, event, updated)
	}
	audited := audit.Success(ctx, audit.EventTypeEnterpriseStatusChanged, updated.ID,
		fmt.Sprintf("status changed to %s", next))
	audited.Metadata["status"] = string(next)
	s.record(ctx, audited)
	s.observe("update_status", "success", start)

	return updated, nil
}

// Activate completes onboarding for an initiated enterprise: provision the
// tenant schema, then flip the status to active. The schema comes first so
// that no request can resolve the tenant before its namespace exists.
func (s *Service) Activate(ctx context.Context, enterpriseID string) (*enterprise.Enterprise, error) {
	start := time.Now()

	ent, err := s.store.Get(ctx, enterpriseID)
	if err != nil {
		if errors.Is(err, enterprise.ErrNotFound) {
			s.observe("activate", "rejected", start)
			return nil, &NotFoundError{Resource: "enterprise", ID: enterpriseID}
		}
		s.observe("activate", "failure", start)
		return nil, fmt.Errorf("failed to load enterprise: %w", err)
	}

	if ent.Status != enterprise.StatusInitiated {
		s.conflict("activate")
		s.observe("activate", "rejected", start)
		return nil, &StateConflictError{EnterpriseID: ent.ID, Current: ent.Status, Required: enterprise.StatusInitiated}
	}

	if err := s.provisionSchema(ctx, ent.ID); err != nil {
		s.record(ctx, audit.Failure(ctx, audit.EventTypeEnterpriseActivated, ent.ID, "tenant schema provisioning failed", err))
		s.observe("activate", "failure", start)
		return nil, err
	}

	updated, err := s.store.UpdateStatus(ctx, ent.ID, enterprise.StatusActive)
	if err != nil {
		var te *enterprise.TransitionError
		switch {
		case errors.As(err, &te):
			s.conflict("activate")
			s.observe("activate", "rejected", start)
			return nil, &StateConflictError{EnterpriseID: ent.ID, Current: te.Current, Required: enterprise.StatusInitiated}
		case errors.Is(err, enterprise.ErrNotFound):
			s.observe("activate", "rejected", start)
			return nil, &NotFoundError{Resource: "enterprise", ID: ent.ID}
		}
		s.observe("activate", "failure", start)
		return nil, fmt.Errorf("failed to update enterprise status: %w", err)
	}

	s.notify(ctx, "enterprise.activated", updated)
	s.record(ctx, audit.Success(ctx, audit.EventTypeEnterpriseActivated, updated.ID, "enterprise activated"))
	s.observe("activate", "success", start)

	return updated, nil
}

// Delete soft-deletes an enterprise and kicks off background teardown of
// its IdP organization plus the deletion notice. The teardown runs off the
// request context so an impatient client cannot cancel it; the soft delete
// itself is the durable record, and teardown failures only leave remote
// garbage that a later sweep can collect.
func (s *Service) Delete(ctx context.Context, enterpriseID string) (*enterprise.Enterprise, error) {
	start := time.Now()

	ent, err := s.store.Get(ctx, enterpriseID)
	if err != nil {
		if errors.Is(err, enterprise.ErrNotFound) {
			s.observe("delete", "rejected", start)
			return nil, &NotFoundError{Resource: "enterprise", ID: enterpriseID}
		}
		s.observe("delete", "failure", start)
		return nil, fmt.Errorf("failed to load enterprise: %w", err)
	}

	deleted, err := s.store.SoftDelete(ctx, ent.ID)
	if err != nil {
		var te *enterprise.TransitionError
		switch {
		case errors.As(err, &te):
			s.conflict("delete")
			s.observe("delete", "rejected", start)
			return nil, &StateConflictError{EnterpriseID: ent.ID, Current: te.Current, Required: enterprise.StatusInvited}
		case errors.Is(err, enterprise.ErrNotFound):
			s.observe("delete", "rejected", start)
			return nil, &NotFoundError{Resource: "enterprise", ID: ent.ID}
		}
		s.observe("delete", "failure", start)
		return nil, fmt.Errorf("failed to delete enterprise: %w", err)
	}

	s.revoke(deleted.ID)
	s.teardown(ctx, deleted)

	s.notify(ctx, "enterprise.deleted", deleted)
	s.record(ctx, audit.Success(ctx, audit.EventTypeEnterpriseDeleted, deleted.ID,
		fmt.Sprintf("enterprise %s deleted", deleted.Domain)))
	s.observe("delete", "success", start)

	return deleted, nil
}

// teardown asynchronously removes the IdP organization connection and
// publishes the deletion notice. Failures are logged and never retried
// here; the enterprise row is already gone from every live query.
func (s *Service) teardown(ctx context.Context, deleted *enterprise.Enterprise) {
	var orgID string
	if deleted.OrganizationID != nil {
		orgID = *deleted.OrganizationID
	}

	// Detach from the request context so client disconnects cannot cancel
	// the teardown while keeping request-scoped log fields.
	bg := context.WithoutCancel(ctx)
	async.SafeGoNoError(bg, teardownTimeout, "enterprise teardown", func(taskCtx context.Context) {
		if orgID != "" {
			if err := s.idp.DeleteOrganizationConnection(taskCtx, orgID); err != nil {
				s.logger.WithError(err).WithFields(logrus.Fields{
					"enterprise_id":   deleted.ID,
					"organization_id": orgID,
				}).Warn("Failed to tear down idp organization")
			}
		}

		payload, err := json.Marshal(DeletionNotice{
			EnterpriseID:   deleted.ID,
			Name:           deleted.Name,
			Domain:         deleted.Domain,
			OrganizationID: orgID,
			DeletedAt:      deleted.UpdatedAt,
		})
		if err != nil {
			s.logger.WithError(err).WithField("enterprise_id", deleted.ID).
				Warn("Failed to serialize deletion notice")
			return
		}
		if err := s.publish(taskCtx, s.config.DeletionStream, payload); err != nil {
			s.logger.WithError(err).WithField("enterprise_id", deleted.ID).
				Warn("Failed to publish deletion notice")
		}
	})
}

// NotifyTenantStorageReady reacts to a storage-ready event by requesting
// dedicated database provisioning for the matched enterprise. The event is
// fire-and-forget: every failure is logged and swallowed, because the
// emitter has no way to act on an error and redelivery is its own policy.
func (s *Service) NotifyTenantStorageReady(ctx context.Context, event StorageReadyEvent) {
	start := time.Now()

	if event.OrganizationID == "" {
		s.logger.Warn("Ignoring storage-ready event with no organization id")
		s.observe("storage_ready", "rejected", start)
		return
	}

	ent, err := s.store.GetByOrganizationID(ctx, event.OrganizationID)
	if err != nil {
		s.logger.WithError(err).WithField("organization_id", event.OrganizationID).
			Warn("Failed to match storage-ready event to an enterprise")
		s.observe("storage_ready", "failure", start)
		return
	}

	tc, err := tenant.New(ent.ID, s.config.SchemaPrefix)
	if err != nil {
		s.logger.WithError(err).WithField("enterprise_id", ent.ID).
			Warn("Failed to derive tenant namespace")
		s.observe("storage_ready", "failure", start)
		return
	}

	password, err := randomPassword()
	if err != nil {
		s.logger.WithError(err).WithField("enterprise_id", ent.ID).
			Warn("Failed to generate provisioning credentials")
		s.observe("storage_ready", "failure", start)
		return
	}

	payload, err := json.Marshal(StorageProvisionRequest{
		EnterpriseID: ent.ID,
		NamespaceID:  tc.NamespaceID,
		DatabaseName: tc.DatabaseName,
		SchemaName:   tc.Schema,
		Username:     "svc_" + tc.NamespaceID,
		Password:     password,
	})
	if err != nil {
		s.logger.WithError(err).WithField("enterprise_id", ent.ID).
			Warn("Failed to serialize storage provisioning request")
		s.observe("storage_ready", "failure", start)
		return
	}

	if err := s.publish(ctx, s.config.StorageRequestStream, payload); err != nil {
		s.logger.WithError(err).WithField("enterprise_id", ent.ID).
			Warn("Failed to publish storage provisioning request")
		s.observe("storage_ready", "failure", start)
		return
	}

	s.record(ctx, audit.Success(ctx, audit.EventTypeStorageRequested, ent.ID,
		fmt.Sprintf("storage provisioning requested for %s", tc.DatabaseName)))
	s.observe("storage_ready", "success", start)
}

func (s *Service) provisionSchema(ctx context.Context, enterpriseID string) error {
	tc, err := s.provisioner.CreateTenantSchema(ctx, enterpriseID)
	if err != nil {
		return fmt.Errorf("failed to provision tenant schema: %w", err)
	}
	s.logger.WithFields(logrus.Fields{
		"enterprise_id": enterpriseID,
		"schema":        tc.Schema,
	}).Info("Tenant schema ready")
	return nil
}

// randomPassword returns a credential for the provisioned database user.
// 24 random bytes, url-safe base64 so it survives connection strings.
func randomPassword() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate password: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
