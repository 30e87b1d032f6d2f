package api

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/usher/pkg/audit"
	"github.com/platinummonkey/usher/pkg/enterprise"
	"github.com/platinummonkey/usher/pkg/httputil"
	"github.com/platinummonkey/usher/pkg/idp"
	"github.com/platinummonkey/usher/pkg/messaging"
	"github.com/platinummonkey/usher/pkg/observability"
	"github.com/platinummonkey/usher/pkg/onboarding"
	"github.com/platinummonkey/usher/pkg/webhooks"
)

// writeServiceError maps a saga or store error onto the HTTP response.
// Taken values are conflicts, not validation failures, so callers can
// retry with different input instead of fixing a malformed field.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case onboarding.IsDuplicate(err):
		httputil.WriteConflict(w, err.Error())
	case onboarding.IsValidation(err):
		httputil.WriteValidationError(w, err.Error())
	case onboarding.IsStateConflict(err):
		httputil.WriteConflict(w, err.Error())
	case onboarding.IsNotFound(err),
		errors.Is(err, enterprise.ErrNotFound),
		errors.Is(err, webhooks.ErrNotFound):
		httputil.WriteNotFoundError(w, err.Error())
	case idp.IsUpstream(err), messaging.IsPublishFailure(err):
		observability.FromContext(r.Context()).WithError(err).Error("Upstream dependency failed")
		httputil.WriteBadGateway(w, err.Error())
	default:
		observability.FromContext(r.Context()).WithError(err).Error("Request failed")
		httputil.WriteInternalError(w, err)
	}
}

// recordAudit writes an API-layer audit entry. Recording failures never
// fail the request.
func recordAudit(r *http.Request, event *audit.Event) {
	if err := audit.FromContext(r.Context()).Log(r.Context(), event); err != nil {
		observability.FromContext(r.Context()).WithError(err).Warn("Failed to record audit event")
	}
}
