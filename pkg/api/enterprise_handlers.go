package api

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/usher/pkg/enterprise"
	"github.com/platinummonkey/usher/pkg/httputil"
	"github.com/platinummonkey/usher/pkg/idp"
	"github.com/platinummonkey/usher/pkg/onboarding"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// EnterpriseHandlers handles the onboarding saga and registry endpoints.
type EnterpriseHandlers struct {
	service   OnboardingService
	directory EnterpriseDirectory

	operatorAuth   func(http.Handler) http.Handler
	invitationAuth func(http.Handler) http.Handler
	inviteLimit    func(http.Handler) http.Handler
}

// NewEnterpriseHandlers creates a new EnterpriseHandlers. Nil middleware
// slots register their routes unwrapped.
func NewEnterpriseHandlers(service OnboardingService, directory EnterpriseDirectory,
	operatorAuth, invitationAuth, inviteLimit func(http.Handler) http.Handler) *EnterpriseHandlers {
	return &EnterpriseHandlers{
		service:        service,
		directory:      directory,
		operatorAuth:   orPassthrough(operatorAuth),
		invitationAuth: orPassthrough(invitationAuth),
		inviteLimit:    orPassthrough(inviteLimit),
	}
}

// RegisterRoutes registers enterprise routes.
func (h *EnterpriseHandlers) RegisterRoutes(router *mux.Router) {
	// Operator endpoints. Invites get an extra rate limit because each one
	// can fan out into IdP and broker traffic.
	operator := router.NewRoute().Subrouter()
	operator.Use(h.operatorAuth)

	invite := operator.NewRoute().Subrouter()
	invite.Use(h.inviteLimit)
	invite.HandleFunc("/enterprises/invite", h.Invite).Methods("POST")
	invite.HandleFunc("/enterprises/{id}/reinvite", h.Reinvite).Methods("POST")

	operator.HandleFunc("/enterprises", h.List).Methods("GET")
	operator.HandleFunc("/enterprises/{id}", h.Get).Methods("GET")
	operator.HandleFunc("/enterprises/{id}/resume", h.Resume).Methods("POST")
	operator.HandleFunc("/enterprises/{id}/status", h.UpdateStatus).Methods("PUT")
	operator.HandleFunc("/enterprises/{id}/activate", h.Activate).Methods("POST")
	operator.HandleFunc("/enterprises/{id}", h.Delete).Methods("DELETE")
	operator.HandleFunc("/events/storage-ready", h.StorageReady).Methods("POST")

	// The onboard call is the one endpoint the enterprise admin reaches
	// before they exist in the IdP, so it authenticates with the emailed
	// invitation token instead of a bearer token.
	invited := router.NewRoute().Subrouter()
	invited.Use(h.invitationAuth)
	invited.HandleFunc("/enterprises/{id}/onboard", h.Onboard).Methods("POST")
}

// Invite handles POST /enterprises/invite.
func (h *EnterpriseHandlers) Invite(w http.ResponseWriter, r *http.Request) {
	var req onboarding.InviteRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	resp, err := h.service.Invite(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httputil.WriteCreated(w, resp)
}

// Reinvite handles POST /enterprises/{id}/reinvite.
func (h *EnterpriseHandlers) Reinvite(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	resp, err := h.service.Reinvite(r.Context(), id.String())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, resp)
}

// Onboard handles POST /enterprises/{id}/onboard. The optional body carries
// the branding the IdP organization is created with.
func (h *EnterpriseHandlers) Onboard(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	branding, ok := parseBranding(w, r)
	if !ok {
		return
	}

	resp, err := h.service.Onboard(r.Context(), id.String(), branding)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, resp)
}

// Resume handles POST /enterprises/{id}/resume. It retries ticket creation
// for an enterprise whose onboarding stalled after the organization was
// created.
func (h *EnterpriseHandlers) Resume(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	branding, ok := parseBranding(w, r)
	if !ok {
		return
	}

	resp, err := h.service.ResumeOnboarding(r.Context(), id.String(), branding)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, resp)
}

// List handles GET /enterprises.
func (h *EnterpriseHandlers) List(w http.ResponseWriter, r *http.Request) {
	page, perPage, err := httputil.ParsePagination(r, defaultPageSize, maxPageSize)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	opts := enterprise.ListOptions{
		Limit:  perPage,
		Offset: (page - 1) * perPage,
	}
	if raw := httputil.ParseQueryString(r, "status", ""); raw != "" {
		status := enterprise.Status(raw)
		if !status.Valid() {
			httputil.WriteValidationError(w, fmt.Sprintf("unknown status %q", raw))
			return
		}
		opts.Status = status
	}

	ents, err := h.directory.List(r.Context(), opts)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, ListEnterprisesResponse{
		Enterprises: ents,
		Page:        page,
		PerPage:     perPage,
	})
}

// Get handles GET /enterprises/{id}.
func (h *EnterpriseHandlers) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	ent, err := h.directory.Get(r.Context(), id.String())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, ent)
}

// UpdateStatus handles PUT /enterprises/{id}/status.
func (h *EnterpriseHandlers) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	var req StatusUpdateRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	ent, err := h.service.UpdateStatus(r.Context(), id.String(), enterprise.Status(req.Status))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, ent)
}

// Activate handles POST /enterprises/{id}/activate.
func (h *EnterpriseHandlers) Activate(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	ent, err := h.service.Activate(r.Context(), id.String())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, ent)
}

// Delete handles DELETE /enterprises/{id}. The response carries the
// soft-deleted row so callers see the final state.
func (h *EnterpriseHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	ent, err := h.service.Delete(r.Context(), id.String())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, ent)
}

// StorageReady handles POST /events/storage-ready. The event is accepted
// and processed with swallowed failures, so the emitter always gets a 202;
// redelivery is the emitter's policy.
func (h *EnterpriseHandlers) StorageReady(w http.ResponseWriter, r *http.Request) {
	var event onboarding.StorageReadyEvent
	if !httputil.ParseJSONOrError(w, r, &event) {
		return
	}
	if event.OrganizationID == "" {
		httputil.WriteValidationError(w, "organization_id is required")
		return
	}

	h.service.NotifyTenantStorageReady(r.Context(), event)

	httputil.WriteAccepted(w, map[string]string{"status": "accepted"})
}

// parseBranding decodes the optional branding body. An empty body means
// default branding.
func parseBranding(w http.ResponseWriter, r *http.Request) (idp.Branding, bool) {
	var branding idp.Branding
	if r.Body == nil || r.ContentLength == 0 {
		return branding, true
	}
	if !httputil.ParseJSONOrError(w, r, &branding) {
		return idp.Branding{}, false
	}
	return branding, true
}

// orPassthrough substitutes a no-op for absent middleware.
func orPassthrough(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	if mw != nil {
		return mw
	}
	return func(next http.Handler) http.Handler { return next }
}
