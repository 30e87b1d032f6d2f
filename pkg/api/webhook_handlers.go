package api

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/platinummonkey/usher/pkg/audit"
	"github.com/platinummonkey/usher/pkg/httputil"
	"github.com/platinummonkey/usher/pkg/observability"
	"github.com/platinummonkey/usher/pkg/webhooks"
)

// WebhookRequest is the body of POST /webhooks and PUT /webhooks/{id}.
// The secret is write-only; responses never echo it.
type WebhookRequest struct {
	URL         string   `json:"url"`
	Events      []string `json:"events"`
	Secret      string   `json:"secret"`
	Description string   `json:"description"`
	Active      *bool    `json:"active,omitempty"`
}

// WebhookDetail is a subscription with its delivery statistics.
type WebhookDetail struct {
	*webhooks.Subscription
	Stats *webhooks.DeliveryStats `json:"stats"`
}

// WebhookHandlers handles webhook subscription management.
type WebhookHandlers struct {
	store webhooks.Store

	operatorAuth func(http.Handler) http.Handler
}

// NewWebhookHandlers creates a new WebhookHandlers.
func NewWebhookHandlers(store webhooks.Store, operatorAuth func(http.Handler) http.Handler) *WebhookHandlers {
	return &WebhookHandlers{
		store:        store,
		operatorAuth: orPassthrough(operatorAuth),
	}
}

// RegisterRoutes registers webhook routes.
func (h *WebhookHandlers) RegisterRoutes(router *mux.Router) {
	operator := router.NewRoute().Subrouter()
	operator.Use(h.operatorAuth)

	operator.HandleFunc("/webhooks", h.Create).Methods("POST")
	operator.HandleFunc("/webhooks", h.List).Methods("GET")
	operator.HandleFunc("/webhooks/{id}", h.Get).Methods("GET")
	operator.HandleFunc("/webhooks/{id}", h.Update).Methods("PUT")
	operator.HandleFunc("/webhooks/{id}", h.Delete).Methods("DELETE")
	operator.HandleFunc("/webhooks/{id}/deliveries", h.ListDeliveries).Methods("GET")
}

// Create handles POST /webhooks.
func (h *WebhookHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req WebhookRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	sub := &webhooks.Subscription{
		ID:          uuid.NewString(),
		URL:         req.URL,
		Events:      req.Events,
		Secret:      req.Secret,
		Active:      active,
		Description: req.Description,
	}
	if err := sub.Validate(); err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	if err := h.store.Create(r.Context(), sub); err != nil {
		writeServiceError(w, r, err)
		return
	}

	recordAudit(r, audit.Success(r.Context(), audit.EventTypeWebhookCreated, "",
		fmt.Sprintf("webhook %s registered for %s", sub.ID, sub.URL)))

	httputil.WriteCreated(w, sub)
}

// List handles GET /webhooks.
func (h *WebhookHandlers) List(w http.ResponseWriter, r *http.Request) {
	subs, err := h.store.List(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if subs == nil {
		subs = []*webhooks.Subscription{}
	}
	httputil.WriteSuccess(w, subs)
}

// Get handles GET /webhooks/{id}. The response includes delivery
// statistics for the subscription.
func (h *WebhookHandlers) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	sub, err := h.store.Get(r.Context(), id.String())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	stats, err := h.store.GetStats(r.Context(), sub.ID)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).
			WithField("webhook_id", sub.ID).Warn("Failed to load delivery stats")
		stats = &webhooks.DeliveryStats{}
	}

	httputil.WriteSuccess(w, WebhookDetail{Subscription: sub, Stats: stats})
}

// Update handles PUT /webhooks/{id}. Only provided fields change; a
// request carrying just {"active": false} pauses delivery and touches
// nothing else.
func (h *WebhookHandlers) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	var req WebhookRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if err := validateWebhookUpdate(&req); err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	sub, err := h.store.Update(r.Context(), id.String(), &webhooks.Subscription{
		URL:         req.URL,
		Events:      req.Events,
		Secret:      req.Secret,
		Description: req.Description,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if req.Active != nil && *req.Active != sub.Active {
		sub, err = h.store.SetActive(r.Context(), id.String(), *req.Active)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
	}

	recordAudit(r, audit.Success(r.Context(), audit.EventTypeWebhookUpdated, "",
		fmt.Sprintf("webhook %s updated", sub.ID)))

	httputil.WriteSuccess(w, sub)
}

// Delete handles DELETE /webhooks/{id}. The delivery log goes with the
// subscription.
func (h *WebhookHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), id.String()); err != nil {
		writeServiceError(w, r, err)
		return
	}

	recordAudit(r, audit.Success(r.Context(), audit.EventTypeWebhookDeleted, "",
		fmt.Sprintf("webhook %s removed", id.String())))

	httputil.WriteNoContent(w)
}

// ListDeliveries handles GET /webhooks/{id}/deliveries.
func (h *WebhookHandlers) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	limit, err := httputil.ParseQueryInt(r, "limit", 0)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	if _, err := h.store.Get(r.Context(), id.String()); err != nil {
		writeServiceError(w, r, err)
		return
	}

	deliveries, err := h.store.ListDeliveries(r.Context(), id.String(), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if deliveries == nil {
		deliveries = []*webhooks.Delivery{}
	}
	httputil.WriteSuccess(w, deliveries)
}

// validateWebhookUpdate checks the fields an update actually provides.
// Empty fields keep their stored values, so only non-zero input needs to
// be well formed.
func validateWebhookUpdate(req *WebhookRequest) error {
	if req.URL != "" {
		u, err := url.Parse(req.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("webhook URL must be a valid http(s) URL")
		}
	}
	for _, event := range req.Events {
		if !webhooks.IsKnownEvent(event) {
			return fmt.Errorf("unknown event type %q", event)
		}
	}
	return nil
}
