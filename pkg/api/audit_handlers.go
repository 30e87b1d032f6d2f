package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/usher/pkg/audit"
	"github.com/platinummonkey/usher/pkg/httputil"
)

// AuditHandlers serves the audit trail query endpoint.
type AuditHandlers struct {
	trail AuditTrail

	operatorAuth func(http.Handler) http.Handler
}

// NewAuditHandlers creates a new AuditHandlers.
func NewAuditHandlers(trail AuditTrail, operatorAuth func(http.Handler) http.Handler) *AuditHandlers {
	return &AuditHandlers{
		trail:        trail,
		operatorAuth: orPassthrough(operatorAuth),
	}
}

// RegisterRoutes registers audit routes.
func (h *AuditHandlers) RegisterRoutes(router *mux.Router) {
	operator := router.NewRoute().Subrouter()
	operator.Use(h.operatorAuth)
	operator.HandleFunc("/audit", h.Query).Methods("GET")
}

// Query handles GET /audit. Filters: enterprise_id, event_type (comma
// separated), status, since, until; timestamps are RFC 3339.
func (h *AuditHandlers) Query(w http.ResponseWriter, r *http.Request) {
	page, perPage, err := httputil.ParsePagination(r, defaultPageSize, maxPageSize)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	filter := audit.Filter{
		EnterpriseID: httputil.ParseQueryString(r, "enterprise_id", ""),
		Limit:        perPage,
		Offset:       (page - 1) * perPage,
	}

	if raw := httputil.ParseQueryString(r, "event_type", ""); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			filter.EventTypes = append(filter.EventTypes, audit.EventType(strings.TrimSpace(part)))
		}
	}

	if raw := httputil.ParseQueryString(r, "status", ""); raw != "" {
		status := audit.EventStatus(raw)
		if status != audit.EventStatusSuccess && status != audit.EventStatusFailure {
			httputil.WriteValidationError(w, fmt.Sprintf("unknown status %q", raw))
			return
		}
		filter.Status = &status
	}

	var ok bool
	if filter.Since, ok = parseTimeParam(w, r, "since"); !ok {
		return
	}
	if filter.Until, ok = parseTimeParam(w, r, "until"); !ok {
		return
	}

	events, err := h.trail.Query(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if events == nil {
		events = []*audit.Event{}
	}

	httputil.WriteSuccess(w, AuditQueryResponse{
		Events:  events,
		Page:    page,
		PerPage: perPage,
	})
}

func parseTimeParam(w http.ResponseWriter, r *http.Request, key string) (*time.Time, bool) {
	raw := httputil.ParseQueryString(r, key, "")
	if raw == "" {
		return nil, true
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		httputil.WriteValidationError(w, fmt.Sprintf("%s must be an RFC 3339 timestamp", key))
		return nil, false
	}
	return &ts, true
}
