package api

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/usher/pkg/audit"
	"github.com/platinummonkey/usher/pkg/enterprise"
	"github.com/platinummonkey/usher/pkg/httputil"
	"github.com/platinummonkey/usher/pkg/middleware"
	"github.com/platinummonkey/usher/pkg/observability"
	"github.com/platinummonkey/usher/pkg/tenant"
)

// TenantHandlers serves tenant-scoped reads and operator schema tooling.
type TenantHandlers struct {
	db          *sql.DB
	resolver    middleware.TenantResolver
	provisioner SchemaDropper
	directory   EnterpriseDirectory

	operatorAuth func(http.Handler) http.Handler
}

// NewTenantHandlers creates a new TenantHandlers.
func NewTenantHandlers(db *sql.DB, resolver middleware.TenantResolver, provisioner SchemaDropper,
	directory EnterpriseDirectory, operatorAuth func(http.Handler) http.Handler) *TenantHandlers {
	return &TenantHandlers{
		db:           db,
		resolver:     resolver,
		provisioner:  provisioner,
		directory:    directory,
		operatorAuth: orPassthrough(operatorAuth),
	}
}

// RegisterRoutes registers tenant routes.
func (h *TenantHandlers) RegisterRoutes(router *mux.Router) {
	scoped := router.NewRoute().Subrouter()
	scoped.Use(middleware.TenantContext(h.resolver))
	scoped.HandleFunc("/t/workspace", h.Workspace).Methods("GET")

	operator := router.NewRoute().Subrouter()
	operator.Use(h.operatorAuth)
	operator.HandleFunc("/tenants/{id}/schema", h.DropSchema).Methods("DELETE")
}

// WorkspaceResponse is the tenant-scoped read returned by /t/workspace.
type WorkspaceResponse struct {
	TenantID string            `json:"tenant_id"`
	Schema   string            `json:"schema"`
	Settings map[string]string `json:"settings"`
}

// Workspace handles GET /t/workspace. It reads the calling tenant's
// workspace settings over a schema-scoped connection, so the same query
// serves every tenant without naming a schema.
func (h *TenantHandlers) Workspace(w http.ResponseWriter, r *http.Request) {
	tc := tenant.FromContext(r.Context())
	if tc.IsDefault() {
		httputil.WriteNotFoundError(w, "no tenant selected")
		return
	}

	conn, release, err := tenant.ScopedConn(r.Context(), h.db)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("Failed to scope connection")
		httputil.WriteInternalError(w, err)
		return
	}
	defer release()

	rows, err := conn.QueryContext(r.Context(), "SELECT key, value FROM workspace_settings ORDER BY key")
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("Failed to read workspace settings")
		httputil.WriteInternalError(w, err)
		return
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			observability.FromContext(r.Context()).WithError(err).Error("Failed to read workspace settings")
			httputil.WriteInternalError(w, err)
			return
		}
		settings[key] = value
	}
	if err := rows.Err(); err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("Failed to read workspace settings")
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, WorkspaceResponse{
		TenantID: tc.TenantID,
		Schema:   tc.Schema,
		Settings: settings,
	})
}

// DropSchema handles DELETE /tenants/{id}/schema. Reclamation is guarded
// behind the soft delete: a live enterprise keeps its schema.
func (h *TenantHandlers) DropSchema(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	if _, err := h.directory.Get(r.Context(), id.String()); err == nil {
		httputil.WriteConflict(w, "enterprise must be deleted before its schema is reclaimed")
		return
	} else if !errors.Is(err, enterprise.ErrNotFound) {
		writeServiceError(w, r, err)
		return
	}

	if err := h.provisioner.DropTenantSchema(r.Context(), id.String()); err != nil {
		recordAudit(r, audit.Failure(r.Context(), audit.EventTypeSchemaDropped, id.String(), "schema drop failed", err))
		observability.FromContext(r.Context()).WithError(err).
			WithField("tenant_id", id.String()).Error("Failed to drop tenant schema")
		httputil.WriteInternalError(w, err)
		return
	}

	recordAudit(r, audit.Success(r.Context(), audit.EventTypeSchemaDropped, id.String(), "tenant schema dropped"))

	httputil.WriteSuccess(w, map[string]string{
		"tenant_id": id.String(),
		"status":    "dropped",
	})
}
