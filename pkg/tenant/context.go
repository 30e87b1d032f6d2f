package tenant

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"

	"github.com/platinummonkey/usher/pkg/contextkeys"
)

const (
	// DefaultSchema is the shared schema used when no tenant is present.
	DefaultSchema = "public"
	// DefaultSchemaPrefix prefixes per-tenant schema names unless the
	// deployment configures its own.
	DefaultSchemaPrefix = "tenant_"
)

// Context identifies the tenant an operation runs against and the storage
// namespaces derived from it. A zero TenantID addresses the shared
// namespace.
type Context struct {
	// TenantID is the enterprise id the request presented, or empty for
	// the shared default tenant.
	TenantID string `json:"tenant_id,omitempty"`
	// NamespaceID is the dash-less lower-case hex form of the tenant id.
	NamespaceID string `json:"namespace_id,omitempty"`
	// Schema is the relational schema holding the tenant's rows.
	Schema string `json:"schema"`
	// DatabaseName is the tenant's document database.
	DatabaseName string `json:"database_name,omitempty"`
}

// Default returns the context for the shared namespace.
func Default() *Context {
	return &Context{Schema: DefaultSchema}
}

// IsDefault reports whether c addresses the shared namespace.
func (c *Context) IsDefault() bool {
	return c == nil || c.TenantID == ""
}

// NamespaceFor derives the namespace id for a tenant: the dash-less
// lower-case hex form of its UUID. Namespaces feed into schema and
// database identifiers, so anything that does not parse as a UUID is
// rejected here rather than quoted downstream.
func NamespaceFor(tenantID string) (string, error) {
	id, err := uuid.Parse(tenantID)
	if err != nil {
		return "", fmt.Errorf("invalid tenant id %q: %w", tenantID, err)
	}
	return hex.EncodeToString(id[:]), nil
}

// New builds the context for a tenant id. An empty schemaPrefix falls back
// to DefaultSchemaPrefix.
func New(tenantID, schemaPrefix string) (*Context, error) {
	ns, err := NamespaceFor(tenantID)
	if err != nil {
		return nil, err
	}
	if schemaPrefix == "" {
		schemaPrefix = DefaultSchemaPrefix
	}
	return &Context{
		TenantID:     tenantID,
		NamespaceID:  ns,
		Schema:       schemaPrefix + ns,
		DatabaseName: ns + "_db",
	}, nil
}

// FromContext returns the tenant carried by ctx. Requests that never went
// through tenant resolution get the shared default, never nil.
func FromContext(ctx context.Context) *Context {
	if tc, ok := ctx.Value(contextkeys.TenantKey).(*Context); ok && tc != nil {
		return tc
	}
	return Default()
}

// WithContext returns a copy of ctx carrying tc.
func WithContext(ctx context.Context, tc *Context) context.Context {
	return context.WithValue(ctx, contextkeys.TenantKey, tc)
}
