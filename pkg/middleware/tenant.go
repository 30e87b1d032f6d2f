package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/platinummonkey/usher/pkg/httputil"
	"github.com/platinummonkey/usher/pkg/observability"
	"github.com/platinummonkey/usher/pkg/tenant"
)

// TenantHeader selects the tenant a request operates in. Absent or empty
// means the shared public namespace.
const TenantHeader = "X-Tenant-ID"

// TenantResolver is the slice of tenant.Resolver this middleware needs.
type TenantResolver interface {
	Resolve(ctx context.Context, tenantID string) (*tenant.Context, error)
}

// TenantContext resolves the X-Tenant-ID header and attaches the resulting
// tenant context to the request. Unknown, deleted, and malformed tenant
// ids all produce the same 404 so probing cannot distinguish them.
//
// The tenant travels only on the derived request context: the parent
// context is never mutated, so whatever tenant view existed before this
// middleware is back the moment the handler returns, on success, error,
// and panic alike.
func TenantContext(resolver TenantResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tc, err := resolver.Resolve(r.Context(), r.Header.Get(TenantHeader))
			if err != nil {
				if errors.Is(err, tenant.ErrUnknownTenant) {
					httputil.WriteNotFoundError(w, "unknown tenant")
					return
				}
				observability.GetLogger(r.Context()).WithError(err).Error("Tenant resolution failed")
				httputil.WriteInternalError(w, err)
				return
			}

			ctx := tenant.WithContext(r.Context(), tc)
			if !tc.IsDefault() {
				ctx = observability.WithTenantID(ctx, tc.TenantID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
