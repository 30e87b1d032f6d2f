package audit

import (
	"net/http"
	"time"

	"github.com/platinummonkey/usher/pkg/contextkeys"
)

// Middleware attaches the audit logger and the request start time to every
// request context, so handlers can record events with FromContext.
func Middleware(logger Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := contextkeys.WithAuditLogger(r.Context(), logger)
			ctx = contextkeys.WithRequestStartTime(ctx, time.Now())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
