package api

import (
	"database/sql"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/usher/pkg/audit"
	"github.com/platinummonkey/usher/pkg/config"
	"github.com/platinummonkey/usher/pkg/httputil"
	"github.com/platinummonkey/usher/pkg/middleware"
	"github.com/platinummonkey/usher/pkg/observability"
	"github.com/platinummonkey/usher/pkg/storage"
	"github.com/platinummonkey/usher/pkg/webhooks"
)

// APIPrefix is the version prefix every route lives under.
const APIPrefix = "/api/v1"

// Deps carries everything the API server wires together. Auth and rate
// limiting arrive as plain middleware so tests can drop them; nil slots
// mean the concern is absent, not broken.
type Deps struct {
	Config  config.ServerConfig
	Logger  *observability.Logger
	Metrics *observability.Metrics

	Onboarding  OnboardingService
	Enterprises EnterpriseDirectory
	Webhooks    webhooks.Store
	Assets      storage.AssetStore
	Audit       AuditTrail
	AuditLogger audit.Logger

	DB          *sql.DB
	Resolver    middleware.TenantResolver
	Provisioner SchemaDropper

	OperatorAuth   func(http.Handler) http.Handler
	InvitationAuth func(http.Handler) http.Handler
	InviteLimit    func(http.Handler) http.Handler
}

// Server is the control-plane HTTP server.
type Server struct {
	deps    Deps
	router  *mux.Router
	handler http.Handler

	enterpriseHandlers *EnterpriseHandlers
	brandingHandlers   *BrandingHandlers
	tenantHandlers     *TenantHandlers
	webhookHandlers    *WebhookHandlers
	auditHandlers      *AuditHandlers
}

// NewServer creates the API server and registers all routes.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	s := &Server{
		deps:   deps,
		router: mux.NewRouter(),
	}

	s.enterpriseHandlers = NewEnterpriseHandlers(deps.Onboarding, deps.Enterprises,
		deps.OperatorAuth, deps.InvitationAuth, deps.InviteLimit)
	s.webhookHandlers = NewWebhookHandlers(deps.Webhooks, deps.OperatorAuth)
	s.auditHandlers = NewAuditHandlers(deps.Audit, deps.OperatorAuth)
	if deps.Assets != nil {
		s.brandingHandlers = NewBrandingHandlers(deps.Assets, deps.Enterprises, deps.OperatorAuth)
	}
	if deps.DB != nil && deps.Resolver != nil {
		s.tenantHandlers = NewTenantHandlers(deps.DB, deps.Resolver, deps.Provisioner,
			deps.Enterprises, deps.OperatorAuth)
	}

	s.setupRoutes()
	s.handler = s.middlewareChain()(s.router)
	return s
}

// setupRoutes registers every handler group under the version prefix.
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix(APIPrefix).Subrouter()

	s.enterpriseHandlers.RegisterRoutes(api)
	s.webhookHandlers.RegisterRoutes(api)
	s.auditHandlers.RegisterRoutes(api)
	if s.brandingHandlers != nil {
		s.brandingHandlers.RegisterRoutes(api)
	}
	if s.tenantHandlers != nil {
		s.tenantHandlers.RegisterRoutes(api)
	}
}

// middlewareChain builds the ambient middleware stack. It wraps the router
// rather than using mux middleware so unmatched requests are logged and
// recovered too.
func (s *Server) middlewareChain() func(http.Handler) http.Handler {
	middlewares := []func(http.Handler) http.Handler{
		httputil.RequestIDMiddleware,
		injectLogger(s.deps.Logger),
		httputil.LoggingMiddleware(s.deps.Logger),
		httputil.RecoveryMiddleware(s.deps.Logger),
	}
	if len(s.deps.Config.CORSOrigins) > 0 {
		middlewares = append(middlewares, httputil.CORSMiddleware(s.deps.Config.CORSOrigins))
	}
	if s.deps.Metrics != nil {
		middlewares = append(middlewares, observability.HTTPMetricsMiddleware(s.deps.Metrics))
	}
	if s.deps.AuditLogger != nil {
		middlewares = append(middlewares, audit.Middleware(s.deps.AuditLogger))
	}
	if s.deps.Config.MaxBodyBytes > 0 {
		middlewares = append(middlewares, httputil.MaxBytesMiddleware(s.deps.Config.MaxBodyBytes))
	}
	return httputil.Chain(middlewares...)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// RouteRegistrar is an interface for types that can register routes.
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router)
}

// RegisterRoutes registers extra routes under the version prefix.
func (s *Server) RegisterRoutes(registrar RouteRegistrar) {
	registrar.RegisterRoutes(s.router.PathPrefix(APIPrefix).Subrouter())
}

// injectLogger seeds the request context with the server's logger so
// downstream code logging via the context uses the configured output.
func injectLogger(logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(observability.WithLogger(r.Context(), logger)))
		})
	}
}
