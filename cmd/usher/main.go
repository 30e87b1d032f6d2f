package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/usher/pkg/api"
	"github.com/platinummonkey/usher/pkg/audit"
	"github.com/platinummonkey/usher/pkg/config"
	"github.com/platinummonkey/usher/pkg/enterprise"
	"github.com/platinummonkey/usher/pkg/idp"
	"github.com/platinummonkey/usher/pkg/messaging"
	"github.com/platinummonkey/usher/pkg/middleware"
	"github.com/platinummonkey/usher/pkg/observability"
	"github.com/platinummonkey/usher/pkg/onboarding"
	"github.com/platinummonkey/usher/pkg/sso"
	"github.com/platinummonkey/usher/pkg/storage/postgres"
	"github.com/platinummonkey/usher/pkg/tenant"
	"github.com/platinummonkey/usher/pkg/webhooks"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to a YAML config overlay; environment variables apply either way")
	flag.Parse()

	cfg, err := config.LoadConfigFromFile(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	sagaLog := newSagaLogger(cfg.Observability.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Metrics registry; nil metrics disables instrumentation everywhere
	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	var providers *observability.OTelProviders
	if cfg.Observability.OTelEnabled {
		providers, err = observability.InitOTel(ctx, observability.OTelConfig{
			Enabled:        true,
			Endpoint:       cfg.Observability.OTelEndpoint,
			ServiceName:    cfg.Observability.OTelServiceName,
			ServiceVersion: cfg.Observability.OTelServiceVersion,
			Environment:    cfg.Observability.OTelEnvironment,
			Insecure:       cfg.Observability.OTelInsecure,
			SampleRatio:    cfg.Observability.OTelSampleRatio,
		}, logger)
		if err != nil {
			log.Fatalf("Failed to initialize OpenTelemetry: %v", err)
		}
	}

	// Initialize storage
	store, err := postgres.NewStore(cfg.Storage, logger)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	if err := store.Migrate(ctx, enterprise.Migrations(), sso.Migrations(), audit.Migrations(), webhooks.Migrations()); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}
	log.Printf("Storage initialized, migrations applied")

	store.Connections().StartHealthCheckRoutine(ctx, 30*time.Second)

	// Row stores share the primary handle
	enterprises := enterprise.NewPostgresStore(store.Primary())
	tickets := sso.NewTicketStore(store.Primary())
	auditTrail, err := audit.NewPostgresLogger(store.Primary())
	if err != nil {
		log.Fatalf("Failed to initialize audit log: %v", err)
	}
	webhookStore := webhooks.NewPostgresStore(store.Primary())

	directory := postgres.NewDirectoryCache(store.Redis(), cfg.Tenant.DirectoryCacheTTL)
	publisher := messaging.NewRedisPublisher(store.Redis(), cfg.Messaging.StreamMaxLen)

	idpClient, err := idp.NewHTTPClient(idp.Config{
		BaseURL:      cfg.IdP.BaseURL,
		TokenURL:     cfg.IdP.TokenURL,
		ClientID:     cfg.IdP.ClientID,
		ClientSecret: cfg.IdP.ClientSecret,
		Audience:     cfg.IdP.Audience,
		Timeout:      cfg.IdP.Timeout,
	}, metrics)
	if err != nil {
		log.Fatalf("Failed to initialize identity provider client: %v", err)
	}

	signer, err := onboarding.NewInvitationSigner(cfg.Invitation.SigningSecret, cfg.Invitation.BaseURL, cfg.Invitation.TTL)
	if err != nil {
		log.Fatalf("Failed to initialize invitation signer: %v", err)
	}

	provisioner := tenant.NewProvisioner(store.Primary(), cfg.Tenant.SchemaPrefix, logger)
	resolver := tenant.NewResolver(enterprises, tenant.ResolverConfig{
		SchemaPrefix: cfg.Tenant.SchemaPrefix,
		CacheSize:    cfg.Tenant.ResolverCacheSize,
		CacheTTL:     cfg.Tenant.ResolverCacheTTL,
	}, metrics)

	dispatcher := webhooks.NewDispatcher(webhookStore, webhooks.DispatcherConfig{
		Retry: webhooks.DefaultRetryConfig(),
	}, sagaLog, metrics)
	retryWorker := webhooks.NewRetryWorker(dispatcher, webhookStore, sagaLog)
	retryWorker.Start(ctx, time.Minute)

	saga, err := onboarding.NewService(onboarding.Deps{
		Store:       enterprises,
		Tickets:     tickets,
		IdP:         idpClient,
		Publisher:   publisher,
		Directory:   directory,
		Provisioner: provisioner,
		Signer:      signer,
		Webhooks:    dispatcher,
		Invalidator: resolver,
		Audit:       auditTrail,
		Logger:      sagaLog,
		Metrics:     metrics,
	}, onboarding.Config{
		InvitationStream:     cfg.Messaging.InvitationStream,
		StorageRequestStream: cfg.Messaging.StorageRequestStream,
		DeletionStream:       cfg.Messaging.DeletionStream,
		SchemaPrefix:         cfg.Tenant.SchemaPrefix,
	})
	if err != nil {
		log.Fatalf("Failed to initialize onboarding service: %v", err)
	}

	var authenticator sso.Authenticator
	if cfg.Auth.Disabled {
		log.Printf("WARNING: operator authentication disabled, every request runs as dev-operator")
	} else {
		authenticator, err = sso.NewOIDCAuthenticator(ctx, sso.AuthenticatorConfig{
			IssuerURL: cfg.Auth.OIDCIssuer,
			ClientID:  cfg.Auth.OIDCClientID,
		})
		if err != nil {
			log.Fatalf("Failed to initialize OIDC authenticator: %v", err)
		}
	}
	operatorAuth := middleware.NewOperatorAuth(authenticator, cfg.Auth.Disabled)
	invitationAuth := middleware.NewInvitationAuth(signer)
	rateLimit := middleware.NewDistributedRateLimitMiddleware(store.Redis())

	server := api.NewServer(api.Deps{
		Config:         cfg.Server,
		Logger:         logger,
		Metrics:        metrics,
		Onboarding:     saga,
		Enterprises:    enterprises,
		Webhooks:       webhookStore,
		Assets:         store.Assets(),
		Audit:          auditTrail,
		AuditLogger:    auditTrail,
		DB:             store.Primary(),
		Resolver:       resolver,
		Provisioner:    provisioner,
		OperatorAuth:   operatorAuth.Handler,
		InvitationAuth: invitationAuth.Handler,
		InviteLimit:    rateLimit.Handler,
	})

	var handler http.Handler = server
	if cfg.Server.RequestTimeout > 0 {
		handler = http.TimeoutHandler(handler, cfg.Server.RequestTimeout, `{"error":"request timed out"}`)
	}
	if cfg.Observability.OTelEnabled {
		handler = otelhttp.NewHandler(handler, "usher-api")
	}

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics listen on their own port so probes bypass auth
	// and rate limits
	checker := observability.NewHealthChecker(store.Primary(), store.Redis().GetClient()).
		WithIdPCheck(idpClient.Ping)
	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, checker)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: healthMux,
	}

	if metrics != nil {
		go watchEnterpriseGauge(ctx, enterprises, metrics, logger)
		go watchPoolGauges(ctx, store, metrics)
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)
	shutdown.RegisterServer("api", apiServer)
	shutdown.RegisterServer("health", healthServer)
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		// Stop background work before the backends close under it
		cancel()
		retryWorker.Stop()
		return store.Close()
	})
	if providers != nil {
		shutdown.RegisterShutdownFunc(func(sctx context.Context) error {
			return observability.ShutdownOTel(sctx, providers, logger)
		})
	}

	go func() {
		log.Printf("Starting Usher health server on %s", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Health server failed: %v", err)
		}
	}()

	go func() {
		log.Printf("Starting Usher control plane on %s", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	if err := shutdown.WaitForShutdown(); err != nil {
		log.Fatalf("Shutdown failed: %v", err)
	}
}

// newSagaLogger builds the logrus logger the saga and the webhook
// dispatcher share, at the same level as the structured logger.
func newSagaLogger(level observability.LogLevel) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{})
	if parsed, err := logrus.ParseLevel(strings.ToLower(level.String())); err == nil {
		l.SetLevel(parsed)
	}
	return l
}

// watchEnterpriseGauge refreshes the per-status enterprise gauge from the
// registry so dashboards track the fleet without polling the API.
func watchEnterpriseGauge(ctx context.Context, store enterprise.Store, metrics *observability.Metrics, logger *observability.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			counts, err := store.CountByStatus(ctx)
			if err != nil {
				logger.WithError(err).Warn("Failed to refresh enterprise gauge")
				continue
			}
			for status, count := range counts {
				metrics.EnterprisesTotal.WithLabelValues(string(status)).Set(float64(count))
			}
		}
	}
}

// watchPoolGauges samples connection pool statistics into the gauges the
// metrics endpoint serves.
func watchPoolGauges(ctx context.Context, store *postgres.Store, metrics *observability.Metrics) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			db := store.Primary().Stats()
			metrics.DBConnectionsActive.Set(float64(db.InUse))
			metrics.DBConnectionsIdle.Set(float64(db.Idle))
			metrics.DBConnectionsWaitCount.Set(float64(db.WaitCount))
			metrics.DBConnectionsWaitDuration.Set(db.WaitDuration.Seconds())

			if pool := store.Redis().GetPoolStats(); pool != nil {
				metrics.RedisConnectionsActive.Set(float64(pool.TotalConns - pool.IdleConns))
			}
		}
	}
}
