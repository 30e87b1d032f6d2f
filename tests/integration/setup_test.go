//go:build integration

// Package integration exercises the control plane end to end: a real
// PostgreSQL in a container, Redis via miniredis, and a stubbed identity
// provider. Docker being unavailable skips the tests, never fails them.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

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
	"github.com/platinummonkey/usher/pkg/storage"
	"github.com/platinummonkey/usher/pkg/storage/postgres"
	"github.com/platinummonkey/usher/pkg/tenant"
	"github.com/platinummonkey/usher/pkg/webhooks"
)

const (
	invitationStream     = "enterprise-invitations"
	storageRequestStream = "tenant-storage-requests"
	deletionStream       = "enterprise-deletions"
)

// stack is the fully wired control plane under test. Requests go through
// server.ServeHTTP, so every middleware in the production chain runs.
type stack struct {
	server *api.Server
	store  *postgres.Store
	idp    *fakeIdP
}

// newStack starts the backends and wires the control plane the way the
// server binary does, with operator auth in dev-bypass mode so requests
// need no bearer token.
func newStack(t *testing.T) *stack {
	t.Helper()

	ctx := context.Background()

	// Check if Docker/Podman is available
	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		t.Skip("Docker/Podman not available, skipping integration tests")
	}
	defer provider.Close()

	pgContainer, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("usher_test"),
		tcpostgres.WithUsername("usher"),
		tcpostgres.WithPassword("usher_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		// Use a fresh context so a cancelled test context cannot strand
		// the container.
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := pgContainer.Terminate(cleanupCtx); err != nil {
			t.Errorf("Failed to terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	fake := newFakeIdP(t)

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)

	storageCfg := storage.DefaultConfig()
	storageCfg.PostgresURL = connStr
	storageCfg.RedisURL = mr.Addr()
	storageCfg.AssetBackend = "filesystem"
	storageCfg.FilesystemRoot = t.TempDir()

	store, err := postgres.NewStore(storageCfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.Migrate(ctx,
		enterprise.Migrations(), sso.Migrations(), audit.Migrations(), webhooks.Migrations()))

	enterprises := enterprise.NewPostgresStore(store.Primary())
	tickets := sso.NewTicketStore(store.Primary())
	auditTrail, err := audit.NewPostgresLogger(store.Primary())
	require.NoError(t, err)
	webhookStore := webhooks.NewPostgresStore(store.Primary())

	directory := postgres.NewDirectoryCache(store.Redis(), time.Hour)
	publisher := messaging.NewRedisPublisher(store.Redis(), 1000)

	idpClient, err := idp.NewHTTPClient(idp.Config{
		BaseURL:      fake.srv.URL,
		TokenURL:     fake.srv.URL + "/oauth/token",
		ClientID:     "usher-integration",
		ClientSecret: "integration-secret",
		Audience:     fake.srv.URL + "/api/v2/",
		Timeout:      5 * time.Second,
	}, nil)
	require.NoError(t, err)

	signer, err := onboarding.NewInvitationSigner("integration-signing-secret", "https://console.usher.test", time.Hour)
	require.NoError(t, err)

	provisioner := tenant.NewProvisioner(store.Primary(), tenant.DefaultSchemaPrefix, logger)
	resolver := tenant.NewResolver(enterprises, tenant.ResolverConfig{
		SchemaPrefix: tenant.DefaultSchemaPrefix,
		CacheSize:    128,
		CacheTTL:     time.Minute,
	}, nil)

	dispatcher := webhooks.NewDispatcher(webhookStore, webhooks.DispatcherConfig{
		Retry: webhooks.DefaultRetryConfig(),
	}, quiet, nil)
	retryWorker := webhooks.NewRetryWorker(dispatcher, webhookStore, quiet)
	retryWorker.Start(ctx, 100*time.Millisecond)
	t.Cleanup(retryWorker.Stop)

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
		Logger:      quiet,
	}, onboarding.Config{
		InvitationStream:     invitationStream,
		StorageRequestStream: storageRequestStream,
		DeletionStream:       deletionStream,
		SchemaPrefix:         tenant.DefaultSchemaPrefix,
	})
	require.NoError(t, err)

	operatorAuth := middleware.NewOperatorAuth(nil, true)
	invitationAuth := middleware.NewInvitationAuth(signer)

	server := api.NewServer(api.Deps{
		Config:         config.ServerConfig{},
		Logger:         logger,
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
	})

	return &stack{server: server, store: store, idp: fake}
}

// doJSON drives one request through the full middleware chain. A nil body
// sends an empty request.
func (s *stack) doJSON(t *testing.T, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.server.ServeHTTP(w, req)
	return w
}

// doTenant drives a request with the tenant header set.
func (s *stack) doTenant(t *testing.T, method, target, tenantID string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, nil)
	req.Header.Set(middleware.TenantHeader, tenantID)
	w := httptest.NewRecorder()
	s.server.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(w.Body).Decode(out))
}

// streamPayloads returns the payload field of every entry on a stream.
func (s *stack) streamPayloads(t *testing.T, stream string) [][]byte {
	t.Helper()

	msgs, err := s.store.Redis().GetClient().XRange(context.Background(), stream, "-", "+").Result()
	require.NoError(t, err)

	payloads := make([][]byte, 0, len(msgs))
	for _, msg := range msgs {
		payload, ok := msg.Values["payload"].(string)
		require.True(t, ok, "stream entry carries no payload field")
		payloads = append(payloads, []byte(payload))
	}
	return payloads
}

// streamLen is streamPayloads without test plumbing, for Eventually
// conditions.
func (s *stack) streamLen(stream string) int {
	n, err := s.store.Redis().GetClient().XLen(context.Background(), stream).Result()
	if err != nil {
		return 0
	}
	return int(n)
}

func (s *stack) schemaExists(t *testing.T, schema string) bool {
	t.Helper()

	var exists bool
	err := s.store.Primary().QueryRow(
		`SELECT EXISTS (SELECT 1 FROM information_schema.schemata WHERE schema_name = $1)`, schema).Scan(&exists)
	require.NoError(t, err)
	return exists
}

// fakeIdP stubs the identity provider: the token endpoint plus the three
// organization calls the saga makes.
type fakeIdP struct {
	srv *httptest.Server

	mu                 sync.Mutex
	orgSeq             int
	deletedConnections []string
}

func newFakeIdP(t *testing.T) *fakeIdP {
	t.Helper()

	f := &fakeIdP{}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeIdP) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/oauth/token":
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "integration-access-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})

	case r.Method == http.MethodPost && r.URL.Path == "/api/v2/organizations":
		var req struct {
			Name string `json:"name"`
		}
		json.NewDecoder(r.Body).Decode(&req)

		f.mu.Lock()
		f.orgSeq++
		id := fmt.Sprintf("org_int_%d", f.orgSeq)
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"id": id, "name": req.Name})

	case r.Method == http.MethodPost && r.URL.Path == "/api/v2/sso-tickets":
		var req struct {
			OrganizationID string `json:"organization_id"`
		}
		json.NewDecoder(r.Body).Decode(&req)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"ticket": "https://idp.example/setup/" + req.OrganizationID})

	case r.Method == http.MethodDelete &&
		strings.HasPrefix(r.URL.Path, "/api/v2/organizations/") &&
		strings.HasSuffix(r.URL.Path, "/connection"):
		orgID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/v2/organizations/"), "/connection")

		f.mu.Lock()
		f.deletedConnections = append(f.deletedConnections, orgID)
		f.mu.Unlock()

		w.WriteHeader(http.StatusNoContent)

	default:
		http.NotFound(w, r)
	}
}

func (f *fakeIdP) deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deletedConnections...)
}
