package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/platinummonkey/usher/pkg/audit"
	"github.com/platinummonkey/usher/pkg/contextkeys"
	"github.com/platinummonkey/usher/pkg/enterprise"
	"github.com/platinummonkey/usher/pkg/idp"
	"github.com/platinummonkey/usher/pkg/onboarding"
	"github.com/platinummonkey/usher/pkg/storage"
	"github.com/platinummonkey/usher/pkg/webhooks"
)

// mockOnboardingService implements OnboardingService with overridable
// function fields for testing.
type mockOnboardingService struct {
	inviteFunc       func(ctx context.Context, req onboarding.InviteRequest) (*onboarding.InviteResponse, error)
	reinviteFunc     func(ctx context.Context, enterpriseID string) (*onboarding.InviteResponse, error)
	onboardFunc      func(ctx context.Context, enterpriseID string, branding idp.Branding) (*onboarding.OnboardResponse, error)
	resumeFunc       func(ctx context.Context, enterpriseID string, branding idp.Branding) (*onboarding.OnboardResponse, error)
	updateStatusFunc func(ctx context.Context, enterpriseID string, next enterprise.Status) (*enterprise.Enterprise, error)
	activateFunc     func(ctx context.Context, enterpriseID string) (*enterprise.Enterprise, error)
	deleteFunc       func(ctx context.Context, enterpriseID string) (*enterprise.Enterprise, error)
	storageReadyFunc func(ctx context.Context, event onboarding.StorageReadyEvent)
}

func (m *mockOnboardingService) Invite(ctx context.Context, req onboarding.InviteRequest) (*onboarding.InviteResponse, error) {
	if m.inviteFunc != nil {
		return m.inviteFunc(ctx, req)
	}
	return &onboarding.InviteResponse{EnterpriseID: testEnterpriseID, Name: req.Name}, nil
}

func (m *mockOnboardingService) Reinvite(ctx context.Context, enterpriseID string) (*onboarding.InviteResponse, error) {
	if m.reinviteFunc != nil {
		return m.reinviteFunc(ctx, enterpriseID)
	}
	return &onboarding.InviteResponse{EnterpriseID: enterpriseID}, nil
}

func (m *mockOnboardingService) Onboard(ctx context.Context, enterpriseID string, branding idp.Branding) (*onboarding.OnboardResponse, error) {
	if m.onboardFunc != nil {
		return m.onboardFunc(ctx, enterpriseID, branding)
	}
	return &onboarding.OnboardResponse{Organization: &idp.Organization{ID: "org-1"}}, nil
}

func (m *mockOnboardingService) ResumeOnboarding(ctx context.Context, enterpriseID string, branding idp.Branding) (*onboarding.OnboardResponse, error) {
	if m.resumeFunc != nil {
		return m.resumeFunc(ctx, enterpriseID, branding)
	}
	return &onboarding.OnboardResponse{Organization: &idp.Organization{ID: "org-1"}}, nil
}

func (m *mockOnboardingService) UpdateStatus(ctx context.Context, enterpriseID string, next enterprise.Status) (*enterprise.Enterprise, error) {
	if m.updateStatusFunc != nil {
		return m.updateStatusFunc(ctx, enterpriseID, next)
	}
	ent := testEnterprise()
	ent.Status = next
	return ent, nil
}

func (m *mockOnboardingService) Activate(ctx context.Context, enterpriseID string) (*enterprise.Enterprise, error) {
	if m.activateFunc != nil {
		return m.activateFunc(ctx, enterpriseID)
	}
	ent := testEnterprise()
	ent.Status = enterprise.StatusActive
	return ent, nil
}

func (m *mockOnboardingService) Delete(ctx context.Context, enterpriseID string) (*enterprise.Enterprise, error) {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, enterpriseID)
	}
	ent := testEnterprise()
	ent.Status = enterprise.StatusDeleted
	return ent, nil
}

func (m *mockOnboardingService) NotifyTenantStorageReady(ctx context.Context, event onboarding.StorageReadyEvent) {
	if m.storageReadyFunc != nil {
		m.storageReadyFunc(ctx, event)
	}
}

// mockDirectory implements EnterpriseDirectory.
type mockDirectory struct {
	getFunc  func(ctx context.Context, id string) (*enterprise.Enterprise, error)
	listFunc func(ctx context.Context, opts enterprise.ListOptions) ([]*enterprise.Enterprise, error)
}

func (m *mockDirectory) Get(ctx context.Context, id string) (*enterprise.Enterprise, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, id)
	}
	return testEnterprise(), nil
}

func (m *mockDirectory) List(ctx context.Context, opts enterprise.ListOptions) ([]*enterprise.Enterprise, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, opts)
	}
	return []*enterprise.Enterprise{testEnterprise()}, nil
}

// mockAuditTrail implements AuditTrail.
type mockAuditTrail struct {
	queryFunc func(ctx context.Context, filter audit.Filter) ([]*audit.Event, error)
}

func (m *mockAuditTrail) Query(ctx context.Context, filter audit.Filter) ([]*audit.Event, error) {
	if m.queryFunc != nil {
		return m.queryFunc(ctx, filter)
	}
	return []*audit.Event{}, nil
}

// mockSchemaDropper implements SchemaDropper.
type mockSchemaDropper struct {
	dropFunc func(ctx context.Context, tenantID string) error
	dropped  []string
}

func (m *mockSchemaDropper) DropTenantSchema(ctx context.Context, tenantID string) error {
	m.dropped = append(m.dropped, tenantID)
	if m.dropFunc != nil {
		return m.dropFunc(ctx, tenantID)
	}
	return nil
}

// mockWebhookStore implements webhooks.Store backed by an in-memory map.
type mockWebhookStore struct {
	mu            sync.Mutex
	subscriptions map[string]*webhooks.Subscription
	deliveries    []*webhooks.Delivery
	stats         *webhooks.DeliveryStats

	createErr error
	getErr    error
	listErr   error
	updateErr error
	deleteErr error
	statsErr  error
}

func newMockWebhookStore() *mockWebhookStore {
	return &mockWebhookStore{subscriptions: make(map[string]*webhooks.Subscription)}
}

func (m *mockWebhookStore) Create(ctx context.Context, sub *webhooks.Subscription) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions[sub.ID] = sub
	return nil
}

func (m *mockWebhookStore) Get(ctx context.Context, id string) (*webhooks.Subscription, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subscriptions[id]
	if !ok {
		return nil, webhooks.ErrNotFound
	}
	return sub, nil
}

func (m *mockWebhookStore) List(ctx context.Context) ([]*webhooks.Subscription, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*webhooks.Subscription
	for _, sub := range m.subscriptions {
		out = append(out, sub)
	}
	return out, nil
}

func (m *mockWebhookStore) Update(ctx context.Context, id string, updates *webhooks.Subscription) (*webhooks.Subscription, error) {
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subscriptions[id]
	if !ok {
		return nil, webhooks.ErrNotFound
	}
	if updates.URL != "" {
		sub.URL = updates.URL
	}
	if len(updates.Events) > 0 {
		sub.Events = updates.Events
	}
	if updates.Secret != "" {
		sub.Secret = updates.Secret
	}
	if updates.Description != "" {
		sub.Description = updates.Description
	}
	sub.UpdatedAt = time.Now().UTC()
	return sub, nil
}

func (m *mockWebhookStore) SetActive(ctx context.Context, id string, active bool) (*webhooks.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subscriptions[id]
	if !ok {
		return nil, webhooks.ErrNotFound
	}
	sub.Active = active
	return sub, nil
}

func (m *mockWebhookStore) Delete(ctx context.Context, id string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subscriptions[id]; !ok {
		return webhooks.ErrNotFound
	}
	delete(m.subscriptions, id)
	return nil
}

func (m *mockWebhookStore) Matching(ctx context.Context, event string) ([]*webhooks.Subscription, error) {
	return nil, nil
}

func (m *mockWebhookStore) CreateDelivery(ctx context.Context, d *webhooks.Delivery) error {
	return nil
}

func (m *mockWebhookStore) UpdateDelivery(ctx context.Context, d *webhooks.Delivery) error {
	return nil
}

func (m *mockWebhookStore) ListDeliveries(ctx context.Context, subscriptionID string, limit int) ([]*webhooks.Delivery, error) {
	return m.deliveries, nil
}

func (m *mockWebhookStore) DueRetries(ctx context.Context, limit int) ([]*webhooks.Delivery, error) {
	return nil, nil
}

func (m *mockWebhookStore) GetStats(ctx context.Context, subscriptionID string) (*webhooks.DeliveryStats, error) {
	if m.statsErr != nil {
		return nil, m.statsErr
	}
	if m.stats != nil {
		return m.stats, nil
	}
	return &webhooks.DeliveryStats{SubscriptionID: subscriptionID}, nil
}

// mockAssetStore implements storage.AssetStore backed by an in-memory map.
type mockAssetStore struct {
	mu     sync.Mutex
	assets map[string]mockAsset

	putErr error
	getErr error
}

type mockAsset struct {
	data        []byte
	contentType string
}

func newMockAssetStore() *mockAssetStore {
	return &mockAssetStore{assets: make(map[string]mockAsset)}
}

func (m *mockAssetStore) Put(ctx context.Context, key string, content io.Reader, contentType string) error {
	if m.putErr != nil {
		return m.putErr
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assets[key] = mockAsset{data: data, contentType: contentType}
	return nil
}

func (m *mockAssetStore) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	if m.getErr != nil {
		return nil, "", m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	asset, ok := m.assets[key]
	if !ok {
		return nil, "", storage.ErrAssetNotFound
	}
	return io.NopCloser(bytes.NewReader(asset.data)), asset.contentType, nil
}

func (m *mockAssetStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.assets, key)
	return nil
}

func (m *mockAssetStore) URL(key string) string {
	return "/assets/" + key
}

func (m *mockAssetStore) HealthCheck(ctx context.Context) error {
	return nil
}

// recordingAuditLogger captures events handlers emit through the request
// context.
type recordingAuditLogger struct {
	mu     sync.Mutex
	events []*audit.Event
	logErr error
}

func (r *recordingAuditLogger) Log(ctx context.Context, event *audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.logErr
}

func (r *recordingAuditLogger) Close() error { return nil }

func (r *recordingAuditLogger) recorded() []*audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*audit.Event{}, r.events...)
}

const testEnterpriseID = "a2f1bb7e-9a7a-4c12-9d6a-0a4f5de7c101"

func testEnterprise() *enterprise.Enterprise {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &enterprise.Enterprise{
		ID:         testEnterpriseID,
		Name:       "Acme Corp",
		URL:        "https://acme.example.com",
		Domain:     "acme.example.com",
		AdminEmail: "admin@acme.example.com",
		Status:     enterprise.StatusInvited,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// newJSONRequest builds a request with a JSON body and content type set.
func newJSONRequest(method, target string, body interface{}) *http.Request {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// withRecordingAudit attaches a recording audit logger to the request the
// way audit.Middleware would in production.
func withRecordingAudit(req *http.Request, rec *recordingAuditLogger) *http.Request {
	ctx := contextkeys.WithAuditLogger(req.Context(), audit.Logger(rec))
	return req.WithContext(ctx)
}

// rawBodyRequest builds a request carrying an arbitrary body, for malformed
// payload cases.
func rawBodyRequest(method, target, body, contentType string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req
}
