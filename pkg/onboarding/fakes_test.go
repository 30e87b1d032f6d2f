package onboarding

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/usher/pkg/audit"
	"github.com/platinummonkey/usher/pkg/enterprise"
	"github.com/platinummonkey/usher/pkg/idp"
	"github.com/platinummonkey/usher/pkg/sso"
	"github.com/platinummonkey/usher/pkg/tenant"
)

const (
	testEnterpriseID = "6b9f0d4e-2a71-4c3b-8e5f-9d1a7c2b4e60"
	testOrgID        = "org_2f8XkQ"
)

func testEnterprise(status enterprise.Status) *enterprise.Enterprise {
	e := &enterprise.Enterprise{
		ID:         testEnterpriseID,
		Name:       "Acme Rockets",
		URL:        "https://acme.test",
		Domain:     "acme.test",
		AdminEmail: "admin@acme.test",
		Status:     status,
		CreatedAt:  time.Now().UTC().Add(-time.Hour),
		UpdatedAt:  time.Now().UTC(),
	}
	if status == enterprise.StatusInitiated || status == enterprise.StatusActive ||
		status == enterprise.StatusSuspended || status == enterprise.StatusDeactivated {
		orgID := testOrgID
		e.OrganizationID = &orgID
	}
	return e
}

// memStore is an in-memory enterprise.Store that mirrors the postgres
// store's contract: lookups only see live rows and transitions follow
// ValidTransitions. Individual methods can be forced to fail.
type memStore struct {
	mu   sync.Mutex
	rows map[string]*enterprise.Enterprise
	fail map[string]error
	hits map[string]int
}

func newMemStore(seed ...*enterprise.Enterprise) *memStore {
	s := &memStore{
		rows: map[string]*enterprise.Enterprise{},
		fail: map[string]error{},
		hits: map[string]int{},
	}
	for _, e := range seed {
		cp := *e
		s.rows[e.ID] = &cp
	}
	return s
}

func (s *memStore) failOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[method] = err
}

func (s *memStore) calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[method]
}

// current returns the stored row regardless of status, for assertions.
func (s *memStore) current(id string) *enterprise.Enterprise {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.rows[id]; ok {
		cp := *e
		return &cp
	}
	return nil
}

func (s *memStore) step(method string) error {
	s.hits[method]++
	return s.fail[method]
}

func (s *memStore) CreateWithAdmin(_ context.Context, e *enterprise.Enterprise) (*enterprise.Admin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.step("CreateWithAdmin"); err != nil {
		return nil, err
	}
	for _, row := range s.rows {
		if row.Status == enterprise.StatusDeleted {
			continue
		}
		if row.AdminEmail == e.AdminEmail {
			return nil, &enterprise.DuplicateError{Field: "admin email"}
		}
		if row.Domain == e.Domain {
			return nil, &enterprise.DuplicateError{Field: "domain"}
		}
	}
	cp := *e
	cp.CreatedAt = time.Now().UTC()
	cp.UpdatedAt = cp.CreatedAt
	s.rows[e.ID] = &cp
	return &enterprise.Admin{ID: 1, EnterpriseID: e.ID, Email: e.AdminEmail}, nil
}

func (s *memStore) live(match func(*enterprise.Enterprise) bool) (*enterprise.Enterprise, error) {
	for _, row := range s.rows {
		if row.Status != enterprise.StatusDeleted && match(row) {
			cp := *row
			return &cp, nil
		}
	}
	return nil, enterprise.ErrNotFound
}

func (s *memStore) Get(_ context.Context, id string) (*enterprise.Enterprise, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.step("Get"); err != nil {
		return nil, err
	}
	return s.live(func(e *enterprise.Enterprise) bool { return e.ID == id })
}

func (s *memStore) GetByDomain(_ context.Context, domain string) (*enterprise.Enterprise, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.step("GetByDomain"); err != nil {
		return nil, err
	}
	return s.live(func(e *enterprise.Enterprise) bool { return e.Domain == domain })
}

func (s *memStore) GetByAdminEmail(_ context.Context, email string) (*enterprise.Enterprise, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.step("GetByAdminEmail"); err != nil {
		return nil, err
	}
	return s.live(func(e *enterprise.Enterprise) bool { return e.AdminEmail == email })
}

func (s *memStore) GetByOrganizationID(_ context.Context, organizationID string) (*enterprise.Enterprise, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.step("GetByOrganizationID"); err != nil {
		return nil, err
	}
	return s.live(func(e *enterprise.Enterprise) bool {
		return e.OrganizationID != nil && *e.OrganizationID == organizationID
	})
}

func (s *memStore) GetAdmin(_ context.Context, enterpriseID string) (*enterprise.Admin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.step("GetAdmin"); err != nil {
		return nil, err
	}
	row, err := s.live(func(e *enterprise.Enterprise) bool { return e.ID == enterpriseID })
	if err != nil {
		return nil, err
	}
	return &enterprise.Admin{ID: 1, EnterpriseID: row.ID, Email: row.AdminEmail, OrganizationID: row.OrganizationID}, nil
}

func (s *memStore) List(_ context.Context, opts enterprise.ListOptions) ([]*enterprise.Enterprise, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.step("List"); err != nil {
		return nil, err
	}
	var out []*enterprise.Enterprise
	for _, row := range s.rows {
		if row.Status == enterprise.StatusDeleted {
			continue
		}
		if opts.Status != "" && row.Status != opts.Status {
			continue
		}
		cp := *row
		out = append(out, &cp)
	}
	return out, nil
}

func (s *memStore) ForceInvited(_ context.Context, id string) (*enterprise.Enterprise, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.step("ForceInvited"); err != nil {
		return nil, err
	}
	row, ok := s.rows[id]
	if !ok || row.Status == enterprise.StatusDeleted {
		if ok {
			return nil, &enterprise.TransitionError{ID: id, Current: row.Status, Next: enterprise.StatusInvited}
		}
		return nil, enterprise.ErrNotFound
	}
	row.Status = enterprise.StatusInvited
	row.UpdatedAt = time.Now().UTC()
	cp := *row
	return &cp, nil
}

func (s *memStore) MarkInitiated(_ context.Context, id, organizationID string) (*enterprise.Enterprise, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.step("MarkInitiated"); err != nil {
		return nil, err
	}
	row, ok := s.rows[id]
	if !ok {
		return nil, enterprise.ErrNotFound
	}
	if row.Status != enterprise.StatusInvited {
		return nil, &enterprise.TransitionError{ID: id, Current: row.Status, Next: enterprise.StatusInitiated}
	}
	row.Status = enterprise.StatusInitiated
	row.OrganizationID = &organizationID
	row.UpdatedAt = time.Now().UTC()
	cp := *row
	return &cp, nil
}

func (s *memStore) UpdateStatus(_ context.Context, id string, next enterprise.Status) (*enterprise.Enterprise, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.step("UpdateStatus"); err != nil {
		return nil, err
	}
	row, ok := s.rows[id]
	if !ok || row.Status == enterprise.StatusDeleted {
		return nil, enterprise.ErrNotFound
	}
	if !row.Status.CanTransitionTo(next) {
		return nil, &enterprise.TransitionError{ID: id, Current: row.Status, Next: next}
	}
	row.Status = next
	row.UpdatedAt = time.Now().UTC()
	cp := *row
	return &cp, nil
}

func (s *memStore) SoftDelete(_ context.Context, id string) (*enterprise.Enterprise, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.step("SoftDelete"); err != nil {
		return nil, err
	}
	row, ok := s.rows[id]
	if !ok || row.Status == enterprise.StatusDeleted {
		return nil, enterprise.ErrNotFound
	}
	if !row.Status.CanTransitionTo(enterprise.StatusDeleted) {
		return nil, &enterprise.TransitionError{ID: id, Current: row.Status, Next: enterprise.StatusDeleted}
	}
	row.Status = enterprise.StatusDeleted
	row.UpdatedAt = time.Now().UTC()
	cp := *row
	return &cp, nil
}

func (s *memStore) CountByStatus(_ context.Context) (map[enterprise.Status]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.step("CountByStatus"); err != nil {
		return nil, err
	}
	out := map[enterprise.Status]int{}
	for _, row := range s.rows {
		out[row.Status]++
	}
	return out, nil
}

type fakeIdP struct {
	mu        sync.Mutex
	orgErr    error
	ticketErr error
	deleteErr error
	orgSeq    int
	created   []string
	deleted   []string
	tickets   []string
}

func (f *fakeIdP) CreateOrganization(_ context.Context, name string, _ idp.Branding) (*idp.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.orgErr != nil {
		return nil, f.orgErr
	}
	f.orgSeq++
	id := fmt.Sprintf("org_test%d", f.orgSeq)
	f.created = append(f.created, id)
	return &idp.Organization{ID: id, Name: name}, nil
}

func (f *fakeIdP) CreateSsoTicket(_ context.Context, _ string, _ idp.Branding, organizationID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ticketErr != nil {
		return "", f.ticketErr
	}
	url := "https://idp.test/setup/" + organizationID
	f.tickets = append(f.tickets, url)
	return url, nil
}

func (f *fakeIdP) DeleteOrganizationConnection(_ context.Context, organizationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, organizationID)
	return f.deleteErr
}

func (f *fakeIdP) deletedOrgs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

type publishedMessage struct {
	Stream  string
	Payload []byte
}

type fakePublisher struct {
	mu       sync.Mutex
	err      error
	messages []publishedMessage
}

func (f *fakePublisher) Publish(_ context.Context, stream string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, publishedMessage{Stream: stream, Payload: payload})
	return nil
}

func (f *fakePublisher) published() []publishedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]publishedMessage(nil), f.messages...)
}

type fakeTickets struct {
	mu      sync.Mutex
	err     error
	created []*sso.Ticket
}

func (f *fakeTickets) Create(_ context.Context, t *sso.Ticket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	cp := *t
	f.created = append(f.created, &cp)
	return nil
}

type fakeDirectory struct {
	mu      sync.Mutex
	err     error
	entries map[string]string
}

func (f *fakeDirectory) SetAdminOrganization(_ context.Context, email, organizationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.entries == nil {
		f.entries = map[string]string{}
	}
	f.entries[email] = organizationID
	return nil
}

type fakeProvisioner struct {
	mu          sync.Mutex
	err         error
	provisioned []string
}

func (f *fakeProvisioner) CreateTenantSchema(_ context.Context, tenantID string) (*tenant.Context, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	tc, err := tenant.New(tenantID, tenant.DefaultSchemaPrefix)
	if err != nil {
		return nil, err
	}
	f.provisioned = append(f.provisioned, tenantID)
	return tc, nil
}

type notification struct {
	Event   string
	Payload interface{}
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []notification
}

func (f *fakeNotifier) Notify(_ context.Context, event string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, notification{Event: event, Payload: payload})
}

func (f *fakeNotifier) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, n := range f.events {
		out[i] = n.Event
	}
	return out
}

type fakeInvalidator struct {
	mu      sync.Mutex
	revoked []string
}

func (f *fakeInvalidator) Invalidate(tenantID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = append(f.revoked, tenantID)
}

func (f *fakeInvalidator) invalidated() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.revoked...)
}

type fakeAudit struct {
	mu     sync.Mutex
	err    error
	events []*audit.Event
}

func (f *fakeAudit) Log(_ context.Context, event *audit.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeAudit) Close() error { return nil }

func (f *fakeAudit) byType(eventType audit.EventType) []*audit.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*audit.Event
	for _, e := range f.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	store       *memStore
	idp         *fakeIdP
	publisher   *fakePublisher
	tickets     *fakeTickets
	directory   *fakeDirectory
	prov        *fakeProvisioner
	notifier    *fakeNotifier
	invalidator *fakeInvalidator
	audit       *fakeAudit
	svc         *Service
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newFixture(t *testing.T, seed ...*enterprise.Enterprise) *fixture {
	t.Helper()

	f := &fixture{
		store:       newMemStore(seed...),
		idp:         &fakeIdP{},
		publisher:   &fakePublisher{},
		tickets:     &fakeTickets{},
		directory:   &fakeDirectory{},
		prov:        &fakeProvisioner{},
		notifier:    &fakeNotifier{},
		invalidator: &fakeInvalidator{},
		audit:       &fakeAudit{},
	}

	signer, err := NewInvitationSigner("fixture-signing-secret", "https://console.usher.test", time.Hour)
	require.NoError(t, err)

	svc, err := NewService(Deps{
		Store:       f.store,
		Tickets:     f.tickets,
		IdP:         f.idp,
		Publisher:   f.publisher,
		Directory:   f.directory,
		Provisioner: f.prov,
		Signer:      signer,
		Webhooks:    f.notifier,
		Invalidator: f.invalidator,
		Audit:       f.audit,
		Logger:      quietLogger(),
	}, Config{
		InvitationStream:     "enterprise-invitations",
		StorageRequestStream: "tenant-storage-requests",
		DeletionStream:       "enterprise-deletions",
		SchemaPrefix:         tenant.DefaultSchemaPrefix,
	})
	require.NoError(t, err)

	f.svc = svc
	return f
}
