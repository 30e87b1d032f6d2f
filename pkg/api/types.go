package api

import (
	"context"

	"github.com/platinummonkey/usher/pkg/audit"
	"github.com/platinummonkey/usher/pkg/enterprise"
	"github.com/platinummonkey/usher/pkg/idp"
	"github.com/platinummonkey/usher/pkg/onboarding"
)

// OnboardingService is the saga surface the enterprise handlers drive.
// *onboarding.Service satisfies it.
type OnboardingService interface {
	Invite(ctx context.Context, req onboarding.InviteRequest) (*onboarding.InviteResponse, error)
	Reinvite(ctx context.Context, enterpriseID string) (*onboarding.InviteResponse, error)
	Onboard(ctx context.Context, enterpriseID string, branding idp.Branding) (*onboarding.OnboardResponse, error)
	ResumeOnboarding(ctx context.Context, enterpriseID string, branding idp.Branding) (*onboarding.OnboardResponse, error)
	UpdateStatus(ctx context.Context, enterpriseID string, next enterprise.Status) (*enterprise.Enterprise, error)
	Activate(ctx context.Context, enterpriseID string) (*enterprise.Enterprise, error)
	Delete(ctx context.Context, enterpriseID string) (*enterprise.Enterprise, error)
	NotifyTenantStorageReady(ctx context.Context, event onboarding.StorageReadyEvent)
}

// EnterpriseDirectory serves the registry reads. *enterprise.PostgresStore
// satisfies it.
type EnterpriseDirectory interface {
	Get(ctx context.Context, id string) (*enterprise.Enterprise, error)
	List(ctx context.Context, opts enterprise.ListOptions) ([]*enterprise.Enterprise, error)
}

// AuditTrail serves the audit query endpoint. *audit.PostgresLogger
// satisfies it.
type AuditTrail interface {
	Query(ctx context.Context, filter audit.Filter) ([]*audit.Event, error)
}

// SchemaDropper reclaims a tenant's relational namespace.
// *tenant.Provisioner satisfies it.
type SchemaDropper interface {
	DropTenantSchema(ctx context.Context, tenantID string) error
}

// StatusUpdateRequest is the body of PUT /enterprises/{id}/status.
type StatusUpdateRequest struct {
	Status string `json:"status"`
}

// ListEnterprisesResponse wraps the registry listing with the paging
// echo the admin UI uses.
type ListEnterprisesResponse struct {
	Enterprises []*enterprise.Enterprise `json:"enterprises"`
	Page        int                      `json:"page"`
	PerPage     int                      `json:"per_page"`
}

// AuditQueryResponse wraps the audit trail query result.
type AuditQueryResponse struct {
	Events  []*audit.Event `json:"events"`
	Page    int            `json:"page"`
	PerPage int            `json:"per_page"`
}
