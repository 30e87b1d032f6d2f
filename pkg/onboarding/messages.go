package onboarding

import "time"

// InvitationNotice is the payload published to the invitation stream. A
// downstream mailer turns it into the email that carries InvitationURL to
// the admin.
type InvitationNotice struct {
	EnterpriseID  string `json:"enterprise_id"`
	Name          string `json:"name"`
	Domain        string `json:"domain"`
	AdminEmail    string `json:"admin_email"`
	InvitationURL string `json:"invitation_url"`
	Reinvite      bool   `json:"reinvite,omitempty"`
}

// StorageReadyEvent is the inbound notification that a tenant's document
// storage has been allocated and relational provisioning can proceed.
type StorageReadyEvent struct {
	OrganizationID string `json:"organization_id"`
}

// StorageProvisionRequest is the payload published to the provisioning
// stream. Everything except the password derives deterministically from
// the tenant namespace.
type StorageProvisionRequest struct {
	EnterpriseID string `json:"enterprise_id"`
	NamespaceID  string `json:"namespace_id"`
	DatabaseName string `json:"database_name"`
	SchemaName   string `json:"schema_name"`
	Username     string `json:"username"`
	Password     string `json:"password"`
}

// DeletionNotice is the payload published to the deletion stream when an
// enterprise is soft-deleted.
type DeletionNotice struct {
	EnterpriseID   string    `json:"enterprise_id"`
	Name           string    `json:"name"`
	Domain         string    `json:"domain"`
	OrganizationID string    `json:"organization_id,omitempty"`
	DeletedAt      time.Time `json:"deleted_at"`
}
