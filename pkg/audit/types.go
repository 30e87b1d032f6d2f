package audit

import (
	"time"
)

// EventType categorizes a control-plane action.
type EventType string

const (
	EventTypeEnterpriseInvited       EventType = "enterprise.invited"
	EventTypeEnterpriseReinvited     EventType = "enterprise.reinvited"
	EventTypeEnterpriseOnboarded     EventType = "enterprise.onboarded"
	EventTypeEnterpriseResumed       EventType = "enterprise.onboarding_resumed"
	EventTypeEnterpriseActivated     EventType = "enterprise.activated"
	EventTypeEnterpriseStatusChanged EventType = "enterprise.status_changed"
	EventTypeEnterpriseDeleted       EventType = "enterprise.deleted"
	EventTypeBrandingUpdated         EventType = "enterprise.branding_updated"

	EventTypeStorageRequested EventType = "tenant.storage_requested"
	EventTypeSchemaDropped    EventType = "tenant.schema_dropped"

	EventTypeWebhookCreated EventType = "webhook.created"
	EventTypeWebhookUpdated EventType = "webhook.updated"
	EventTypeWebhookDeleted EventType = "webhook.deleted"
)

// EventStatus is the outcome of the recorded action.
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
)

// Event is a single audit trail entry.
type Event struct {
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor is the operator who triggered the action, or "system" for
	// event-driven work with no authenticated caller.
	Actor string `json:"actor,omitempty"`

	// EnterpriseID is the enterprise the action targeted. Failure entries
	// may carry ids the registry never accepted, so this column has no
	// foreign key.
	EnterpriseID string `json:"enterprise_id,omitempty"`

	RequestID    string                 `json:"request_id,omitempty"`
	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// Filter narrows a trail query. Zero fields are not applied.
type Filter struct {
	EnterpriseID string
	EventTypes   []EventType
	Status       *EventStatus
	Since        *time.Time
	Until        *time.Time
	Limit        int
	Offset       int
}
