package webhooks

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Lifecycle events subscriptions can ask for. The names match the payloads
// the onboarding saga emits.
const (
	EventEnterpriseInvited   = "enterprise.invited"
	EventEnterpriseOnboarded = "enterprise.onboarded"
	EventEnterpriseActivated = "enterprise.activated"
	EventEnterpriseSuspended = "enterprise.suspended"
	EventEnterpriseDeleted   = "enterprise.deleted"
)

// ErrNotFound marks lookups for subscriptions that do not exist.
var ErrNotFound = errors.New("webhook subscription not found")

// KnownEvents returns the dispatchable event catalogue.
func KnownEvents() []string {
	return []string{
		EventEnterpriseInvited,
		EventEnterpriseOnboarded,
		EventEnterpriseActivated,
		EventEnterpriseSuspended,
		EventEnterpriseDeleted,
	}
}

// IsKnownEvent reports whether event is part of the catalogue.
func IsKnownEvent(event string) bool {
	for _, known := range KnownEvents() {
		if event == known {
			return true
		}
	}
	return false
}

// Event is the envelope delivered to subscribed endpoints.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Subscription is an operator-registered webhook endpoint. The secret never
// serializes; receivers prove possession by checking signatures instead.
type Subscription struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Events      []string  `json:"events"`
	Secret      string    `json:"-"`
	Active      bool      `json:"active"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Validate checks the fields an operator controls.
func (s *Subscription) Validate() error {
	if s.URL == "" {
		return fmt.Errorf("webhook URL is required")
	}
	u, err := url.Parse(s.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("webhook URL must be a valid http(s) URL")
	}
	if len(s.Events) == 0 {
		return fmt.Errorf("at least one event type is required")
	}
	for _, event := range s.Events {
		if !IsKnownEvent(event) {
			return fmt.Errorf("unknown event type %q", event)
		}
	}
	return nil
}

// Matches reports whether this subscription should receive event.
func (s *Subscription) Matches(event string) bool {
	if !s.Active {
		return false
	}
	for _, e := range s.Events {
		if e == event {
			return true
		}
	}
	return false
}

// DeliveryStatus represents the status of a webhook delivery
type DeliveryStatus string

const (
	DeliveryStatusPending  DeliveryStatus = "pending"
	DeliveryStatusSuccess  DeliveryStatus = "success"
	DeliveryStatusFailed   DeliveryStatus = "failed"
	DeliveryStatusRetrying DeliveryStatus = "retrying"
)

// Delivery records one webhook delivery and its attempts. The payload is
// stored with the row so retries resend exactly what the first attempt sent.
type Delivery struct {
	ID             string          `json:"id"`
	SubscriptionID string          `json:"subscription_id"`
	EventID        string          `json:"event_id"`
	EventType      string          `json:"event_type"`
	URL            string          `json:"url"`
	Status         DeliveryStatus  `json:"status"`
	StatusCode     int             `json:"status_code,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	Attempts       int             `json:"attempts"`
	Payload        json.RawMessage `json:"-"`
	NextRetryAt    *time.Time      `json:"next_retry_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	DurationMs     int64           `json:"duration_ms,omitempty"`
}

// DeliveryStats summarizes the delivery log for one subscription.
type DeliveryStats struct {
	SubscriptionID string  `json:"subscription_id"`
	Total          int     `json:"total"`
	Successful     int     `json:"successful"`
	Failed         int     `json:"failed"`
	Retrying       int     `json:"retrying"`
	SuccessRate    float64 `json:"success_rate"`
}
