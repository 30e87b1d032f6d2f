package webhooks

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// memStore is an in-memory Store for dispatcher and retry worker tests. It
// copies records on the way in and out so assertions never race the
// dispatcher's goroutines.
type memStore struct {
	mu         sync.Mutex
	subs       []*Subscription
	deliveries []*Delivery

	matchingErr       error
	createDeliveryErr error
}

var _ Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{}
}

func copySubscription(s *Subscription) *Subscription {
	c := *s
	c.Events = append([]string(nil), s.Events...)
	return &c
}

func copyDelivery(d *Delivery) *Delivery {
	c := *d
	if d.NextRetryAt != nil {
		at := *d.NextRetryAt
		c.NextRetryAt = &at
	}
	if d.CompletedAt != nil {
		at := *d.CompletedAt
		c.CompletedAt = &at
	}
	c.Payload = append([]byte(nil), d.Payload...)
	return &c
}

func (m *memStore) Create(ctx context.Context, sub *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	sub.CreatedAt = now
	sub.UpdatedAt = now
	m.subs = append(m.subs, copySubscription(sub))
	return nil
}

func (m *memStore) Get(ctx context.Context, id string) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.ID == id {
			return copySubscription(s), nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) List(ctx context.Context) ([]*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := make([]*Subscription, 0, len(m.subs))
	for i := len(m.subs) - 1; i >= 0; i-- {
		subs = append(subs, copySubscription(m.subs[i]))
	}
	return subs, nil
}

func (m *memStore) Update(ctx context.Context, id string, updates *Subscription) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.ID != id {
			continue
		}
		if updates.URL != "" {
			s.URL = updates.URL
		}
		if len(updates.Events) > 0 {
			s.Events = append([]string(nil), updates.Events...)
		}
		if updates.Secret != "" {
			s.Secret = updates.Secret
		}
		if updates.Description != "" {
			s.Description = updates.Description
		}
		s.UpdatedAt = time.Now()
		return copySubscription(s), nil
	}
	return nil, ErrNotFound
}

func (m *memStore) SetActive(ctx context.Context, id string, active bool) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.ID == id {
			s.Active = active
			s.UpdatedAt = time.Now()
			return copySubscription(s), nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.subs {
		if s.ID == id {
			m.subs = append(m.subs[:i], m.subs[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *memStore) Matching(ctx context.Context, event string) ([]*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.matchingErr != nil {
		return nil, m.matchingErr
	}
	var subs []*Subscription
	for _, s := range m.subs {
		if s.Matches(event) {
			subs = append(subs, copySubscription(s))
		}
	}
	return subs, nil
}

func (m *memStore) CreateDelivery(ctx context.Context, d *Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createDeliveryErr != nil {
		return m.createDeliveryErr
	}
	d.CreatedAt = time.Now()
	m.deliveries = append(m.deliveries, copyDelivery(d))
	return nil
}

func (m *memStore) UpdateDelivery(ctx context.Context, d *Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.deliveries {
		if existing.ID == d.ID {
			updated := copyDelivery(d)
			updated.CreatedAt = existing.CreatedAt
			m.deliveries[i] = updated
			return nil
		}
	}
	return nil
}

func (m *memStore) ListDeliveries(ctx context.Context, subscriptionID string, limit int) ([]*Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = defaultDeliveryPageSize
	}
	var out []*Delivery
	for i := len(m.deliveries) - 1; i >= 0 && len(out) < limit; i-- {
		if m.deliveries[i].SubscriptionID == subscriptionID {
			out = append(out, copyDelivery(m.deliveries[i]))
		}
	}
	return out, nil
}

func (m *memStore) DueRetries(ctx context.Context, limit int) ([]*Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var out []*Delivery
	for _, d := range m.deliveries {
		if d.Status != DeliveryStatusRetrying || d.NextRetryAt == nil || d.NextRetryAt.After(now) {
			continue
		}
		out = append(out, copyDelivery(d))
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) GetStats(ctx context.Context, subscriptionID string) (*DeliveryStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &DeliveryStats{SubscriptionID: subscriptionID}
	for _, d := range m.deliveries {
		if d.SubscriptionID != subscriptionID {
			continue
		}
		stats.Total++
		switch d.Status {
		case DeliveryStatusSuccess:
			stats.Successful++
		case DeliveryStatusFailed:
			stats.Failed++
		case DeliveryStatusRetrying:
			stats.Retrying++
		}
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Successful) / float64(stats.Total)
	}
	return stats, nil
}

// seedDelivery installs a delivery without touching its fields, so tests can
// place rows directly into a chosen state.
func (m *memStore) seedDelivery(d *Delivery) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliveries = append(m.deliveries, copyDelivery(d))
}

func (m *memStore) allDeliveries() []*Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Delivery, 0, len(m.deliveries))
	for _, d := range m.deliveries {
		out = append(out, copyDelivery(d))
	}
	return out
}

// waitForDelivery polls until some delivery reaches status or the deadline
// passes. Dispatch runs on background goroutines, so tests observe outcomes
// through the store rather than through return values.
func waitForDelivery(t *testing.T, store *memStore, status DeliveryStatus) *Delivery {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		for _, d := range store.allDeliveries() {
			if d.Status == status {
				return d
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for a delivery with status %q", status)
	return nil
}
