package webhooks

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// Store persists webhook subscriptions and their delivery log.
type Store interface {
	Create(ctx context.Context, sub *Subscription) error
	Get(ctx context.Context, id string) (*Subscription, error)
	List(ctx context.Context) ([]*Subscription, error)
	Update(ctx context.Context, id string, updates *Subscription) (*Subscription, error)
	SetActive(ctx context.Context, id string, active bool) (*Subscription, error)
	Delete(ctx context.Context, id string) error
	Matching(ctx context.Context, event string) ([]*Subscription, error)

	CreateDelivery(ctx context.Context, d *Delivery) error
	UpdateDelivery(ctx context.Context, d *Delivery) error
	ListDeliveries(ctx context.Context, subscriptionID string, limit int) ([]*Delivery, error)
	DueRetries(ctx context.Context, limit int) ([]*Delivery, error)
	GetStats(ctx context.Context, subscriptionID string) (*DeliveryStats, error)
}

// PostgresStore persists subscriptions and deliveries.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a store backed by the given database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const subscriptionColumns = `id, url, events, secret, active, description, created_at, updated_at`

const deliveryColumns = `id, subscription_id, event_id, event_type, url, status, status_code, error_message, attempts, payload, next_retry_at, created_at, completed_at, duration_ms`

const (
	defaultDeliveryPageSize = 50
	maxDeliveryPageSize     = 200
)

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSubscription(row rowScanner) (*Subscription, error) {
	var s Subscription
	err := row.Scan(&s.ID, &s.URL, pq.Array(&s.Events), &s.Secret, &s.Active,
		&s.Description, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func scanDelivery(row rowScanner) (*Delivery, error) {
	var d Delivery
	var payload []byte
	err := row.Scan(&d.ID, &d.SubscriptionID, &d.EventID, &d.EventType, &d.URL,
		&d.Status, &d.StatusCode, &d.ErrorMessage, &d.Attempts, &payload,
		&d.NextRetryAt, &d.CreatedAt, &d.CompletedAt, &d.DurationMs)
	if err != nil {
		return nil, err
	}
	d.Payload = payload
	return &d, nil
}

// Create inserts a subscription. The caller provides id, url, events, secret,
// active and description; timestamps come back from the database.
func (s *PostgresStore) Create(ctx context.Context, sub *Subscription) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO webhook_subscriptions (id, url, events, secret, active, description)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		sub.ID, sub.URL, pq.Array(sub.Events), sub.Secret, sub.Active, sub.Description,
	).Scan(&sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create webhook subscription: %w", err)
	}
	return nil
}

// Get returns the subscription with the given id.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Subscription, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+subscriptionColumns+`
		FROM webhook_subscriptions
		WHERE id = $1`, id)
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook subscription: %w", err)
	}
	return sub, nil
}

// List returns all subscriptions, newest first.
func (s *PostgresStore) List(ctx context.Context) ([]*Subscription, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+subscriptionColumns+`
		FROM webhook_subscriptions
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan webhook subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// Update applies the non-zero fields of updates and returns the new state.
// Active is toggled through SetActive, not here.
func (s *PostgresStore) Update(ctx context.Context, id string, updates *Subscription) (*Subscription, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT `+subscriptionColumns+`
		FROM webhook_subscriptions
		WHERE id = $1
		FOR UPDATE`, id)
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load webhook subscription: %w", err)
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

	err = tx.QueryRowContext(ctx, `
		UPDATE webhook_subscriptions
		SET url = $2, events = $3, secret = $4, description = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		id, sub.URL, pq.Array(sub.Events), sub.Secret, sub.Description,
	).Scan(&sub.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update webhook subscription: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return sub, nil
}

// SetActive pauses or resumes a subscription.
func (s *PostgresStore) SetActive(ctx context.Context, id string, active bool) (*Subscription, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE webhook_subscriptions
		SET active = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+subscriptionColumns, id, active)
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update webhook subscription: %w", err)
	}
	return sub, nil
}

// Delete removes a subscription and, through the cascade, its delivery log.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM webhook_subscriptions
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete webhook subscription: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete webhook subscription: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Matching returns the active subscriptions listening for event.
func (s *PostgresStore) Matching(ctx context.Context, event string) ([]*Subscription, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+subscriptionColumns+`
		FROM webhook_subscriptions
		WHERE active AND $1 = ANY(events)
		ORDER BY created_at`, event)
	if err != nil {
		return nil, fmt.Errorf("failed to match webhook subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan webhook subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// CreateDelivery inserts a delivery record in its initial state.
func (s *PostgresStore) CreateDelivery(ctx context.Context, d *Delivery) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO webhook_deliveries (id, subscription_id, event_id, event_type, url, status, attempts, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`,
		d.ID, d.SubscriptionID, d.EventID, d.EventType, d.URL, d.Status, d.Attempts, []byte(d.Payload),
	).Scan(&d.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create webhook delivery: %w", err)
	}
	return nil
}

// UpdateDelivery records the outcome of a delivery attempt.
func (s *PostgresStore) UpdateDelivery(ctx context.Context, d *Delivery) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE webhook_deliveries
		SET status = $2, status_code = $3, error_message = $4, attempts = $5,
		    next_retry_at = $6, completed_at = $7, duration_ms = $8
		WHERE id = $1`,
		d.ID, d.Status, d.StatusCode, d.ErrorMessage, d.Attempts,
		d.NextRetryAt, d.CompletedAt, d.DurationMs)
	if err != nil {
		return fmt.Errorf("failed to update webhook delivery: %w", err)
	}
	return nil
}

// ListDeliveries returns the delivery log for a subscription, newest first.
func (s *PostgresStore) ListDeliveries(ctx context.Context, subscriptionID string, limit int) ([]*Delivery, error) {
	if limit <= 0 {
		limit = defaultDeliveryPageSize
	}
	if limit > maxDeliveryPageSize {
		limit = maxDeliveryPageSize
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+deliveryColumns+`
		FROM webhook_deliveries
		WHERE subscription_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, subscriptionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []*Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan webhook delivery: %w", err)
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}

// DueRetries returns deliveries whose retry time has arrived, oldest first.
func (s *PostgresStore) DueRetries(ctx context.Context, limit int) ([]*Delivery, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+deliveryColumns+`
		FROM webhook_deliveries
		WHERE status = 'retrying' AND next_retry_at <= NOW()
		ORDER BY next_retry_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due webhook retries: %w", err)
	}
	defer rows.Close()

	var deliveries []*Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan webhook delivery: %w", err)
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}

// GetStats summarizes the delivery log for a subscription.
func (s *PostgresStore) GetStats(ctx context.Context, subscriptionID string) (*DeliveryStats, error) {
	stats := &DeliveryStats{SubscriptionID: subscriptionID}
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'success'),
		       COUNT(*) FILTER (WHERE status = 'failed'),
		       COUNT(*) FILTER (WHERE status = 'retrying')
		FROM webhook_deliveries
		WHERE subscription_id = $1`, subscriptionID,
	).Scan(&stats.Total, &stats.Successful, &stats.Failed, &stats.Retrying)
	if err != nil {
		return nil, fmt.Errorf("failed to compute webhook delivery stats: %w", err)
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Successful) / float64(stats.Total)
	}
	return stats, nil
}
