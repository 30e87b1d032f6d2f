package sso

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// TicketStore persists onboarding tickets.
type TicketStore struct {
	db *sql.DB
}

// NewTicketStore creates a ticket store backed by the given database handle.
func NewTicketStore(db *sql.DB) *TicketStore {
	return &TicketStore{db: db}
}

// Create appends a ticket row. The id and creation time come back from the
// database.
func (s *TicketStore) Create(ctx context.Context, t *Ticket) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO sso_tickets (enterprise_id, organization_id, admin_email, ticket_url)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		t.EnterpriseID, t.OrganizationID, t.AdminEmail, t.TicketURL,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create sso ticket: %w", err)
	}
	return nil
}

// DeleteExpired removes tickets older than maxAge and reports how many rows
// went. Ticket URLs stop working on the identity provider side anyway, so
// keeping the rows past their lifetime only grows the table.
func (s *TicketStore) DeleteExpired(ctx context.Context, maxAge time.Duration) (int64, error) {
	if maxAge <= 0 {
		return 0, fmt.Errorf("max age must be positive, got %s", maxAge)
	}

	cutoff := time.Now().Add(-maxAge)
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM sso_tickets
		WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sso tickets: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted sso tickets: %w", err)
	}
	return n, nil
}
