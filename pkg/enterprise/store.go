package enterprise

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// PostgresStore persists enterprises and their admins.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a store backed by the given database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const enterpriseColumns = `id, name, url, domain, admin_email, organization_id, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEnterprise(row rowScanner) (*Enterprise, error) {
	var e Enterprise
	err := row.Scan(&e.ID, &e.Name, &e.URL, &e.Domain, &e.AdminEmail,
		&e.OrganizationID, &e.Status, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// mapUniqueViolation converts postgres unique-constraint violations into
// DuplicateError values callers can surface as validation failures.
func mapUniqueViolation(err error, msg string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return &DuplicateError{Field: fieldForConstraint(string(pqErr.Constraint))}
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func fieldForConstraint(constraint string) string {
	switch {
	case strings.Contains(constraint, "domain"):
		return "domain"
	case strings.Contains(constraint, "admin_email"):
		return "admin_email"
	case strings.Contains(constraint, "organization"):
		return "organization_id"
	default:
		return "enterprise"
	}
}

// CreateWithAdmin inserts the enterprise and its admin contact in one
// transaction so a crash can never leave an enterprise without an admin.
// The caller provides the id, name, url, domain, admin email and initial
// status; timestamps come back from the database.
func (s *PostgresStore) CreateWithAdmin(ctx context.Context, e *Enterprise) (*Admin, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO enterprises (id, name, url, domain, admin_email, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		e.ID, e.Name, e.URL, e.Domain, e.AdminEmail, e.Status,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, mapUniqueViolation(err, "failed to create enterprise")
	}

	admin := &Admin{EnterpriseID: e.ID, Email: e.AdminEmail}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO admins (enterprise_id, email)
		VALUES ($1, $2)
		RETURNING id, created_at, updated_at`,
		admin.EnterpriseID, admin.Email,
	).Scan(&admin.ID, &admin.CreatedAt, &admin.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create admin: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return admin, nil
}

// Get returns the enterprise with the given id. Soft-deleted rows are hidden.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Enterprise, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+enterpriseColumns+`
		FROM enterprises
		WHERE id = $1 AND status <> 'deleted'`, id)
	e, err := scanEnterprise(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get enterprise: %w", err)
	}
	return e, nil
}

// GetByDomain returns the live enterprise registered for an email domain.
func (s *PostgresStore) GetByDomain(ctx context.Context, domain string) (*Enterprise, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+enterpriseColumns+`
		FROM enterprises
		WHERE domain = $1 AND status <> 'deleted'`, domain)
	e, err := scanEnterprise(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get enterprise by domain: %w", err)
	}
	return e, nil
}

// GetByAdminEmail returns the live enterprise whose admin has this email.
func (s *PostgresStore) GetByAdminEmail(ctx context.Context, email string) (*Enterprise, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+enterpriseColumns+`
		FROM enterprises
		WHERE admin_email = $1 AND status <> 'deleted'`, email)
	e, err := scanEnterprise(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get enterprise by admin email: %w", err)
	}
	return e, nil
}

// GetByOrganizationID returns the live enterprise bound to an identity
// provider organization.
func (s *PostgresStore) GetByOrganizationID(ctx context.Context, organizationID string) (*Enterprise, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+enterpriseColumns+`
		FROM enterprises
		WHERE organization_id = $1 AND status <> 'deleted'`, organizationID)
	e, err := scanEnterprise(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get enterprise by organization: %w", err)
	}
	return e, nil
}

// GetAdmin returns the admin contact row for an enterprise.
func (s *PostgresStore) GetAdmin(ctx context.Context, enterpriseID string) (*Admin, error) {
	var a Admin
	err := s.db.QueryRowContext(ctx, `
		SELECT id, enterprise_id, email, organization_id, created_at, updated_at
		FROM admins
		WHERE enterprise_id = $1`, enterpriseID).
		Scan(&a.ID, &a.EnterpriseID, &a.Email, &a.OrganizationID, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("admin for enterprise %s: %w", enterpriseID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get admin: %w", err)
	}
	return &a, nil
}

// ListOptions filters List. A zero Status returns all live rows; passing
// StatusDeleted explicitly is the only way deleted rows come back.
type ListOptions struct {
	Status Status
	Limit  int
	Offset int
}

// List returns enterprises ordered by creation time, newest first.
func (s *PostgresStore) List(ctx context.Context, opts ListOptions) ([]*Enterprise, error) {
	limit := opts.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	var (
		rows *sql.Rows
		err  error
	)
	if opts.Status != "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+enterpriseColumns+`
			FROM enterprises
			WHERE status = $1
			ORDER BY created_at DESC
			LIMIT $2 OFFSET $3`, opts.Status, limit, offset)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+enterpriseColumns+`
			FROM enterprises
			WHERE status <> 'deleted'
			ORDER BY created_at DESC
			LIMIT $1 OFFSET $2`, limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list enterprises: %w", err)
	}
	defer rows.Close()

	var enterprises []*Enterprise
	for rows.Next() {
		e, err := scanEnterprise(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan enterprise: %w", err)
		}
		enterprises = append(enterprises, e)
	}
	return enterprises, rows.Err()
}

// transitionFailure distinguishes a missing row from a lifecycle violation
// after a guarded update matched nothing.
func (s *PostgresStore) transitionFailure(ctx context.Context, id string, next Status) error {
	var current Status
	err := s.db.QueryRowContext(ctx, `SELECT status FROM enterprises WHERE id = $1`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check enterprise status: %w", err)
	}
	return &TransitionError{ID: id, Current: current, Next: next}
}

// ForceInvited resets an enterprise to invited so a fresh invitation can be
// issued. Deleted rows are never revived.
func (s *PostgresStore) ForceInvited(ctx context.Context, id string) (*Enterprise, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE enterprises
		SET status = 'invited', updated_at = NOW()
		WHERE id = $1 AND status <> 'deleted'
		RETURNING `+enterpriseColumns, id)
	e, err := scanEnterprise(row)
	if err == sql.ErrNoRows {
		return nil, s.transitionFailure(ctx, id, StatusInvited)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to reset enterprise to invited: %w", err)
	}
	return e, nil
}

// MarkInitiated moves an invited enterprise to initiated and records the
// identity provider organization on both the enterprise and its admin. The
// status guard on the UPDATE is what makes concurrent onboard attempts safe:
// exactly one caller sees the row transition, every other gets a
// TransitionError carrying the status the winner left behind.
func (s *PostgresStore) MarkInitiated(ctx context.Context, id, organizationID string) (*Enterprise, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		UPDATE enterprises
		SET status = 'initiated', organization_id = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'invited'
		RETURNING `+enterpriseColumns, id, organizationID)
	e, err := scanEnterprise(row)
	if err == sql.ErrNoRows {
		return nil, s.transitionFailure(ctx, id, StatusInitiated)
	}
	if err != nil {
		return nil, mapUniqueViolation(err, "failed to mark enterprise initiated")
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE admins
		SET organization_id = $2, updated_at = NOW()
		WHERE enterprise_id = $1`, id, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to record admin organization: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return e, nil
}

// UpdateStatus moves an enterprise to next, enforcing ValidTransitions. The
// current status is re-checked inside the UPDATE so two racing status
// changes cannot both apply.
func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, next Status) (*Enterprise, error) {
	if !next.Valid() {
		return nil, fmt.Errorf("invalid status %q", next)
	}

	var current Status
	err := s.db.QueryRowContext(ctx, `SELECT status FROM enterprises WHERE id = $1`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check enterprise status: %w", err)
	}
	if !current.CanTransitionTo(next) {
		return nil, &TransitionError{ID: id, Current: current, Next: next}
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE enterprises
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING `+enterpriseColumns, id, current, next)
	e, err := scanEnterprise(row)
	if err == sql.ErrNoRows {
		return nil, s.transitionFailure(ctx, id, next)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update enterprise status: %w", err)
	}
	return e, nil
}

// SoftDelete marks an enterprise deleted while keeping the row for history.
// The partial unique indexes ignore deleted rows, so the domain and admin
// email become reusable immediately. Any live status may be deleted,
// including pending rows that never got their invitation out.
func (s *PostgresStore) SoftDelete(ctx context.Context, id string) (*Enterprise, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE enterprises
		SET status = 'deleted', updated_at = NOW()
		WHERE id = $1 AND status <> 'deleted'
		RETURNING `+enterpriseColumns, id)
	e, err := scanEnterprise(row)
	if err == sql.ErrNoRows {
		return nil, s.transitionFailure(ctx, id, StatusDeleted)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete enterprise: %w", err)
	}
	return e, nil
}

// CountByStatus returns the number of enterprises in each status, deleted
// ones included. Feeds the status gauge.
func (s *PostgresStore) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM enterprises
		GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count enterprises: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status Status
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
