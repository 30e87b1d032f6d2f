package tenant

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"regexp"

	"github.com/lib/pq"

	"github.com/platinummonkey/usher/pkg/observability"
)

// schemaPattern is the shape every provisioned schema name must have.
// Namespace ids are hex, so anything outside this set means a corrupt or
// handcrafted context and is rejected before it reaches DDL.
var schemaPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Provisioner creates and tears down per-tenant relational schemas.
type Provisioner struct {
	db           *sql.DB
	schemaPrefix string
	logger       *observability.Logger
}

// NewProvisioner builds a provisioner over the shared database handle.
func NewProvisioner(db *sql.DB, schemaPrefix string, logger *observability.Logger) *Provisioner {
	if schemaPrefix == "" {
		schemaPrefix = DefaultSchemaPrefix
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, os.Stdout)
	}
	return &Provisioner{db: db, schemaPrefix: schemaPrefix, logger: logger}
}

// CreateTenantSchema provisions the relational namespace for a tenant:
// the schema itself plus the baseline workspace settings table. Every
// statement is create-if-not-exists, so calling it again for the same
// tenant is safe.
func (p *Provisioner) CreateTenantSchema(ctx context.Context, tenantID string) (*Context, error) {
	tc, err := New(tenantID, p.schemaPrefix)
	if err != nil {
		return nil, err
	}
	if !schemaPattern.MatchString(tc.Schema) {
		return nil, fmt.Errorf("schema name %q contains invalid characters", tc.Schema)
	}

	schema := pq.QuoteIdentifier(tc.Schema)
	statements := []string{
		fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.workspace_settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`, schema),
		fmt.Sprintf(`INSERT INTO %s.workspace_settings (key, value)
			VALUES ('workspace_name', 'New Workspace')
			ON CONFLICT (key) DO NOTHING`, schema),
	}

	for _, stmt := range statements {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to provision schema %s: %w", tc.Schema, err)
		}
	}

	p.logger.WithFields(map[string]interface{}{
		"tenant_id": tenantID,
		"schema":    tc.Schema,
	}).Info("Tenant schema provisioned")

	return tc, nil
}

// DropTenantSchema removes a tenant's schema and everything inside it.
// This is operator tooling for decommissioning; nothing in the serving
// path calls it.
func (p *Provisioner) DropTenantSchema(ctx context.Context, tenantID string) error {
	tc, err := New(tenantID, p.schemaPrefix)
	if err != nil {
		return err
	}
	if !schemaPattern.MatchString(tc.Schema) {
		return fmt.Errorf("schema name %q contains invalid characters", tc.Schema)
	}

	stmt := fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", pq.QuoteIdentifier(tc.Schema))
	if _, err := p.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to drop schema %s: %w", tc.Schema, err)
	}

	p.logger.WithFields(map[string]interface{}{
		"tenant_id": tenantID,
		"schema":    tc.Schema,
	}).Warn("Tenant schema dropped")

	return nil
}
