package enterprise

import "github.com/platinummonkey/usher/pkg/storage/postgres"

// Migrations returns the schema migrations for the enterprise tables.
// Versions 1 and 2 belong to this package; other packages continue the
// sequence so Store.Migrate can merge everything into one ordered run.
func Migrations() []postgres.Migration {
	return []postgres.Migration{
		{
			Version:     1,
			Description: "create enterprises table",
			SQL: `
				CREATE TABLE IF NOT EXISTS enterprises (
					id UUID PRIMARY KEY,
					name TEXT NOT NULL,
					url TEXT NOT NULL,
					domain TEXT NOT NULL,
					admin_email TEXT NOT NULL,
					organization_id TEXT,
					status VARCHAR(20) NOT NULL DEFAULT 'pending',
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);
				CREATE UNIQUE INDEX IF NOT EXISTS idx_enterprises_domain_live
					ON enterprises (domain) WHERE status <> 'deleted';
				CREATE UNIQUE INDEX IF NOT EXISTS idx_enterprises_admin_email_live
					ON enterprises (admin_email) WHERE status <> 'deleted';
				CREATE UNIQUE INDEX IF NOT EXISTS idx_enterprises_organization_id
					ON enterprises (organization_id) WHERE organization_id IS NOT NULL;
				CREATE INDEX IF NOT EXISTS idx_enterprises_status
					ON enterprises (status);
			`,
		},
		{
			Version:     2,
			Description: "create admins table",
			SQL: `
				CREATE TABLE IF NOT EXISTS admins (
					id BIGSERIAL PRIMARY KEY,
					enterprise_id UUID NOT NULL REFERENCES enterprises(id) ON DELETE CASCADE,
					email TEXT NOT NULL,
					organization_id TEXT,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);
				CREATE UNIQUE INDEX IF NOT EXISTS idx_admins_enterprise_id
					ON admins (enterprise_id);
			`,
		},
	}
}
