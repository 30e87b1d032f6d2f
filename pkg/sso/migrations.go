package sso

import "github.com/platinummonkey/usher/pkg/storage/postgres"

// Migrations returns the schema migrations for the ticket table. Version 3
// continues the sequence started by the enterprise package.
func Migrations() []postgres.Migration {
	return []postgres.Migration{
		{
			Version:     3,
			Description: "create sso_tickets table",
			SQL: `
				CREATE TABLE IF NOT EXISTS sso_tickets (
					id BIGSERIAL PRIMARY KEY,
					enterprise_id UUID NOT NULL REFERENCES enterprises(id) ON DELETE CASCADE,
					organization_id TEXT NOT NULL,
					admin_email TEXT NOT NULL,
					ticket_url TEXT NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);
				CREATE INDEX IF NOT EXISTS idx_sso_tickets_enterprise_id
					ON sso_tickets (enterprise_id);
				CREATE INDEX IF NOT EXISTS idx_sso_tickets_created_at
					ON sso_tickets (created_at);
			`,
		},
	}
}
