package audit

import "github.com/platinummonkey/usher/pkg/storage/postgres"

// Migrations returns the audit trail schema. Version 4 continues the
// shared sequence after the enterprise and sso migrations.
func Migrations() []postgres.Migration {
	return []postgres.Migration{
		{
			Version:     4,
			Description: "create audit_events table",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_events (
					id BIGSERIAL PRIMARY KEY,
					timestamp TIMESTAMPTZ NOT NULL,
					event_type VARCHAR(100) NOT NULL,
					status VARCHAR(20) NOT NULL,
					actor TEXT,
					enterprise_id UUID,
					request_id VARCHAR(100),
					message TEXT,
					error_message TEXT,
					metadata JSONB,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
				CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp
					ON audit_events (timestamp DESC);
				CREATE INDEX IF NOT EXISTS idx_audit_events_event_type
					ON audit_events (event_type);
				CREATE INDEX IF NOT EXISTS idx_audit_events_enterprise_id
					ON audit_events (enterprise_id) WHERE enterprise_id IS NOT NULL;
			`,
		},
	}
}
