package webhooks

import "github.com/platinummonkey/usher/pkg/storage/postgres"

// Migrations returns the webhook schema. Version 5 continues the shared
// sequence after the audit trail.
func Migrations() []postgres.Migration {
	return []postgres.Migration{
		{
			Version:     5,
			Description: "create webhook subscription and delivery tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS webhook_subscriptions (
					id UUID PRIMARY KEY,
					url TEXT NOT NULL,
					events TEXT[] NOT NULL,
					secret TEXT NOT NULL DEFAULT '',
					active BOOLEAN NOT NULL DEFAULT TRUE,
					description TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
				CREATE INDEX IF NOT EXISTS idx_webhook_subscriptions_events
					ON webhook_subscriptions USING GIN (events);

				CREATE TABLE IF NOT EXISTS webhook_deliveries (
					id UUID PRIMARY KEY,
					subscription_id UUID NOT NULL REFERENCES webhook_subscriptions(id) ON DELETE CASCADE,
					event_id UUID NOT NULL,
					event_type VARCHAR(100) NOT NULL,
					url TEXT NOT NULL,
					status VARCHAR(20) NOT NULL,
					status_code INTEGER NOT NULL DEFAULT 0,
					error_message TEXT NOT NULL DEFAULT '',
					attempts INTEGER NOT NULL DEFAULT 0,
					payload JSONB NOT NULL,
					next_retry_at TIMESTAMPTZ,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					completed_at TIMESTAMPTZ,
					duration_ms BIGINT NOT NULL DEFAULT 0
				);
				CREATE INDEX IF NOT EXISTS idx_webhook_deliveries_subscription
					ON webhook_deliveries (subscription_id, created_at DESC);
				CREATE INDEX IF NOT EXISTS idx_webhook_deliveries_due
					ON webhook_deliveries (next_retry_at) WHERE status = 'retrying';
			`,
		},
	}
}
