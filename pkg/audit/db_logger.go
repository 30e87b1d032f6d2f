package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
)

// PostgresLogger writes the audit trail to the shared database.
type PostgresLogger struct {
	db *sql.DB
}

var _ Logger = (*PostgresLogger)(nil)

// NewPostgresLogger creates a database-backed audit logger. The
// audit_events table comes from the package migrations, not from here.
func NewPostgresLogger(db *sql.DB) (*PostgresLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &PostgresLogger{db: db}, nil
}

// Log appends one event and fills in its assigned id.
func (l *PostgresLogger) Log(ctx context.Context, event *Event) error {
	var metadataJSON []byte
	if len(event.Metadata) > 0 {
		var err error
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	query := `
		INSERT INTO audit_events (
			timestamp, event_type, status, actor,
			enterprise_id, request_id, message, error_message, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	err := l.db.QueryRowContext(ctx, query,
		event.Timestamp, string(event.EventType), string(event.Status), event.Actor,
		nullable(event.EnterpriseID), event.RequestID, event.Message, event.ErrorMessage, metadataJSON,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}

	return nil
}

// Query returns trail entries matching the filter, newest first.
func (l *PostgresLogger) Query(ctx context.Context, filter Filter) ([]*Event, error) {
	query := `
		SELECT id, timestamp, event_type, status, actor,
			enterprise_id, request_id, message, error_message, metadata
		FROM audit_events
		WHERE 1=1
	`

	args := []interface{}{}
	argCount := 1

	if filter.EnterpriseID != "" {
		query += fmt.Sprintf(" AND enterprise_id = $%d", argCount)
		args = append(args, filter.EnterpriseID)
		argCount++
	}
	if len(filter.EventTypes) > 0 {
		eventTypes := make([]string, len(filter.EventTypes))
		for i, et := range filter.EventTypes {
			eventTypes[i] = string(et)
		}
		query += fmt.Sprintf(" AND event_type = ANY($%d)", argCount)
		args = append(args, pq.Array(eventTypes))
		argCount++
	}
	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, string(*filter.Status))
		argCount++
	}
	if filter.Since != nil {
		query += fmt.Sprintf(" AND timestamp >= $%d", argCount)
		args = append(args, *filter.Since)
		argCount++
	}
	if filter.Until != nil {
		query += fmt.Sprintf(" AND timestamp <= $%d", argCount)
		args = append(args, *filter.Until)
		argCount++
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT $%d OFFSET $%d", argCount, argCount+1)
	args = append(args, limit, offset)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	events := make([]*Event, 0)
	for rows.Next() {
		event := &Event{}
		var enterpriseID sql.NullString
		var metadataJSON []byte

		err := rows.Scan(
			&event.ID, &event.Timestamp, &event.EventType, &event.Status, &event.Actor,
			&enterpriseID, &event.RequestID, &event.Message, &event.ErrorMessage, &metadataJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}

		event.EnterpriseID = enterpriseID.String
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &event.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}

		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit events: %w", err)
	}

	return events, nil
}

// Close is a no-op: the database handle is shared and owned elsewhere.
func (l *PostgresLogger) Close() error {
	return nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
