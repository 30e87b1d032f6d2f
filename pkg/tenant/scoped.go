package tenant

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/platinummonkey/usher/pkg/observability"
)

const releaseTimeout = 5 * time.Second

// ScopedConn checks a dedicated connection out of the pool and pins it to
// the calling tenant's schema via SET search_path. The tenant comes from
// ctx; requests without one are pinned to the shared schema.
//
// The returned release func resets the search_path and hands the
// connection back to the pool. It is idempotent and must be called on
// every exit path, usually via defer. A connection whose reset fails is
// discarded rather than returned, so no later checkout can observe a
// stale search_path.
func ScopedConn(ctx context.Context, db *sql.DB) (*sql.Conn, func(), error) {
	tc := FromContext(ctx)

	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to acquire connection: %w", err)
	}

	setPath := fmt.Sprintf("SET search_path TO %s", pq.QuoteIdentifier(tc.Schema))
	if _, err := conn.ExecContext(ctx, setPath); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to scope connection to schema %s: %w", tc.Schema, err)
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			// The request context may already be done by the time release
			// runs, so the reset gets its own deadline.
			resetCtx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
			defer cancel()

			if _, err := conn.ExecContext(resetCtx, "RESET search_path"); err != nil {
				observability.FromContext(ctx).WithError(err).
					WithField("schema", tc.Schema).
					Warn("Failed to reset search_path, discarding connection")
				_ = conn.Raw(func(interface{}) error { return driver.ErrBadConn })
			}
			conn.Close()
		})
	}

	return conn, release, nil
}
