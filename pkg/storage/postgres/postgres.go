package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sort"

	_ "github.com/lib/pq" // PostgreSQL driver
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/platinummonkey/usher/pkg/observability"
	"github.com/platinummonkey/usher/pkg/storage"
)

var tracer = otel.Tracer("github.com/platinummonkey/usher/pkg/storage/postgres")

// Store bundles the persistence backends: PostgreSQL (primary plus
// optional read replicas), Redis, and the asset store. Domain packages
// hold their own row stores; Store hands them connections and runs
// their schema migrations against a shared tracking table.
type Store struct {
	conns  *ConnectionManager
	redis  *RedisClient
	assets storage.AssetStore
	config storage.Config
	logger *observability.Logger
}

// NewStore connects every backend or fails. Redis is not optional; the
// directory cache and notification streams both depend on it.
func NewStore(cfg storage.Config, logger *observability.Logger) (*Store, error) {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, os.Stdout)
	}

	conns, err := NewConnectionManager(ConnectionConfig{
		PrimaryURL:  cfg.PostgresURL,
		ReplicaURLs: cfg.ReplicaURLs(),
		MaxConns:    cfg.PostgresMaxConns,
		MinConns:    cfg.PostgresMinConns,
		Timeout:     cfg.PostgresTimeout,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	redisClient, err := NewRedisClient(cfg)
	if err != nil {
		conns.Close()
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}

	assets, err := NewAssetStore(cfg)
	if err != nil {
		conns.Close()
		redisClient.Close()
		return nil, fmt.Errorf("failed to create asset store: %w", err)
	}

	return &Store{
		conns:  conns,
		redis:  redisClient,
		assets: assets,
		config: cfg,
		logger: logger,
	}, nil
}

// NewAssetStore selects the asset backend from config. The default is
// the local filesystem; production deployments use S3.
func NewAssetStore(cfg storage.Config) (storage.AssetStore, error) {
	switch cfg.AssetBackend {
	case "s3":
		return NewS3Store(cfg)
	case "", "filesystem":
		return storage.NewFilesystemStore(cfg.FilesystemRoot)
	default:
		return nil, fmt.Errorf("unknown asset backend: %q", cfg.AssetBackend)
	}
}

// Primary returns the writable database handle.
func (s *Store) Primary() *sql.DB {
	return s.conns.Primary()
}

// Replica returns a read replica handle, falling back to the primary
// when no replicas are configured.
func (s *Store) Replica() *sql.DB {
	return s.conns.Replica()
}

// Connections returns the underlying connection manager.
func (s *Store) Connections() *ConnectionManager {
	return s.conns
}

// Redis returns the Redis client.
func (s *Store) Redis() *RedisClient {
	return s.redis
}

// Assets returns the asset store.
func (s *Store) Assets() storage.AssetStore {
	return s.assets
}

// Migration is a single versioned schema change. Domain packages each
// export their own set with globally unique versions.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrate merges migration sets from domain packages and applies the
// pending ones in version order against the primary.
func (s *Store) Migrate(ctx context.Context, sets ...[]Migration) error {
	ctx, span := tracer.Start(ctx, "postgres.Migrate")
	defer span.End()

	var migrations []Migration
	seen := make(map[int]string)
	for _, set := range sets {
		for _, m := range set {
			if prev, ok := seen[m.Version]; ok {
				err := fmt.Errorf("duplicate migration version %d (%q and %q)", m.Version, prev, m.Description)
				span.RecordError(err)
				span.SetStatus(codes.Error, "duplicate migration version")
				return err
			}
			seen[m.Version] = m.Description
			migrations = append(migrations, m)
		}
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	span.SetAttributes(attribute.Int("migrations.total", len(migrations)))

	if err := RunMigrations(ctx, s.conns.Primary(), migrations, s.logger); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "migration failed")
		return err
	}

	span.SetStatus(codes.Ok, "migrations applied")
	return nil
}

// RunMigrations applies pending migrations in order, recording each in
// the schema_migrations tracking table. Each migration runs in its own
// transaction together with its tracking row, so a failed migration
// leaves no partial record behind.
func RunMigrations(ctx context.Context, db *sql.DB, migrations []Migration, logger *observability.Logger) error {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, os.Stdout)
	}

	// Create migration tracking table
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	// Get applied migrations
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	// Run pending migrations
	for _, migration := range migrations {
		if appliedVersions[migration.Version] {
			continue
		}

		logger.WithFields(map[string]interface{}{
			"version":     migration.Version,
			"description": migration.Description,
		}).Info("Applying schema migration")

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// HealthCheck verifies every backend.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.conns.HealthCheck(ctx); err != nil {
		return fmt.Errorf("postgres unhealthy: %w", err)
	}

	if err := s.redis.Ping(ctx); err != nil {
		return fmt.Errorf("redis unhealthy: %w", err)
	}

	if err := s.assets.HealthCheck(ctx); err != nil {
		return fmt.Errorf("asset store unhealthy: %w", err)
	}

	return nil
}

// Close closes all connections
func (s *Store) Close() error {
	var errs []error
	if s.conns != nil {
		if err := s.conns.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("store close errors: %v", errs)
	}
	return nil
}
