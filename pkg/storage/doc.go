// Package storage provides persistence backends for the Usher onboarding control plane.
//
// # Overview
//
// This package defines the storage abstraction layer for Usher: PostgreSQL
// connection management (primary plus optional read replicas), the Redis client
// used for the admin directory cache and notification streams, and a pluggable
// asset store for enterprise branding uploads (filesystem or S3).
//
// # Architecture
//
// The package splits along two lines:
//
//   - pkg/storage: backend-neutral configuration and the AssetStore interface,
//     plus the filesystem AssetStore implementation
//   - pkg/storage/postgres: PostgreSQL connection pools, the Redis client and
//     directory cache, and the S3 AssetStore implementation
//
// Domain row storage (enterprises, admins, SSO tickets, webhooks, audit
// records) lives with its domain package; this package only hands out
// configured connections and stores.
//
// # Asset Store
//
// Branding assets are stored behind the AssetStore interface:
//
//	type AssetStore interface {
//		Put(ctx context.Context, key string, content io.Reader, contentType string) error
//		Get(ctx context.Context, key string) (io.ReadCloser, string, error)
//		Delete(ctx context.Context, key string) error
//		URL(key string) string
//		HealthCheck(ctx context.Context) error
//	}
//
// Keys are slash-separated paths scoped by enterprise ID, for example
// "enterprises/<id>/logo.png". Get returns ErrAssetNotFound for unknown keys
// so handlers can map it to a 404.
//
// FilesystemStore: stores assets and a small JSON metadata sidecar on disk.
// Best for development and single-node deployments.
//
//	store, err := storage.NewFilesystemStore("/var/usher/assets")
//
// S3Store (pkg/storage/postgres): stores assets in an S3 bucket, with
// path-style addressing support for MinIO-compatible endpoints. Best for
// production.
//
// # Configuration
//
// Storage backends are configured through the Config struct:
//
//	config := storage.DefaultConfig()
//	config.PostgresURL = "postgres://localhost/usher"
//	config.PostgresReplicaURLs = "postgres://replica1,postgres://replica2"
//	config.PostgresMaxConns = 20
//	config.PostgresMinConns = 2
//	config.PostgresTimeout = 10 * time.Second
//
//	// Redis for the directory cache and notification streams
//	config.RedisURL = "localhost:6379"
//	config.RedisPoolSize = 10
//
//	// Branding assets
//	config.AssetBackend = "s3"
//	config.S3Region = "us-east-1"
//	config.S3Bucket = "usher-assets"
//
// Read traffic that tolerates replica lag can be pointed at the replica pool;
// everything in the onboarding saga uses the primary because its conditional
// updates must see current state.
//
// # Related Packages
//
//   - pkg/storage/postgres: PostgreSQL, Redis, and S3 implementations
//   - pkg/enterprise: enterprise and admin row storage
//   - pkg/config: environment-driven construction of Config
package storage
