// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all non-secret settings. An optional YAML overlay file
// can be applied on top of the environment for deployments that ship config as
// files.
//
// # Configuration Structure
//
// Server settings:
//
//	USHER_HOST="0.0.0.0"
//	USHER_PORT="8080"
//	USHER_HEALTH_PORT="9090"
//	USHER_READ_TIMEOUT="15s"
//	USHER_WRITE_TIMEOUT="15s"
//	USHER_REQUEST_TIMEOUT="30s"
//	USHER_CORS_ORIGINS="*"
//
// Storage settings:
//
//	USHER_POSTGRES_URL="postgres://localhost/usher"
//	USHER_POSTGRES_REPLICA_URLS="postgres://replica1,postgres://replica2"
//	USHER_POSTGRES_MAX_CONNS="20"
//	USHER_REDIS_URL="localhost:6379"
//	USHER_ASSET_BACKEND="filesystem"  # filesystem, s3
//	USHER_FILESYSTEM_ROOT="/var/usher/assets"
//	USHER_S3_BUCKET="usher-assets"
//	USHER_S3_REGION="us-east-1"
//
// Identity provider settings:
//
//	USHER_IDP_BASE_URL="https://idp.example.com"
//	USHER_IDP_TOKEN_URL="https://idp.example.com/oauth/token"
//	USHER_IDP_CLIENT_ID="usher-m2m"
//	USHER_IDP_CLIENT_SECRET="..."
//	USHER_IDP_TIMEOUT="10s"
//
// Invitation settings:
//
//	USHER_INVITATION_BASE_URL="https://enroll.example.com/onboarding"
//	USHER_INVITATION_SIGNING_SECRET="..."
//	USHER_INVITATION_TTL="72h"
//
// Tenant resolution settings:
//
//	USHER_TENANT_SCHEMA_PREFIX="tenant_"
//	USHER_TENANT_CACHE_SIZE="1024"
//	USHER_TENANT_CACHE_TTL="5m"
//	USHER_DIRECTORY_CACHE_TTL="0"  # 0 disables expiry
//
// Observability settings:
//
//	USHER_LOG_LEVEL="info"  # debug, info, warn, error
//	USHER_METRICS_ENABLED="true"
//	USHER_OTEL_ENABLED="false"
//	USHER_OTEL_ENDPOINT="localhost:4317"
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Invitation TTL: %s\n", cfg.Invitation.TTL)
//	fmt.Printf("Log level: %s\n", cfg.Observability.LogLevel)
//
// With a YAML overlay:
//
//	cfg, err := config.LoadConfigFromFile("/etc/usher/usher.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
// File values override environment values field by field. Durations in the
// file use Go duration strings ("15s", "72h").
//
// # Related Packages
//
//   - pkg/storage: Uses storage configuration
//   - pkg/observability: Uses observability configuration
//   - pkg/idp: Uses identity provider configuration
package config
