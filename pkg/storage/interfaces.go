package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
)

// ErrAssetNotFound is returned by AssetStore.Get for unknown keys.
var ErrAssetNotFound = errors.New("asset not found")

// AssetStore persists enterprise branding assets (logos) behind a pluggable
// backend. Keys are opaque paths scoped by enterprise ID.
type AssetStore interface {
	// Put stores an asset and returns its storage key
	Put(ctx context.Context, key string, content io.Reader, contentType string) error

	// Get retrieves an asset by key
	Get(ctx context.Context, key string) (io.ReadCloser, string, error)

	// Delete removes an asset by key
	Delete(ctx context.Context, key string) error

	// URL returns a serveable URL for the asset
	URL(key string) string

	// HealthCheck verifies the backend is reachable
	HealthCheck(ctx context.Context) error
}

// Config for storage backends
type Config struct {
	// PostgreSQL config
	PostgresURL         string
	PostgresReplicaURLs string // comma-separated read replica URLs
	PostgresMaxConns    int
	PostgresMinConns    int
	PostgresTimeout     time.Duration

	// Redis config
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int

	// Branding asset config
	AssetBackend   string // "filesystem" or "s3"
	FilesystemRoot string

	// S3 config
	S3Endpoint     string
	S3Region       string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		PostgresMaxConns: 20,
		PostgresMinConns: 2,
		PostgresTimeout:  10 * time.Second,
		RedisURL:         "localhost:6379",
		RedisDB:          0,
		RedisMaxRetries:  3,
		RedisPoolSize:    10,
		AssetBackend:     "filesystem",
		FilesystemRoot:   "/tmp/usher",
	}
}

// ReplicaURLs splits the comma-separated replica list, dropping empties.
func (c Config) ReplicaURLs() []string {
	if c.PostgresReplicaURLs == "" {
		return nil
	}
	var urls []string
	for _, u := range strings.Split(c.PostgresReplicaURLs, ",") {
		if trimmed := strings.TrimSpace(u); trimmed != "" {
			urls = append(urls, trimmed)
		}
	}
	return urls
}
