package config

import (
	"fmt"
	"time"
)

// fileConfig is the YAML schema for the optional config overlay. Durations are
// expressed as Go duration strings ("15s", "72h"). Absent fields leave the
// environment-derived value untouched; booleans use pointers so an explicit
// false still overrides.
type fileConfig struct {
	Server struct {
		Host            string   `yaml:"host"`
		Port            string   `yaml:"port"`
		HealthPort      string   `yaml:"health_port"`
		ReadTimeout     string   `yaml:"read_timeout"`
		WriteTimeout    string   `yaml:"write_timeout"`
		IdleTimeout     string   `yaml:"idle_timeout"`
		ShutdownTimeout string   `yaml:"shutdown_timeout"`
		RequestTimeout  string   `yaml:"request_timeout"`
		MaxBodyBytes    int64    `yaml:"max_body_bytes"`
		CORSOrigins     []string `yaml:"cors_origins"`
	} `yaml:"server"`

	Storage struct {
		PostgresURL         string `yaml:"postgres_url"`
		PostgresReplicaURLs string `yaml:"postgres_replica_urls"`
		PostgresMaxConns    int    `yaml:"postgres_max_conns"`
		PostgresMinConns    int    `yaml:"postgres_min_conns"`
		PostgresTimeout     string `yaml:"postgres_timeout"`
		RedisURL            string `yaml:"redis_url"`
		RedisPassword       string `yaml:"redis_password"`
		RedisDB             *int   `yaml:"redis_db"`
		RedisMaxRetries     int    `yaml:"redis_max_retries"`
		RedisPoolSize       int    `yaml:"redis_pool_size"`
		AssetBackend        string `yaml:"asset_backend"`
		FilesystemRoot      string `yaml:"filesystem_root"`
		S3Endpoint          string `yaml:"s3_endpoint"`
		S3Region            string `yaml:"s3_region"`
		S3Bucket            string `yaml:"s3_bucket"`
		S3AccessKey         string `yaml:"s3_access_key"`
		S3SecretKey         string `yaml:"s3_secret_key"`
		S3UsePathStyle      *bool  `yaml:"s3_use_path_style"`
	} `yaml:"storage"`

	IdP struct {
		BaseURL      string `yaml:"base_url"`
		TokenURL     string `yaml:"token_url"`
		ClientID     string `yaml:"client_id"`
		ClientSecret string `yaml:"client_secret"`
		Audience     string `yaml:"audience"`
		Timeout      string `yaml:"timeout"`
	} `yaml:"idp"`

	Messaging struct {
		InvitationStream     string `yaml:"invitation_stream"`
		StorageRequestStream string `yaml:"storage_request_stream"`
		DeletionStream       string `yaml:"deletion_stream"`
		StreamMaxLen         int64  `yaml:"stream_max_len"`
	} `yaml:"messaging"`

	Invitation struct {
		BaseURL       string `yaml:"base_url"`
		SigningSecret string `yaml:"signing_secret"`
		TTL           string `yaml:"ttl"`
	} `yaml:"invitation"`

	Tenant struct {
		SchemaPrefix      string `yaml:"schema_prefix"`
		ResolverCacheSize int    `yaml:"resolver_cache_size"`
		ResolverCacheTTL  string `yaml:"resolver_cache_ttl"`
		DirectoryCacheTTL string `yaml:"directory_cache_ttl"`
	} `yaml:"tenant"`

	Auth struct {
		OIDCIssuer   string `yaml:"oidc_issuer"`
		OIDCClientID string `yaml:"oidc_client_id"`
		Disabled     *bool  `yaml:"disabled"`
	} `yaml:"auth"`

	Janitor struct {
		Schedule     string `yaml:"schedule"`
		TicketMaxAge string `yaml:"ticket_max_age"`
	} `yaml:"janitor"`

	Observability struct {
		LogLevel           string   `yaml:"log_level"`
		MetricsEnabled     *bool    `yaml:"metrics_enabled"`
		OTelEnabled        *bool    `yaml:"otel_enabled"`
		OTelEndpoint       string   `yaml:"otel_endpoint"`
		OTelServiceName    string   `yaml:"otel_service_name"`
		OTelServiceVersion string   `yaml:"otel_service_version"`
		OTelEnvironment    string   `yaml:"otel_environment"`
		OTelInsecure       *bool    `yaml:"otel_insecure"`
		OTelSampleRatio    *float64 `yaml:"otel_sample_ratio"`
	} `yaml:"observability"`
}

// apply overlays the file values onto the environment-derived config
func (fc *fileConfig) apply(cfg *Config) error {
	overlayString(&cfg.Server.Host, fc.Server.Host)
	overlayString(&cfg.Server.Port, fc.Server.Port)
	overlayString(&cfg.Server.HealthPort, fc.Server.HealthPort)
	if err := overlayDuration(&cfg.Server.ReadTimeout, fc.Server.ReadTimeout, "server.read_timeout"); err != nil {
		return err
	}
	if err := overlayDuration(&cfg.Server.WriteTimeout, fc.Server.WriteTimeout, "server.write_timeout"); err != nil {
		return err
	}
	if err := overlayDuration(&cfg.Server.IdleTimeout, fc.Server.IdleTimeout, "server.idle_timeout"); err != nil {
		return err
	}
	if err := overlayDuration(&cfg.Server.ShutdownTimeout, fc.Server.ShutdownTimeout, "server.shutdown_timeout"); err != nil {
		return err
	}
	if err := overlayDuration(&cfg.Server.RequestTimeout, fc.Server.RequestTimeout, "server.request_timeout"); err != nil {
		return err
	}
	if fc.Server.MaxBodyBytes > 0 {
		cfg.Server.MaxBodyBytes = fc.Server.MaxBodyBytes
	}
	if len(fc.Server.CORSOrigins) > 0 {
		cfg.Server.CORSOrigins = fc.Server.CORSOrigins
	}

	overlayString(&cfg.Storage.PostgresURL, fc.Storage.PostgresURL)
	overlayString(&cfg.Storage.PostgresReplicaURLs, fc.Storage.PostgresReplicaURLs)
	if fc.Storage.PostgresMaxConns > 0 {
		cfg.Storage.PostgresMaxConns = fc.Storage.PostgresMaxConns
	}
	if fc.Storage.PostgresMinConns > 0 {
		cfg.Storage.PostgresMinConns = fc.Storage.PostgresMinConns
	}
	if err := overlayDuration(&cfg.Storage.PostgresTimeout, fc.Storage.PostgresTimeout, "storage.postgres_timeout"); err != nil {
		return err
	}
	overlayString(&cfg.Storage.RedisURL, fc.Storage.RedisURL)
	overlayString(&cfg.Storage.RedisPassword, fc.Storage.RedisPassword)
	if fc.Storage.RedisDB != nil {
		cfg.Storage.RedisDB = *fc.Storage.RedisDB
	}
	if fc.Storage.RedisMaxRetries > 0 {
		cfg.Storage.RedisMaxRetries = fc.Storage.RedisMaxRetries
	}
	if fc.Storage.RedisPoolSize > 0 {
		cfg.Storage.RedisPoolSize = fc.Storage.RedisPoolSize
	}
	overlayString(&cfg.Storage.AssetBackend, fc.Storage.AssetBackend)
	overlayString(&cfg.Storage.FilesystemRoot, fc.Storage.FilesystemRoot)
	overlayString(&cfg.Storage.S3Endpoint, fc.Storage.S3Endpoint)
	overlayString(&cfg.Storage.S3Region, fc.Storage.S3Region)
	overlayString(&cfg.Storage.S3Bucket, fc.Storage.S3Bucket)
	overlayString(&cfg.Storage.S3AccessKey, fc.Storage.S3AccessKey)
	overlayString(&cfg.Storage.S3SecretKey, fc.Storage.S3SecretKey)
	if fc.Storage.S3UsePathStyle != nil {
		cfg.Storage.S3UsePathStyle = *fc.Storage.S3UsePathStyle
	}

	overlayString(&cfg.IdP.BaseURL, fc.IdP.BaseURL)
	overlayString(&cfg.IdP.TokenURL, fc.IdP.TokenURL)
	overlayString(&cfg.IdP.ClientID, fc.IdP.ClientID)
	overlayString(&cfg.IdP.ClientSecret, fc.IdP.ClientSecret)
	overlayString(&cfg.IdP.Audience, fc.IdP.Audience)
	if err := overlayDuration(&cfg.IdP.Timeout, fc.IdP.Timeout, "idp.timeout"); err != nil {
		return err
	}

	overlayString(&cfg.Messaging.InvitationStream, fc.Messaging.InvitationStream)
	overlayString(&cfg.Messaging.StorageRequestStream, fc.Messaging.StorageRequestStream)
	overlayString(&cfg.Messaging.DeletionStream, fc.Messaging.DeletionStream)
	if fc.Messaging.StreamMaxLen > 0 {
		cfg.Messaging.StreamMaxLen = fc.Messaging.StreamMaxLen
	}

	overlayString(&cfg.Invitation.BaseURL, fc.Invitation.BaseURL)
	overlayString(&cfg.Invitation.SigningSecret, fc.Invitation.SigningSecret)
	if err := overlayDuration(&cfg.Invitation.TTL, fc.Invitation.TTL, "invitation.ttl"); err != nil {
		return err
	}

	overlayString(&cfg.Tenant.SchemaPrefix, fc.Tenant.SchemaPrefix)
	if fc.Tenant.ResolverCacheSize > 0 {
		cfg.Tenant.ResolverCacheSize = fc.Tenant.ResolverCacheSize
	}
	if err := overlayDuration(&cfg.Tenant.ResolverCacheTTL, fc.Tenant.ResolverCacheTTL, "tenant.resolver_cache_ttl"); err != nil {
		return err
	}
	if err := overlayDuration(&cfg.Tenant.DirectoryCacheTTL, fc.Tenant.DirectoryCacheTTL, "tenant.directory_cache_ttl"); err != nil {
		return err
	}

	overlayString(&cfg.Auth.OIDCIssuer, fc.Auth.OIDCIssuer)
	overlayString(&cfg.Auth.OIDCClientID, fc.Auth.OIDCClientID)
	if fc.Auth.Disabled != nil {
		cfg.Auth.Disabled = *fc.Auth.Disabled
	}

	overlayString(&cfg.Janitor.Schedule, fc.Janitor.Schedule)
	if err := overlayDuration(&cfg.Janitor.TicketMaxAge, fc.Janitor.TicketMaxAge, "janitor.ticket_max_age"); err != nil {
		return err
	}

	if fc.Observability.LogLevel != "" {
		cfg.Observability.LogLevel = parseLogLevel(fc.Observability.LogLevel)
	}
	if fc.Observability.MetricsEnabled != nil {
		cfg.Observability.MetricsEnabled = *fc.Observability.MetricsEnabled
	}
	if fc.Observability.OTelEnabled != nil {
		cfg.Observability.OTelEnabled = *fc.Observability.OTelEnabled
	}
	overlayString(&cfg.Observability.OTelEndpoint, fc.Observability.OTelEndpoint)
	overlayString(&cfg.Observability.OTelServiceName, fc.Observability.OTelServiceName)
	overlayString(&cfg.Observability.OTelServiceVersion, fc.Observability.OTelServiceVersion)
	overlayString(&cfg.Observability.OTelEnvironment, fc.Observability.OTelEnvironment)
	if fc.Observability.OTelInsecure != nil {
		cfg.Observability.OTelInsecure = *fc.Observability.OTelInsecure
	}
	if fc.Observability.OTelSampleRatio != nil {
		cfg.Observability.OTelSampleRatio = *fc.Observability.OTelSampleRatio
	}

	return nil
}

func overlayString(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

func overlayDuration(dst *time.Duration, src, field string) error {
	if src == "" {
		return nil
	}
	d, err := time.ParseDuration(src)
	if err != nil {
		return fmt.Errorf("invalid duration for %s: %q", field, src)
	}
	*dst = d
	return nil
}
