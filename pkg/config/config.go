package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/usher/pkg/observability"
	"github.com/platinummonkey/usher/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration
	Storage storage.Config

	// Identity provider management API
	IdP IdPConfig

	// Notification stream configuration
	Messaging MessagingConfig

	// Invitation token configuration
	Invitation InvitationConfig

	// Tenant resolution configuration
	Tenant TenantConfig

	// Operator authentication configuration
	Auth AuthConfig

	// Janitor schedules
	Janitor JanitorConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
	MaxBodyBytes    int64
	CORSOrigins     []string

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// IdPConfig holds identity provider management API settings
type IdPConfig struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Audience     string
	Timeout      time.Duration
}

// MessagingConfig holds notification stream names
type MessagingConfig struct {
	InvitationStream     string
	StorageRequestStream string
	DeletionStream       string
	StreamMaxLen         int64
}

// InvitationConfig holds invitation token settings
type InvitationConfig struct {
	// BaseURL is the public onboarding page the signed token is appended to
	BaseURL       string
	SigningSecret string
	TTL           time.Duration
}

// TenantConfig holds tenant resolution settings
type TenantConfig struct {
	SchemaPrefix      string
	ResolverCacheSize int
	ResolverCacheTTL  time.Duration
	DirectoryCacheTTL time.Duration
}

// AuthConfig holds operator authentication settings
type AuthConfig struct {
	OIDCIssuer   string
	OIDCClientID string
	// Disabled bypasses operator auth for local development
	Disabled bool
}

// JanitorConfig holds janitor schedule settings
type JanitorConfig struct {
	Schedule     string
	TicketMaxAge time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelEnvironment    string
	OTelInsecure       bool // Use insecure gRPC connection
	OTelSampleRatio    float64
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		IdP:           loadIdPConfig(),
		Messaging:     loadMessagingConfig(),
		Invitation:    loadInvitationConfig(),
		Tenant:        loadTenantConfig(),
		Auth:          loadAuthConfig(),
		Janitor:       loadJanitorConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigFromFile loads environment configuration with a YAML overlay
// applied on top. An empty path behaves exactly like LoadConfig.
func LoadConfigFromFile(path string) (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		IdP:           loadIdPConfig(),
		Messaging:     loadMessagingConfig(),
		Invitation:    loadInvitationConfig(),
		Tenant:        loadTenantConfig(),
		Auth:          loadAuthConfig(),
		Janitor:       loadJanitorConfig(),
		Observability: loadObservabilityConfig(),
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		var fc fileConfig
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		if err := fc.apply(cfg); err != nil {
			return nil, fmt.Errorf("failed to apply config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadJanitorConfig loads only the sections the janitor binary needs:
// storage and sweep settings. The full Validate does not run, so the
// janitor starts without the API server's identity provider credentials.
func LoadJanitorConfig() (*Config, error) {
	cfg := &Config{
		Storage: loadStorageConfig(),
		Janitor: loadJanitorConfig(),
	}
	if cfg.Storage.PostgresURL == "" {
		return nil, fmt.Errorf("postgres URL is required")
	}
	if cfg.Janitor.TicketMaxAge <= 0 {
		return nil, fmt.Errorf("ticket max age must be positive")
	}
	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("USHER_HOST", "0.0.0.0"),
		Port:            getEnv("USHER_PORT", "8080"),
		ReadTimeout:     getEnvDuration("USHER_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("USHER_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("USHER_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("USHER_SHUTDOWN_TIMEOUT", 30*time.Second),
		RequestTimeout:  getEnvDuration("USHER_REQUEST_TIMEOUT", 30*time.Second),
		MaxBodyBytes:    getEnvInt64("USHER_MAX_BODY_BYTES", 1<<20),
		CORSOrigins:     splitCommaList(getEnv("USHER_CORS_ORIGINS", "*")),
		HealthPort:      getEnv("USHER_HEALTH_PORT", "9090"),
	}
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	// PostgreSQL config
	if pgURL := getEnv("USHER_POSTGRES_URL", ""); pgURL != "" {
		cfg.PostgresURL = pgURL
	}
	if replicaURLs := getEnv("USHER_POSTGRES_REPLICA_URLS", ""); replicaURLs != "" {
		cfg.PostgresReplicaURLs = replicaURLs
	}
	if maxConns := getEnvInt("USHER_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("USHER_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	if timeout := getEnvDuration("USHER_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}

	// Redis config
	if redisURL := getEnv("USHER_REDIS_URL", ""); redisURL != "" {
		cfg.RedisURL = redisURL
	}
	if redisPassword := getEnv("USHER_REDIS_PASSWORD", ""); redisPassword != "" {
		cfg.RedisPassword = redisPassword
	}
	if redisDB := getEnvInt("USHER_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisMaxRetries := getEnvInt("USHER_REDIS_MAX_RETRIES", 0); redisMaxRetries > 0 {
		cfg.RedisMaxRetries = redisMaxRetries
	}
	if redisPoolSize := getEnvInt("USHER_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}

	// Branding asset config
	if backend := getEnv("USHER_ASSET_BACKEND", ""); backend != "" {
		cfg.AssetBackend = backend
	}
	if fsRoot := getEnv("USHER_FILESYSTEM_ROOT", ""); fsRoot != "" {
		cfg.FilesystemRoot = fsRoot
	}

	// S3 config
	if s3Endpoint := getEnv("USHER_S3_ENDPOINT", ""); s3Endpoint != "" {
		cfg.S3Endpoint = s3Endpoint
	}
	if s3Region := getEnv("USHER_S3_REGION", ""); s3Region != "" {
		cfg.S3Region = s3Region
	}
	if s3Bucket := getEnv("USHER_S3_BUCKET", ""); s3Bucket != "" {
		cfg.S3Bucket = s3Bucket
	}
	if s3AccessKey := getEnv("USHER_S3_ACCESS_KEY", ""); s3AccessKey != "" {
		cfg.S3AccessKey = s3AccessKey
	}
	if s3SecretKey := getEnv("USHER_S3_SECRET_KEY", ""); s3SecretKey != "" {
		cfg.S3SecretKey = s3SecretKey
	}
	if s3UsePathStyle := getEnv("USHER_S3_USE_PATH_STYLE", ""); s3UsePathStyle != "" {
		cfg.S3UsePathStyle = strings.ToLower(s3UsePathStyle) == "true"
	}

	return cfg
}

// loadIdPConfig loads identity provider configuration from environment
func loadIdPConfig() IdPConfig {
	return IdPConfig{
		BaseURL:      getEnv("USHER_IDP_BASE_URL", ""),
		TokenURL:     getEnv("USHER_IDP_TOKEN_URL", ""),
		ClientID:     getEnv("USHER_IDP_CLIENT_ID", ""),
		ClientSecret: getEnv("USHER_IDP_CLIENT_SECRET", ""),
		Audience:     getEnv("USHER_IDP_AUDIENCE", ""),
		Timeout:      getEnvDuration("USHER_IDP_TIMEOUT", 10*time.Second),
	}
}

// loadMessagingConfig loads notification stream configuration from environment
func loadMessagingConfig() MessagingConfig {
	return MessagingConfig{
		InvitationStream:     getEnv("USHER_INVITATION_STREAM", "enterprise-invitations"),
		StorageRequestStream: getEnv("USHER_STORAGE_REQUEST_STREAM", "tenant-storage-requests"),
		DeletionStream:       getEnv("USHER_DELETION_STREAM", "enterprise-deletions"),
		StreamMaxLen:         getEnvInt64("USHER_STREAM_MAX_LEN", 10000),
	}
}

// loadInvitationConfig loads invitation token configuration from environment
func loadInvitationConfig() InvitationConfig {
	return InvitationConfig{
		BaseURL:       getEnv("USHER_INVITATION_BASE_URL", ""),
		SigningSecret: getEnv("USHER_INVITATION_SIGNING_SECRET", ""),
		TTL:           getEnvDuration("USHER_INVITATION_TTL", 72*time.Hour),
	}
}

// loadTenantConfig loads tenant resolution configuration from environment
func loadTenantConfig() TenantConfig {
	return TenantConfig{
		SchemaPrefix:      getEnv("USHER_TENANT_SCHEMA_PREFIX", "tenant_"),
		ResolverCacheSize: getEnvInt("USHER_TENANT_CACHE_SIZE", 1024),
		ResolverCacheTTL:  getEnvDuration("USHER_TENANT_CACHE_TTL", 5*time.Minute),
		DirectoryCacheTTL: getEnvDuration("USHER_DIRECTORY_CACHE_TTL", 0),
	}
}

// loadAuthConfig loads operator authentication configuration from environment
func loadAuthConfig() AuthConfig {
	return AuthConfig{
		OIDCIssuer:   getEnv("USHER_OIDC_ISSUER", ""),
		OIDCClientID: getEnv("USHER_OIDC_CLIENT_ID", ""),
		Disabled:     getEnvBool("USHER_AUTH_DISABLED", false),
	}
}

// loadJanitorConfig loads janitor configuration from environment
func loadJanitorConfig() JanitorConfig {
	return JanitorConfig{
		Schedule:     getEnv("USHER_JANITOR_SCHEDULE", "*/15 * * * *"),
		TicketMaxAge: getEnvDuration("USHER_TICKET_MAX_AGE", 24*time.Hour),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	cfg := ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("USHER_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("USHER_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("USHER_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("USHER_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("USHER_OTEL_SERVICE_NAME", "usher"),
		OTelServiceVersion: getEnv("USHER_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelEnvironment:    getEnv("USHER_OTEL_ENVIRONMENT", ""),
		OTelInsecure:       getEnvBool("USHER_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("USHER_OTEL_SAMPLE_RATIO", 0),
	}

	return cfg
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	// Validate storage config
	if c.Storage.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Storage.RedisURL == "" {
		return fmt.Errorf("redis URL is required")
	}
	switch c.Storage.AssetBackend {
	case "filesystem":
		if c.Storage.FilesystemRoot == "" {
			return fmt.Errorf("filesystem root is required for filesystem asset storage")
		}
	case "s3":
		if c.Storage.S3Bucket == "" || c.Storage.S3Region == "" {
			return fmt.Errorf("S3 bucket and region are required for s3 asset storage")
		}
	default:
		return fmt.Errorf("invalid asset backend: %s (must be filesystem or s3)", c.Storage.AssetBackend)
	}

	// Validate identity provider config
	if c.IdP.BaseURL == "" {
		return fmt.Errorf("identity provider base URL is required")
	}
	if c.IdP.TokenURL == "" {
		return fmt.Errorf("identity provider token URL is required")
	}
	if c.IdP.ClientID == "" || c.IdP.ClientSecret == "" {
		return fmt.Errorf("identity provider client credentials are required")
	}

	// Validate messaging config
	if c.Messaging.InvitationStream == "" || c.Messaging.StorageRequestStream == "" || c.Messaging.DeletionStream == "" {
		return fmt.Errorf("notification stream names must not be empty")
	}

	// Validate invitation config
	if c.Invitation.BaseURL == "" {
		return fmt.Errorf("invitation base URL is required")
	}
	if c.Invitation.SigningSecret == "" {
		return fmt.Errorf("invitation signing secret is required")
	}
	if c.Invitation.TTL <= 0 {
		return fmt.Errorf("invitation TTL must be positive")
	}

	// Validate tenant config
	if c.Tenant.SchemaPrefix == "" {
		return fmt.Errorf("tenant schema prefix is required")
	}
	if c.Tenant.ResolverCacheSize <= 0 {
		return fmt.Errorf("tenant resolver cache size must be positive")
	}

	// Validate auth config
	if !c.Auth.Disabled {
		if c.Auth.OIDCIssuer == "" || c.Auth.OIDCClientID == "" {
			return fmt.Errorf("OIDC issuer and client ID are required unless auth is disabled")
		}
	}

	// Validate janitor config
	if c.Janitor.Schedule == "" {
		return fmt.Errorf("janitor schedule is required")
	}
	if c.Janitor.TicketMaxAge <= 0 {
		return fmt.Errorf("janitor ticket max age must be positive")
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}
	if c.Observability.OTelSampleRatio < 0 || c.Observability.OTelSampleRatio > 1 {
		return fmt.Errorf("OpenTelemetry sample ratio must be between 0 and 1")
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// splitCommaList splits a comma-separated env value into trimmed entries
func splitCommaList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float64 environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
