package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gatherhq/gather/pkg/observability"
	"github.com/gatherhq/gather/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration
	Storage storage.Config

	// Realtime token issuance configuration
	Realtime RealtimeConfig

	// Authentication configuration
	Auth AuthConfig

	// Rate limiting configuration
	RateLimit RateLimitConfig

	// Audit trail configuration
	Audit AuditConfig

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

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	// CORS origins allowed to call the API
	AllowedOrigins []string

	// Maximum accepted request body size in bytes
	MaxBodyBytes int64
}

// RealtimeConfig holds signing settings for pub/sub capability tokens
type RealtimeConfig struct {
	// SigningKey is the shared HMAC secret. The realtime gateway holds
	// the same key and verifies tokens offline.
	SigningKey string

	// Issuer is the iss claim stamped on every token
	Issuer string

	// TokenTTL bounds how long an issued capability stays valid
	TokenTTL time.Duration
}

// AuthConfig holds session and identity provider settings
type AuthConfig struct {
	// OIDC identity provider. When Issuer is empty, sign-in is disabled;
	// existing sessions still validate until they expire.
	OIDCIssuer       string
	OIDCClientID     string
	OIDCClientSecret string
	OIDCRedirectURL  string

	// SessionTTL bounds how long an opaque session token stays valid
	SessionTTL time.Duration
}

// RateLimitConfig holds abuse control settings
type RateLimitConfig struct {
	// FailOpen allows traffic through when the counter store is
	// unconfigured or unreachable. Disable to reject instead.
	FailOpen bool

	// PolicyFile optionally overrides built-in limits. Loaded once at
	// startup; limits are not editable at runtime.
	PolicyFile string
}

// AuditConfig holds audit trail settings
type AuditConfig struct {
	Enabled bool

	// Retention bounds how long audit rows stay in Postgres before the
	// sweeper archives them
	Retention time.Duration

	// ArchivePrefix namespaces archived batches within the S3 bucket
	ArchivePrefix string
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
	OTelInsecure       bool // Use insecure gRPC connection
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := load()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadWorkerConfig loads configuration for background workers. Workers
// share the process environment with the API server but run without the
// signing and identity surfaces, so only storage and retention settings
// are validated.
func LoadWorkerConfig() (*Config, error) {
	cfg := load()

	if err := cfg.validateWorker(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func load() *Config {
	return &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Realtime:      loadRealtimeConfig(),
		Auth:          loadAuthConfig(),
		RateLimit:     loadRateLimitConfig(),
		Audit:         loadAuditConfig(),
		Observability: loadObservabilityConfig(),
	}
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("GATHER_HOST", "0.0.0.0"),
		Port:            getEnv("GATHER_PORT", "8080"),
		ReadTimeout:     getEnvDuration("GATHER_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("GATHER_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("GATHER_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("GATHER_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("GATHER_HEALTH_PORT", "9090"),
		AllowedOrigins:  getEnvList("GATHER_ALLOWED_ORIGINS", []string{"*"}),
		MaxBodyBytes:    getEnvInt64("GATHER_MAX_BODY_BYTES", 1<<20),
	}
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	// PostgreSQL config
	if pgURL := getEnv("GATHER_POSTGRES_URL", ""); pgURL != "" {
		cfg.PostgresURL = pgURL
	}
	if maxConns := getEnvInt("GATHER_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("GATHER_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	if timeout := getEnvDuration("GATHER_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}

	// Redis config. An empty URL is valid: the rate limiter then runs
	// without a counter store and fails open.
	cfg.RedisURL = getEnv("GATHER_REDIS_URL", "")
	if redisPassword := getEnv("GATHER_REDIS_PASSWORD", ""); redisPassword != "" {
		cfg.RedisPassword = redisPassword
	}
	if redisDB := getEnvInt("GATHER_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisMaxRetries := getEnvInt("GATHER_REDIS_MAX_RETRIES", 0); redisMaxRetries > 0 {
		cfg.RedisMaxRetries = redisMaxRetries
	}
	if redisPoolSize := getEnvInt("GATHER_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}

	// S3 config (audit archive)
	if s3Endpoint := getEnv("GATHER_S3_ENDPOINT", ""); s3Endpoint != "" {
		cfg.S3Endpoint = s3Endpoint
	}
	if s3Region := getEnv("GATHER_S3_REGION", ""); s3Region != "" {
		cfg.S3Region = s3Region
	}
	cfg.S3Bucket = getEnv("GATHER_S3_BUCKET", "")
	if s3AccessKey := getEnv("GATHER_S3_ACCESS_KEY", ""); s3AccessKey != "" {
		cfg.S3AccessKey = s3AccessKey
	}
	if s3SecretKey := getEnv("GATHER_S3_SECRET_KEY", ""); s3SecretKey != "" {
		cfg.S3SecretKey = s3SecretKey
	}
	if s3UsePathStyle := getEnv("GATHER_S3_USE_PATH_STYLE", ""); s3UsePathStyle != "" {
		cfg.S3UsePathStyle = strings.ToLower(s3UsePathStyle) == "true"
	}

	return cfg
}

// loadRealtimeConfig loads token issuance configuration from environment
func loadRealtimeConfig() RealtimeConfig {
	return RealtimeConfig{
		SigningKey: getEnv("GATHER_REALTIME_SIGNING_KEY", ""),
		Issuer:     getEnv("GATHER_REALTIME_ISSUER", "gather"),
		TokenTTL:   getEnvDuration("GATHER_REALTIME_TOKEN_TTL", time.Hour),
	}
}

// loadAuthConfig loads authentication configuration from environment
func loadAuthConfig() AuthConfig {
	return AuthConfig{
		OIDCIssuer:       getEnv("GATHER_OIDC_ISSUER", ""),
		OIDCClientID:     getEnv("GATHER_OIDC_CLIENT_ID", ""),
		OIDCClientSecret: getEnv("GATHER_OIDC_CLIENT_SECRET", ""),
		OIDCRedirectURL:  getEnv("GATHER_OIDC_REDIRECT_URL", ""),
		SessionTTL:       getEnvDuration("GATHER_SESSION_TTL", 720*time.Hour),
	}
}

// loadRateLimitConfig loads abuse control configuration from environment
func loadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		FailOpen:   getEnvBool("GATHER_RATELIMIT_FAIL_OPEN", true),
		PolicyFile: getEnv("GATHER_RATELIMIT_POLICY_FILE", ""),
	}
}

// loadAuditConfig loads audit trail configuration from environment
func loadAuditConfig() AuditConfig {
	return AuditConfig{
		Enabled:       getEnvBool("GATHER_AUDIT_ENABLED", true),
		Retention:     getEnvDuration("GATHER_AUDIT_RETENTION", 90*24*time.Hour),
		ArchivePrefix: getEnv("GATHER_AUDIT_ARCHIVE_PREFIX", "audit"),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLevel(getEnv("GATHER_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("GATHER_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("GATHER_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("GATHER_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("GATHER_OTEL_SERVICE_NAME", "gather"),
		OTelServiceVersion: getEnv("GATHER_OTEL_SERVICE_VERSION", observability.Version),
		OTelInsecure:       getEnvBool("GATHER_OTEL_INSECURE", true),
	}
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
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("max body bytes must be positive")
	}

	// Validate storage config. Postgres is the system of record for
	// memberships and RSVPs; there is no degraded mode without it.
	if c.Storage.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	// Validate realtime config. Tokens cannot be minted without a key,
	// and anything under a minute churns reconnects on the gateway.
	if c.Realtime.SigningKey == "" {
		return fmt.Errorf("realtime signing key is required")
	}
	if len(c.Realtime.SigningKey) < 32 {
		return fmt.Errorf("realtime signing key must be at least 32 bytes")
	}
	if c.Realtime.TokenTTL < time.Minute || c.Realtime.TokenTTL > 24*time.Hour {
		return fmt.Errorf("realtime token TTL must be between 1m and 24h")
	}

	// Validate OIDC config: all-or-nothing
	if c.Auth.OIDCIssuer != "" {
		if c.Auth.OIDCClientID == "" || c.Auth.OIDCClientSecret == "" {
			return fmt.Errorf("OIDC client ID and secret are required when an OIDC issuer is set")
		}
		if c.Auth.OIDCRedirectURL == "" {
			return fmt.Errorf("OIDC redirect URL is required when an OIDC issuer is set")
		}
	}
	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}

	// Validate audit archive config
	if c.Storage.S3Bucket != "" && c.Storage.S3Region == "" {
		return fmt.Errorf("S3 region is required when an archive bucket is set")
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

	return nil
}

// validateWorker checks the subset of configuration background workers
// depend on.
func (c *Config) validateWorker() error {
	if c.Storage.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}
	if c.Audit.Retention <= 0 {
		return fmt.Errorf("audit retention must be positive")
	}
	if c.Storage.S3Bucket != "" && c.Storage.S3Region == "" {
		return fmt.Errorf("S3 region is required when an archive bucket is set")
	}
	return nil
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

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList returns a comma-separated environment variable or a default
func getEnvList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
