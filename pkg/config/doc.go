// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings.
//
// # Configuration Structure
//
// Server settings:
//
//	GATHER_HOST="0.0.0.0"
//	GATHER_PORT="8080"
//	GATHER_HEALTH_PORT="9090"
//	GATHER_READ_TIMEOUT="15s"
//	GATHER_WRITE_TIMEOUT="15s"
//	GATHER_ALLOWED_ORIGINS="https://app.gather.example"
//
// Storage settings:
//
//	GATHER_POSTGRES_URL="postgres://localhost/gather"   # required
//	GATHER_POSTGRES_MAX_CONNS="25"
//	GATHER_REDIS_URL="redis://localhost:6379"           # optional; empty = rate limiter fails open
//	GATHER_S3_BUCKET="gather-audit"                     # optional audit archive
//	GATHER_S3_REGION="us-east-1"
//
// Realtime token settings:
//
//	GATHER_REALTIME_SIGNING_KEY="..."   # required, >= 32 bytes, shared with the gateway
//	GATHER_REALTIME_ISSUER="gather"
//	GATHER_REALTIME_TOKEN_TTL="1h"
//
// Authentication settings:
//
//	GATHER_OIDC_ISSUER="https://id.gather.example"
//	GATHER_OIDC_CLIENT_ID="gather-web"
//	GATHER_OIDC_CLIENT_SECRET="..."
//	GATHER_OIDC_REDIRECT_URL="https://app.gather.example/callback"
//	GATHER_SESSION_TTL="720h"
//
// Rate limit settings:
//
//	GATHER_RATELIMIT_FAIL_OPEN="true"
//	GATHER_RATELIMIT_POLICY_FILE="/etc/gather/limits.yaml"
//
// Observability settings:
//
//	GATHER_LOG_LEVEL="info"  # debug, info, warn, error
//	GATHER_METRICS_ENABLED="true"
//	GATHER_OTEL_ENABLED="true"
//	GATHER_OTEL_ENDPOINT="otel-collector:4317"
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
//	fmt.Printf("Log level: %v\n", cfg.Observability.LogLevel)
//
// # Related Packages
//
//   - pkg/storage: Uses storage configuration
//   - pkg/observability: Uses observability configuration
package config
