package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// RateLimitConfig holds per-category rate limiting settings.
type RateLimitConfig struct {
	Enabled bool

	ResolveRequestsPerMinute int
	ResolveWindowMinutes     int

	AdminRequestsPerMinute int
	AdminWindowMinutes     int

	WebhookRequestsPerMinute int
	WebhookWindowMinutes     int
}

// SecurityHeadersConfig holds security header settings.
type SecurityHeadersConfig struct {
	Enabled            bool
	CSP                string
	HSTSMaxAge         int
	FrameOptions       string
	ContentTypeOptions string
	XSSProtection      string
	ReferrerPolicy     string
}

// Config holds application configuration.
type Config struct {
	// Server
	ServerAddr string
	ServerPort int

	// Main registry database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Tenant context cache
	CacheTTL  time.Duration
	CacheSize int

	// Tenant resolution over HTTP
	TenantHeader string // header carrying the tenant key
	BaseDomain   string // when set, tenant keys are parsed from Host subdomains

	// Service auth for admin/webhook endpoints
	ServiceAuthSecret string
	ServiceAuthIssuer string

	// Redis invalidation fan-out (optional; empty addr disables it)
	RedisAddr           string
	RedisPassword       string
	RedisDB             int
	InvalidationChannel string

	// HTTP hygiene
	MaxRequestBodySize int64
	RateLimit          RateLimitConfig
	SecurityHeaders    SecurityHeadersConfig
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		// Server defaults
		ServerAddr: getEnv("SERVER_ADDR", "0.0.0.0"),
		ServerPort: getEnvInt("SERVER_PORT", 8080),

		// Registry database defaults
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnvInt("DB_PORT", 5432),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "tenant_registry"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		// Cache defaults
		CacheTTL:  getEnvDuration("TENANT_CACHE_TTL", 5*time.Minute),
		CacheSize: getEnvInt("TENANT_CACHE_SIZE", 50),

		// Resolution defaults
		TenantHeader: getEnv("TENANT_HEADER", "X-Tenant-Key"),
		BaseDomain:   getEnv("BASE_DOMAIN", ""),

		// Service auth
		ServiceAuthSecret: getEnv("SERVICE_AUTH_SECRET", ""),
		ServiceAuthIssuer: getEnv("SERVICE_AUTH_ISSUER", "simple-tenant"),

		// Redis (optional)
		RedisAddr:           getEnv("REDIS_ADDR", ""),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		RedisDB:             getEnvInt("REDIS_DB", 0),
		InvalidationChannel: getEnv("INVALIDATION_CHANNEL", ""),

		MaxRequestBodySize: int64(getEnvInt("MAX_REQUEST_BODY_SIZE", 1<<20)),

		RateLimit: RateLimitConfig{
			Enabled:                  getEnvBool("RATE_LIMIT_ENABLED", true),
			ResolveRequestsPerMinute: getEnvInt("RATE_LIMIT_RESOLVE_REQUESTS", 300),
			ResolveWindowMinutes:     getEnvInt("RATE_LIMIT_RESOLVE_WINDOW_MINUTES", 1),
			AdminRequestsPerMinute:   getEnvInt("RATE_LIMIT_ADMIN_REQUESTS", 60),
			AdminWindowMinutes:       getEnvInt("RATE_LIMIT_ADMIN_WINDOW_MINUTES", 1),
			WebhookRequestsPerMinute: getEnvInt("RATE_LIMIT_WEBHOOK_REQUESTS", 120),
			WebhookWindowMinutes:     getEnvInt("RATE_LIMIT_WEBHOOK_WINDOW_MINUTES", 1),
		},

		SecurityHeaders: SecurityHeadersConfig{
			Enabled:            getEnvBool("SECURITY_HEADERS_ENABLED", true),
			CSP:                getEnv("SECURITY_CSP", "default-src 'none'"),
			HSTSMaxAge:         getEnvInt("SECURITY_HSTS_MAX_AGE", 31536000),
			FrameOptions:       getEnv("SECURITY_FRAME_OPTIONS", "DENY"),
			ContentTypeOptions: getEnv("SECURITY_CONTENT_TYPE_OPTIONS", "nosniff"),
			XSSProtection:      getEnv("SECURITY_XSS_PROTECTION", "1; mode=block"),
			ReferrerPolicy:     getEnv("SECURITY_REFERRER_POLICY", "strict-origin-when-cross-origin"),
		},
	}

	// Validate required fields
	if cfg.ServiceAuthSecret == "" {
		return nil, fmt.Errorf("SERVICE_AUTH_SECRET is required")
	}
	if len(cfg.ServiceAuthSecret) < 32 {
		return nil, fmt.Errorf("SERVICE_AUTH_SECRET must be at least 32 characters")
	}
	if cfg.CacheSize <= 0 {
		return nil, fmt.Errorf("TENANT_CACHE_SIZE must be positive")
	}
	if cfg.CacheTTL <= 0 {
		return nil, fmt.Errorf("TENANT_CACHE_TTL must be positive")
	}

	return cfg, nil
}

// HasRedis returns true if the Redis invalidation fan-out is configured.
func (c *Config) HasRedis() bool {
	return c.RedisAddr != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
