package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/fixora/condoguard/application/security/ratelimit"
	"github.com/fixora/condoguard/application/usecase"
)

const (
	RateLimitStoreMemory = "memory"
	RateLimitStoreRedis  = "redis"
)

type Config struct {
	ServerPort      string
	ServerHost      string
	Environment     string
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64

	// TrustProxyHeaders enables X-Forwarded-For / X-Real-IP for client IP resolution.
	TrustProxyHeaders bool

	LogLevel    string
	LogFormat   string
	ServiceName string

	// Empty DatabaseURL selects the in-memory audit store.
	DatabaseURL      string
	AuditAutoMigrate bool

	AuditQueueSize      int
	AuditWorkers        int
	AuditOverflowPolicy usecase.OverflowPolicy
	AuditWriteTimeout   time.Duration
	AuditFallbackSize   int

	SlowRequestThreshold time.Duration

	RedisURL            string
	RateLimitEnabled    bool
	RateLimitStore      string
	RateLimitPolicyFile string
	RateLimitClasses    map[string]ratelimit.RouteClass
	RateLimitRules      []ratelimit.RouteRule

	NATSURL          string
	NATSAuditSubject string

	JWTSecret      string
	JWTAlgorithm   string
	AccessTokenTTL time.Duration

	MetricsEnabled bool
	MetricsPath    string

	CORSEnabled          bool
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
}

var (
	ErrMissingJWTSecret      = errors.New("JWT_SECRET is required")
	ErrInvalidJWTAlgorithm   = errors.New("invalid JWT algorithm")
	ErrInvalidTokenTTL       = errors.New("invalid token TTL format")
	ErrInvalidRateLimit      = errors.New("invalid rate limit configuration")
	ErrInvalidRateLimitStore = errors.New("RATE_LIMIT_STORE must be memory or redis")
	ErrMissingRedisURL       = errors.New("REDIS_URL is required when RATE_LIMIT_STORE=redis")
	ErrInvalidAuditConfig    = errors.New("invalid audit configuration")
)

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:        getEnvOrDefault("SERVER_PORT", "8080"),
		ServerHost:        getEnvOrDefault("SERVER_HOST", "localhost"),
		Environment:       getEnvOrDefault("ENV", "development"),
		ShutdownTimeout:   getEnvOrDefaultDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		MaxBodyBytes:      int64(getEnvOrDefaultInt("MAX_BODY_BYTES", 1<<20)),
		TrustProxyHeaders: getEnvOrDefaultBool("TRUST_PROXY_HEADERS", false),

		LogLevel:    getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:   getEnvOrDefault("LOG_FORMAT", "json"),
		ServiceName: getEnvOrDefault("SERVICE_NAME", "condoguard"),

		DatabaseURL:      os.Getenv("DATABASE_URL"),
		AuditAutoMigrate: getEnvOrDefaultBool("AUDIT_AUTO_MIGRATE", true),

		AuditQueueSize:    getEnvOrDefaultInt("AUDIT_QUEUE_SIZE", 1024),
		AuditWorkers:      getEnvOrDefaultInt("AUDIT_WORKERS", 4),
		AuditWriteTimeout: getEnvOrDefaultDuration("AUDIT_WRITE_TIMEOUT", 3*time.Second),
		AuditFallbackSize: getEnvOrDefaultInt("AUDIT_FALLBACK_SIZE", 256),

		SlowRequestThreshold: getEnvOrDefaultDuration("SLOW_REQUEST_THRESHOLD", 5*time.Second),

		RedisURL:            os.Getenv("REDIS_URL"),
		RateLimitEnabled:    getEnvOrDefaultBool("RATE_LIMIT_ENABLED", true),
		RateLimitStore:      getEnvOrDefault("RATE_LIMIT_STORE", RateLimitStoreMemory),
		RateLimitPolicyFile: os.Getenv("RATE_LIMIT_POLICY_FILE"),

		NATSURL:          os.Getenv("NATS_URL"),
		NATSAuditSubject: getEnvOrDefault("NATS_AUDIT_SUBJECT", "condoguard.audit"),

		JWTSecret:    os.Getenv("JWT_SECRET"),
		JWTAlgorithm: getEnvOrDefault("JWT_ALG", "HS256"),

		MetricsEnabled: getEnvOrDefaultBool("METRICS_ENABLED", true),
		MetricsPath:    getEnvOrDefault("METRICS_PATH", "/metrics"),

		CORSEnabled:          getEnvOrDefaultBool("CORS_ENABLED", true),
		CORSAllowCredentials: getEnvOrDefaultBool("CORS_ALLOW_CREDENTIALS", true),
		CORSAllowedOrigins:   parseAllowedOrigins(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "")),
	}

	// Validate JWT configuration
	if cfg.JWTAlgorithm != "HS256" {
		return nil, ErrInvalidJWTAlgorithm
	}
	if cfg.JWTSecret == "" {
		return nil, ErrMissingJWTSecret
	}
	accessTokenTTL, err := parseTokenTTL(getEnvOrDefault("JWT_ACCESS_TOKEN_TTL", "900"))
	if err != nil {
		return nil, ErrInvalidTokenTTL
	}
	cfg.AccessTokenTTL = accessTokenTTL

	// Audit pipeline
	policy, err := usecase.ParseOverflowPolicy(os.Getenv("AUDIT_OVERFLOW_POLICY"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAuditConfig, err)
	}
	cfg.AuditOverflowPolicy = policy
	if cfg.AuditQueueSize <= 0 || cfg.AuditWorkers <= 0 {
		return nil, fmt.Errorf("%w: queue size and workers must be positive", ErrInvalidAuditConfig)
	}

	// Rate limiting
	switch cfg.RateLimitStore {
	case RateLimitStoreMemory:
	case RateLimitStoreRedis:
		if cfg.RedisURL == "" {
			return nil, ErrMissingRedisURL
		}
	default:
		return nil, ErrInvalidRateLimitStore
	}

	cfg.RateLimitClasses, err = loadRateLimitClasses()
	if err != nil {
		return nil, err
	}
	cfg.RateLimitRules = ratelimit.DefaultRules()

	if cfg.RateLimitPolicyFile != "" {
		routePolicy, err := LoadRoutePolicy(cfg.RateLimitPolicyFile)
		if err != nil {
			return nil, err
		}
		routePolicy.Apply(cfg.RateLimitClasses, &cfg.RateLimitRules)
	}

	return cfg, nil
}

// loadRateLimitClasses starts from the built-in classes and applies
// RATE_LIMIT_<CLASS>_LIMIT / RATE_LIMIT_<CLASS>_WINDOW overrides.
func loadRateLimitClasses() (map[string]ratelimit.RouteClass, error) {
	classes := ratelimit.DefaultClasses()
	for name, c := range classes {
		prefix := "RATE_LIMIT_" + strings.ToUpper(name)
		c.Limit = int64(getEnvOrDefaultInt(prefix+"_LIMIT", int(c.Limit)))
		c.Window = getEnvOrDefaultDuration(prefix+"_WINDOW", c.Window)
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRateLimit, err)
		}
		classes[name] = c
	}
	return classes, nil
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return c.ServerHost + ":" + c.ServerPort
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefaultBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

func getEnvOrDefaultDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		// interpret as seconds if numeric, else parse like Go duration
		if n, err := strconv.Atoi(value); err == nil {
			return time.Duration(n) * time.Second
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			return defaultValue
		}
		return d
	}
	return defaultValue
}

func parseTokenTTL(value string) (time.Duration, error) {
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds <= 0 {
		return 0, ErrInvalidTokenTTL
	}
	return time.Duration(seconds) * time.Second, nil
}

func parseAllowedOrigins(value string) []string {
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	res := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			res = append(res, trimmed)
		}
	}
	return res
}
