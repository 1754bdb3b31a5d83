package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	FeatureGate  FeatureGateConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	AdminAPIKey           string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32

	BulkMode bool   // bulk-access connection without transaction support
	NestedTx string // "join" or "savepoint"
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines token and password parameters.
type AuthConfig struct {
	TokenSecret      string
	AuthTokenTTL     time.Duration
	TransferTokenTTL time.Duration
	ResetTokenTTL    time.Duration
	Argon2Time       uint32
	Argon2MemoryKiB  uint32
	Argon2Threads    uint8
	CookieName       string
	CookieSecure     bool
}

// FeatureGateConfig tunes the bridge cache.
type FeatureGateConfig struct {
	CacheKey       string
	RecheckOnFlush bool
	SharedCacheTTL time.Duration
}

// NotificationConfig holds stub notification endpoints.
type NotificationConfig struct {
	EmailFrom    string
	ResetURLBase string
	WebhookURL   string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	nestedTx := strings.ToLower(getEnv("POSTGRES_NESTED_TX", "join"))
	if nestedTx != "join" && nestedTx != "savepoint" {
		return nil, fmt.Errorf("invalid POSTGRES_NESTED_TX %q: want join or savepoint", nestedTx)
	}

	threads := getEnvAsInt("AUTH_ARGON2_THREADS", 2)
	if threads <= 0 || threads > 255 {
		return nil, fmt.Errorf("invalid AUTH_ARGON2_THREADS: %d", threads)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "authgate"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			AdminAPIKey:           os.Getenv("ADMIN_API_KEY"),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
			BulkMode:       getEnvAsBool("POSTGRES_BULK_MODE", false),
			NestedTx:       nestedTx,
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:  os.Getenv("REDIS_PASSWORD"),
			DB:        redisDB,
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "authgate:"),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			TokenSecret:      getEnv("AUTH_TOKEN_SECRET", "dev-secret"),
			AuthTokenTTL:     getEnvAsDuration("AUTH_TOKEN_TTL", 14*24*time.Hour),
			TransferTokenTTL: getEnvAsDuration("AUTH_TRANSFER_TOKEN_TTL", time.Hour),
			ResetTokenTTL:    getEnvAsDuration("AUTH_RESET_TOKEN_TTL", time.Hour),
			Argon2Time:       uint32(getEnvAsInt("AUTH_ARGON2_TIME", 3)),
			Argon2MemoryKiB:  uint32(getEnvAsInt("AUTH_ARGON2_MEMORY_KIB", 64*1024)),
			Argon2Threads:    uint8(threads),
			CookieName:       getEnv("AUTH_COOKIE_NAME", "auth"),
			CookieSecure:     getEnvAsBool("AUTH_COOKIE_SECURE", true),
		},
		FeatureGate: FeatureGateConfig{
			CacheKey:       getEnv("FEATURE_GATE_CACHE_KEY", "featuregate"),
			RecheckOnFlush: getEnvAsBool("FEATURE_GATE_RECHECK_ON_FLUSH", true),
			SharedCacheTTL: getEnvAsDuration("FEATURE_GATE_SHARED_TTL", 0),
		},
		Notification: NotificationConfig{
			EmailFrom:    getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			ResetURLBase: getEnv("NOTIFY_RESET_URL_BASE", "https://localhost:8080/password/reset"),
			WebhookURL:   getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
	}

	if !cfg.App.IsDevelopment() && cfg.Auth.TokenSecret == "dev-secret" {
		return nil, fmt.Errorf("AUTH_TOKEN_SECRET must be set outside development")
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// IsDevelopment reports whether the service runs in a development-like environment.
func (a AppConfig) IsDevelopment() bool {
	switch strings.ToLower(a.Env) {
	case "development", "dev", "local", "test":
		return true
	default:
		return false
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}
