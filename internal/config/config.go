package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App         AppConfig
	Postgres    PostgresConfig
	Redis       RedisConfig
	Logger      LoggerConfig
	Auth        AuthConfig
	Sync        SyncConfig
	HealthProbe HealthProbeConfig
	Ops         OpsConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines management API authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// SyncConfig tunes outbound synchronization defaults.
type SyncConfig struct {
	// CredentialKey is the 32-byte hex key sealing credential blobs at rest.
	CredentialKey         string
	DefaultTimeoutSeconds int
	DefaultRateLimitHour  int
	DefaultFailureLimit   int
}

// HealthProbeConfig controls the background connectivity sweep.
type HealthProbeConfig struct {
	Enabled      bool
	CronSpec     string
	LockTTLSec   int
	ProbeTimeout int
}

// OpsConfig holds operator notification endpoints.
type OpsConfig struct {
	WebhookURL string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "ticket-sync-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Sync: SyncConfig{
			CredentialKey:         getEnv("SYNC_CREDENTIAL_KEY", ""),
			DefaultTimeoutSeconds: getEnvAsInt("SYNC_DEFAULT_TIMEOUT_SECONDS", 30),
			DefaultRateLimitHour:  getEnvAsInt("SYNC_DEFAULT_RATE_LIMIT_PER_HOUR", 1000),
			DefaultFailureLimit:   getEnvAsInt("SYNC_DEFAULT_FAILURE_THRESHOLD", 5),
		},
		HealthProbe: HealthProbeConfig{
			Enabled:      getEnvAsBool("HEALTH_PROBE_ENABLED", true),
			CronSpec:     getEnv("HEALTH_PROBE_CRON", "*/5 * * * *"),
			LockTTLSec:   getEnvAsInt("HEALTH_PROBE_LOCK_TTL_SECONDS", 240),
			ProbeTimeout: getEnvAsInt("HEALTH_PROBE_TIMEOUT_SECONDS", 10),
		},
		Ops: OpsConfig{
			WebhookURL: getEnv("OPS_WEBHOOK_URL", ""),
		},
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

// ProbeTimeoutDuration returns the per-probe timeout.
func (h HealthProbeConfig) ProbeTimeoutDuration() time.Duration {
	if h.ProbeTimeout <= 0 {
		return 10 * time.Second
	}
	return time.Duration(h.ProbeTimeout) * time.Second
}

// LockTTL returns the probe leader lock lifetime.
func (h HealthProbeConfig) LockTTL() time.Duration {
	if h.LockTTLSec <= 0 {
		return 4 * time.Minute
	}
	return time.Duration(h.LockTTLSec) * time.Second
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
