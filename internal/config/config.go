package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	NodeID      int64

	OTLPEndpoint string
	Telemetry    TelemetryConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Redis     RedisConfig
	Cache     CacheConfig
	Seed      SeedConfig
	RateLimit RateLimitConfig

	// OwnerID signs a session in at startup when set.
	OwnerID string
	// Timezone anchors order date text without an offset; empty means local.
	Timezone string

	OrdersConfigPath string
}

// TelemetryConfig carries the LOG_* and OTEL_* switches.
type TelemetryConfig struct {
	LogLevel      string
	LogFormat     string
	OtelEnabled   bool
	SamplingRatio float64
}

type RedisConfig struct {
	Enabled    bool
	Addr       string
	Password   string
	DB         int
	BusChannel string
}

type CacheConfig struct {
	Backend string
	Prefix  string
}

// RateLimitConfig throttles document writes per client. It needs Redis.
type RateLimitConfig struct {
	Enabled        bool
	WriteRate      float64
	WriteBurst     int
	LockTTLSeconds int
}

type SeedConfig struct {
	OwnerID string
	Orders  int
}

const (
	CacheBackendMemory = "memory"
	CacheBackendSQL    = "sql"
	CacheBackendRedis  = "redis"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "orderfeed"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("DEPLOYMENT_ENV", getenv("ENVIRONMENT", "development")),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		NodeID:       int64(getenvInt("SNOWFLAKE_NODE", 1)),
		OTLPEndpoint: getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317")),
		Telemetry: TelemetryConfig{
			LogLevel:      strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:     strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			OtelEnabled:   getenvBool("OTEL_ENABLED", false),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},
		DBType:            getenv("DATABASE_TYPE", "sqlite"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "orderfeed"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "orderfeed.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		Redis: RedisConfig{
			Enabled:    getenvBool("REDIS_ENABLED", false),
			Addr:       strings.TrimSpace(getenv("REDIS_ADDR", "localhost:6379")),
			Password:   strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:         getenvInt("REDIS_DB", 0),
			BusChannel: strings.TrimSpace(getenv("REDIS_CHANNEL", "orderfeed:changes")),
		},
		Cache: CacheConfig{
			Backend: normalizeCacheBackend(getenv("CACHE_BACKEND", CacheBackendSQL)),
			Prefix:  strings.TrimSpace(getenv("CACHE_PREFIX", "orderfeed")),
		},
		Seed: SeedConfig{
			OwnerID: strings.TrimSpace(getenv("SEED_OWNER_ID", "")),
			Orders:  getenvInt("SEED_DEMO_ORDERS", 0),
		},
		RateLimit: RateLimitConfig{
			Enabled:        getenvBool("RATE_LIMIT_ENABLED", false),
			WriteRate:      getenvFloat("RATE_LIMIT_WRITE_RATE", 5),
			WriteBurst:     getenvInt("RATE_LIMIT_WRITE_BURST", 20),
			LockTTLSeconds: getenvInt("RATE_LIMIT_LOCK_TTL_SECONDS", 10),
		},
		OwnerID:          strings.TrimSpace(getenv("SESSION_OWNER_ID", "")),
		Timezone:         strings.TrimSpace(getenv("ORDERS_TIMEZONE", "")),
		OrdersConfigPath: strings.TrimSpace(getenv("ORDERS_CONFIG_PATH", "")),
	}

	return cfg
}

func (c Config) ConnMaxLifetime() time.Duration {
	return time.Duration(c.DBConnMaxLifetime) * time.Second
}

func (c Config) ConnMaxIdleTime() time.Duration {
	return time.Duration(c.DBConnMaxIdleTime) * time.Second
}

func normalizeCacheBackend(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case CacheBackendRedis:
		return CacheBackendRedis
	case CacheBackendMemory:
		return CacheBackendMemory
	default:
		return CacheBackendSQL
	}
}

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewOrdersConfigHolder),
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}
