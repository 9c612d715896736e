package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/smallbiznis/telemetry/pkg/db"
	"go.uber.org/fx"
)

// Module provides the application configuration.
var Module = fx.Module("config",
	fx.Provide(
		Load,
		LoadStorage,
		DatabaseConfig,
	),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	LogLevel  string
	LogFormat string

	OTLPEndpoint      string
	OTLPProtocol      string
	OtelEnabled       bool
	OtelSamplingRatio float64

	DatabaseURL       string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration
	DBMetricsEnabled  bool

	// MySQLEngine is the storage engine used for tables created on MySQL.
	MySQLEngine      string
	StorageConfigDir string

	Redis RedisConfig

	NameCacheTTL time.Duration

	// NodeID seeds snowflake id generation; it must differ per running instance.
	NodeID int64
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a shared name cache should be used.
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "telemetry"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		LogLevel:          strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
		LogFormat:         strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		OTLPProtocol:      strings.ToLower(getenv("OTLP_PROTOCOL", "grpc")),
		OtelEnabled:       getenvBool("OTEL_ENABLED", false),
		OtelSamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		DatabaseURL:       getenv("DATABASE_URL", "sqlite://"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		DBConnMaxIdleTime: getenvDuration("DATABASE_CONN_MAX_IDLE_TIME", 5*time.Minute),
		DBMetricsEnabled:  getenvBool("DATABASE_METRICS_ENABLED", true),
		MySQLEngine:       getenv("MYSQL_ENGINE", "InnoDB"),
		StorageConfigDir:  strings.TrimSpace(getenv("STORAGE_CONFIG_DIR", "")),
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		NameCacheTTL: getenvDuration("NAME_CACHE_TTL", time.Hour),
		NodeID:       int64(getenvInt("NODE_ID", 1)),
	}

	return cfg
}

// DatabaseConfig maps application configuration onto the storage layer.
func DatabaseConfig(cfg Config, storage StorageConfig) db.Config {
	return db.Config{
		URL:             cfg.DatabaseURL,
		MaxIdleConn:     cfg.DBMaxIdleConn,
		MaxOpenConn:     cfg.DBMaxOpenConn,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		Backends:        storage.Backends,
		Metrics:         cfg.DBMetricsEnabled,
		Tracing:         cfg.OtelEnabled,
	}
}

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

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64)
	if err != nil {
		return def
	}
	return parsed
}
