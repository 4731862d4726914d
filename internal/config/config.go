// Package config loads server configuration from the environment.
// Call godotenv.Load (or rely on system env) before Load.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage and presence backends
const (
	StoreSQL   = "sql"
	StoreMongo = "mongo"

	PresenceMemory = "memory"
	PresenceRedis  = "redis"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds all runtime settings for the server binaries
type Config struct {
	Port        string
	Environment string
	LogLevel    string
	LogFile     string

	// Relational database (users, communities, and the default durable store)
	DBDriver    string
	DatabaseURL string
	SQLitePath  string

	// Durable store for notifications and messages
	StoreBackend  string
	MongoURI      string
	MongoDatabase string

	PresenceBackend string
	RedisHost       string
	RedisPort       string
	RedisPassword   string

	JWTSecret     []byte
	WSRequireAuth bool

	PaginationCacheSize int
	PaginationCacheTTL  time.Duration

	OTelEnabled      bool
	OTelEndpoint     string
	OTelSamplingRate float64

	CORSOrigins []string
}

// Load reads the configuration from environment variables, applying defaults
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnvOrDefault("PORT", "8787"),
		Environment: getEnvOrDefault("ENVIRONMENT", "development"),
		LogLevel:    getEnvOrDefault("LOG_LEVEL", "info"),
		LogFile:     getEnvOrDefault("LOG_FILE", "server.log"),

		DBDriver:    strings.ToLower(getEnvOrDefault("DB_DRIVER", DriverPostgres)),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		SQLitePath:  getEnvOrDefault("SQLITE_PATH", "beacon.db"),

		StoreBackend:  strings.ToLower(getEnvOrDefault("STORE_BACKEND", StoreSQL)),
		MongoURI:      getEnvOrDefault("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: getEnvOrDefault("MONGO_DATABASE", "beacon"),

		PresenceBackend: strings.ToLower(getEnvOrDefault("PRESENCE_BACKEND", PresenceMemory)),
		RedisHost:       getEnvOrDefault("REDIS_HOST", "localhost"),
		RedisPort:       getEnvOrDefault("REDIS_PORT", "6379"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),

		JWTSecret:     []byte(os.Getenv("JWT_SECRET")),
		WSRequireAuth: getEnvBool("WS_REQUIRE_AUTH", true),

		PaginationCacheSize: getEnvInt("PAGINATION_CACHE_SIZE", 10000),
		PaginationCacheTTL:  getEnvDuration("PAGINATION_CACHE_TTL", 30*time.Minute),

		OTelEnabled:      getEnvBool("OTEL_ENABLED", false),
		OTelEndpoint:     getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		OTelSamplingRate: getEnvFloat("OTEL_SAMPLING_RATE", 1.0),

		CORSOrigins: splitList(getEnvOrDefault("CORS_ORIGINS", "*")),
	}

	if cfg.DatabaseURL == "" && cfg.DBDriver == DriverPostgres {
		cfg.DatabaseURL = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			getEnvOrDefault("DB_HOST", "localhost"),
			getEnvOrDefault("DB_PORT", "5432"),
			getEnvOrDefault("DB_USER", "postgres"),
			getEnvOrDefault("DB_PASSWORD", ""),
			getEnvOrDefault("DB_NAME", "beacon"),
			getEnvOrDefault("DB_SSLMODE", "disable"),
		)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerations and required values
func (c *Config) Validate() error {
	if len(c.JWTSecret) == 0 {
		return fmt.Errorf("JWT_SECRET environment variable is required")
	}
	switch c.DBDriver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	switch c.StoreBackend {
	case StoreSQL, StoreMongo:
	default:
		return fmt.Errorf("unsupported STORE_BACKEND %q", c.StoreBackend)
	}
	switch c.PresenceBackend {
	case PresenceMemory, PresenceRedis:
	default:
		return fmt.Errorf("unsupported PRESENCE_BACKEND %q", c.PresenceBackend)
	}
	if c.PaginationCacheSize <= 0 {
		return fmt.Errorf("PAGINATION_CACHE_SIZE must be positive")
	}
	return nil
}

// IsDevelopment reports whether the server runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// getEnvOrDefault returns environment variable or default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
