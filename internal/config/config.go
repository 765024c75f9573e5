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
	App       AppConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Logger    LoggerConfig
	Auth      AuthConfig
	Kafka     KafkaConfig
	Hierarchy HierarchyConfig
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
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds connection values for the outlet scope cache.
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	PingTimeout time.Duration
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level    string
	Encoding string
}

// AuthConfig defines how bearer tokens issued by the identity service are verified.
type AuthConfig struct {
	JWTSecret             string
	Issuer                string
	AccessTokenTTLMinutes int
}

// KafkaConfig configures the workflow event sink. Empty Brokers disables it.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	MaxAttempts  int
	WriteTimeout time.Duration
}

// HierarchyConfig tunes the outlet scope cache.
type HierarchyConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "outlet-feedback-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:        getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:    os.Getenv("REDIS_PASSWORD"),
			DB:          redisDB,
			PingTimeout: time.Duration(getEnvAsInt("REDIS_PING_TIMEOUT_MS", 500)) * time.Millisecond,
		},
		Logger: LoggerConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			Encoding: getEnv("LOG_ENCODING", "json"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			Issuer:                os.Getenv("AUTH_ISSUER"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 30),
		},
		Kafka: KafkaConfig{
			Brokers:      getEnvAsList("KAFKA_BROKERS"),
			Topic:        getEnv("KAFKA_TOPIC", "feedback.workflow"),
			MaxAttempts:  getEnvAsInt("KAFKA_MAX_ATTEMPTS", 3),
			WriteTimeout: time.Duration(getEnvAsInt("KAFKA_WRITE_TIMEOUT_SECONDS", 10)) * time.Second,
		},
		Hierarchy: HierarchyConfig{
			CacheEnabled: getEnvAsBool("HIERARCHY_CACHE_ENABLED", true),
			CacheTTL:     time.Duration(getEnvAsInt("HIERARCHY_CACHE_TTL_SECONDS", 60)) * time.Second,
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

func getEnvAsList(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
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
