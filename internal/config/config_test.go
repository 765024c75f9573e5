package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"POSTGRES_DSN", "KAFKA_BROKERS", "AUTH_ISSUER", "REDIS_DB", "LOG_ENCODING"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.Postgres.DSN)
	assert.Equal(t, "migrations", cfg.Postgres.MigrationsDir)
	assert.Nil(t, cfg.Kafka.Brokers)
	assert.Equal(t, "feedback.workflow", cfg.Kafka.Topic)
	assert.Equal(t, "json", cfg.Logger.Encoding)
	assert.True(t, cfg.Hierarchy.CacheEnabled)
	assert.Equal(t, time.Minute, cfg.Hierarchy.CacheTTL)
	assert.Equal(t, 500*time.Millisecond, cfg.Redis.PingTimeout)
	assert.Equal(t, 30*time.Second, cfg.App.RequestTimeout())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_HOST", "127.0.0.1")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, ,kafka-2:9092")
	t.Setenv("HIERARCHY_CACHE_ENABLED", "false")
	t.Setenv("HIERARCHY_CACHE_TTL_SECONDS", "5")
	t.Setenv("POSTGRES_MAX_CONNS", "not-a-number")
	t.Setenv("HTTP_REQUEST_TIMEOUT_SECONDS", "0")
	t.Setenv("AUTH_ISSUER", "identity")
	t.Setenv("REDIS_PING_TIMEOUT_MS", "150")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9090", cfg.App.Addr())
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.False(t, cfg.Hierarchy.CacheEnabled)
	assert.Equal(t, 5*time.Second, cfg.Hierarchy.CacheTTL)
	assert.Equal(t, int32(10), cfg.Postgres.MaxConns)
	assert.Zero(t, cfg.App.RequestTimeout())
	assert.Equal(t, "identity", cfg.Auth.Issuer)
	assert.Equal(t, 150*time.Millisecond, cfg.Redis.PingTimeout)
}

func TestLoadRejectsBadRedisDB(t *testing.T) {
	t.Setenv("REDIS_DB", "zero")

	_, err := Load()
	assert.ErrorContains(t, err, "invalid REDIS_DB")
}
