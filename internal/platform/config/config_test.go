package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("SIGNET_ADDR", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("COMPLIANCE_EVAL_TIMEOUT", "")
	t.Setenv("COMPLIANCE_CACHE_TTL", "")

	cfg := FromEnv()
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.Equal(t, 2*time.Second, cfg.Compliance.EvaluationTimeout)
	assert.Zero(t, cfg.Compliance.CacheTTL, "verdicts are not cached unless configured")
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.True(t, cfg.IsDev())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,,")
	t.Setenv("COMPLIANCE_EVAL_TIMEOUT", "750ms")
	t.Setenv("DOCUMENT_STORE", "postgres")
	t.Setenv("SIGNET_ENV", "prod")
	t.Setenv("REDIS_POOL_SIZE", "not-a-number")
	t.Setenv("COMPLIANCE_CACHE_TTL", "15s")

	cfg := FromEnv()
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 750*time.Millisecond, cfg.Compliance.EvaluationTimeout)
	assert.Equal(t, "postgres", cfg.Storage.Backend)
	assert.False(t, cfg.IsDev())
	assert.Equal(t, 10, cfg.Redis.PoolSize)
	assert.Equal(t, 15*time.Second, cfg.Compliance.CacheTTL)
}
