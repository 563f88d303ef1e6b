package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "stream.orders", cfg.OrderStream)
	assert.Equal(t, "order-group", cfg.OrderGroup)
	assert.Empty(t, cfg.KafkaBrokers, "kafka is off by default")
	assert.Equal(t, 2*time.Minute, cfg.CacheNullTTL)
	assert.Equal(t, 10, cfg.RebuildWorkers)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("SECKILL_RATE_LIMIT", "33")
	t.Setenv("HOT_SHOP_LOGICAL_TTL_SEC", "120")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 33, cfg.SeckillRateLimit)
	assert.Equal(t, 2*time.Minute, cfg.HotShopLogicalTTL)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("SECKILL_RATE_LIMIT", "0")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsMalformedInt(t *testing.T) {
	t.Setenv("REDIS_DB", "not-a-number")
	_, err := Load()
	assert.Error(t, err)
}
