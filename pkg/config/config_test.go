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

	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, "stream.orders", cfg.OrderStreamKey)
	assert.Equal(t, "g1", cfg.OrderGroup)
	assert.Equal(t, 2, cfg.OrderConsumers)
	assert.Equal(t, 10*time.Second, cfg.OrderLockTTL)
	assert.Equal(t, time.Minute, cfg.ReclaimIdle)
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("ORDER_CONSUMERS", "8")
	t.Setenv("RECLAIM_IDLE", "30s")
	t.Setenv("REDIS_SENTINEL_ADDRS", "s1:26379,s2:26379")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.OrderConsumers)
	assert.Equal(t, 30*time.Second, cfg.ReclaimIdle)
	assert.Equal(t, "s1:26379,s2:26379", cfg.RedisSentinelAddrs)
}
