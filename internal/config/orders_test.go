package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestOrdersConfig_DefaultsWithoutFile(t *testing.T) {
	holder, err := NewOrdersConfigHolder(Config{}, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, DefaultOrdersConfig(), holder.Get())
}

func TestOrdersConfig_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders.yml")
	content := "orders:\n  batchSize: 5\n  cacheTTL: 12h\n  searchDebounce: 150ms\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	holder, err := NewOrdersConfigHolder(Config{OrdersConfigPath: path}, zap.NewNop())
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, 5, cfg.BatchSize)
	assert.Equal(t, 12*time.Hour, cfg.CacheTTL)
	assert.Equal(t, 150*time.Millisecond, cfg.SearchDebounce)
}

func TestOrdersConfig_RejectsOversizedBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders.yml")
	require.NoError(t, os.WriteFile(path, []byte("orders:\n  batchSize: 25\n"), 0o600))

	_, err := NewOrdersConfigHolder(Config{OrdersConfigPath: path}, zap.NewNop())
	assert.Error(t, err)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CACHE_BACKEND", "REDIS")
	t.Setenv("REDIS_ENABLED", "yes")
	t.Setenv("DATABASE_MAX_OPEN_CONN", "not-a-number")

	cfg := Load()
	assert.Equal(t, CacheBackendRedis, cfg.Cache.Backend)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 20, cfg.DBMaxOpenConn)
	assert.Equal(t, "orderfeed", cfg.AppName)
}

func TestLoad_RateLimit(t *testing.T) {
	t.Setenv("RATE_LIMIT_ENABLED", "true")
	t.Setenv("RATE_LIMIT_WRITE_RATE", "2.5")
	t.Setenv("RATE_LIMIT_WRITE_BURST", "bogus")

	cfg := Load()
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 2.5, cfg.RateLimit.WriteRate)
	assert.Equal(t, 20, cfg.RateLimit.WriteBurst)
	assert.Equal(t, 10, cfg.RateLimit.LockTTLSeconds)
}
