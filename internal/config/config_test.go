package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "DATABASE_URL", "BASE_CURRENCY", "COMMISSION_RATE", "PRICE_PROVIDERS", "FRESHNESS_WINDOW_HOURS", "LOCK_WAIT_SECONDS"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.True(t, cfg.UseInMemoryStore)
	assert.Equal(t, "KRW", cfg.BaseCurrency)
	assert.True(t, cfg.CommissionRate.Equal(decimal.RequireFromString("0.00015")))
	assert.Equal(t, 24*time.Hour, cfg.FreshnessWindow)
	assert.Equal(t, 5*time.Second, cfg.LockWait)
	assert.Equal(t, []string{"yahoo", "alphavantage", "simulated"}, cfg.PriceProviders)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/trade")
	t.Setenv("BASE_CURRENCY", "usd")
	t.Setenv("PRICE_PROVIDERS", " Simulated , ,yahoo")
	t.Setenv("PROVIDER_TIMEOUT_SECONDS", "2")
	t.Setenv("READ_CACHE_SIZE", "not-a-number")
	t.Setenv("COMMISSION_RATE", "0.001")

	cfg := Load()
	assert.False(t, cfg.UseInMemoryStore)
	assert.Equal(t, "USD", cfg.BaseCurrency)
	assert.Equal(t, []string{"simulated", "yahoo"}, cfg.PriceProviders)
	assert.Equal(t, 2*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, 4096, cfg.ReadCacheSize)
	assert.True(t, cfg.CommissionRate.Equal(decimal.RequireFromString("0.001")))
}
