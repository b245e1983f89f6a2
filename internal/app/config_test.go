package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("DATABASE_URL", "")

	cfg, err := loadConfig([]string{})
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Addr)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, CatalogBuiltin, cfg.Catalog.Source)
	assert.Equal(t, int64(40), cfg.Offers.StackCapPercent)
	assert.Equal(t, "WALLET100", cfg.Offers.WalletCashbackCode)
	assert.False(t, cfg.Offers.PreferStackOnTie)
	assert.Equal(t, 2*time.Second, cfg.Offers.NoticeTTL)
	assert.Equal(t, int64(10000), cfg.Settlement.PayLaterLimit)
	assert.Equal(t, 100, cfg.RateLimit.Max)
	assert.Equal(t, []string{"*"}, cfg.CORS.Origins)
	assert.Equal(t, 15*time.Second, cfg.Graceful.ShutdownTimeout)

	sel := cfg.Offers.SelectorConfig()
	assert.Equal(t, int64(40), sel.StackCapPercent)
	assert.Equal(t, "WALLET100", sel.WalletCashbackCode)
	assert.Equal(t, "10000", cfg.Settlement.Ledger().PayLaterLimit.String())
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("GOZY_OFFERS_STACK_CAP_PERCENT", "25")
	t.Setenv("GOZY_OFFERS_PREFER_STACK_ON_TIE", "true")
	t.Setenv("GOZY_CATALOG_SOURCE", "postgres")
	t.Setenv("DATABASE_URL", "postgres://gozy@localhost/gozy")
	t.Setenv("PORT", "9090")
	t.Setenv("GOZY_REDIS_ADDR", "redis:6379")

	cfg, err := loadConfig([]string{})
	require.NoError(t, err)

	assert.Equal(t, int64(25), cfg.Offers.StackCapPercent)
	assert.True(t, cfg.Offers.PreferStackOnTie)
	assert.Equal(t, CatalogPostgres, cfg.Catalog.Source)
	assert.Equal(t, "postgres://gozy@localhost/gozy", cfg.DatabaseURL)
	assert.Equal(t, "0.0.0.0:9090", cfg.Addr)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Zero(t, cfg.Redis.DB)
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "postgres catalog without database", env: map[string]string{"GOZY_CATALOG_SOURCE": "postgres"}},
		{name: "unknown catalog", env: map[string]string{"GOZY_CATALOG_SOURCE": "s3"}},
		{name: "cap above 100", env: map[string]string{"GOZY_OFFERS_STACK_CAP_PERCENT": "140"}},
		{name: "negative limit", env: map[string]string{"GOZY_SETTLEMENT_PAY_LATER_LIMIT": "-1"}},
		{name: "negative redis db", env: map[string]string{"GOZY_REDIS_DB": "-2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := loadConfig([]string{})
			require.Error(t, err)
		})
	}
}
