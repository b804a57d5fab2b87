package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openpredict/marketd/internal/domain"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Market.Creator = "0x00000000000000000000000000000000000000a1"
	cfg.Market.FeeRateNum = 20_000
	cfg.Oracle.BaseURL = "http://localhost:9090"
	return cfg
}

func TestValidate(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad creator", func(c *Config) { c.Market.Creator = "nope" }},
		{"bad account", func(c *Config) { c.Market.Account = "" }},
		{"bad ledger account", func(c *Config) { c.Market.LedgerAccount = "0x12" }},
		{"zero outcomes", func(c *Config) { c.Market.OutcomeCount = 0 }},
		{"too many outcomes", func(c *Config) { c.Market.OutcomeCount = 256 }},
		{"negative fee", func(c *Config) { c.Market.FeeRateNum = -1 }},
		{"fee at range", func(c *Config) { c.Market.FeeRateNum = domain.FeeRange }},
		{"missing oracle", func(c *Config) { c.Oracle.BaseURL = " " }},
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := validConfig()
			tt.mutate(&bad)
			require.ErrorIs(t, bad.Validate(), domain.ErrInvalidConfig)
		})
	}
}

func TestAddressHelpers(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, common.HexToAddress(cfg.Market.Creator), cfg.CreatorAddress())
	assert.NotEqual(t, cfg.CreatorAddress(), cfg.AccountAddress())
	assert.NotEqual(t, cfg.AccountAddress(), cfg.LedgerAddress())
}

func TestEnabledHelpers(t *testing.T) {
	cfg := Defaults()
	assert.False(t, cfg.Postgres.Enabled())
	assert.False(t, cfg.Redis.Enabled())
	assert.False(t, cfg.S3.Enabled())

	cfg.Postgres.Host = "localhost"
	cfg.Redis.Addr = "localhost:6379"
	cfg.S3.Bucket = "archive"
	assert.True(t, cfg.Postgres.Enabled())
	assert.True(t, cfg.Redis.Enabled())
	assert.True(t, cfg.S3.Enabled())
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level = "debug"

[market]
creator = "0x00000000000000000000000000000000000000a1"
outcome_count = 3
fee_rate_numerator = 20000

[oracle]
base_url = "http://localhost:9090"
`), 0o600))

	t.Setenv("MARKETD_SERVER_PORT", "9999")
	t.Setenv("MARKETD_MARKET_OUTCOME_COUNT", "4")
	t.Setenv("MARKETD_SERVER_API_KEY", "sekrit")

	cfg, err := Load(path)
	require.NoError(t, err)

	// TOML on top of defaults, env on top of TOML.
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, int64(20_000), cfg.Market.FeeRateNum)
	assert.Equal(t, 4, cfg.Market.OutcomeCount)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "sekrit", cfg.Server.APIKey)
	require.NoError(t, cfg.Validate())
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.Password = "pg-secret"
	cfg.Redis.Password = "redis-secret"
	cfg.S3.SecretKey = "s3-secret"
	cfg.Server.APIKey = "api-secret"
	cfg.Notify.TelegramToken = "tg-secret"

	red := RedactedConfig(&cfg)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Redis.Password)
	assert.Equal(t, "***", red.S3.SecretKey)
	assert.Equal(t, "***", red.Server.APIKey)
	assert.Equal(t, "***", red.Notify.TelegramToken)

	// Empty secrets stay empty, non-secrets survive.
	assert.Empty(t, red.Postgres.DSN)
	assert.Equal(t, cfg.Market.Creator, red.Market.Creator)

	// The original is untouched.
	assert.Equal(t, "pg-secret", cfg.Postgres.Password)
}
