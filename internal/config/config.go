// Package config defines the top-level configuration for the market daemon
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openpredict/marketd/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by MARKETD_* environment
// variables.
type Config struct {
	Market   MarketConfig   `toml:"market"`
	Oracle   OracleConfig   `toml:"oracle"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	LogLevel string         `toml:"log_level"`
}

// MarketConfig holds the market's construction parameters.
type MarketConfig struct {
	// Creator is the hex address authorized for privileged operations.
	Creator string `toml:"creator"`
	// Account is the market's own ledger account (hex address).
	Account string `toml:"account"`
	// LedgerAccount is the outcome ledger's escrow account (hex address).
	LedgerAccount string `toml:"ledger_account"`
	// OutcomeCount is the number of mutually exclusive outcomes.
	OutcomeCount int `toml:"outcome_count"`
	// FeeRateNum is the fee numerator over 1,000,000.
	FeeRateNum int64 `toml:"fee_rate_numerator"`
}

// OracleConfig holds the pricing-oracle endpoint.
type OracleConfig struct {
	BaseURL string `toml:"base_url"`
}

// PostgresConfig holds PostgreSQL connection parameters. An empty DSN and
// host selects the in-memory stores.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// Enabled reports whether a PostgreSQL endpoint is configured.
func (c PostgresConfig) Enabled() bool {
	return strings.TrimSpace(c.DSN) != "" || strings.TrimSpace(c.Host) != ""
}

// RedisConfig holds Redis connection parameters. An empty Addr disables the
// signal bus and distributed lock.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// Enabled reports whether a Redis endpoint is configured.
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

// S3Config holds S3-compatible object storage parameters for the settlement
// archiver. An empty bucket disables archival.
type S3Config struct {
	Endpoint           string `toml:"endpoint"`
	Region             string `toml:"region"`
	Bucket             string `toml:"bucket"`
	Prefix             string `toml:"prefix"`
	AccessKey          string `toml:"access_key"`
	SecretKey          string `toml:"secret_key"`
	ForcePathStyle     bool   `toml:"force_path_style"`
	ArchiveIntervalMin int    `toml:"archive_interval_min"`
}

// Enabled reports whether settlement archival is configured.
func (c S3Config) Enabled() bool {
	return strings.TrimSpace(c.Bucket) != ""
}

// ServerConfig holds the HTTP API server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	// DevLedger exposes the in-process ledger's mint/approve endpoints.
	DevLedger bool `toml:"dev_ledger"`
}

// NotifyConfig holds notification channel parameters.
type NotifyConfig struct {
	TelegramToken  string   `toml:"telegram_token"`
	TelegramChatID string   `toml:"telegram_chat_id"`
	Events         []string `toml:"events"`
}

// Defaults returns the built-in configuration defaults.
func Defaults() Config {
	return Config{
		Market: MarketConfig{
			Account:       "0x0000000000000000000000000000000000000001",
			LedgerAccount: "0x0000000000000000000000000000000000000002",
			OutcomeCount:  2,
		},
		Postgres: PostgresConfig{
			SSLMode:       "disable",
			PoolMaxConns:  8,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			PoolSize:   8,
			MaxRetries: 3,
		},
		S3: S3Config{
			Region:             "us-east-1",
			Prefix:             "settlements",
			ArchiveIntervalMin: 60,
		},
		Server: ServerConfig{
			Port: 8080,
		},
		LogLevel: "info",
	}
}

// Validate checks the configuration for construction-time violations.
func (c *Config) Validate() error {
	if !common.IsHexAddress(c.Market.Creator) {
		return fmt.Errorf("market.creator %q is not a hex address: %w", c.Market.Creator, domain.ErrInvalidConfig)
	}
	if !common.IsHexAddress(c.Market.Account) {
		return fmt.Errorf("market.account %q is not a hex address: %w", c.Market.Account, domain.ErrInvalidConfig)
	}
	if !common.IsHexAddress(c.Market.LedgerAccount) {
		return fmt.Errorf("market.ledger_account %q is not a hex address: %w", c.Market.LedgerAccount, domain.ErrInvalidConfig)
	}
	if c.Market.OutcomeCount < 1 || c.Market.OutcomeCount > 255 {
		return fmt.Errorf("market.outcome_count %d out of [1, 255]: %w", c.Market.OutcomeCount, domain.ErrInvalidConfig)
	}
	if c.Market.FeeRateNum < 0 || c.Market.FeeRateNum >= domain.FeeRange {
		return fmt.Errorf("market.fee_rate_numerator %d out of [0, %d): %w", c.Market.FeeRateNum, domain.FeeRange, domain.ErrInvalidConfig)
	}
	if strings.TrimSpace(c.Oracle.BaseURL) == "" {
		return fmt.Errorf("oracle.base_url is required: %w", domain.ErrInvalidConfig)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range: %w", c.Server.Port, domain.ErrInvalidConfig)
	}
	return nil
}

// CreatorAddress returns the parsed creator address. Call Validate first.
func (c *Config) CreatorAddress() common.Address {
	return common.HexToAddress(c.Market.Creator)
}

// AccountAddress returns the parsed market account. Call Validate first.
func (c *Config) AccountAddress() common.Address {
	return common.HexToAddress(c.Market.Account)
}

// LedgerAddress returns the parsed outcome-ledger account. Call Validate
// first.
func (c *Config) LedgerAddress() common.Address {
	return common.HexToAddress(c.Market.LedgerAccount)
}
