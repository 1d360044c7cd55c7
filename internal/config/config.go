// Package config defines the top-level configuration for the execution
// daemon and provides validation helpers.
package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by XCRACK_* environment variables.
type Config struct {
	Wallet   WalletConfig   `toml:"wallet"`
	Provider ProviderConfig `toml:"provider"`
	Engine   EngineConfig   `toml:"engine"`
	Chain    ChainConfig    `toml:"chain"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// WalletConfig holds the owner credential. The owner address is either given
// directly or derived from an encrypted keyfile at startup.
type WalletConfig struct {
	OwnerAddress     string `toml:"owner_address"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// ProviderConfig holds the capital-provider parameters.
type ProviderConfig struct {
	Address    string `toml:"address"`
	PremiumBps int64  `toml:"premium_bps"`
}

// EngineConfig holds the execution bounds the coordinator starts with.
// Thresholds edited through the API override these at runtime.
type EngineConfig struct {
	ExecutorAddress   string   `toml:"executor_address"`
	MinProfitWei      string   `toml:"min_profit_wei"`
	MaxPriceImpactBps int64    `toml:"max_price_impact_bps"`
	MaxSlippageBps    int64    `toml:"max_slippage_bps"`
	DeadlineSeconds   int64    `toml:"deadline_seconds"`
	LockTTL           duration `toml:"lock_ttl"`
}

// ChainConfig seeds the in-memory chain at startup: the token registry and
// the provider's lendable reserves.
type ChainConfig struct {
	Tokens []string `toml:"tokens"`
	// PoolFundingWei is minted to the provider for every listed token.
	PoolFundingWei string `toml:"pool_funding_wei"`
}

// PostgresConfig holds PostgreSQL connection parameters for the execution
// report store.
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

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the report
// archive.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP control-plane parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
	// RateLimit caps requests per client per RateWindow. Zero disables
	// rate limiting.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Provider: ProviderConfig{
			PremiumBps: 9,
		},
		Engine: EngineConfig{
			MinProfitWei:      "0",
			MaxPriceImpactBps: 500,
			MaxSlippageBps:    100,
			DeadlineSeconds:   60,
			LockTTL:           duration{30 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "xcrack",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "xcrack-reports",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
			RateLimit:   60,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"committed", "aborted", "error"},
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve":    true,
	"simulate": true,
	"execute":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, simulate, execute)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet. Exactly one owner credential source must be usable.
	if c.Wallet.OwnerAddress == "" && c.Wallet.EncryptedKeyPath == "" {
		errs = append(errs, "wallet: either owner_address or encrypted_key_path must be set")
	}
	if c.Wallet.OwnerAddress != "" && !common.IsHexAddress(c.Wallet.OwnerAddress) {
		errs = append(errs, fmt.Sprintf("wallet: owner_address %q is not a hex address", c.Wallet.OwnerAddress))
	}
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}

	// Provider
	if c.Provider.PremiumBps < 0 || c.Provider.PremiumBps >= 10000 {
		errs = append(errs, fmt.Sprintf("provider: premium_bps must be in [0, 10000), got %d", c.Provider.PremiumBps))
	}
	if c.Provider.Address != "" && !common.IsHexAddress(c.Provider.Address) {
		errs = append(errs, fmt.Sprintf("provider: address %q is not a hex address", c.Provider.Address))
	}

	// Engine
	if c.Engine.ExecutorAddress != "" && !common.IsHexAddress(c.Engine.ExecutorAddress) {
		errs = append(errs, fmt.Sprintf("engine: executor_address %q is not a hex address", c.Engine.ExecutorAddress))
	}
	if _, ok := parseWei(c.Engine.MinProfitWei); !ok {
		errs = append(errs, fmt.Sprintf("engine: min_profit_wei %q is not a non-negative integer", c.Engine.MinProfitWei))
	}
	if c.Engine.MaxPriceImpactBps < 0 || c.Engine.MaxPriceImpactBps > 10000 {
		errs = append(errs, fmt.Sprintf("engine: max_price_impact_bps must be 0-10000, got %d", c.Engine.MaxPriceImpactBps))
	}
	if c.Engine.MaxSlippageBps < 0 || c.Engine.MaxSlippageBps > 10000 {
		errs = append(errs, fmt.Sprintf("engine: max_slippage_bps must be 0-10000, got %d", c.Engine.MaxSlippageBps))
	}
	if c.Engine.DeadlineSeconds < 0 {
		errs = append(errs, "engine: deadline_seconds must be >= 0")
	}
	if c.Engine.LockTTL.Duration <= 0 {
		errs = append(errs, "engine: lock_ttl must be > 0")
	}

	// Chain
	for _, tok := range c.Chain.Tokens {
		if !common.IsHexAddress(tok) {
			errs = append(errs, fmt.Sprintf("chain: token %q is not a hex address", tok))
		}
	}
	if _, ok := parseWei(c.Chain.PoolFundingWei); !ok {
		errs = append(errs, fmt.Sprintf("chain: pool_funding_wei %q is not a non-negative integer", c.Chain.PoolFundingWei))
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Endpoint == "" {
		errs = append(errs, "s3: endpoint must not be empty")
	}
	if c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must not be negative")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// MinProfit returns the configured minimum profit as a big integer. Validate
// has already rejected unparseable values; a zero minimum is returned for an
// empty string.
func (e EngineConfig) MinProfit() *big.Int {
	n, ok := parseWei(e.MinProfitWei)
	if !ok {
		return new(big.Int)
	}
	return n
}

// PoolFunding returns the per-token provider reserve as a big integer.
func (c ChainConfig) PoolFunding() *big.Int {
	n, ok := parseWei(c.PoolFundingWei)
	if !ok {
		return new(big.Int)
	}
	return n
}

// parseWei parses a non-negative base-10 integer. The empty string counts as
// zero.
func parseWei(s string) (*big.Int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(big.Int), true
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() < 0 {
		return nil, false
	}
	return n, true
}
