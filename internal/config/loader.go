package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies XCRACK_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known XCRACK_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e.
// not empty). This lets operators inject secrets at deploy time without
// touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.OwnerAddress, "XCRACK_WALLET_OWNER_ADDRESS")
	setStr(&cfg.Wallet.EncryptedKeyPath, "XCRACK_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "XCRACK_WALLET_KEY_PASSWORD")

	// ── Provider ──
	setStr(&cfg.Provider.Address, "XCRACK_PROVIDER_ADDRESS")
	setInt64(&cfg.Provider.PremiumBps, "XCRACK_PROVIDER_PREMIUM_BPS")

	// ── Engine ──
	setStr(&cfg.Engine.ExecutorAddress, "XCRACK_ENGINE_EXECUTOR_ADDRESS")
	setStr(&cfg.Engine.MinProfitWei, "XCRACK_ENGINE_MIN_PROFIT_WEI")
	setInt64(&cfg.Engine.MaxPriceImpactBps, "XCRACK_ENGINE_MAX_PRICE_IMPACT_BPS")
	setInt64(&cfg.Engine.MaxSlippageBps, "XCRACK_ENGINE_MAX_SLIPPAGE_BPS")
	setInt64(&cfg.Engine.DeadlineSeconds, "XCRACK_ENGINE_DEADLINE_SECONDS")
	setDuration(&cfg.Engine.LockTTL, "XCRACK_ENGINE_LOCK_TTL")

	// ── Chain ──
	setStringSlice(&cfg.Chain.Tokens, "XCRACK_CHAIN_TOKENS")
	setStr(&cfg.Chain.PoolFundingWei, "XCRACK_CHAIN_POOL_FUNDING_WEI")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "XCRACK_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "XCRACK_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "XCRACK_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "XCRACK_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "XCRACK_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "XCRACK_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "XCRACK_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "XCRACK_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "XCRACK_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "XCRACK_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "XCRACK_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "XCRACK_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "XCRACK_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "XCRACK_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "XCRACK_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "XCRACK_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "XCRACK_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "XCRACK_S3_REGION")
	setStr(&cfg.S3.Bucket, "XCRACK_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "XCRACK_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "XCRACK_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "XCRACK_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "XCRACK_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "XCRACK_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "XCRACK_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "XCRACK_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "XCRACK_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "XCRACK_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "XCRACK_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "XCRACK_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "XCRACK_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "XCRACK_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "XCRACK_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "XCRACK_MODE")
	setStr(&cfg.LogLevel, "XCRACK_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
