package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/blockbit-hama/xCrack-sub003/internal/blob/s3"
	"github.com/blockbit-hama/xCrack-sub003/internal/cache/redis"
	"github.com/blockbit-hama/xCrack-sub003/internal/chain"
	"github.com/blockbit-hama/xCrack-sub003/internal/config"
	"github.com/blockbit-hama/xCrack-sub003/internal/crypto"
	"github.com/blockbit-hama/xCrack-sub003/internal/domain"
	"github.com/blockbit-hama/xCrack-sub003/internal/engine"
	"github.com/blockbit-hama/xCrack-sub003/internal/notify"
	"github.com/blockbit-hama/xCrack-sub003/internal/provider"
	"github.com/blockbit-hama/xCrack-sub003/internal/store/postgres"
)

// Dependencies bundles everything the application modes need: the execution
// core plus the backing stores, caches, archive, and notifications. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Execution core.
	Owner    common.Address
	Memory   *chain.Memory
	Pool     *provider.Pool
	Executor *engine.Executor

	// Stores and caches.
	ReportStore domain.ExecutionReportStore
	Thresholds  domain.ThresholdCache
	Locks       domain.LockManager
	RateLimiter domain.RateLimiter
	Archiver    domain.ReportArchiver

	// Notifications.
	Notifier *notify.Notifier

	// HealthChecks probe each wired backend, keyed by name.
	HealthChecks map[string]func(ctx context.Context) error
}

// needsPostgres reports whether the mode persists execution reports.
func needsPostgres(mode string) bool {
	return mode == "serve" || mode == "execute"
}

// needsRedis reports whether the mode uses locks, thresholds, or rate limits.
func needsRedis(mode string) bool {
	return mode == "serve"
}

// needsS3 reports whether the mode archives reports.
func needsS3(mode string) bool {
	return mode == "serve" || mode == "execute"
}

// Wire constructs all concrete dependencies from the configuration and
// returns them with a cleanup function to be called on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		HealthChecks: make(map[string]func(ctx context.Context) error),
	}

	// Owner credential.
	owner, err := crypto.ResolveOwner(crypto.KeyConfig{
		OwnerAddress:     cfg.Wallet.OwnerAddress,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wire: owner credential: %w", err)
	}
	deps.Owner = owner

	// Postgres report store.
	if needsPostgres(cfg.Mode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		deps.ReportStore = postgres.NewExecutionReportStore(pgClient.Pool())
		deps.HealthChecks["postgres"] = func(ctx context.Context) error {
			return pgClient.Pool().Ping(ctx)
		}
	}

	// Redis locks, thresholds, rate limits.
	if needsRedis(cfg.Mode) {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Thresholds = redis.NewThresholdCache(redisClient)
		deps.Locks = redis.NewLockManager(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.HealthChecks["redis"] = redisClient.Ping
	}

	// S3 report archive.
	if needsS3(cfg.Mode) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		deps.Archiver = s3blob.NewReportArchiver(s3Client)
		deps.HealthChecks["s3"] = s3Client.Health
	}

	// Notifications.
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// Execution core: in-memory chain, capital provider, executor.
	if err := wireEngine(ctx, cfg, deps, logger); err != nil {
		cleanup()
		return nil, nil, err
	}

	return deps, cleanup, nil
}

// wireEngine builds the chain state, the flash-loan pool, and the executor.
// Live thresholds override the configured engine bounds when present.
func wireEngine(ctx context.Context, cfg *config.Config, deps *Dependencies, logger *slog.Logger) error {
	mem := chain.NewMemory()

	poolAddr := common.HexToAddress(cfg.Provider.Address)
	execAddr := common.HexToAddress(cfg.Engine.ExecutorAddress)

	funding := cfg.Chain.PoolFunding()
	for _, tok := range cfg.Chain.Tokens {
		token := common.HexToAddress(tok)
		mem.RegisterToken(token)
		if funding.Sign() > 0 {
			if err := mem.Mint(token, poolAddr, funding); err != nil {
				return fmt.Errorf("wire: fund pool: %w", err)
			}
		}
	}

	engCfg := engine.Config{
		MinProfit:         cfg.Engine.MinProfit(),
		MaxPriceImpactBps: cfg.Engine.MaxPriceImpactBps,
	}
	if deps.Thresholds != nil {
		if t, err := deps.Thresholds.Get(ctx); err == nil {
			engCfg = engine.ConfigFromThresholds(t, engCfg)
			logger.InfoContext(ctx, "applying stored thresholds",
				slog.String("min_profit_wei", t.MinProfitWei),
				slog.Int64("max_price_impact_bps", t.MaxPriceImpactBps),
			)
		} else if err != domain.ErrNotFound {
			return fmt.Errorf("wire: thresholds: %w", err)
		}
	}

	pool := provider.NewPool(mem, poolAddr, cfg.Provider.PremiumBps, logger)
	exec := engine.NewExecutor(mem, deps.Owner, execAddr, poolAddr, pool, engCfg, logger)
	pool.RegisterReceiver(execAddr, exec)

	deps.Memory = mem
	deps.Pool = pool
	deps.Executor = exec
	return nil
}
