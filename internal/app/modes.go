package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/blockbit-hama/xCrack-sub003/internal/chain"
	"github.com/blockbit-hama/xCrack-sub003/internal/domain"
	"github.com/blockbit-hama/xCrack-sub003/internal/engine"
	"github.com/blockbit-hama/xCrack-sub003/internal/server"
	"github.com/blockbit-hama/xCrack-sub003/internal/server/handler"
	"github.com/blockbit-hama/xCrack-sub003/internal/server/ws"
	"github.com/blockbit-hama/xCrack-sub003/internal/service"
)

// ServeMode runs the HTTP control plane and the WebSocket report stream
// until the context is cancelled.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	if !a.cfg.Server.Enabled {
		return fmt.Errorf("serve mode: server.enabled is false")
	}
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	hub := ws.NewHub(a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	svc := a.newExecutionService(deps, hub)

	health := handler.NewHealthHandler(a.logger)
	for name, check := range deps.HealthChecks {
		health.Register(name, check)
	}

	handlers := server.Handlers{
		Health:     health,
		Execute:    handler.NewExecuteHandler(svc, a.logger),
		Executions: handler.NewExecutionsHandler(svc, a.logger),
		Thresholds: handler.NewThresholdsHandler(svc, a.thresholdDefaults(), a.logger),
		Status: handler.NewStatusHandler(handler.StatusInfo{
			Mode:            a.cfg.Mode,
			OwnerAddress:    deps.Owner.Hex(),
			ExecutorAddress: deps.Executor.Self().Hex(),
			ProviderAddress: deps.Pool.Address().Hex(),
			PremiumBps:      a.cfg.Provider.PremiumBps,
		}),
		Sizing: handler.NewSizingHandler(),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	return g.Wait()
}

// Demo addresses used by simulate mode.
var (
	simUSDC   = common.HexToAddress("0x00000000000000000000000000000000000c0001")
	simWETH   = common.HexToAddress("0x00000000000000000000000000000000000c0002")
	simVenueA = common.HexToAddress("0x00000000000000000000000000000000000b0001")
	simVenueB = common.HexToAddress("0x00000000000000000000000000000000000b0002")
)

// SimulateMode seeds a small demo market on the in-memory chain, runs one
// profitable arbitrage and one that violates the profit floor, and logs both
// reports. No external backends are touched.
func (a *App) SimulateMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting simulate mode")

	mem := deps.Memory
	poolAddr := deps.Pool.Address()
	execAddr := deps.Executor.Self()

	mem.RegisterToken(simUSDC)
	mem.RegisterToken(simWETH)
	if err := mem.Mint(simUSDC, poolAddr, big.NewInt(10_000_000)); err != nil {
		return fmt.Errorf("simulate mode: fund pool: %w", err)
	}

	// Venue A sells 500 WETH for 1,000,000 USDC; venue B buys the WETH back
	// for 1,010,000 USDC.
	a.registerVenue(mem, simVenueA, simUSDC, simWETH, big.NewInt(1_000_000), big.NewInt(500))
	a.registerVenue(mem, simVenueB, simWETH, simUSDC, big.NewInt(500), big.NewInt(1_010_000))
	if err := mem.Mint(simWETH, simVenueA, big.NewInt(500)); err != nil {
		return fmt.Errorf("simulate mode: fund venue: %w", err)
	}
	if err := mem.Mint(simUSDC, simVenueB, big.NewInt(1_010_000)); err != nil {
		return fmt.Errorf("simulate mode: fund venue: %w", err)
	}

	svc := a.newExecutionService(deps, nil)

	sub := service.Submission{
		Request: &domain.ArbitrageRequest{
			BuyTarget:         simVenueA,
			SellTarget:        simVenueB,
			Asset:             simUSDC,
			IntermediateAsset: simWETH,
			Amount:            big.NewInt(1_000_000),
		},
		Assets:  []common.Address{simUSDC},
		Amounts: []*big.Int{big.NewInt(1_000_000)},
	}

	report, err := svc.Execute(ctx, sub)
	if err != nil {
		return fmt.Errorf("simulate mode: arbitrage: %w", err)
	}
	a.logReport(ctx, "profitable arbitrage", report)

	// Same round trip with an unreachable profit floor; the execution must
	// roll back.
	greedy := *sub.Request.(*domain.ArbitrageRequest)
	greedy.MinProfit = big.NewInt(1_000_000)
	sub.Request = &greedy
	report, err = svc.Execute(ctx, sub)
	if err == nil {
		return fmt.Errorf("simulate mode: profit floor was not enforced")
	}
	a.logReport(ctx, "rejected arbitrage", report)

	balance, err := mem.BalanceOf(ctx, simUSDC, poolAddr)
	if err != nil {
		return fmt.Errorf("simulate mode: pool balance: %w", err)
	}
	executorGain, err := mem.BalanceOf(ctx, simUSDC, execAddr)
	if err != nil {
		return fmt.Errorf("simulate mode: executor balance: %w", err)
	}
	a.logger.InfoContext(ctx, "simulation complete",
		slog.String("pool_usdc", balance.String()),
		slog.String("executor_usdc", executorGain.String()),
	)
	return nil
}

// registerVenue installs a contract at addr that pulls in of tokIn from the
// caller and pays out of tokOut on every invocation.
func (a *App) registerVenue(mem *chain.Memory, at, tokIn, tokOut common.Address, in, out *big.Int) {
	mem.RegisterContract(at, func(ctx context.Context, env chain.CallEnv) ([]byte, error) {
		if err := mem.TransferFrom(ctx, tokIn, at, env.Caller, at, in); err != nil {
			return nil, err
		}
		if err := mem.Transfer(ctx, tokOut, at, env.Caller, out); err != nil {
			return nil, err
		}
		return nil, nil
	})
}

// submissionFile is the JSON document consumed by execute mode.
type submissionFile struct {
	Strategy string          `json:"strategy"`
	Request  json.RawMessage `json:"request"`
}

// ExecuteMode runs a single submission read from the input file ("-" for
// stdin), persists and archives its report, then exits.
func (a *App) ExecuteMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting execute mode", slog.String("input", a.input))

	var in io.Reader = os.Stdin
	if a.input != "" && a.input != "-" {
		f, err := os.Open(a.input)
		if err != nil {
			return fmt.Errorf("execute mode: open input: %w", err)
		}
		defer f.Close()
		in = f
	}

	var file submissionFile
	if err := json.NewDecoder(in).Decode(&file); err != nil {
		return fmt.Errorf("execute mode: decode input: %w", err)
	}
	sub, err := handler.DecodeSubmission(file.Strategy, bytes.NewReader(file.Request))
	if err != nil {
		return fmt.Errorf("execute mode: %w", err)
	}

	svc := a.newExecutionService(deps, nil)
	report, execErr := svc.Execute(ctx, sub)
	if report.ID == "" {
		return fmt.Errorf("execute mode: %w", execErr)
	}
	a.logReport(ctx, "execution finished", report)
	return nil
}

// newExecutionService builds the execution service over the wired deps. pub
// may be nil when no WebSocket hub is running.
func (a *App) newExecutionService(deps *Dependencies, pub service.Publisher) *service.ExecutionService {
	return service.NewExecutionService(service.Deps{
		Executor: deps.Executor,
		Owner:    deps.Owner,
		BaseConfig: engine.Config{
			MinProfit:         a.cfg.Engine.MinProfit(),
			MaxPriceImpactBps: a.cfg.Engine.MaxPriceImpactBps,
		},
		Store:     deps.ReportStore,
		Archiver:  deps.Archiver,
		Cache:     deps.Thresholds,
		Locks:     deps.Locks,
		Notifier:  deps.Notifier,
		Publisher: pub,
		LockTTL:   a.cfg.Engine.LockTTL.Duration,
	}, a.logger)
}

// thresholdDefaults maps the configured engine bounds to the thresholds
// surface served by the control plane.
func (a *App) thresholdDefaults() domain.Thresholds {
	return domain.Thresholds{
		MinProfitWei:      a.cfg.Engine.MinProfitWei,
		MaxPriceImpactBps: a.cfg.Engine.MaxPriceImpactBps,
		MaxSlippageBps:    a.cfg.Engine.MaxSlippageBps,
		DeadlineSeconds:   a.cfg.Engine.DeadlineSeconds,
	}
}

func (a *App) logReport(ctx context.Context, msg string, report domain.ExecutionReport) {
	attrs := []any{
		slog.String("report_id", report.ID),
		slog.String("strategy", report.StrategyName),
		slog.String("status", string(report.Status)),
		slog.Int64("duration_ms", report.DurationMs),
	}
	if report.Status == domain.ExecutionCommitted {
		attrs = append(attrs,
			slog.String("gross_profit", report.GrossProfit.String()),
			slog.String("net_profit", report.NetProfit.String()),
		)
	} else {
		attrs = append(attrs, slog.String("abort_reason", report.AbortReason))
	}
	a.logger.InfoContext(ctx, msg, attrs...)
}
