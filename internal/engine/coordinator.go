package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/blockbit-hama/xCrack-sub003/internal/adapter"
	"github.com/blockbit-hama/xCrack-sub003/internal/chain"
	"github.com/blockbit-hama/xCrack-sub003/internal/domain"
)

// Config bounds every execution the coordinator runs. MinProfit applies to
// the primary (first) borrowed asset unless the request carries its own
// minimum.
type Config struct {
	MinProfit         *big.Int
	MaxPriceImpactBps int64
}

// ConfigFromThresholds overlays stored control-plane thresholds onto base.
// Unset threshold fields keep the base value.
func ConfigFromThresholds(t domain.Thresholds, base Config) Config {
	cfg := base
	if t.MinProfitWei != "" {
		if n, ok := new(big.Int).SetString(t.MinProfitWei, 10); ok && n.Sign() >= 0 {
			cfg.MinProfit = n
		}
	}
	if t.MaxPriceImpactBps > 0 {
		cfg.MaxPriceImpactBps = t.MaxPriceImpactBps
	}
	return cfg
}

// Coordinator orchestrates one execution per capital-provider callback:
// decode, run the variant's adapter sequence, validate solvency and profit
// over every borrowed asset, then grant the provider its repayment
// allowance. Any failure aborts the whole unit; the coordinator holds no
// state between invocations.
//
// Phases: Idle -> Decoding -> Executing -> Validating -> Committing or
// Aborting -> Terminal. Aborting is expressed as an error return; the caller
// owns the rollback of the enclosing unit of work.
type Coordinator struct {
	host       chain.Host
	self       common.Address
	provider   common.Address
	deps       adapter.Deps
	swap       *adapter.Swap
	dispatcher *Dispatcher
	log        *slog.Logger

	// cfgMu guards cfg, which the control plane may replace between
	// executions.
	cfgMu sync.Mutex
	cfg   Config
}

// NewCoordinator wires a coordinator for the executing account self, with
// provider as the only address ever granted a repayment allowance.
func NewCoordinator(host chain.Host, self, provider common.Address, cfg Config, logger *slog.Logger) *Coordinator {
	if cfg.MinProfit == nil {
		cfg.MinProfit = new(big.Int)
	}
	deps := adapter.Deps{
		Host:       host,
		Self:       self,
		Accountant: chain.NewAccountant(host),
		Approvals:  chain.NewApprovalManager(host, self),
	}
	c := &Coordinator{
		host:       host,
		self:       self,
		provider:   provider,
		deps:       deps,
		swap:       adapter.NewSwap(deps),
		dispatcher: NewDispatcher(),
		cfg:        cfg,
		log:        logger.With(slog.String("component", "coordinator")),
	}
	c.dispatcher.Register(domain.KindLiquidation, c.handleLiquidation)
	c.dispatcher.Register(domain.KindSandwich, c.handleSandwich)
	c.dispatcher.Register(domain.KindArbitrage, c.handleArbitrage)
	c.dispatcher.Register(domain.KindTriangularArbitrage, c.handleTriangular)
	c.dispatcher.Register(domain.KindPositionMigration, c.handleMigration)
	c.dispatcher.Register(domain.KindMultiAssetArbitrage, c.handleMultiArbitrage)
	return c
}

// Execute runs one full decode-execute-validate-commit cycle. A nil error
// means the execution committed: every borrowed asset's repayment allowance
// is in place and the result carries the realized profit. Any error means
// the whole unit must be rolled back by the caller.
func (c *Coordinator) Execute(ctx context.Context, family PayloadFamily, payload []byte, loans []domain.Loan) (domain.ExecutionResult, error) {
	var result domain.ExecutionResult

	// 1. Decoding.
	req, err := c.dispatcher.Decode(family, payload)
	if err != nil {
		return result, err
	}
	log := c.log.With(slog.String("strategy", req.Kind().String()))

	// 2. Executing. The deadline gates the whole phase: an expired
	// request must not run any adapter.
	if dl := req.Deadline(); dl != 0 && uint64(c.host.Now().Unix()) > dl {
		return result, fmt.Errorf("engine: deadline %d passed: %w", dl, domain.ErrDeadlineExpired)
	}
	if err := c.dispatcher.Dispatch(ctx, req, loans); err != nil {
		log.Warn("execution aborted", slog.String("error", err.Error()))
		return result, err
	}

	// 3. Validating: all borrowed assets together. Partial solvency is
	// not a terminal state.
	result, err = c.validate(ctx, req, loans)
	if err != nil {
		log.Warn("validation aborted", slog.String("error", err.Error()))
		return domain.ExecutionResult{}, err
	}

	// 4. Committing: grant the provider exactly principal + premium per
	// borrowed asset so it can pull repayment.
	for _, loan := range loans {
		if err := c.deps.Approvals.Ensure(ctx, loan.Asset, c.provider, domain.ObligationOf(loan).Total()); err != nil {
			return domain.ExecutionResult{}, err
		}
	}

	log.Info("execution committed",
		slog.String("gross_profit", result.GrossProfit.String()),
		slog.String("net_profit", result.NetProfit.String()),
	)
	return result, nil
}

func (c *Coordinator) validate(ctx context.Context, req domain.StrategyRequest, loans []domain.Loan) (domain.ExecutionResult, error) {
	var result domain.ExecutionResult
	for i, loan := range loans {
		ob := domain.ObligationOf(loan)
		have, err := c.host.BalanceOf(ctx, ob.Asset, c.self)
		if err != nil {
			return result, err
		}
		need := ob.Total()
		if have.Cmp(need) < 0 {
			return result, &domain.RepaymentError{Asset: ob.Asset, Have: have, Need: need}
		}
		if i == 0 {
			result.GrossProfit = new(big.Int).Sub(have, ob.Principal)
			result.NetProfit = new(big.Int).Sub(have, need)
		}
	}
	if result.NetProfit == nil {
		result.GrossProfit = new(big.Int)
		result.NetProfit = new(big.Int)
	}
	min := c.minProfitFor(req)
	if result.NetProfit.Cmp(min) < 0 {
		return result, &domain.ProfitError{Actual: result.NetProfit, Required: min}
	}
	result.Success = true
	return result, nil
}

// minProfitFor prefers a request-scoped minimum over the engine default.
func (c *Coordinator) minProfitFor(req domain.StrategyRequest) *big.Int {
	if r, ok := req.(*domain.ArbitrageRequest); ok && r.MinProfit != nil {
		return r.MinProfit
	}
	return c.config().MinProfit
}

// SetConfig replaces the execution bounds for subsequent executions.
func (c *Coordinator) SetConfig(cfg Config) {
	if cfg.MinProfit == nil {
		cfg.MinProfit = new(big.Int)
	}
	c.cfgMu.Lock()
	defer c.cfgMu.Unlock()
	c.cfg = cfg
}

func (c *Coordinator) config() Config {
	c.cfgMu.Lock()
	defer c.cfgMu.Unlock()
	return c.cfg
}

func singleLoan(req domain.StrategyRequest, loans []domain.Loan) (domain.Loan, error) {
	if len(loans) != 1 {
		return domain.Loan{}, fmt.Errorf("engine: %s expects exactly one borrowed asset, got %d: %w",
			req.Kind(), len(loans), domain.ErrDecodeFailure)
	}
	return loans[0], nil
}

func (c *Coordinator) handleLiquidation(ctx context.Context, sreq domain.StrategyRequest, loans []domain.Loan) error {
	req := sreq.(*domain.LiquidationRequest)
	if _, err := singleLoan(req, loans); err != nil {
		return err
	}

	liq, err := adapter.ForKind(req.Protocol, c.deps)
	if err != nil {
		return err
	}
	received, err := liq.Liquidate(ctx, req)
	if err != nil {
		return err
	}
	c.log.Debug("liquidation measured",
		slog.String("collateral", req.CollateralAsset.Hex()),
		slog.String("received", received.String()),
	)

	// Collateral equal to the debt asset needs no swap back.
	if req.SwapTarget == (common.Address{}) || req.CollateralAsset == req.DebtAsset {
		return nil
	}
	_, err = c.swap.Execute(ctx, adapter.SwapParams{
		Target:   req.SwapTarget,
		TokenIn:  req.CollateralAsset,
		TokenOut: req.DebtAsset,
		Payload:  req.SwapPayload,
	})
	return err
}

func (c *Coordinator) handleSandwich(ctx context.Context, sreq domain.StrategyRequest, loans []domain.Loan) error {
	req := sreq.(*domain.SandwichRequest)
	loan, err := singleLoan(req, loans)
	if err != nil {
		return err
	}

	maxImpact := req.MaxPriceImpactBps
	if maxImpact == 0 {
		maxImpact = c.config().MaxPriceImpactBps
	}

	// Front-run leg. An impact breach here aborts before the back-run
	// ever executes.
	if _, err := c.swap.Execute(ctx, adapter.SwapParams{
		Target:       req.Router,
		TokenIn:      loan.Asset,
		TokenOut:     req.PairedAsset,
		AmountIn:     req.Amount,
		Payload:      req.FrontPayload,
		MaxImpactBps: maxImpact,
	}); err != nil {
		return err
	}

	// Back-run leg unwinds the full paired-asset position.
	_, err = c.swap.Execute(ctx, adapter.SwapParams{
		Target:   req.Router,
		TokenIn:  req.PairedAsset,
		TokenOut: loan.Asset,
		Payload:  req.BackPayload,
	})
	return err
}

func (c *Coordinator) handleArbitrage(ctx context.Context, sreq domain.StrategyRequest, loans []domain.Loan) error {
	req := sreq.(*domain.ArbitrageRequest)
	loan, err := singleLoan(req, loans)
	if err != nil {
		return err
	}
	if req.Asset != loan.Asset {
		return fmt.Errorf("engine: arbitrage asset %s does not match borrowed asset %s: %w",
			req.Asset.Hex(), loan.Asset.Hex(), domain.ErrDecodeFailure)
	}

	if _, err := c.swap.Execute(ctx, adapter.SwapParams{
		Target:   req.BuyTarget,
		TokenIn:  req.Asset,
		TokenOut: req.IntermediateAsset,
		AmountIn: req.Amount,
		Payload:  req.BuyPayload,
	}); err != nil {
		return err
	}
	_, err = c.swap.Execute(ctx, adapter.SwapParams{
		Target:   req.SellTarget,
		TokenIn:  req.IntermediateAsset,
		TokenOut: req.Asset,
		Payload:  req.SellPayload,
	})
	return err
}

func (c *Coordinator) handleTriangular(ctx context.Context, sreq domain.StrategyRequest, loans []domain.Loan) error {
	req := sreq.(*domain.TriangularArbitrageRequest)
	loan, err := singleLoan(req, loans)
	if err != nil {
		return err
	}
	if req.Asset != loan.Asset {
		return fmt.Errorf("engine: triangular asset %s does not match borrowed asset %s: %w",
			req.Asset.Hex(), loan.Asset.Hex(), domain.ErrDecodeFailure)
	}
	if req.Legs[2].TokenOut != req.Asset {
		return fmt.Errorf("engine: triangular route does not return to %s: %w",
			req.Asset.Hex(), domain.ErrDecodeFailure)
	}
	return c.runRoute(ctx, req.Asset, req.Amount, req.Legs[:])
}

func (c *Coordinator) handleMigration(ctx context.Context, sreq domain.StrategyRequest, loans []domain.Loan) error {
	req := sreq.(*domain.PositionMigrationRequest)
	if len(req.RepayCalldata) != len(loans) || len(req.BorrowCalldata) != len(loans) {
		return fmt.Errorf("engine: migration calldata count %d/%d does not match %d borrowed assets: %w",
			len(req.RepayCalldata), len(req.BorrowCalldata), len(loans), domain.ErrDecodeFailure)
	}

	// Repay every debt on the source protocol first; the flash-loaned
	// funds are exactly the amounts owed there.
	for i, loan := range loans {
		if err := c.deps.Approvals.Ensure(ctx, loan.Asset, req.FromProtocol, loan.Amount); err != nil {
			return err
		}
		if _, err := c.host.Call(ctx, c.self, req.FromProtocol, req.RepayCalldata[i]); err != nil {
			return &domain.AdapterCallError{Target: req.FromProtocol, Raw: err}
		}
	}

	// Re-open the position on the target protocol. Each borrow must pay
	// the borrowed asset back to this account; validation enforces that
	// the measured balances cover every obligation.
	for i := range loans {
		if _, err := c.host.Call(ctx, c.self, req.ToProtocol, req.BorrowCalldata[i]); err != nil {
			return &domain.AdapterCallError{Target: req.ToProtocol, Raw: err}
		}
	}
	return nil
}

func (c *Coordinator) handleMultiArbitrage(ctx context.Context, sreq domain.StrategyRequest, loans []domain.Loan) error {
	req := sreq.(*domain.MultiAssetArbitrageRequest)
	if len(req.Routes) != len(loans) {
		return fmt.Errorf("engine: %d routes for %d borrowed assets: %w",
			len(req.Routes), len(loans), domain.ErrDecodeFailure)
	}
	for i, route := range req.Routes {
		loan := loans[i]
		last := route.Legs[len(route.Legs)-1]
		if last.TokenOut != loan.Asset {
			return fmt.Errorf("engine: route %d does not return to %s: %w",
				i, loan.Asset.Hex(), domain.ErrDecodeFailure)
		}
		if err := c.runRoute(ctx, loan.Asset, loan.Amount, route.Legs); err != nil {
			return err
		}
	}
	return nil
}

// runRoute executes a leg sequence starting from amount of asset, feeding
// each leg's full measured output into the next.
func (c *Coordinator) runRoute(ctx context.Context, asset common.Address, amount *big.Int, legs []domain.SwapLeg) error {
	tokenIn := asset
	amountIn := amount
	for _, leg := range legs {
		out, err := c.swap.Execute(ctx, adapter.SwapParams{
			Target:   leg.Target,
			Spender:  leg.Spender,
			TokenIn:  tokenIn,
			TokenOut: leg.TokenOut,
			AmountIn: amountIn,
			Payload:  leg.Payload,
		})
		if err != nil {
			return err
		}
		tokenIn = leg.TokenOut
		amountIn = out
	}
	return nil
}
