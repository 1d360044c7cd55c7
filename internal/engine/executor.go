// Package engine implements the borrow-execute-validate-repay execution
// core: owner-gated strategy entrypoints, the capital-provider callbacks,
// the dispatcher routing decoded requests, and the coordinator enforcing the
// all-or-nothing profitability contract.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/blockbit-hama/xCrack-sub003/internal/chain"
	"github.com/blockbit-hama/xCrack-sub003/internal/codec"
	"github.com/blockbit-hama/xCrack-sub003/internal/domain"
)

// FlashLoanProvider is the executor's view of the capital provider. The
// provider transfers the principal, invokes the executor's callback, and
// pulls principal plus premium back through the allowance the committed
// execution granted. A returned error means the whole unit was rolled back.
type FlashLoanProvider interface {
	FlashLoan(ctx context.Context, initiator, receiver, asset common.Address, amount *big.Int, payload []byte) error
	FlashLoanMulti(ctx context.Context, initiator, receiver common.Address, assets []common.Address, amounts []*big.Int, payload []byte) error
}

// Executor owns the strategy entrypoints and the provider callbacks. The
// owner credential is injected at construction and checked explicitly at
// the top of every entrypoint.
type Executor struct {
	host         chain.Host
	owner        common.Address
	self         common.Address
	providerAddr common.Address
	provider     FlashLoanProvider
	coord        *Coordinator
	log          *slog.Logger

	// execMu serializes whole executions: state-mutating units run one
	// at a time, and the provider loan plus the result handoff below is
	// a single critical section.
	execMu sync.Mutex

	// mu guards lastResult, which carries the callback's result out to
	// the enclosing entrypoint.
	mu         sync.Mutex
	lastResult domain.ExecutionResult
}

// NewExecutor wires an executor for the account self, owned by owner,
// borrowing from the provider registered at providerAddr.
func NewExecutor(host chain.Host, owner, self, providerAddr common.Address, provider FlashLoanProvider, cfg Config, logger *slog.Logger) *Executor {
	return &Executor{
		host:         host,
		owner:        owner,
		self:         self,
		providerAddr: providerAddr,
		provider:     provider,
		coord:        NewCoordinator(host, self, providerAddr, cfg, logger),
		log:          logger.With(slog.String("component", "executor")),
	}
}

// Self returns the executing account's address.
func (e *Executor) Self() common.Address { return e.self }

// SetConfig replaces the execution bounds for subsequent executions. The
// control plane applies stored thresholds through this before dispatching.
func (e *Executor) SetConfig(cfg Config) { e.coord.SetConfig(cfg) }

// Owner returns the current owner address.
func (e *Executor) Owner() common.Address {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.owner
}

func (e *Executor) requireOwner(caller common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if caller != e.owner {
		return fmt.Errorf("engine: caller %s is not the owner: %w", caller.Hex(), domain.ErrUnauthorizedCaller)
	}
	return nil
}

func (e *Executor) setResult(r domain.ExecutionResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastResult = r
}

func (e *Executor) takeResult() domain.ExecutionResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	r := e.lastResult
	e.lastResult = domain.ExecutionResult{}
	return r
}

func (e *Executor) runSingle(ctx context.Context, req domain.StrategyRequest, asset common.Address, amount *big.Int) (domain.ExecutionResult, error) {
	payload, err := codec.EncodeSingle(req)
	if err != nil {
		return domain.ExecutionResult{}, err
	}
	e.execMu.Lock()
	defer e.execMu.Unlock()
	if err := e.provider.FlashLoan(ctx, e.self, e.self, asset, amount, payload); err != nil {
		return domain.ExecutionResult{}, err
	}
	return e.takeResult(), nil
}

func (e *Executor) runMulti(ctx context.Context, req domain.StrategyRequest, assets []common.Address, amounts []*big.Int) (domain.ExecutionResult, error) {
	payload, err := codec.EncodeMulti(req)
	if err != nil {
		return domain.ExecutionResult{}, err
	}
	e.execMu.Lock()
	defer e.execMu.Unlock()
	if err := e.provider.FlashLoanMulti(ctx, e.self, e.self, assets, amounts, payload); err != nil {
		return domain.ExecutionResult{}, err
	}
	return e.takeResult(), nil
}

// ExecuteLiquidation borrows amount of asset and runs a liquidation request
// inside the provider callback.
func (e *Executor) ExecuteLiquidation(ctx context.Context, caller, asset common.Address, amount *big.Int, req *domain.LiquidationRequest) (domain.ExecutionResult, error) {
	if err := e.requireOwner(caller); err != nil {
		return domain.ExecutionResult{}, err
	}
	return e.runSingle(ctx, req, asset, amount)
}

// ExecuteSandwich borrows amount of asset and runs a sandwich request.
func (e *Executor) ExecuteSandwich(ctx context.Context, caller, asset common.Address, amount *big.Int, req *domain.SandwichRequest) (domain.ExecutionResult, error) {
	if err := e.requireOwner(caller); err != nil {
		return domain.ExecutionResult{}, err
	}
	return e.runSingle(ctx, req, asset, amount)
}

// ExecuteArbitrage borrows amount of asset and runs a two-leg arbitrage
// request.
func (e *Executor) ExecuteArbitrage(ctx context.Context, caller, asset common.Address, amount *big.Int, req *domain.ArbitrageRequest) (domain.ExecutionResult, error) {
	if err := e.requireOwner(caller); err != nil {
		return domain.ExecutionResult{}, err
	}
	return e.runSingle(ctx, req, asset, amount)
}

// ExecuteMultiAssetArbitrage borrows every asset in assets and runs one
// route per asset. modes mirrors the provider's interest-rate-mode array and
// must be all zero: the engine only takes pure flash loans, never opens
// debt.
func (e *Executor) ExecuteMultiAssetArbitrage(ctx context.Context, caller common.Address, assets []common.Address, amounts []*big.Int, modes []uint8, req *domain.MultiAssetArbitrageRequest) (domain.ExecutionResult, error) {
	if err := e.requireOwner(caller); err != nil {
		return domain.ExecutionResult{}, err
	}
	if len(assets) != len(amounts) || len(assets) != len(modes) {
		return domain.ExecutionResult{}, fmt.Errorf("engine: assets/amounts/modes length mismatch: %w", domain.ErrDecodeFailure)
	}
	for i, m := range modes {
		if m != 0 {
			return domain.ExecutionResult{}, fmt.Errorf("engine: mode %d for asset %d: only no-debt flash loans are supported: %w",
				m, i, domain.ErrDecodeFailure)
		}
	}
	return e.runMulti(ctx, req, assets, amounts)
}

// ExecuteTriangularArbitrage borrows the request's asset and routes it
// through the three configured legs.
func (e *Executor) ExecuteTriangularArbitrage(ctx context.Context, caller common.Address, req *domain.TriangularArbitrageRequest) (domain.ExecutionResult, error) {
	if err := e.requireOwner(caller); err != nil {
		return domain.ExecutionResult{}, err
	}
	return e.runMulti(ctx, req, []common.Address{req.Asset}, []*big.Int{req.Amount})
}

// ExecutePositionMigration borrows the request's asset amounts and migrates
// the position between protocols.
func (e *Executor) ExecutePositionMigration(ctx context.Context, caller common.Address, req *domain.PositionMigrationRequest) (domain.ExecutionResult, error) {
	if err := e.requireOwner(caller); err != nil {
		return domain.ExecutionResult{}, err
	}
	if len(req.Assets) == 0 || len(req.Assets) != len(req.Amounts) {
		return domain.ExecutionResult{}, fmt.Errorf("engine: migration assets/amounts length mismatch: %w", domain.ErrDecodeFailure)
	}
	return e.runMulti(ctx, req, req.Assets, req.Amounts)
}

// OnFlashLoan is the single-asset capital-provider callback. Only the
// configured provider may invoke it, and only for loans this executor
// initiated itself.
func (e *Executor) OnFlashLoan(ctx context.Context, caller, asset common.Address, amount, premium *big.Int, initiator common.Address, payload []byte) error {
	if err := e.checkCallback(caller, initiator); err != nil {
		return err
	}
	loans := []domain.Loan{{Asset: asset, Amount: amount, Premium: premium}}
	result, err := e.coord.Execute(ctx, FamilySingle, payload, loans)
	if err != nil {
		return err
	}
	e.setResult(result)
	return nil
}

// OnMultiFlashLoan is the multi-asset capital-provider callback.
func (e *Executor) OnMultiFlashLoan(ctx context.Context, caller common.Address, assets []common.Address, amounts, premiums []*big.Int, initiator common.Address, payload []byte) error {
	if err := e.checkCallback(caller, initiator); err != nil {
		return err
	}
	if len(assets) != len(amounts) || len(assets) != len(premiums) {
		return fmt.Errorf("engine: callback assets/amounts/premiums length mismatch: %w", domain.ErrDecodeFailure)
	}
	loans := make([]domain.Loan, len(assets))
	for i := range assets {
		loans[i] = domain.Loan{Asset: assets[i], Amount: amounts[i], Premium: premiums[i]}
	}
	result, err := e.coord.Execute(ctx, FamilyMulti, payload, loans)
	if err != nil {
		return err
	}
	e.setResult(result)
	return nil
}

func (e *Executor) checkCallback(caller, initiator common.Address) error {
	if caller != e.providerAddr {
		return fmt.Errorf("engine: callback from %s, expected provider %s: %w",
			caller.Hex(), e.providerAddr.Hex(), domain.ErrUnauthorizedCaller)
	}
	if initiator != e.self {
		return fmt.Errorf("engine: loan initiated by %s, not by this executor: %w",
			initiator.Hex(), domain.ErrUnauthorizedCaller)
	}
	return nil
}

// TransferOwnership hands the owner credential to newOwner. Owner-gated.
func (e *Executor) TransferOwnership(caller, newOwner common.Address) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if newOwner == (common.Address{}) {
		return fmt.Errorf("engine: refusing to transfer ownership to the zero address")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.owner = newOwner
	e.log.Info("ownership transferred", slog.String("new_owner", newOwner.Hex()))
	return nil
}

// Rescue transfers the executor's entire balance of token to the owner.
// Owner-gated; operates outside any borrow/repay cycle.
func (e *Executor) Rescue(ctx context.Context, caller, token common.Address) (*big.Int, error) {
	if err := e.requireOwner(caller); err != nil {
		return nil, err
	}
	balance, err := e.host.BalanceOf(ctx, token, e.self)
	if err != nil {
		return nil, err
	}
	if balance.Sign() == 0 {
		return new(big.Int), nil
	}
	if err := e.host.Transfer(ctx, token, e.self, e.Owner(), balance); err != nil {
		return nil, err
	}
	e.log.Info("rescued tokens",
		slog.String("token", token.Hex()),
		slog.String("amount", balance.String()),
	)
	return balance, nil
}
