package adapter

import (
	"context"
	"fmt"
	"math/big"

	"github.com/blockbit-hama/xCrack-sub003/internal/codec"
	"github.com/blockbit-hama/xCrack-sub003/internal/domain"
)

// LendingPool liquidates positions on pool-style protocols that expose a
// direct liquidationCall entrypoint and pay out underlying collateral.
type LendingPool struct {
	deps Deps
}

// NewLendingPool returns a lending-pool liquidation adapter.
func NewLendingPool(deps Deps) *LendingPool {
	return &LendingPool{deps: deps}
}

// Liquidate repays req.DebtToCover of the user's debt and returns the
// measured amount of collateral received. The pool's own accounting of the
// seized amount is ignored.
func (a *LendingPool) Liquidate(ctx context.Context, req *domain.LiquidationRequest) (*big.Int, error) {
	d := a.deps

	if err := d.Approvals.Ensure(ctx, req.DebtAsset, req.Pool, req.DebtToCover); err != nil {
		return nil, err
	}

	snap, err := d.Accountant.Snapshot(ctx, req.CollateralAsset, d.Self)
	if err != nil {
		return nil, err
	}

	payload, err := codec.LiquidationCall(req.CollateralAsset, req.DebtAsset, req.User, req.DebtToCover)
	if err != nil {
		return nil, err
	}
	if _, err := d.Host.Call(ctx, d.Self, req.Pool, payload); err != nil {
		return nil, callFailed(req.Pool, err)
	}

	received, err := snap.Delta(ctx)
	if err != nil {
		return nil, err
	}
	if received.Sign() <= 0 {
		return nil, callFailed(req.Pool, fmt.Errorf("liquidation yielded no collateral (measured delta %s)", received))
	}
	return received, nil
}

// ForKind selects the liquidation adapter for a protocol family.
func ForKind(kind domain.ProtocolKind, deps Deps) (Liquidator, error) {
	switch kind {
	case domain.ProtocolLendingPool:
		return NewLendingPool(deps), nil
	case domain.ProtocolSeizeRedeem:
		return NewSeizeRedeem(deps), nil
	case domain.ProtocolAbsorb:
		return NewAbsorb(deps), nil
	default:
		return nil, fmt.Errorf("adapter: unknown protocol kind %d: %w", kind, domain.ErrDecodeFailure)
	}
}

// Liquidator is implemented by all three protocol-family adapters. The
// returned amount is always an Accountant-measured collateral delta.
type Liquidator interface {
	Liquidate(ctx context.Context, req *domain.LiquidationRequest) (*big.Int, error)
}
