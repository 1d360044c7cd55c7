package adapter

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/blockbit-hama/xCrack-sub003/internal/codec"
	"github.com/blockbit-hama/xCrack-sub003/internal/domain"
)

// Absorb liquidates positions on markets whose absorb entrypoint clears the
// account's debt and transfers its seized collateral in one step. There is
// no separate repay: the market settles against its own reserves.
type Absorb struct {
	deps Deps
}

// NewAbsorb returns an absorb-style liquidation adapter.
func NewAbsorb(deps Deps) *Absorb {
	return &Absorb{deps: deps}
}

// Liquidate absorbs the user's position and returns the measured collateral
// received. A zero delta is not an adapter failure here: the absorb call
// can legitimately settle without paying this account, and validation
// rejects the execution downstream.
func (a *Absorb) Liquidate(ctx context.Context, req *domain.LiquidationRequest) (*big.Int, error) {
	d := a.deps

	snap, err := d.Accountant.Snapshot(ctx, req.CollateralAsset, d.Self)
	if err != nil {
		return nil, err
	}

	payload, err := codec.Absorb(d.Self, []common.Address{req.User})
	if err != nil {
		return nil, err
	}
	if _, err := d.Host.Call(ctx, d.Self, req.Pool, payload); err != nil {
		return nil, callFailed(req.Pool, err)
	}

	return snap.Delta(ctx)
}
