package adapter

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/blockbit-hama/xCrack-sub003/internal/codec"
	"github.com/blockbit-hama/xCrack-sub003/internal/domain"
)

// SeizeRedeem liquidates positions on markets where both the debt and the
// seized collateral are market-wrapper tokens. Liquidation seizes wrapper
// tokens, which are then redeemed in full for their underlying; only the
// underlying delta is reported.
type SeizeRedeem struct {
	deps Deps
}

// NewSeizeRedeem returns a two-step seize-and-redeem liquidation adapter.
func NewSeizeRedeem(deps Deps) *SeizeRedeem {
	return &SeizeRedeem{deps: deps}
}

// Liquidate repays req.DebtToCover on the debt market, redeems the entire
// seized wrapper-token balance, and returns the measured underlying
// collateral received. Both protocol calls must report a zero status word.
func (a *SeizeRedeem) Liquidate(ctx context.Context, req *domain.LiquidationRequest) (*big.Int, error) {
	d := a.deps

	if err := d.Approvals.Ensure(ctx, req.DebtAsset, req.Pool, req.DebtToCover); err != nil {
		return nil, err
	}

	// Step 1: liquidate on the debt market, seizing wrapper tokens.
	payload, err := codec.LiquidateBorrow(req.User, req.DebtToCover, req.CollateralMarket)
	if err != nil {
		return nil, err
	}
	ret, err := d.Host.Call(ctx, d.Self, req.Pool, payload)
	if err != nil {
		return nil, callFailed(req.Pool, err)
	}
	if err := requireZeroStatus(req.Pool, "liquidateBorrow", ret); err != nil {
		return nil, err
	}

	seized, err := d.Host.BalanceOf(ctx, req.CollateralMarket, d.Self)
	if err != nil {
		return nil, err
	}
	if seized.Sign() <= 0 {
		return nil, callFailed(req.Pool, fmt.Errorf("liquidation seized no collateral market tokens"))
	}

	// Step 2: redeem the whole seized balance for the underlying.
	snap, err := d.Accountant.Snapshot(ctx, req.CollateralAsset, d.Self)
	if err != nil {
		return nil, err
	}
	payload, err = codec.Redeem(seized)
	if err != nil {
		return nil, err
	}
	ret, err = d.Host.Call(ctx, d.Self, req.CollateralMarket, payload)
	if err != nil {
		return nil, callFailed(req.CollateralMarket, err)
	}
	if err := requireZeroStatus(req.CollateralMarket, "redeem", ret); err != nil {
		return nil, err
	}

	received, err := snap.Delta(ctx)
	if err != nil {
		return nil, err
	}
	if received.Sign() <= 0 {
		return nil, callFailed(req.CollateralMarket, fmt.Errorf("redeem yielded no underlying (measured delta %s)", received))
	}
	return received, nil
}

func requireZeroStatus(target common.Address, op string, ret []byte) error {
	status, err := codec.DecodeStatusWord(ret)
	if err != nil {
		return callFailed(target, fmt.Errorf("%s returned malformed status: %w", op, err))
	}
	if status != 0 {
		return callFailed(target, fmt.Errorf("%s returned error code %d", op, status))
	}
	return nil
}
