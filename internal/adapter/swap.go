package adapter

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/blockbit-hama/xCrack-sub003/internal/domain"
)

// SwapParams describes one delegated swap through an arbitrary router or
// aggregator. Payload is opaque: the adapter only approves the input token,
// fires the call, and measures the output.
type SwapParams struct {
	Target common.Address
	// Spender overrides the approval target for aggregators whose
	// allowance target differs from the call target. Zero means Target.
	Spender  common.Address
	TokenIn  common.Address
	TokenOut common.Address
	// AmountIn is the input amount to approve. Nil means the executing
	// account's full current balance of TokenIn.
	AmountIn *big.Int
	Payload  []byte
	// MinAmountOut, when non-nil, is a hard slippage floor on the
	// measured output.
	MinAmountOut *big.Int
	// MaxImpactBps, when positive, bounds |1 - out/in| in basis points.
	MaxImpactBps int64
}

// Swap invokes arbitrary routers with opaque payloads and reports only the
// Accountant-measured output. Bound checks run after the call executes and
// before any later step does.
type Swap struct {
	deps Deps
}

// NewSwap returns the swap adapter.
func NewSwap(deps Deps) *Swap {
	return &Swap{deps: deps}
}

// Execute runs one swap and returns the measured TokenOut delta.
func (s *Swap) Execute(ctx context.Context, p SwapParams) (*big.Int, error) {
	d := s.deps

	amountIn := p.AmountIn
	if amountIn == nil {
		balance, err := d.Host.BalanceOf(ctx, p.TokenIn, d.Self)
		if err != nil {
			return nil, err
		}
		amountIn = balance
	}
	if amountIn.Sign() <= 0 {
		return nil, callFailed(p.Target, fmt.Errorf("nothing to swap: input amount %s", amountIn))
	}

	spender := p.Spender
	if spender == (common.Address{}) {
		spender = p.Target
	}
	if err := d.Approvals.Ensure(ctx, p.TokenIn, spender, amountIn); err != nil {
		return nil, err
	}

	snap, err := d.Accountant.Snapshot(ctx, p.TokenOut, d.Self)
	if err != nil {
		return nil, err
	}
	if _, err := d.Host.Call(ctx, d.Self, p.Target, p.Payload); err != nil {
		return nil, callFailed(p.Target, err)
	}
	amountOut, err := snap.Delta(ctx)
	if err != nil {
		return nil, err
	}
	if amountOut.Sign() < 0 {
		return nil, callFailed(p.Target, fmt.Errorf("swap consumed output token (measured delta %s)", amountOut))
	}

	if p.MinAmountOut != nil && amountOut.Cmp(p.MinAmountOut) < 0 {
		return nil, &domain.SlippageError{Out: amountOut, Min: p.MinAmountOut}
	}
	if p.MaxImpactBps > 0 {
		impact := priceImpactBps(amountIn, amountOut)
		if impact > p.MaxImpactBps {
			return nil, &domain.PriceImpactError{ActualBps: impact, MaxBps: p.MaxImpactBps}
		}
	}
	return amountOut, nil
}

// priceImpactBps computes |1 - out/in| in basis points, rounded down.
func priceImpactBps(in, out *big.Int) int64 {
	ratio := decimal.NewFromBigInt(out, 0).Div(decimal.NewFromBigInt(in, 0))
	impact := decimal.NewFromInt(1).Sub(ratio).Abs().Mul(decimal.NewFromInt(10000))
	return impact.IntPart()
}
