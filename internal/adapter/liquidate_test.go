package adapter

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/blockbit-hama/xCrack-sub003/internal/chain"
	"github.com/blockbit-hama/xCrack-sub003/internal/domain"
)

var (
	pool       = common.HexToAddress("0x0000000000000000000000000000000000003001")
	cCollat    = common.HexToAddress("0x0000000000000000000000000000000000003002")
	borrower   = common.HexToAddress("0x0000000000000000000000000000000000003003")
	collateral = common.HexToAddress("0x0000000000000000000000000000000000004001")
	debt       = common.HexToAddress("0x0000000000000000000000000000000000004002")
)

func statusWord(code byte) []byte {
	w := make([]byte, 32)
	w[31] = code
	return w
}

func liquidationSetup(t *testing.T) *chain.Memory {
	t.Helper()
	m := chain.NewMemory()
	m.RegisterToken(collateral)
	m.RegisterToken(debt)
	require.NoError(t, m.Mint(debt, self, wei(1000)))
	require.NoError(t, m.Mint(collateral, pool, wei(10_000)))
	return m
}

func lendingPoolReq() *domain.LiquidationRequest {
	return &domain.LiquidationRequest{
		Protocol:        domain.ProtocolLendingPool,
		Pool:            pool,
		User:            borrower,
		CollateralAsset: collateral,
		DebtAsset:       debt,
		DebtToCover:     wei(1000),
	}
}

func TestLendingPoolLiquidate(t *testing.T) {
	ctx := context.Background()
	m := liquidationSetup(t)
	m.RegisterContract(pool, func(ctx context.Context, env chain.CallEnv) ([]byte, error) {
		if err := env.Host.TransferFrom(ctx, debt, pool, self, pool, wei(1000)); err != nil {
			return nil, err
		}
		return nil, env.Host.Transfer(ctx, collateral, pool, self, wei(1100))
	})

	a := NewLendingPool(newDeps(m))
	received, err := a.Liquidate(ctx, lendingPoolReq())
	require.NoError(t, err)
	require.Equal(t, wei(1100), received)
}

func TestLendingPoolLiquidateRevert(t *testing.T) {
	ctx := context.Background()
	m := liquidationSetup(t)
	m.RegisterContract(pool, func(ctx context.Context, env chain.CallEnv) ([]byte, error) {
		return nil, errors.New("health factor above threshold")
	})

	a := NewLendingPool(newDeps(m))
	_, err := a.Liquidate(ctx, lendingPoolReq())
	require.ErrorIs(t, err, domain.ErrAdapterCallFailed)
}

func TestLendingPoolLiquidateNoCollateral(t *testing.T) {
	ctx := context.Background()
	m := liquidationSetup(t)
	// The call "succeeds" but transfers nothing; the measured delta rules.
	m.RegisterContract(pool, func(ctx context.Context, env chain.CallEnv) ([]byte, error) {
		return statusWord(0), nil
	})

	a := NewLendingPool(newDeps(m))
	_, err := a.Liquidate(ctx, lendingPoolReq())
	require.ErrorIs(t, err, domain.ErrAdapterCallFailed)
	require.ErrorContains(t, err, "no collateral")
}

func seizeRedeemReq() *domain.LiquidationRequest {
	return &domain.LiquidationRequest{
		Protocol:         domain.ProtocolSeizeRedeem,
		Pool:             pool,
		CollateralMarket: cCollat,
		User:             borrower,
		CollateralAsset:  collateral,
		DebtAsset:        debt,
		DebtToCover:      wei(1000),
	}
}

// Scenario: liquidate reports ok, 500 market tokens are seized, redeeming
// them yields 480 underlying. The adapter must report exactly the measured
// 480, independent of anything either call claims.
func TestSeizeRedeemLiquidate(t *testing.T) {
	ctx := context.Background()
	m := liquidationSetup(t)
	m.RegisterToken(cCollat)
	require.NoError(t, m.Mint(cCollat, pool, wei(500)))
	require.NoError(t, m.Mint(collateral, cCollat, wei(5000)))

	m.RegisterContract(pool, func(ctx context.Context, env chain.CallEnv) ([]byte, error) {
		if err := env.Host.TransferFrom(ctx, debt, pool, self, pool, wei(1000)); err != nil {
			return nil, err
		}
		if err := env.Host.Transfer(ctx, cCollat, pool, self, wei(500)); err != nil {
			return nil, err
		}
		return statusWord(0), nil
	})
	m.RegisterContract(cCollat, func(ctx context.Context, env chain.CallEnv) ([]byte, error) {
		if err := env.Host.Transfer(ctx, cCollat, self, cCollat, wei(500)); err != nil {
			return nil, err
		}
		if err := env.Host.Transfer(ctx, collateral, cCollat, self, wei(480)); err != nil {
			return nil, err
		}
		return statusWord(0), nil
	})

	a := NewSeizeRedeem(newDeps(m))
	received, err := a.Liquidate(ctx, seizeRedeemReq())
	require.NoError(t, err)
	require.Equal(t, wei(480), received)
}

func TestSeizeRedeemNonZeroStatus(t *testing.T) {
	ctx := context.Background()
	m := liquidationSetup(t)
	m.RegisterToken(cCollat)
	m.RegisterContract(pool, func(ctx context.Context, env chain.CallEnv) ([]byte, error) {
		return statusWord(3), nil // INSUFFICIENT_SHORTFALL
	})

	a := NewSeizeRedeem(newDeps(m))
	_, err := a.Liquidate(ctx, seizeRedeemReq())
	require.ErrorIs(t, err, domain.ErrAdapterCallFailed)
	require.ErrorContains(t, err, "error code 3")
}

func TestSeizeRedeemMalformedStatus(t *testing.T) {
	ctx := context.Background()
	m := liquidationSetup(t)
	m.RegisterToken(cCollat)
	m.RegisterContract(pool, func(ctx context.Context, env chain.CallEnv) ([]byte, error) {
		return []byte{0x01, 0x02}, nil
	})

	a := NewSeizeRedeem(newDeps(m))
	_, err := a.Liquidate(ctx, seizeRedeemReq())
	require.ErrorIs(t, err, domain.ErrAdapterCallFailed)
	require.ErrorContains(t, err, "malformed status")
}

func TestSeizeRedeemNothingSeized(t *testing.T) {
	ctx := context.Background()
	m := liquidationSetup(t)
	m.RegisterToken(cCollat)
	m.RegisterContract(pool, func(ctx context.Context, env chain.CallEnv) ([]byte, error) {
		return statusWord(0), nil
	})

	a := NewSeizeRedeem(newDeps(m))
	_, err := a.Liquidate(ctx, seizeRedeemReq())
	require.ErrorIs(t, err, domain.ErrAdapterCallFailed)
	require.ErrorContains(t, err, "seized no collateral")
}

func TestAbsorbLiquidate(t *testing.T) {
	ctx := context.Background()
	m := liquidationSetup(t)
	m.RegisterContract(pool, func(ctx context.Context, env chain.CallEnv) ([]byte, error) {
		return nil, env.Host.Transfer(ctx, collateral, pool, self, wei(750))
	})

	a := NewAbsorb(newDeps(m))
	received, err := a.Liquidate(ctx, &domain.LiquidationRequest{
		Protocol:        domain.ProtocolAbsorb,
		Pool:            pool,
		User:            borrower,
		CollateralAsset: collateral,
		DebtAsset:       debt,
		DebtToCover:     wei(1000),
	})
	require.NoError(t, err)
	require.Equal(t, wei(750), received)
}

func TestForKind(t *testing.T) {
	deps := newDeps(chain.NewMemory())

	for kind, want := range map[domain.ProtocolKind]any{
		domain.ProtocolLendingPool: (*LendingPool)(nil),
		domain.ProtocolSeizeRedeem: (*SeizeRedeem)(nil),
		domain.ProtocolAbsorb:      (*Absorb)(nil),
	} {
		liq, err := ForKind(kind, deps)
		require.NoError(t, err)
		require.IsType(t, want, liq)
	}

	_, err := ForKind(domain.ProtocolKind(0), deps)
	require.ErrorIs(t, err, domain.ErrDecodeFailure)
}
