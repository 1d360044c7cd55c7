package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/blockbit-hama/xCrack-sub003/internal/chain"
	"github.com/blockbit-hama/xCrack-sub003/internal/domain"
	"github.com/blockbit-hama/xCrack-sub003/internal/provider"
)

var (
	owner    = common.HexToAddress("0x000000000000000000000000000000000000a001")
	stranger = common.HexToAddress("0x000000000000000000000000000000000000a002")
	execAddr = common.HexToAddress("0x000000000000000000000000000000000000a003")
	borrower = common.HexToAddress("0x000000000000000000000000000000000000a004")
	poolAddr = common.HexToAddress("0x000000000000000000000000000000000000b001")
	lendAddr = common.HexToAddress("0x000000000000000000000000000000000000b002")
	venueA   = common.HexToAddress("0x000000000000000000000000000000000000b003")
	venueB   = common.HexToAddress("0x000000000000000000000000000000000000b004")
	venueC   = common.HexToAddress("0x000000000000000000000000000000000000b005")
	usdc     = common.HexToAddress("0x000000000000000000000000000000000000c001")
	weth     = common.HexToAddress("0x000000000000000000000000000000000000c002")
	dai      = common.HexToAddress("0x000000000000000000000000000000000000c003")
)

func wei(n int64) *big.Int { return big.NewInt(n) }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fixture struct {
	m    *chain.Memory
	pool *provider.Pool
	exec *Executor
}

// newFixture wires a memory host, a flash-loan pool charging 90 bps, and an
// executor registered as the pool's receiver. The pool holds deep liquidity
// in usdc and dai.
func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	m := chain.NewMemory()
	for _, tok := range []common.Address{usdc, weth, dai} {
		m.RegisterToken(tok)
	}
	require.NoError(t, m.Mint(usdc, poolAddr, wei(100_000)))
	require.NoError(t, m.Mint(dai, poolAddr, wei(100_000)))
	pool := provider.NewPool(m, poolAddr, 90, discard())
	exec := NewExecutor(m, owner, execAddr, pool.Address(), pool, cfg, discard())
	pool.RegisterReceiver(execAddr, exec)
	return &fixture{m: m, pool: pool, exec: exec}
}

// registerVenue installs a router at `at` that pulls `in` of tokIn from the
// executor through its allowance and pays `out` of tokOut from its own
// reserves.
func (f *fixture) registerVenue(at, tokIn, tokOut common.Address, in, out *big.Int) {
	f.m.RegisterContract(at, func(ctx context.Context, env chain.CallEnv) ([]byte, error) {
		if err := env.Host.TransferFrom(ctx, tokIn, at, execAddr, at, in); err != nil {
			return nil, err
		}
		return nil, env.Host.Transfer(ctx, tokOut, at, execAddr, out)
	})
}

func (f *fixture) balance(t *testing.T, token, account common.Address) *big.Int {
	t.Helper()
	bal, err := f.m.BalanceOf(context.Background(), token, account)
	require.NoError(t, err)
	return bal
}

// registerLendingPool installs a protocol at lendAddr that pulls debtPaid of
// usdc and pays collateralOut of weth.
func (f *fixture) registerLendingPool(t *testing.T, debtPaid, collateralOut *big.Int) {
	t.Helper()
	require.NoError(t, f.m.Mint(weth, lendAddr, wei(5000)))
	f.m.RegisterContract(lendAddr, func(ctx context.Context, env chain.CallEnv) ([]byte, error) {
		if err := env.Host.TransferFrom(ctx, usdc, lendAddr, execAddr, lendAddr, debtPaid); err != nil {
			return nil, err
		}
		return nil, env.Host.Transfer(ctx, weth, lendAddr, execAddr, collateralOut)
	})
}

func liquidationReq() *domain.LiquidationRequest {
	return &domain.LiquidationRequest{
		Protocol:        domain.ProtocolLendingPool,
		Pool:            lendAddr,
		User:            borrower,
		CollateralAsset: weth,
		DebtAsset:       usdc,
		DebtToCover:     wei(1000),
		SwapTarget:      venueA,
		SwapPayload:     []byte{0x01},
	}
}

// Borrow 1000 usdc at 90 bps (premium 9), liquidate for 1100 weth, swap the
// weth back for 1010 usdc. The obligation is 1009, so 1 usdc of net profit
// stays with the executor and the pool ends up 9 richer.
func TestExecuteLiquidationEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	f.registerLendingPool(t, wei(1000), wei(1100))
	require.NoError(t, f.m.Mint(usdc, venueA, wei(5000)))
	f.registerVenue(venueA, weth, usdc, wei(1100), wei(1010))

	res, err := f.exec.ExecuteLiquidation(ctx, owner, usdc, wei(1000), liquidationReq())
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, wei(10), res.GrossProfit)
	require.Equal(t, wei(1), res.NetProfit)

	require.Equal(t, wei(1), f.balance(t, usdc, execAddr))
	require.Equal(t, wei(100_009), f.balance(t, usdc, poolAddr))
}

// The swap back only recovers 995 usdc against an obligation of 1009. The
// loan must fail and every balance must come back exactly as it was,
// including the protocol's collateral.
func TestExecuteLiquidationShortfallReverts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	f.registerLendingPool(t, wei(1000), wei(1100))
	require.NoError(t, f.m.Mint(usdc, venueA, wei(5000)))
	f.registerVenue(venueA, weth, usdc, wei(1100), wei(995))

	_, err := f.exec.ExecuteLiquidation(ctx, owner, usdc, wei(1000), liquidationReq())
	require.ErrorIs(t, err, domain.ErrInsufficientRepayment)
	var repayErr *domain.RepaymentError
	require.ErrorAs(t, err, &repayErr)
	require.Equal(t, wei(995), repayErr.Have)
	require.Equal(t, wei(1009), repayErr.Need)

	require.Equal(t, wei(0), f.balance(t, usdc, execAddr))
	require.Equal(t, wei(100_000), f.balance(t, usdc, poolAddr))
	require.Equal(t, wei(5000), f.balance(t, weth, lendAddr))
	require.Equal(t, wei(5000), f.balance(t, usdc, venueA))
}

func TestExecuteLiquidationNotOwner(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.exec.ExecuteLiquidation(context.Background(), stranger, usdc, wei(1000), liquidationReq())
	require.ErrorIs(t, err, domain.ErrUnauthorizedCaller)
}

// The front leg moves the price 600 bps against a 500 bps bound. The back
// leg must never run and the loan must revert.
func TestExecuteSandwichImpactBreach(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{MaxPriceImpactBps: 500})
	require.NoError(t, f.m.Mint(weth, venueA, wei(5000)))
	require.NoError(t, f.m.Mint(usdc, venueA, wei(5000)))

	var calls int
	backRan := false
	f.m.RegisterContract(venueA, func(ctx context.Context, env chain.CallEnv) ([]byte, error) {
		calls++
		if calls == 1 {
			if err := env.Host.TransferFrom(ctx, usdc, venueA, execAddr, venueA, wei(1000)); err != nil {
				return nil, err
			}
			return nil, env.Host.Transfer(ctx, weth, venueA, execAddr, wei(940))
		}
		backRan = true
		return nil, nil
	})

	_, err := f.exec.ExecuteSandwich(ctx, owner, usdc, wei(1000), &domain.SandwichRequest{
		Router:       venueA,
		FrontPayload: []byte{0x01},
		BackPayload:  []byte{0x02},
		PairedAsset:  weth,
		Amount:       wei(1000),
	})
	require.ErrorIs(t, err, domain.ErrPriceImpactExceeded)
	var impactErr *domain.PriceImpactError
	require.ErrorAs(t, err, &impactErr)
	require.Equal(t, int64(600), impactErr.ActualBps)
	require.False(t, backRan)
	require.Equal(t, wei(0), f.balance(t, usdc, execAddr))
	require.Equal(t, wei(100_000), f.balance(t, usdc, poolAddr))
}

func TestExecuteSandwichEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{MaxPriceImpactBps: 500})
	require.NoError(t, f.m.Mint(weth, venueA, wei(5000)))
	require.NoError(t, f.m.Mint(usdc, venueA, wei(5000)))

	var calls int
	f.m.RegisterContract(venueA, func(ctx context.Context, env chain.CallEnv) ([]byte, error) {
		calls++
		if calls == 1 {
			if err := env.Host.TransferFrom(ctx, usdc, venueA, execAddr, venueA, wei(1000)); err != nil {
				return nil, err
			}
			return nil, env.Host.Transfer(ctx, weth, venueA, execAddr, wei(980))
		}
		// Back-run: unwind the whole paired position.
		if err := env.Host.TransferFrom(ctx, weth, venueA, execAddr, venueA, wei(980)); err != nil {
			return nil, err
		}
		return nil, env.Host.Transfer(ctx, usdc, venueA, execAddr, wei(1015))
	})

	res, err := f.exec.ExecuteSandwich(ctx, owner, usdc, wei(1000), &domain.SandwichRequest{
		Router:       venueA,
		FrontPayload: []byte{0x01},
		BackPayload:  []byte{0x02},
		PairedAsset:  weth,
		Amount:       wei(1000),
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.Equal(t, wei(6), res.NetProfit)
	require.Equal(t, wei(0), f.balance(t, weth, execAddr))
}

// A request-scoped minimum overrides the engine default: the round trip
// clears repayment but only nets 1 against a required 50.
func TestExecuteArbitrageMinProfitOverride(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	require.NoError(t, f.m.Mint(weth, venueA, wei(5000)))
	require.NoError(t, f.m.Mint(usdc, venueB, wei(5000)))
	f.registerVenue(venueA, usdc, weth, wei(1000), wei(500))
	f.registerVenue(venueB, weth, usdc, wei(500), wei(1010))

	_, err := f.exec.ExecuteArbitrage(ctx, owner, usdc, wei(1000), &domain.ArbitrageRequest{
		BuyTarget:         venueA,
		BuyPayload:        []byte{0x01},
		SellTarget:        venueB,
		SellPayload:       []byte{0x02},
		Asset:             usdc,
		IntermediateAsset: weth,
		Amount:            wei(1000),
		MinProfit:         wei(50),
	})
	require.ErrorIs(t, err, domain.ErrInsufficientProfit)
	var profitErr *domain.ProfitError
	require.ErrorAs(t, err, &profitErr)
	require.Equal(t, wei(1), profitErr.Actual)
	require.Equal(t, wei(50), profitErr.Required)
	require.Equal(t, wei(0), f.balance(t, usdc, execAddr))
}

// Two executions submitted at once settle one after the other, each with
// its own result: the loan and the result handoff form one critical
// section, so neither run can observe or unwind the other's state.
func TestExecuteArbitrageConcurrentSubmissions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	require.NoError(t, f.m.Mint(weth, venueA, wei(5000)))
	require.NoError(t, f.m.Mint(usdc, venueB, wei(5000)))
	f.registerVenue(venueA, usdc, weth, wei(1000), wei(500))
	f.registerVenue(venueB, weth, usdc, wei(500), wei(1010))

	type outcome struct {
		res domain.ExecutionResult
		err error
	}
	results := make(chan outcome, 2)
	for i := 0; i < 2; i++ {
		go func() {
			res, err := f.exec.ExecuteArbitrage(ctx, owner, usdc, wei(1000), &domain.ArbitrageRequest{
				BuyTarget:         venueA,
				BuyPayload:        []byte{0x01},
				SellTarget:        venueB,
				SellPayload:       []byte{0x02},
				Asset:             usdc,
				IntermediateAsset: weth,
				Amount:            wei(1000),
			})
			results <- outcome{res, err}
		}()
	}

	// The first run nets 1 usdc which stays on the executor, so the
	// second run's validation sees it as extra surplus and nets 2.
	var nets []int64
	for i := 0; i < 2; i++ {
		out := <-results
		require.NoError(t, out.err)
		require.True(t, out.res.Success)
		nets = append(nets, out.res.NetProfit.Int64())
	}
	require.ElementsMatch(t, []int64{1, 2}, nets)

	// Both loans committed: the pool collected both premiums.
	require.Equal(t, wei(100_018), f.balance(t, usdc, poolAddr))
}

func TestExecuteTriangularArbitrageEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	require.NoError(t, f.m.Mint(weth, venueA, wei(5000)))
	require.NoError(t, f.m.Mint(dai, venueB, wei(5000)))
	require.NoError(t, f.m.Mint(usdc, venueC, wei(5000)))
	f.registerVenue(venueA, usdc, weth, wei(1000), wei(500))
	f.registerVenue(venueB, weth, dai, wei(500), wei(400))
	f.registerVenue(venueC, dai, usdc, wei(400), wei(1015))

	res, err := f.exec.ExecuteTriangularArbitrage(ctx, owner, &domain.TriangularArbitrageRequest{
		Asset:  usdc,
		Amount: wei(1000),
		Legs: [3]domain.SwapLeg{
			{Target: venueA, TokenOut: weth, Payload: []byte{0x01}},
			{Target: venueB, TokenOut: dai, Payload: []byte{0x02}},
			{Target: venueC, TokenOut: usdc, Payload: []byte{0x03}},
		},
	})
	require.NoError(t, err)
	require.Equal(t, wei(6), res.NetProfit)
	require.Equal(t, wei(6), f.balance(t, usdc, execAddr))
}

func TestExecuteTriangularArbitrageOpenRoute(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.exec.ExecuteTriangularArbitrage(context.Background(), owner, &domain.TriangularArbitrageRequest{
		Asset:  usdc,
		Amount: wei(1000),
		Legs: [3]domain.SwapLeg{
			{Target: venueA, TokenOut: weth},
			{Target: venueB, TokenOut: dai},
			{Target: venueC, TokenOut: weth}, // does not return to usdc
		},
	})
	require.ErrorIs(t, err, domain.ErrDecodeFailure)
}

// The usdc route completes profitably, then the dai route's venue fails.
// Nothing may survive: the completed route's transfers are rolled back with
// everything else.
func TestExecuteMultiAssetArbitragePartialFailureReverts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	require.NoError(t, f.m.Mint(weth, venueA, wei(5000)))
	require.NoError(t, f.m.Mint(usdc, venueB, wei(5000)))
	f.registerVenue(venueA, usdc, weth, wei(1000), wei(500))
	f.registerVenue(venueB, weth, usdc, wei(500), wei(1020))
	f.m.RegisterContract(venueC, func(ctx context.Context, env chain.CallEnv) ([]byte, error) {
		return nil, errors.New("insufficient liquidity")
	})

	_, err := f.exec.ExecuteMultiAssetArbitrage(ctx, owner,
		[]common.Address{usdc, dai},
		[]*big.Int{wei(1000), wei(1000)},
		[]uint8{0, 0},
		&domain.MultiAssetArbitrageRequest{
			Routes: []domain.SwapRoute{
				{Legs: []domain.SwapLeg{
					{Target: venueA, TokenOut: weth, Payload: []byte{0x01}},
					{Target: venueB, TokenOut: usdc, Payload: []byte{0x02}},
				}},
				{Legs: []domain.SwapLeg{
					{Target: venueC, TokenOut: dai, Payload: []byte{0x03}},
				}},
			},
		})
	require.ErrorIs(t, err, domain.ErrAdapterCallFailed)

	require.Equal(t, wei(0), f.balance(t, usdc, execAddr))
	require.Equal(t, wei(0), f.balance(t, dai, execAddr))
	require.Equal(t, wei(100_000), f.balance(t, usdc, poolAddr))
	require.Equal(t, wei(100_000), f.balance(t, dai, poolAddr))
	require.Equal(t, wei(5000), f.balance(t, weth, venueA))
	require.Equal(t, wei(5000), f.balance(t, usdc, venueB))
}

// Profit is measured on the primary borrowed asset only: a break-even
// primary route aborts on the minimum even when a later asset's route holds
// a large surplus.
func TestExecuteMultiAssetArbitragePrimaryAssetProfitOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{MinProfit: wei(1)})
	require.NoError(t, f.m.Mint(weth, venueA, wei(5000)))
	require.NoError(t, f.m.Mint(usdc, venueB, wei(5000)))
	require.NoError(t, f.m.Mint(dai, venueC, wei(5000)))
	f.registerVenue(venueA, usdc, weth, wei(1000), wei(500))
	// The usdc route returns exactly the obligation, the dai route a
	// surplus of 91.
	f.registerVenue(venueB, weth, usdc, wei(500), wei(1009))
	f.registerVenue(venueC, dai, dai, wei(1000), wei(1100))

	_, err := f.exec.ExecuteMultiAssetArbitrage(ctx, owner,
		[]common.Address{usdc, dai},
		[]*big.Int{wei(1000), wei(1000)},
		[]uint8{0, 0},
		&domain.MultiAssetArbitrageRequest{
			Routes: []domain.SwapRoute{
				{Legs: []domain.SwapLeg{
					{Target: venueA, TokenOut: weth, Payload: []byte{0x01}},
					{Target: venueB, TokenOut: usdc, Payload: []byte{0x02}},
				}},
				{Legs: []domain.SwapLeg{
					{Target: venueC, TokenOut: dai, Payload: []byte{0x03}},
				}},
			},
		})
	require.ErrorIs(t, err, domain.ErrInsufficientProfit)
	var profitErr *domain.ProfitError
	require.ErrorAs(t, err, &profitErr)
	require.Equal(t, wei(0), profitErr.Actual)

	// The abort unwound both loans.
	require.Equal(t, wei(100_000), f.balance(t, usdc, poolAddr))
	require.Equal(t, wei(100_000), f.balance(t, dai, poolAddr))
	require.Equal(t, wei(0), f.balance(t, dai, execAddr))
}

func TestExecuteMultiAssetArbitrageRejectsDebtModes(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.exec.ExecuteMultiAssetArbitrage(context.Background(), owner,
		[]common.Address{usdc},
		[]*big.Int{wei(1000)},
		[]uint8{2},
		&domain.MultiAssetArbitrageRequest{
			Routes: []domain.SwapRoute{{Legs: []domain.SwapLeg{{Target: venueA, TokenOut: usdc}}}},
		})
	require.ErrorIs(t, err, domain.ErrDecodeFailure)
}

// Migrate a 1000 usdc debt: repay it on the source protocol with the
// borrowed funds, borrow 1012 back from the target protocol, and keep the
// 3 usdc left after the 1009 obligation.
func TestExecutePositionMigrationEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	oldProto := venueA
	newProto := venueB
	require.NoError(t, f.m.Mint(usdc, newProto, wei(5000)))
	f.m.RegisterContract(oldProto, func(ctx context.Context, env chain.CallEnv) ([]byte, error) {
		return nil, env.Host.TransferFrom(ctx, usdc, oldProto, execAddr, oldProto, wei(1000))
	})
	f.m.RegisterContract(newProto, func(ctx context.Context, env chain.CallEnv) ([]byte, error) {
		return nil, env.Host.Transfer(ctx, usdc, newProto, execAddr, wei(1012))
	})

	res, err := f.exec.ExecutePositionMigration(ctx, owner, &domain.PositionMigrationRequest{
		FromProtocol:   oldProto,
		ToProtocol:     newProto,
		Assets:         []common.Address{usdc},
		Amounts:        []*big.Int{wei(1000)},
		RepayCalldata:  [][]byte{{0x01}},
		BorrowCalldata: [][]byte{{0x02}},
	})
	require.NoError(t, err)
	require.Equal(t, wei(3), res.NetProfit)
	require.Equal(t, wei(1000), f.balance(t, usdc, oldProto))
	require.Equal(t, wei(3), f.balance(t, usdc, execAddr))
}

// An expired deadline must abort before any adapter call happens.
func TestDeadlineGatesExecution(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	f.m.SetClock(func() time.Time { return time.Unix(2000, 0) })

	protocolRan := false
	f.m.RegisterContract(lendAddr, func(ctx context.Context, env chain.CallEnv) ([]byte, error) {
		protocolRan = true
		return nil, nil
	})

	req := liquidationReq()
	req.DeadlineTS = 1999
	_, err := f.exec.ExecuteLiquidation(ctx, owner, usdc, wei(1000), req)
	require.ErrorIs(t, err, domain.ErrDeadlineExpired)
	require.False(t, protocolRan)
	require.Equal(t, wei(0), f.balance(t, usdc, execAddr))
}

func TestCallbackRejectsWrongCaller(t *testing.T) {
	f := newFixture(t, Config{})
	err := f.exec.OnFlashLoan(context.Background(), stranger, usdc, wei(1000), wei(9), execAddr, nil)
	require.ErrorIs(t, err, domain.ErrUnauthorizedCaller)
}

func TestCallbackRejectsForeignInitiator(t *testing.T) {
	f := newFixture(t, Config{})
	err := f.exec.OnFlashLoan(context.Background(), poolAddr, usdc, wei(1000), wei(9), stranger, nil)
	require.ErrorIs(t, err, domain.ErrUnauthorizedCaller)
}

func TestTransferOwnership(t *testing.T) {
	f := newFixture(t, Config{})

	require.ErrorIs(t, f.exec.TransferOwnership(stranger, stranger), domain.ErrUnauthorizedCaller)
	require.Error(t, f.exec.TransferOwnership(owner, common.Address{}))

	require.NoError(t, f.exec.TransferOwnership(owner, stranger))
	require.Equal(t, stranger, f.exec.Owner())
	require.ErrorIs(t, f.exec.TransferOwnership(owner, owner), domain.ErrUnauthorizedCaller)
}

func TestRescue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	require.NoError(t, f.m.Mint(usdc, execAddr, wei(77)))

	_, err := f.exec.Rescue(ctx, stranger, usdc)
	require.ErrorIs(t, err, domain.ErrUnauthorizedCaller)

	moved, err := f.exec.Rescue(ctx, owner, usdc)
	require.NoError(t, err)
	require.Equal(t, wei(77), moved)
	require.Equal(t, wei(77), f.balance(t, usdc, owner))
	require.Equal(t, wei(0), f.balance(t, usdc, execAddr))

	moved, err = f.exec.Rescue(ctx, owner, weth)
	require.NoError(t, err)
	require.Equal(t, wei(0), moved)
}
