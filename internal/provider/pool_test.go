package provider

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/blockbit-hama/xCrack-sub003/internal/chain"
)

var (
	poolAddr = common.HexToAddress("0x0000000000000000000000000000000000005001")
	recvAddr = common.HexToAddress("0x0000000000000000000000000000000000005002")
	usdc     = common.HexToAddress("0x0000000000000000000000000000000000005003")
	dai      = common.HexToAddress("0x0000000000000000000000000000000000005004")
)

func wei(n int64) *big.Int { return big.NewInt(n) }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// receiverFunc adapts a function to the Receiver interface for single-asset
// loans; multi-asset callbacks fan out to the same function per asset.
type receiverFunc func(ctx context.Context, caller, asset common.Address, amount, premium *big.Int, initiator common.Address, payload []byte) error

func (f receiverFunc) OnFlashLoan(ctx context.Context, caller, asset common.Address, amount, premium *big.Int, initiator common.Address, payload []byte) error {
	return f(ctx, caller, asset, amount, premium, initiator, payload)
}

func (f receiverFunc) OnMultiFlashLoan(ctx context.Context, caller common.Address, assets []common.Address, amounts, premiums []*big.Int, initiator common.Address, payload []byte) error {
	for i := range assets {
		if err := f(ctx, caller, assets[i], amounts[i], premiums[i], initiator, payload); err != nil {
			return err
		}
	}
	return nil
}

func newHost(t *testing.T) *chain.Memory {
	t.Helper()
	m := chain.NewMemory()
	m.RegisterToken(usdc)
	m.RegisterToken(dai)
	require.NoError(t, m.Mint(usdc, poolAddr, wei(10_000)))
	require.NoError(t, m.Mint(dai, poolAddr, wei(10_000)))
	return m
}

func TestPremiumForRoundsUp(t *testing.T) {
	p := NewPool(nil, poolAddr, 90, discard())

	require.Equal(t, wei(9), p.PremiumFor(wei(1000)))
	require.Equal(t, wei(1), p.PremiumFor(wei(1)))
	require.Equal(t, wei(10), p.PremiumFor(wei(1111))) // 9.999 rounds up
	require.Equal(t, wei(0), p.PremiumFor(wei(0)))
}

func TestFlashLoanSettles(t *testing.T) {
	ctx := context.Background()
	m := newHost(t)
	p := NewPool(m, poolAddr, 90, discard())

	p.RegisterReceiver(recvAddr, receiverFunc(func(ctx context.Context, caller, asset common.Address, amount, premium *big.Int, initiator common.Address, payload []byte) error {
		require.Equal(t, poolAddr, caller)
		require.Equal(t, wei(1000), amount)
		require.Equal(t, wei(9), premium)

		// The receiver already holds the principal here. Simulate a
		// profitable execution by minting the premium, then grant the
		// pull allowance.
		bal, err := m.BalanceOf(ctx, asset, recvAddr)
		if err != nil {
			return err
		}
		require.Equal(t, wei(1000), bal)
		if err := m.Mint(asset, recvAddr, premium); err != nil {
			return err
		}
		return m.Approve(ctx, asset, recvAddr, poolAddr, new(big.Int).Add(amount, premium))
	}))

	require.NoError(t, p.FlashLoan(ctx, recvAddr, recvAddr, usdc, wei(1000), []byte{0x01}))

	bal, err := m.BalanceOf(ctx, usdc, poolAddr)
	require.NoError(t, err)
	require.Equal(t, wei(10_009), bal)
}

func TestFlashLoanRevertsOnCallbackError(t *testing.T) {
	ctx := context.Background()
	m := newHost(t)
	p := NewPool(m, poolAddr, 90, discard())

	p.RegisterReceiver(recvAddr, receiverFunc(func(ctx context.Context, caller, asset common.Address, amount, premium *big.Int, initiator common.Address, payload []byte) error {
		// Burn half the principal, then fail: the transfer must not
		// survive the revert.
		if err := m.Transfer(ctx, asset, recvAddr, poolAddr, wei(500)); err != nil {
			return err
		}
		return errors.New("strategy failed")
	}))

	err := p.FlashLoan(ctx, recvAddr, recvAddr, usdc, wei(1000), nil)
	require.ErrorContains(t, err, "strategy failed")

	bal, err := m.BalanceOf(ctx, usdc, poolAddr)
	require.NoError(t, err)
	require.Equal(t, wei(10_000), bal)
	bal, err = m.BalanceOf(ctx, usdc, recvAddr)
	require.NoError(t, err)
	require.Equal(t, wei(0), bal)
}

func TestFlashLoanRevertsOnMissingAllowance(t *testing.T) {
	ctx := context.Background()
	m := newHost(t)
	p := NewPool(m, poolAddr, 90, discard())

	// Receiver keeps the principal and never grants the pull allowance.
	p.RegisterReceiver(recvAddr, receiverFunc(func(ctx context.Context, caller, asset common.Address, amount, premium *big.Int, initiator common.Address, payload []byte) error {
		return nil
	}))

	err := p.FlashLoan(ctx, recvAddr, recvAddr, usdc, wei(1000), nil)
	require.ErrorContains(t, err, "pull repayment")

	bal, err := m.BalanceOf(ctx, usdc, recvAddr)
	require.NoError(t, err)
	require.Equal(t, wei(0), bal)
}

// A failure on the second asset of a multi-asset loan unwinds the first
// asset's settlement too.
func TestFlashLoanMultiAtomicity(t *testing.T) {
	ctx := context.Background()
	m := newHost(t)
	p := NewPool(m, poolAddr, 90, discard())

	p.RegisterReceiver(recvAddr, receiverFunc(func(ctx context.Context, caller, asset common.Address, amount, premium *big.Int, initiator common.Address, payload []byte) error {
		if asset == dai {
			return errors.New("dai route failed")
		}
		if err := m.Mint(asset, recvAddr, premium); err != nil {
			return err
		}
		return m.Approve(ctx, asset, recvAddr, poolAddr, new(big.Int).Add(amount, premium))
	}))

	err := p.FlashLoanMulti(ctx, recvAddr, recvAddr,
		[]common.Address{usdc, dai},
		[]*big.Int{wei(1000), wei(2000)},
		nil)
	require.ErrorContains(t, err, "dai route failed")

	for _, tok := range []common.Address{usdc, dai} {
		bal, err := m.BalanceOf(ctx, tok, poolAddr)
		require.NoError(t, err)
		require.Equal(t, wei(10_000), bal)
		bal, err = m.BalanceOf(ctx, tok, recvAddr)
		require.NoError(t, err)
		require.Equal(t, wei(0), bal)
	}
}

// Two loans issued concurrently must not share a unit of work: the second
// loan settles in full even though the first one, started earlier, aborts
// after it. The pool serializes them, so the abort can only unwind its own
// transfers.
func TestFlashLoanConcurrentLoansStayIsolated(t *testing.T) {
	ctx := context.Background()
	m := newHost(t)
	p := NewPool(m, poolAddr, 90, discard())
	recvB := common.HexToAddress("0x0000000000000000000000000000000000005005")

	aEntered := make(chan struct{})
	aContinue := make(chan struct{})
	p.RegisterReceiver(recvAddr, receiverFunc(func(ctx context.Context, caller, asset common.Address, amount, premium *big.Int, initiator common.Address, payload []byte) error {
		close(aEntered)
		<-aContinue
		return errors.New("strategy failed")
	}))
	p.RegisterReceiver(recvB, receiverFunc(func(ctx context.Context, caller, asset common.Address, amount, premium *big.Int, initiator common.Address, payload []byte) error {
		if err := m.Mint(asset, recvB, premium); err != nil {
			return err
		}
		return m.Approve(ctx, asset, recvB, poolAddr, new(big.Int).Add(amount, premium))
	}))

	errA := make(chan error, 1)
	go func() { errA <- p.FlashLoan(ctx, recvAddr, recvAddr, usdc, wei(1000), nil) }()
	<-aEntered

	errB := make(chan error, 1)
	go func() { errB <- p.FlashLoan(ctx, recvB, recvB, usdc, wei(2000), nil) }()

	close(aContinue)
	require.ErrorContains(t, <-errA, "strategy failed")
	require.NoError(t, <-errB)

	// The pool keeps B's settlement (premium 18 on 2000 at 90 bps) and
	// A's unit left no trace.
	bal, err := m.BalanceOf(ctx, usdc, poolAddr)
	require.NoError(t, err)
	require.Equal(t, wei(10_018), bal)
	bal, err = m.BalanceOf(ctx, usdc, recvAddr)
	require.NoError(t, err)
	require.Equal(t, wei(0), bal)
}

func TestFlashLoanMultiLengthMismatch(t *testing.T) {
	p := NewPool(nil, poolAddr, 90, discard())
	err := p.FlashLoanMulti(context.Background(), recvAddr, recvAddr,
		[]common.Address{usdc, dai}, []*big.Int{wei(1)}, nil)
	require.Error(t, err)
}

func TestFlashLoanUnregisteredReceiver(t *testing.T) {
	m := newHost(t)
	p := NewPool(m, poolAddr, 90, discard())
	err := p.FlashLoan(context.Background(), recvAddr, recvAddr, usdc, wei(1), nil)
	require.ErrorContains(t, err, "no receiver registered")
}
