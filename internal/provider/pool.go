// Package provider implements the flash-loan capital provider the engine
// borrows from: it funds the callback, pulls repayment through the granted
// allowance, and reverts the whole unit of work when anything fails.
package provider

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/blockbit-hama/xCrack-sub003/internal/chain"
)

// Receiver is the callback surface a funded account must implement. The
// provider passes itself as caller and the account that requested the loan
// as initiator; receivers are expected to reject anything else.
type Receiver interface {
	OnFlashLoan(ctx context.Context, caller, asset common.Address, amount, premium *big.Int, initiator common.Address, payload []byte) error
	OnMultiFlashLoan(ctx context.Context, caller common.Address, assets []common.Address, amounts, premiums []*big.Int, initiator common.Address, payload []byte) error
}

// Pool is a journaled flash-loan pool over a chain.Memory host. A loan is
// one atomic unit: snapshot, transfer principal, invoke the receiver, pull
// principal plus premium back. Any failure restores the snapshot so no
// partial state survives.
type Pool struct {
	host       *chain.Memory
	addr       common.Address
	premiumBps int64
	receivers  map[common.Address]Receiver
	log        *slog.Logger

	// mu serializes loans. The host journal is index based, so two
	// interleaved units of work would revert each other's state.
	mu sync.Mutex
}

// NewPool creates a pool holding liquidity at addr, charging premiumBps of
// the principal per loan.
func NewPool(host *chain.Memory, addr common.Address, premiumBps int64, logger *slog.Logger) *Pool {
	return &Pool{
		host:       host,
		addr:       addr,
		premiumBps: premiumBps,
		receivers:  make(map[common.Address]Receiver),
		log:        logger.With(slog.String("component", "flashloan_pool")),
	}
}

// Address returns the pool's account address, the only caller receivers
// should accept callbacks from.
func (p *Pool) Address() common.Address { return p.addr }

// RegisterReceiver associates a receiver implementation with its account
// address.
func (p *Pool) RegisterReceiver(addr common.Address, r Receiver) {
	p.receivers[addr] = r
}

// PremiumFor returns the premium owed on a principal: amount * premiumBps /
// 10000, rounded up so the pool never undercharges.
func (p *Pool) PremiumFor(amount *big.Int) *big.Int {
	num := new(big.Int).Mul(amount, big.NewInt(p.premiumBps))
	num.Add(num, big.NewInt(9999))
	return num.Div(num, big.NewInt(10000))
}

// FlashLoan funds a single-asset loan and settles or reverts it atomically.
func (p *Pool) FlashLoan(ctx context.Context, initiator, receiver, asset common.Address, amount *big.Int, payload []byte) error {
	return p.lend(ctx, initiator, receiver, []common.Address{asset}, []*big.Int{amount}, payload, false)
}

// FlashLoanMulti funds a multi-asset loan. All assets are transferred
// before the callback runs and all obligations are pulled after it; partial
// settlement never survives.
func (p *Pool) FlashLoanMulti(ctx context.Context, initiator, receiver common.Address, assets []common.Address, amounts []*big.Int, payload []byte) error {
	if len(assets) == 0 || len(assets) != len(amounts) {
		return fmt.Errorf("provider: %d assets with %d amounts", len(assets), len(amounts))
	}
	return p.lend(ctx, initiator, receiver, assets, amounts, payload, true)
}

func (p *Pool) lend(ctx context.Context, initiator, receiver common.Address, assets []common.Address, amounts []*big.Int, payload []byte, multi bool) (err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	r, ok := p.receivers[receiver]
	if !ok {
		return fmt.Errorf("provider: no receiver registered at %s", receiver.Hex())
	}

	premiums := make([]*big.Int, len(assets))
	for i, amount := range amounts {
		premiums[i] = p.PremiumFor(amount)
	}

	snap := p.host.Snapshot()
	defer func() {
		if err != nil {
			p.host.RevertTo(snap)
			p.log.Warn("flash loan reverted", slog.String("error", err.Error()))
		} else {
			p.host.Release(snap)
		}
	}()

	for i, asset := range assets {
		if err = p.host.Transfer(ctx, asset, p.addr, receiver, amounts[i]); err != nil {
			return fmt.Errorf("provider: fund %s: %w", asset.Hex(), err)
		}
	}

	if multi {
		err = r.OnMultiFlashLoan(ctx, p.addr, assets, amounts, premiums, initiator, payload)
	} else {
		err = r.OnFlashLoan(ctx, p.addr, assets[0], amounts[0], premiums[0], initiator, payload)
	}
	if err != nil {
		return fmt.Errorf("provider: receiver callback: %w", err)
	}

	for i, asset := range assets {
		owed := new(big.Int).Add(amounts[i], premiums[i])
		if err = p.host.TransferFrom(ctx, asset, p.addr, receiver, p.addr, owed); err != nil {
			return fmt.Errorf("provider: pull repayment of %s: %w", asset.Hex(), err)
		}
	}

	p.log.Debug("flash loan settled",
		slog.Int("assets", len(assets)),
		slog.String("initiator", initiator.Hex()),
	)
	return nil
}
