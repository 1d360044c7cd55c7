package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Accountant measures the real effect of external calls by diffing a token
// balance before and after. It is the only trusted source of "how much did
// that call really produce": counterpart contracts may claim anything in
// their return data.
type Accountant struct {
	host Host
}

// NewAccountant returns an Accountant reading balances from host.
func NewAccountant(host Host) *Accountant {
	return &Accountant{host: host}
}

// BalanceSnapshot is a token balance captured before an external call.
type BalanceSnapshot struct {
	host    Host
	Token   common.Address
	Account common.Address
	Before  *big.Int
}

// Snapshot captures account's current balance of token.
func (a *Accountant) Snapshot(ctx context.Context, token, account common.Address) (*BalanceSnapshot, error) {
	before, err := a.host.BalanceOf(ctx, token, account)
	if err != nil {
		return nil, err
	}
	return &BalanceSnapshot{host: a.host, Token: token, Account: account, Before: before}, nil
}

// Delta returns the current balance minus the snapshotted one. Negative
// deltas are returned as-is; callers decide whether a loss is an error.
func (s *BalanceSnapshot) Delta(ctx context.Context) (*big.Int, error) {
	after, err := s.host.BalanceOf(ctx, s.Token, s.Account)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Sub(after, s.Before), nil
}
