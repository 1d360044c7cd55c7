package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Loan is one borrowed asset as reported by the capital provider's callback:
// the principal transferred in and the premium owed on top of it.
type Loan struct {
	Asset   common.Address
	Amount  *big.Int
	Premium *big.Int
}

// Obligation is the repayment owed for one borrowed asset, derived exactly
// once per asset per execution. The solvency invariant is
// balance(Asset) >= Principal + Premium at validation time.
type Obligation struct {
	Asset     common.Address
	Principal *big.Int
	Premium   *big.Int
}

// ObligationOf derives the repayment obligation for a loan.
func ObligationOf(l Loan) Obligation {
	return Obligation{Asset: l.Asset, Principal: l.Amount, Premium: l.Premium}
}

// Total returns Principal + Premium.
func (o Obligation) Total() *big.Int {
	return new(big.Int).Add(o.Principal, o.Premium)
}

// AdapterCall describes one delegated external invocation. Only the
// Accountant-measured delta of MeasuredToken is trusted; return data is
// consulted for success/failure at most.
type AdapterCall struct {
	Target        common.Address
	Payload       []byte
	MeasuredToken common.Address
}
