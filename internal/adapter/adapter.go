// Package adapter contains the boundary components that invoke external
// protocols: one adapter per supported lending-protocol family plus the
// generic swap adapter.
//
// All adapters follow one rule: a call's return value is never trusted for
// the amount transferred. Success or failure may be read from return data
// where a protocol defines a status convention, but amounts come exclusively
// from Accountant balance diffs.
package adapter

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/blockbit-hama/xCrack-sub003/internal/chain"
	"github.com/blockbit-hama/xCrack-sub003/internal/domain"
)

// Deps bundles what every adapter needs: the host, the executing account,
// and the shared accountant and approval manager.
type Deps struct {
	Host       chain.Host
	Self       common.Address
	Accountant *chain.Accountant
	Approvals  *chain.ApprovalManager
}

func callFailed(target common.Address, raw error) error {
	return &domain.AdapterCallError{Target: target, Raw: raw}
}
