package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ApprovalManager grants spending rights on behalf of one owner account.
// Every grant over a pre-existing non-zero allowance goes through a
// reset-to-zero step first; some widely used tokens reject a direct
// non-zero to non-zero allowance change.
type ApprovalManager struct {
	host  Host
	owner common.Address
}

// NewApprovalManager returns an ApprovalManager granting allowances from
// owner's account.
func NewApprovalManager(host Host, owner common.Address) *ApprovalManager {
	return &ApprovalManager{host: host, owner: owner}
}

// Ensure sets the (token, spender) allowance to amount, resetting a
// pre-existing non-zero allowance to zero first.
func (m *ApprovalManager) Ensure(ctx context.Context, token, spender common.Address, amount *big.Int) error {
	current, err := m.host.Allowance(ctx, token, m.owner, spender)
	if err != nil {
		return fmt.Errorf("approvals: read allowance: %w", err)
	}
	if current.Sign() != 0 {
		if err := m.host.Approve(ctx, token, m.owner, spender, new(big.Int)); err != nil {
			return fmt.Errorf("approvals: reset allowance for %s: %w", spender.Hex(), err)
		}
	}
	if err := m.host.Approve(ctx, token, m.owner, spender, amount); err != nil {
		return fmt.Errorf("approvals: set allowance for %s: %w", spender.Hex(), err)
	}
	return nil
}

// Revoke clears the (token, spender) allowance.
func (m *ApprovalManager) Revoke(ctx context.Context, token, spender common.Address) error {
	if err := m.host.Approve(ctx, token, m.owner, spender, new(big.Int)); err != nil {
		return fmt.Errorf("approvals: revoke allowance for %s: %w", spender.Hex(), err)
	}
	return nil
}
