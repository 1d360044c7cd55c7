package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ExecutionResult is the outcome of one execution. It exists only within the
// invocation that produced it and is never persisted; ExecutionReport is the
// durable observability record derived from it.
//
// Profit is measured on the primary (first) borrowed asset only. Every
// other borrowed asset must still cover its own obligation, but surplus
// held in those assets does not count toward the profit figure, so the
// minimum-profit bound is conservative for multi-asset executions.
type ExecutionResult struct {
	Success bool
	// GrossProfit is the surplus of the primary borrowed asset over its
	// principal, before the premium.
	GrossProfit *big.Int
	// NetProfit is the surplus over principal plus premium.
	NetProfit *big.Int
}

// ExecutionStatus is the terminal state of an execution report.
type ExecutionStatus string

const (
	ExecutionCommitted ExecutionStatus = "committed"
	ExecutionAborted   ExecutionStatus = "aborted"
)

// ExecutionReport is the record handed to the control plane after an
// execution terminates: strategy, outcome, realized profit, and the abort
// reason when the unit of work was rolled back.
type ExecutionReport struct {
	ID           string           `json:"id"`
	Strategy     StrategyKind     `json:"-"`
	StrategyName string           `json:"strategy"`
	Status       ExecutionStatus  `json:"status"`
	AbortReason  string           `json:"abort_reason,omitempty"`
	Assets       []common.Address `json:"assets"`
	Amounts      []*big.Int       `json:"amounts"`
	GrossProfit  *big.Int         `json:"gross_profit,omitempty"`
	NetProfit    *big.Int         `json:"net_profit,omitempty"`
	StartedAt    time.Time        `json:"started_at"`
	CompletedAt  time.Time        `json:"completed_at"`
	DurationMs   int64            `json:"duration_ms"`
}
