package domain

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Sentinel errors for the execution core. Structured error types below wrap
// these so callers can match with errors.Is while still reading the captured
// context (have/need, actual/max).
var (
	ErrDecodeFailure         = errors.New("payload does not decode to any strategy request")
	ErrUnauthorizedCaller    = errors.New("caller is not authorized")
	ErrAdapterCallFailed     = errors.New("adapter call failed")
	ErrSlippageExceeded      = errors.New("slippage exceeded")
	ErrPriceImpactExceeded   = errors.New("price impact exceeded")
	ErrInsufficientRepayment = errors.New("insufficient balance to repay flash loan")
	ErrInsufficientProfit    = errors.New("profit below configured minimum")
	ErrDeadlineExpired       = errors.New("request deadline expired")
	ErrNotFound              = errors.New("not found")
	ErrLockHeld              = errors.New("lock already held")
)

// AdapterCallError captures a failed external invocation. Raw is the
// underlying failure as reported by the host; it is kept only for
// diagnostics and is never trusted for anything else.
type AdapterCallError struct {
	Target common.Address
	Raw    error
}

func (e *AdapterCallError) Error() string {
	return fmt.Sprintf("adapter call to %s failed: %v", e.Target.Hex(), e.Raw)
}

func (e *AdapterCallError) Unwrap() error { return ErrAdapterCallFailed }

// SlippageError is raised when a swap returns less than the configured
// minimum output.
type SlippageError struct {
	Out *big.Int
	Min *big.Int
}

func (e *SlippageError) Error() string {
	return fmt.Sprintf("slippage exceeded: received %s, minimum %s", e.Out, e.Min)
}

func (e *SlippageError) Unwrap() error { return ErrSlippageExceeded }

// PriceImpactError is raised when a swap's measured price impact, in basis
// points, breaches the configured bound.
type PriceImpactError struct {
	ActualBps int64
	MaxBps    int64
}

func (e *PriceImpactError) Error() string {
	return fmt.Sprintf("price impact %d bps exceeds maximum %d bps", e.ActualBps, e.MaxBps)
}

func (e *PriceImpactError) Unwrap() error { return ErrPriceImpactExceeded }

// RepaymentError is raised during validation when the post-execution balance
// of a borrowed asset cannot cover principal plus premium.
type RepaymentError struct {
	Asset common.Address
	Have  *big.Int
	Need  *big.Int
}

func (e *RepaymentError) Error() string {
	return fmt.Sprintf("insufficient repayment for %s: have %s, need %s", e.Asset.Hex(), e.Have, e.Need)
}

func (e *RepaymentError) Unwrap() error { return ErrInsufficientRepayment }

// ProfitError is raised when an execution is solvent but the realized net
// profit is below the required minimum.
type ProfitError struct {
	Actual   *big.Int
	Required *big.Int
}

func (e *ProfitError) Error() string {
	return fmt.Sprintf("insufficient profit: actual %s, required %s", e.Actual, e.Required)
}

func (e *ProfitError) Unwrap() error { return ErrInsufficientProfit }
