// Package domain defines the execution core's data model: the closed set of
// strategy request variants, the repayment obligation, and the ephemeral
// execution result. None of these values outlive a single execution except
// the ExecutionReport, which is the observability record handed to the
// control plane.
package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// StrategyKind tags the active variant of a StrategyRequest.
type StrategyKind uint8

const (
	KindLiquidation StrategyKind = iota + 1
	KindSandwich
	KindArbitrage
	KindTriangularArbitrage
	KindPositionMigration
	KindMultiAssetArbitrage
)

// String returns the short name used in logs, reports, and API routes.
func (k StrategyKind) String() string {
	switch k {
	case KindLiquidation:
		return "liquidation"
	case KindSandwich:
		return "sandwich"
	case KindArbitrage:
		return "arbitrage"
	case KindTriangularArbitrage:
		return "triangular_arbitrage"
	case KindPositionMigration:
		return "position_migration"
	case KindMultiAssetArbitrage:
		return "multi_asset_arbitrage"
	default:
		return "unknown"
	}
}

// ParseStrategyKind maps a short name back to its StrategyKind. Used when
// reading persisted reports and control-plane routes.
func ParseStrategyKind(name string) (StrategyKind, bool) {
	for k := KindLiquidation; k <= KindMultiAssetArbitrage; k++ {
		if k.String() == name {
			return k, true
		}
	}
	return 0, false
}

// ProtocolKind identifies the lending-protocol family a liquidation targets.
// It is always carried explicitly on the request; the engine never infers
// the family from on-chain heuristics.
type ProtocolKind uint8

const (
	// ProtocolLendingPool is an Aave-style pool with a direct
	// liquidationCall entrypoint paying out underlying collateral.
	ProtocolLendingPool ProtocolKind = iota + 1
	// ProtocolSeizeRedeem is a Compound-V2-style market where liquidation
	// seizes wrapper tokens that must be redeemed for their underlying.
	ProtocolSeizeRedeem
	// ProtocolAbsorb is a Comet-style market whose absorb call clears debt
	// and transfers seized collateral in one step.
	ProtocolAbsorb
)

// Valid reports whether k names a supported protocol family.
func (k ProtocolKind) Valid() bool {
	return k >= ProtocolLendingPool && k <= ProtocolAbsorb
}

// StrategyRequest is the closed tagged union decoded from a flash-loan
// callback payload. Exactly one variant is active per execution.
type StrategyRequest interface {
	Kind() StrategyKind
	// Deadline is a unix timestamp after which the request must not run.
	// Zero means no deadline.
	Deadline() uint64
}

// SwapLeg is one delegated swap invocation: an opaque payload sent to Target,
// with the spender for the input-token approval optionally overridden
// (aggregators often take approvals at a separate allowance target).
// TokenOut is the asset whose measured balance delta is the leg's only
// trusted output.
type SwapLeg struct {
	Target   common.Address
	Spender  common.Address // zero: approve Target itself
	TokenOut common.Address
	Payload  []byte
}

// LiquidationRequest repays debtToCover of a borrower's debt in exchange for
// discounted collateral, then swaps the collateral back into the debt asset.
type LiquidationRequest struct {
	Protocol ProtocolKind
	// Pool is the protocol contract the liquidation call is sent to. For
	// the seize-redeem family this is the debt market.
	Pool common.Address
	// CollateralMarket is the wrapper token seized by seize-redeem
	// markets. Zero for the other families.
	CollateralMarket common.Address
	User             common.Address
	CollateralAsset  common.Address
	DebtAsset        common.Address
	DebtToCover      *big.Int
	SwapTarget       common.Address
	SwapPayload      []byte
	DeadlineTS       uint64
}

func (*LiquidationRequest) Kind() StrategyKind { return KindLiquidation }
func (r *LiquidationRequest) Deadline() uint64 { return r.DeadlineTS }

// SandwichRequest runs a front-run swap into PairedAsset and a back-run swap
// out of it around a victim transaction. The price-impact bound applies to
// the front leg and is checked before the back leg runs.
type SandwichRequest struct {
	Router            common.Address
	FrontPayload      []byte
	BackPayload       []byte
	PairedAsset       common.Address
	Amount            *big.Int
	MaxPriceImpactBps int64
	DeadlineTS        uint64
}

func (*SandwichRequest) Kind() StrategyKind { return KindSandwich }
func (r *SandwichRequest) Deadline() uint64 { return r.DeadlineTS }

// ArbitrageRequest buys IntermediateAsset with the borrowed asset on one
// venue and sells it back on another.
type ArbitrageRequest struct {
	BuyTarget         common.Address
	BuyPayload        []byte
	SellTarget        common.Address
	SellPayload       []byte
	Asset             common.Address
	IntermediateAsset common.Address
	Amount            *big.Int
	MinProfit         *big.Int
	DeadlineTS        uint64
}

func (*ArbitrageRequest) Kind() StrategyKind { return KindArbitrage }
func (r *ArbitrageRequest) Deadline() uint64 { return r.DeadlineTS }

// TriangularArbitrageRequest routes the borrowed asset through two
// intermediate tokens and back: A -> B -> C -> A. Legs are executed in order
// and each leg spends the full measured output of the previous one.
type TriangularArbitrageRequest struct {
	Asset      common.Address
	Amount     *big.Int
	Legs       [3]SwapLeg
	DeadlineTS uint64
}

func (*TriangularArbitrageRequest) Kind() StrategyKind { return KindTriangularArbitrage }
func (r *TriangularArbitrageRequest) Deadline() uint64 { return r.DeadlineTS }

// PositionMigrationRequest repays a borrower's debts on one protocol with
// flash-loaned funds and re-opens them on another. RepayCalldata[i] and
// BorrowCalldata[i] correspond to the i-th borrowed asset of the enclosing
// multi-asset loan.
type PositionMigrationRequest struct {
	FromProtocol   common.Address
	ToProtocol     common.Address
	Assets         []common.Address
	Amounts        []*big.Int
	RepayCalldata  [][]byte
	BorrowCalldata [][]byte
	DeadlineTS     uint64
}

func (*PositionMigrationRequest) Kind() StrategyKind { return KindPositionMigration }
func (r *PositionMigrationRequest) Deadline() uint64 { return r.DeadlineTS }

// SwapRoute is the leg sequence executed for one borrowed asset of a
// multi-asset arbitrage. The final leg's TokenOut must be the borrowed asset
// itself so the route ends where it started.
type SwapRoute struct {
	Legs []SwapLeg
}

// MultiAssetArbitrageRequest runs one independent route per borrowed asset.
// Routes[i] belongs to the i-th asset of the enclosing multi-asset loan.
type MultiAssetArbitrageRequest struct {
	Routes     []SwapRoute
	DeadlineTS uint64
}

func (*MultiAssetArbitrageRequest) Kind() StrategyKind { return KindMultiAssetArbitrage }
func (r *MultiAssetArbitrageRequest) Deadline() uint64 { return r.DeadlineTS }
