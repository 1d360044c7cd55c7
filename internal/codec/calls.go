package codec

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/blockbit-hama/xCrack-sub003/internal/domain"
)

// Protocol call selectors. These are the canonical entrypoints of the three
// supported lending-protocol families.
var (
	// liquidationCall(address collateralAsset, address debtAsset, address
	// user, uint256 debtToCover, bool receiveAToken), the lending-pool family entrypoint.
	SelectorLiquidationCall = selector("liquidationCall(address,address,address,uint256,bool)")

	// liquidateBorrow(address borrower, uint256 repayAmount, address
	// cTokenCollateral), the seize-redeem family entrypoint. Returns a status word.
	SelectorLiquidateBorrow = selector("liquidateBorrow(address,uint256,address)")

	// redeem(uint256 redeemTokens), seize-redeem family. Returns a
	// status word.
	SelectorRedeem = selector("redeem(uint256)")

	// absorb(address absorber, address[] accounts), the absorb family entrypoint.
	SelectorAbsorb = selector("absorb(address,address[])")
)

var (
	liquidationCallArgs = args(typeAddress, typeAddress, typeAddress, typeUint256, mustType("bool"))
	liquidateBorrowArgs = args(typeAddress, typeUint256, typeAddress)
	redeemArgs          = args(typeUint256)
	absorbArgs          = args(typeAddress, mustType("address[]"))
	statusArgs          = args(typeUint256)
)

func packCall(sel [4]byte, arguments abi.Arguments, vals ...any) ([]byte, error) {
	packed, err := arguments.Pack(vals...)
	if err != nil {
		return nil, fmt.Errorf("codec: pack call %x: %w", sel, err)
	}
	return append(sel[:], packed...), nil
}

// LiquidationCall encodes a lending-pool liquidation. receiveAToken is
// always false so the pool pays out the underlying collateral directly
// instead of interest-bearing wrapper tokens.
func LiquidationCall(collateralAsset, debtAsset, user common.Address, debtToCover *big.Int) ([]byte, error) {
	return packCall(SelectorLiquidationCall, liquidationCallArgs, collateralAsset, debtAsset, user, debtToCover, false)
}

// LiquidateBorrow encodes a seize-redeem market liquidation.
func LiquidateBorrow(borrower common.Address, repayAmount *big.Int, collateralMarket common.Address) ([]byte, error) {
	return packCall(SelectorLiquidateBorrow, liquidateBorrowArgs, borrower, repayAmount, collateralMarket)
}

// Redeem encodes a seize-redeem market redemption of wrapper tokens.
func Redeem(amount *big.Int) ([]byte, error) {
	return packCall(SelectorRedeem, redeemArgs, amount)
}

// Absorb encodes an absorb-family liquidation of the given users, crediting
// seized collateral to absorber.
func Absorb(absorber common.Address, users []common.Address) ([]byte, error) {
	return packCall(SelectorAbsorb, absorbArgs, absorber, users)
}

// DecodeStatusWord reads the uint256 status code convention of seize-redeem
// markets: zero is success, anything else is a protocol error code. A call
// that returns no data or malformed data does not conform to the convention
// and is treated as a failure.
func DecodeStatusWord(ret []byte) (uint64, error) {
	vals, err := statusArgs.Unpack(ret)
	if err != nil {
		return 0, fmt.Errorf("codec: status word: %v: %w", err, domain.ErrDecodeFailure)
	}
	return vals[0].(*big.Int).Uint64(), nil
}
