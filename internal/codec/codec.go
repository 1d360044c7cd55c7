// Package codec implements the wire format of strategy request payloads.
//
// Two encodings exist, one per capital-provider callback family:
//
//   - the single-asset family prefixes ABI-encoded fields with the 4-byte
//     keccak selector of the canonical entrypoint signature,
//   - the multi-asset family prefixes them with one explicit type byte.
//
// Encode and Decode are exact inverses. Decoding is total and exclusive over
// the closed tag set: every supported tag maps to exactly one variant and
// anything else is a decode failure.
package codec

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/blockbit-hama/xCrack-sub003/internal/domain"
)

// Multi-asset family type tags, matching the strategy tag the off-chain
// encoder has always used.
const (
	TagTriangularArbitrage byte = 0x01
	TagPositionMigration   byte = 0x02
	TagMultiAssetArbitrage byte = 0x03
)

// Canonical entrypoint signatures for the single-asset family. The selector
// is computed exactly the way a conventional call to the entrypoint would be
// addressed.
const (
	sigLiquidation = "executeLiquidation(uint8,address,address,address,address,address,uint256,address,bytes,uint256)"
	sigSandwich    = "executeSandwich(address,bytes,bytes,address,uint256,uint256,uint256)"
	sigArbitrage   = "executeArbitrage(address,bytes,address,bytes,address,address,uint256,uint256,uint256)"
)

var (
	SelectorLiquidation = selector(sigLiquidation)
	SelectorSandwich    = selector(sigSandwich)
	SelectorArbitrage   = selector(sigArbitrage)
)

func selector(signature string) [4]byte {
	var sel [4]byte
	copy(sel[:], ethcrypto.Keccak256([]byte(signature))[:4])
	return sel
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(fmt.Sprintf("codec: bad abi type %q: %v", t, err))
	}
	return typ
}

// legComponents is the ABI tuple layout of one swap leg.
var legComponents = []abi.ArgumentMarshaling{
	{Name: "target", Type: "address"},
	{Name: "spender", Type: "address"},
	{Name: "tokenOut", Type: "address"},
	{Name: "payload", Type: "bytes"},
}

func mustLegArrayType() abi.Type {
	typ, err := abi.NewType("tuple[]", "", legComponents)
	if err != nil {
		panic(fmt.Sprintf("codec: bad leg tuple type: %v", err))
	}
	return typ
}

var (
	typeUint8      = mustType("uint8")
	typeUint256    = mustType("uint256")
	typeUint256Arr = mustType("uint256[]")
	typeAddress    = mustType("address")
	typeBytes      = mustType("bytes")
	typeBytesArr   = mustType("bytes[]")
	typeLegArray   = mustLegArrayType()
)

// abiLeg mirrors legComponents for abi.ConvertType round trips.
type abiLeg struct {
	Target   common.Address
	Spender  common.Address
	TokenOut common.Address
	Payload  []byte
}

func toABILegs(legs []domain.SwapLeg) []abiLeg {
	out := make([]abiLeg, len(legs))
	for i, l := range legs {
		out[i] = abiLeg{Target: l.Target, Spender: l.Spender, TokenOut: l.TokenOut, Payload: l.Payload}
	}
	return out
}

func fromABILegs(legs []abiLeg) []domain.SwapLeg {
	out := make([]domain.SwapLeg, len(legs))
	for i, l := range legs {
		out[i] = domain.SwapLeg{Target: l.Target, Spender: l.Spender, TokenOut: l.TokenOut, Payload: l.Payload}
	}
	return out
}

func args(types ...abi.Type) abi.Arguments {
	out := make(abi.Arguments, len(types))
	for i, t := range types {
		out[i] = abi.Argument{Type: t}
	}
	return out
}

var (
	liquidationArgs = args(typeUint8, typeAddress, typeAddress, typeAddress, typeAddress, typeAddress, typeUint256, typeAddress, typeBytes, typeUint256)
	sandwichArgs    = args(typeAddress, typeBytes, typeBytes, typeAddress, typeUint256, typeUint256, typeUint256)
	arbitrageArgs   = args(typeAddress, typeBytes, typeAddress, typeBytes, typeAddress, typeAddress, typeUint256, typeUint256, typeUint256)
	triangularArgs  = args(typeAddress, typeUint256, typeLegArray, typeUint256)
	migrationArgs   = args(typeAddress, typeAddress, mustType("address[]"), typeUint256Arr, typeBytesArr, typeBytesArr, typeUint256)
	multiArbArgs    = args(typeUint256Arr, typeLegArray, typeUint256)
)

func decodeFailure(format string, a ...any) error {
	return fmt.Errorf("codec: %s: %w", fmt.Sprintf(format, a...), domain.ErrDecodeFailure)
}

// EncodeSingle encodes a single-asset-family request as selector-prefixed
// ABI data. Only the three single-asset variants are accepted.
func EncodeSingle(req domain.StrategyRequest) ([]byte, error) {
	switch r := req.(type) {
	case *domain.LiquidationRequest:
		packed, err := liquidationArgs.Pack(
			uint8(r.Protocol), r.Pool, r.CollateralMarket, r.User,
			r.CollateralAsset, r.DebtAsset, r.DebtToCover,
			r.SwapTarget, r.SwapPayload, new(big.Int).SetUint64(r.DeadlineTS),
		)
		if err != nil {
			return nil, fmt.Errorf("codec: pack liquidation: %w", err)
		}
		return append(SelectorLiquidation[:], packed...), nil

	case *domain.SandwichRequest:
		packed, err := sandwichArgs.Pack(
			r.Router, r.FrontPayload, r.BackPayload, r.PairedAsset,
			r.Amount, big.NewInt(r.MaxPriceImpactBps), new(big.Int).SetUint64(r.DeadlineTS),
		)
		if err != nil {
			return nil, fmt.Errorf("codec: pack sandwich: %w", err)
		}
		return append(SelectorSandwich[:], packed...), nil

	case *domain.ArbitrageRequest:
		packed, err := arbitrageArgs.Pack(
			r.BuyTarget, r.BuyPayload, r.SellTarget, r.SellPayload,
			r.Asset, r.IntermediateAsset, r.Amount, r.MinProfit,
			new(big.Int).SetUint64(r.DeadlineTS),
		)
		if err != nil {
			return nil, fmt.Errorf("codec: pack arbitrage: %w", err)
		}
		return append(SelectorArbitrage[:], packed...), nil

	default:
		return nil, fmt.Errorf("codec: %s is not a single-asset strategy", req.Kind())
	}
}

// DecodeSingle parses a selector-prefixed single-asset payload into exactly
// one strategy request variant.
func DecodeSingle(payload []byte) (domain.StrategyRequest, error) {
	if len(payload) < 4 {
		return nil, decodeFailure("payload shorter than a selector (%d bytes)", len(payload))
	}
	sel, data := payload[:4], payload[4:]
	switch {
	case bytes.Equal(sel, SelectorLiquidation[:]):
		return decodeLiquidation(data)
	case bytes.Equal(sel, SelectorSandwich[:]):
		return decodeSandwich(data)
	case bytes.Equal(sel, SelectorArbitrage[:]):
		return decodeArbitrage(data)
	default:
		return nil, decodeFailure("unknown selector %x", sel)
	}
}

func decodeLiquidation(data []byte) (domain.StrategyRequest, error) {
	vals, err := liquidationArgs.Unpack(data)
	if err != nil {
		return nil, decodeFailure("unpack liquidation: %v", err)
	}
	kind := domain.ProtocolKind(vals[0].(uint8))
	if !kind.Valid() {
		return nil, decodeFailure("unknown protocol kind %d", kind)
	}
	return &domain.LiquidationRequest{
		Protocol:         kind,
		Pool:             vals[1].(common.Address),
		CollateralMarket: vals[2].(common.Address),
		User:             vals[3].(common.Address),
		CollateralAsset:  vals[4].(common.Address),
		DebtAsset:        vals[5].(common.Address),
		DebtToCover:      vals[6].(*big.Int),
		SwapTarget:       vals[7].(common.Address),
		SwapPayload:      vals[8].([]byte),
		DeadlineTS:       vals[9].(*big.Int).Uint64(),
	}, nil
}

func decodeSandwich(data []byte) (domain.StrategyRequest, error) {
	vals, err := sandwichArgs.Unpack(data)
	if err != nil {
		return nil, decodeFailure("unpack sandwich: %v", err)
	}
	return &domain.SandwichRequest{
		Router:            vals[0].(common.Address),
		FrontPayload:      vals[1].([]byte),
		BackPayload:       vals[2].([]byte),
		PairedAsset:       vals[3].(common.Address),
		Amount:            vals[4].(*big.Int),
		MaxPriceImpactBps: vals[5].(*big.Int).Int64(),
		DeadlineTS:        vals[6].(*big.Int).Uint64(),
	}, nil
}

func decodeArbitrage(data []byte) (domain.StrategyRequest, error) {
	vals, err := arbitrageArgs.Unpack(data)
	if err != nil {
		return nil, decodeFailure("unpack arbitrage: %v", err)
	}
	return &domain.ArbitrageRequest{
		BuyTarget:         vals[0].(common.Address),
		BuyPayload:        vals[1].([]byte),
		SellTarget:        vals[2].(common.Address),
		SellPayload:       vals[3].([]byte),
		Asset:             vals[4].(common.Address),
		IntermediateAsset: vals[5].(common.Address),
		Amount:            vals[6].(*big.Int),
		MinProfit:         vals[7].(*big.Int),
		DeadlineTS:        vals[8].(*big.Int).Uint64(),
	}, nil
}

// EncodeMulti encodes a multi-asset-family request as tag-prefixed ABI data.
func EncodeMulti(req domain.StrategyRequest) ([]byte, error) {
	switch r := req.(type) {
	case *domain.TriangularArbitrageRequest:
		packed, err := triangularArgs.Pack(
			r.Asset, r.Amount, toABILegs(r.Legs[:]), new(big.Int).SetUint64(r.DeadlineTS),
		)
		if err != nil {
			return nil, fmt.Errorf("codec: pack triangular arbitrage: %w", err)
		}
		return append([]byte{TagTriangularArbitrage}, packed...), nil

	case *domain.PositionMigrationRequest:
		packed, err := migrationArgs.Pack(
			r.FromProtocol, r.ToProtocol, r.Assets, r.Amounts,
			r.RepayCalldata, r.BorrowCalldata,
			new(big.Int).SetUint64(r.DeadlineTS),
		)
		if err != nil {
			return nil, fmt.Errorf("codec: pack position migration: %w", err)
		}
		return append([]byte{TagPositionMigration}, packed...), nil

	case *domain.MultiAssetArbitrageRequest:
		lens := make([]*big.Int, len(r.Routes))
		var legs []domain.SwapLeg
		for i, route := range r.Routes {
			lens[i] = big.NewInt(int64(len(route.Legs)))
			legs = append(legs, route.Legs...)
		}
		packed, err := multiArbArgs.Pack(lens, toABILegs(legs), new(big.Int).SetUint64(r.DeadlineTS))
		if err != nil {
			return nil, fmt.Errorf("codec: pack multi-asset arbitrage: %w", err)
		}
		return append([]byte{TagMultiAssetArbitrage}, packed...), nil

	default:
		return nil, fmt.Errorf("codec: %s is not a multi-asset strategy", req.Kind())
	}
}

// DecodeMulti parses a tag-prefixed multi-asset payload into exactly one
// strategy request variant.
func DecodeMulti(payload []byte) (domain.StrategyRequest, error) {
	if len(payload) < 1 {
		return nil, decodeFailure("empty payload")
	}
	tag, data := payload[0], payload[1:]
	switch tag {
	case TagTriangularArbitrage:
		return decodeTriangular(data)
	case TagPositionMigration:
		return decodeMigration(data)
	case TagMultiAssetArbitrage:
		return decodeMultiArb(data)
	default:
		return nil, decodeFailure("unknown type tag %#02x", tag)
	}
}

func decodeTriangular(data []byte) (domain.StrategyRequest, error) {
	vals, err := triangularArgs.Unpack(data)
	if err != nil {
		return nil, decodeFailure("unpack triangular arbitrage: %v", err)
	}
	legs := fromABILegs(*abi.ConvertType(vals[2], new([]abiLeg)).(*[]abiLeg))
	if len(legs) != 3 {
		return nil, decodeFailure("triangular arbitrage needs exactly 3 legs, got %d", len(legs))
	}
	req := &domain.TriangularArbitrageRequest{
		Asset:      vals[0].(common.Address),
		Amount:     vals[1].(*big.Int),
		DeadlineTS: vals[3].(*big.Int).Uint64(),
	}
	copy(req.Legs[:], legs)
	return req, nil
}

func decodeMigration(data []byte) (domain.StrategyRequest, error) {
	vals, err := migrationArgs.Unpack(data)
	if err != nil {
		return nil, decodeFailure("unpack position migration: %v", err)
	}
	return &domain.PositionMigrationRequest{
		FromProtocol:   vals[0].(common.Address),
		ToProtocol:     vals[1].(common.Address),
		Assets:         vals[2].([]common.Address),
		Amounts:        vals[3].([]*big.Int),
		RepayCalldata:  vals[4].([][]byte),
		BorrowCalldata: vals[5].([][]byte),
		DeadlineTS:     vals[6].(*big.Int).Uint64(),
	}, nil
}

func decodeMultiArb(data []byte) (domain.StrategyRequest, error) {
	vals, err := multiArbArgs.Unpack(data)
	if err != nil {
		return nil, decodeFailure("unpack multi-asset arbitrage: %v", err)
	}
	lens := vals[0].([]*big.Int)
	legs := fromABILegs(*abi.ConvertType(vals[1], new([]abiLeg)).(*[]abiLeg))
	routes := make([]domain.SwapRoute, len(lens))
	off := 0
	for i, l := range lens {
		n := int(l.Int64())
		if n < 1 || off+n > len(legs) {
			return nil, decodeFailure("route %d: leg count %d out of range", i, n)
		}
		routes[i] = domain.SwapRoute{Legs: legs[off : off+n]}
		off += n
	}
	if off != len(legs) {
		return nil, decodeFailure("%d trailing legs not assigned to any route", len(legs)-off)
	}
	return &domain.MultiAssetArbitrageRequest{
		Routes:     routes,
		DeadlineTS: vals[2].(*big.Int).Uint64(),
	}, nil
}
