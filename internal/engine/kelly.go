package engine

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Half-Kelly position bounds as fractions of available capital.
var (
	kellyFloor = decimal.NewFromFloat(0.01)
	kellyCeil  = decimal.NewFromFloat(0.25)
	half       = decimal.NewFromFloat(0.5)
)

// HalfKellySize sizes a sandwich front-run position from the estimated
// success probability p and payoff ratio b, both in basis points.
//
// The full-Kelly fraction is (p·b − (10000−p)·10000) / (b·10000). A
// non-positive fraction means the bet has negative expectancy and the
// optimal size is zero. Otherwise the fraction is halved and clamped to
// [1%, 25%] of capital before sizing.
func HalfKellySize(pBps, bBps int64, capital *big.Int) *big.Int {
	if bBps <= 0 || capital == nil || capital.Sign() <= 0 {
		return new(big.Int)
	}
	p := decimal.NewFromInt(pBps)
	b := decimal.NewFromInt(bBps)
	scale := decimal.NewFromInt(10000)

	numerator := p.Mul(b).Sub(scale.Sub(p).Mul(scale))
	if numerator.Sign() <= 0 {
		return new(big.Int)
	}
	fraction := numerator.Div(b.Mul(scale)).Mul(half)
	if fraction.LessThan(kellyFloor) {
		fraction = kellyFloor
	}
	if fraction.GreaterThan(kellyCeil) {
		fraction = kellyCeil
	}
	return decimal.NewFromBigInt(capital, 0).Mul(fraction).Floor().BigInt()
}
