package engine

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHalfKellyNegativeExpectancy(t *testing.T) {
	capital := big.NewInt(1_000_000)

	// p=30%, b=1.0: expectancy is negative, size must be zero.
	require.Zero(t, HalfKellySize(3000, 10000, capital).Sign())

	// Degenerate inputs.
	require.Zero(t, HalfKellySize(7000, 0, capital).Sign())
	require.Zero(t, HalfKellySize(7000, -5, capital).Sign())
	require.Zero(t, HalfKellySize(7000, 2000, nil).Sign())
	require.Zero(t, HalfKellySize(7000, 2000, new(big.Int)).Sign())
}

func TestHalfKellyClampedToCeiling(t *testing.T) {
	capital := big.NewInt(1_000_000)

	// p=70%, b=2.0: full Kelly = (7000*20000 - 3000*10000)/(20000*10000)
	// = 0.55, half = 0.275, clamped to 0.25.
	size := HalfKellySize(7000, 20000, capital)
	require.Equal(t, big.NewInt(250_000), size)
}

func TestHalfKellyClampedToFloor(t *testing.T) {
	capital := big.NewInt(1_000_000)

	// p=50.5%, b=1.0: full Kelly = (5050*10000 - 4950*10000)/(10000*10000)
	// = 0.01, half = 0.005, clamped up to 0.01.
	size := HalfKellySize(5050, 10000, capital)
	require.Equal(t, big.NewInt(10_000), size)
}

func TestHalfKellyInteriorValue(t *testing.T) {
	capital := big.NewInt(1_000_000)

	// p=70%, b=0.5: full Kelly = (7000*5000 - 3000*10000)/(5000*10000)
	// = 0.10, half = 0.05.
	size := HalfKellySize(7000, 5000, capital)
	require.Equal(t, big.NewInt(50_000), size)
}
