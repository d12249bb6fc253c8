package ledger

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreditsToUnits(t *testing.T) {
	one, _ := new(big.Int).SetString("1000000000000000000", 10)
	half, _ := new(big.Int).SetString("500000000000000000", 10)

	require.Equal(t, one, CreditsToUnits(1))
	require.Equal(t, half, CreditsToUnits(0.5))
	require.Equal(t, big.NewInt(0), CreditsToUnits(0))
}

func TestUnitsToCreditsRoundTrip(t *testing.T) {
	for _, credits := range []float64{1, 120.5, 0.001, 99999} {
		back, _ := UnitsToCredits(CreditsToUnits(credits)).Float64()
		require.InDelta(t, credits, back, 1e-6)
	}
}
