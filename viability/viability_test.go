package viability

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChoSanghyuk/dexdriver/dextypes"
)

// e18 builds n * 1e18 as a *big.Int; n*1e18 as an int64 literal overflows
// for n above single digits, so tests go through big.Int multiplication.
func e18(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

func TestMinAverageFeeKnownInputs(t *testing.T) {
	got := MinAverageFee(240e18, 40e9)
	want, _ := new(big.Int).SetString("1152000000000000000", 10) // 1.152e18
	assert.Equal(t, want, got)
}

func TestMaxGasPriceKnownInputs(t *testing.T) {
	got := MaxGasPrice(240e18, 50e18, 3)
	want, _ := new(big.Float).SetString("5.787037037e11")
	wantInt, _ := want.Int(nil)
	// allow the last couple of integer digits to differ by rounding
	diff := new(big.Int).Sub(got, wantInt)
	assert.LessOrEqual(t, diff.Abs(diff).Int64(), int64(1000))
}

func TestMaxGasPriceZeroTradesIsZero(t *testing.T) {
	got := MaxGasPrice(240e18, 50e18, 0)
	assert.Equal(t, big.NewInt(0), got)
}

// A cap that rounds up, even by one unit, can let a solution's actual gas
// cost exceed its earned fee. 312000/120000 = 2.6 must floor to 2, not
// round to 3 the way math.Round would.
func TestMaxGasPriceNeverRoundsAboveTheAffordableCap(t *testing.T) {
	got := MaxGasPrice(1e18, 312000, 1)
	assert.Equal(t, big.NewInt(2), got)

	cost := new(big.Int).Mul(got, big.NewInt(GasPerTrade))
	assert.LessOrEqual(t, cost.Int64(), int64(312000))
}

func TestFixedStrategyIgnoresMarket(t *testing.T) {
	f := Fixed{MinFee: big.NewInt(1000), MaxGasPrice: big.NewInt(2000)}
	fee, err := f.MinAverageFee(MarketSnapshot{})
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1000), fee)

	cap, err := f.MaxGasPrice(MarketSnapshot{}, dextypes.EconomicViabilityInfo{})
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(2000), cap)
}

func TestDynamicStrategyAppliesSubsidyAndSafetyFactors(t *testing.T) {
	d := Dynamic{SubsidyFactor: 2, SafetyFactor: 1.5}
	market := MarketSnapshot{GasPrice: big.NewInt(40e9), NativePrice: e18(240)}

	fee, err := d.MinAverageFee(market)
	require.NoError(t, err)
	// raw min-average-fee is 1.152e18, halved by the subsidy factor
	assert.Equal(t, big.NewInt(576000000000000000), fee)

	capV, err := d.MaxGasPrice(market, dextypes.EconomicViabilityInfo{NumExecutedOrders: 3, EarnedFee: e18(50)})
	require.NoError(t, err)
	assert.True(t, capV.Sign() > 0)
}

func TestDynamicStrategyMissingInputsErrors(t *testing.T) {
	d := Dynamic{SubsidyFactor: 2, SafetyFactor: 1.5}
	_, err := d.MinAverageFee(MarketSnapshot{})
	assert.Error(t, err)
}

func TestCombinedMinFeeTakesSmaller(t *testing.T) {
	c := Combined{
		Fixed:   Fixed{MinFee: big.NewInt(1_000_000), MaxGasPrice: big.NewInt(1)},
		Dynamic: Dynamic{SubsidyFactor: 10, SafetyFactor: 1},
	}
	market := MarketSnapshot{GasPrice: big.NewInt(40e9), NativePrice: e18(240)}

	fee, err := c.MinAverageFee(market)
	require.NoError(t, err)
	assert.True(t, fee.Cmp(big.NewInt(1_000_000)) < 0, "dynamic (divided by subsidy 10) should undercut the large fixed floor")
}

func TestCombinedMinFeeFallsBackToFixedOnDynamicFailure(t *testing.T) {
	c := Combined{
		Fixed:   Fixed{MinFee: big.NewInt(500), MaxGasPrice: big.NewInt(1)},
		Dynamic: Dynamic{SubsidyFactor: 2, SafetyFactor: 1},
	}
	fee, err := c.MinAverageFee(MarketSnapshot{})
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(500), fee)
}

func TestCombinedMaxGasUsesTightDynamicCapWhenBelowFixedFloor(t *testing.T) {
	c := Combined{
		Fixed:   Fixed{MinFee: big.NewInt(1_000_000_000_000_000_000), MaxGasPrice: big.NewInt(999_999_999_999)},
		Dynamic: Dynamic{SubsidyFactor: 1, SafetyFactor: 1},
	}
	market := MarketSnapshot{GasPrice: big.NewInt(40e9), NativePrice: e18(240)}
	info := dextypes.EconomicViabilityInfo{NumExecutedOrders: 3, EarnedFee: big.NewInt(1)} // realized avg far below fixed floor

	cap, err := c.MaxGasPrice(market, info)
	require.NoError(t, err)
	assert.NotEqual(t, big.NewInt(999_999_999_999), cap)
}

func TestCombinedMaxGasUsesLooseFixedCapWhenAboveFixedFloor(t *testing.T) {
	c := Combined{
		Fixed:   Fixed{MinFee: big.NewInt(1), MaxGasPrice: big.NewInt(42)},
		Dynamic: Dynamic{SubsidyFactor: 1, SafetyFactor: 1},
	}
	market := MarketSnapshot{GasPrice: big.NewInt(40e9), NativePrice: e18(240)}
	info := dextypes.EconomicViabilityInfo{NumExecutedOrders: 1, EarnedFee: big.NewInt(1_000_000_000_000_000_000)}

	cap, err := c.MaxGasPrice(market, info)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(42), cap)
}
