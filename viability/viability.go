// Package viability implements the pure numerical contracts that decide
// whether a batch is worth solving and how aggressively the submitter may
// bid for inclusion: the minimum average fee a solution must earn per
// order, and the maximum gas price a given solution can still afford.
//
// All pricing math is done in float64 rather than widened to arbitrary
// precision; the final value is converted back to *big.Int by truncating
// toward zero, matching the `as u128`/`as _` casts the original
// implementation used for the same conversion.
package viability

import (
	"math"
	"math/big"
)

// GasPerTrade is the fixed gas cost attributed to settling one order,
// used by both formulas below.
const GasPerTrade = 120_000

// MinAverageFee is the reference-token value of the gas cost of one
// trade: a solution whose average earned fee per order is below this is
// unprofitable to submit.
//
// min_average_fee = GAS_PER_TRADE * gas_price * native_price / 1e18
func MinAverageFee(nativePrice, gasPrice float64) *big.Int {
	v := GasPerTrade * gasPrice * nativePrice / 1e18
	return truncToZero(v)
}

// MaxGasPrice is the highest gas price at which earnedFee still covers
// the cost of numTrades trades at nativePrice.
//
// max_gas_price = earned_fee / (native_price * num_trades * GAS_PER_TRADE / 1e18)
func MaxGasPrice(nativePrice, earnedFee float64, numTrades int) *big.Int {
	if numTrades <= 0 {
		return big.NewInt(0)
	}
	denom := nativePrice * float64(numTrades) * GasPerTrade / 1e18
	if denom == 0 {
		return big.NewInt(0)
	}
	v := earnedFee / denom
	return truncToZero(v)
}

// truncToZero converts a float64 to *big.Int by truncating the
// fractional part, never rounding up. MaxGasPrice in particular must
// never round its result above the true cap: earnedFee * 1e18 must stay
// >= gas_price * native_price * num_trades * GAS_PER_TRADE, and rounding
// .5-and-up fractions away from zero (math.Round's convention) can push
// the cap just past that line.
func truncToZero(v float64) *big.Int {
	if v >= 0 {
		v = math.Floor(v)
	} else {
		v = math.Ceil(v)
	}
	bi, _ := big.NewFloat(v).Int(nil)
	return bi
}

// Float64 converts a *big.Int price/gas-price value (already in the scale
// MinAverageFee/MaxGasPrice's own /1e18 division expects, e.g. a
// PriceOracle entry or a wei gas price) into the float64 these formulas
// operate on.
func Float64(v *big.Int) float64 {
	f := new(big.Float).SetInt(v)
	out, _ := f.Float64()
	return out
}
