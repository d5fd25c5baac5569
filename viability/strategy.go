package viability

import (
	"fmt"
	"math/big"

	"github.com/ChoSanghyuk/dexdriver/dextypes"
)

// GasPrice and NativePrice together are the dynamic strategy's market
// snapshot, sourced from the gas-price oracle and the PriceOracle's entry
// for the reference token's native counterpart (e.g. ETH priced in the
// reference token).
type MarketSnapshot struct {
	GasPrice    *big.Int // wei per gas, current estimate
	NativePrice *big.Int // atoms of reference token per 1e18 of native token
}

// Strategy computes the min-average-fee floor a solution must clear and
// the max-gas-price cap a given solution can afford.
type Strategy interface {
	MinAverageFee(market MarketSnapshot) (*big.Int, error)
	MaxGasPrice(market MarketSnapshot, info dextypes.EconomicViabilityInfo) (*big.Int, error)
}

// Fixed returns constants taken straight from configuration, ignoring the
// market snapshot entirely.
type Fixed struct {
	MinFee      *big.Int
	MaxGasPrice *big.Int
}

func (f Fixed) MinAverageFee(MarketSnapshot) (*big.Int, error) {
	return new(big.Int).Set(f.MinFee), nil
}

func (f Fixed) MaxGasPrice(MarketSnapshot, dextypes.EconomicViabilityInfo) (*big.Int, error) {
	return new(big.Int).Set(f.MaxGasPrice), nil
}

// Dynamic derives both quantities from the live market snapshot: the
// min-fee floor is divided by SubsidyFactor (the exchange may subsidize
// part of the gas cost) and the max-gas cap is multiplied by SafetyFactor
// to absorb price drift between solve time and submit time.
type Dynamic struct {
	SubsidyFactor float64 // > 0
	SafetyFactor  float64 // > 0
}

func (d Dynamic) MinAverageFee(market MarketSnapshot) (*big.Int, error) {
	if market.GasPrice == nil || market.NativePrice == nil {
		return nil, fmt.Errorf("viability: dynamic min-average-fee needs a gas price and native price estimate")
	}
	if d.SubsidyFactor <= 0 {
		return nil, fmt.Errorf("viability: subsidy factor must be positive, got %v", d.SubsidyFactor)
	}
	raw := MinAverageFee(Float64(market.NativePrice), Float64(market.GasPrice))
	scaled := new(big.Float).Quo(new(big.Float).SetInt(raw), big.NewFloat(d.SubsidyFactor))
	out, _ := scaled.Int(nil)
	return out, nil
}

func (d Dynamic) MaxGasPrice(market MarketSnapshot, info dextypes.EconomicViabilityInfo) (*big.Int, error) {
	if market.NativePrice == nil {
		return nil, fmt.Errorf("viability: dynamic max-gas-price needs a native price estimate")
	}
	if info.NumExecutedOrders == 0 {
		return big.NewInt(0), nil
	}
	raw := MaxGasPrice(Float64(market.NativePrice), Float64(info.EarnedFee), info.NumExecutedOrders)
	scaled := new(big.Float).Mul(new(big.Float).SetInt(raw), big.NewFloat(d.SafetyFactor))
	out, _ := scaled.Int(nil)
	return out, nil
}

// Combined takes the more conservative of Fixed and Dynamic for each
// quantity, falling back to Fixed whenever Dynamic can't be computed:
// min-fee is the smaller of the two (kinder to traders), and max-gas uses
// the tight dynamic cap only when the solution's realized average fee
// falls short of the fixed floor, otherwise the looser fixed cap applies.
type Combined struct {
	Fixed   Fixed
	Dynamic Dynamic
}

func (c Combined) MinAverageFee(market MarketSnapshot) (*big.Int, error) {
	fixedFee, _ := c.Fixed.MinAverageFee(market)
	dynFee, err := c.Dynamic.MinAverageFee(market)
	if err != nil {
		return fixedFee, nil
	}
	if dynFee.Cmp(fixedFee) < 0 {
		return dynFee, nil
	}
	return fixedFee, nil
}

func (c Combined) MaxGasPrice(market MarketSnapshot, info dextypes.EconomicViabilityInfo) (*big.Int, error) {
	fixedCap, _ := c.Fixed.MaxGasPrice(market, info)

	fixedMinFee, _ := c.Fixed.MinAverageFee(market)
	realizedAvg := realizedAverageFee(info)
	if realizedAvg.Cmp(fixedMinFee) >= 0 {
		return fixedCap, nil
	}

	dynCap, err := c.Dynamic.MaxGasPrice(market, info)
	if err != nil {
		return fixedCap, nil
	}
	return dynCap, nil
}

func realizedAverageFee(info dextypes.EconomicViabilityInfo) *big.Int {
	if info.NumExecutedOrders == 0 || info.EarnedFee == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Quo(info.EarnedFee, big.NewInt(int64(info.NumExecutedOrders)))
}
