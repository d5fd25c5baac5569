package pricegraph

import (
	"context"
	"math/big"

	"github.com/ChoSanghyuk/dexdriver/dextypes"
)

// Source implements priceoracle.PriceSource over a graph snapshot
// supplied by the caller on every call, since the orderbook changes
// continuously and a graph-based source has no useful notion of its own
// cached state beyond what the threaded refresher already provides.
type Source struct {
	RefToken  dextypes.TokenId
	EdgesFunc func() []Edge
}

// GetPrices builds a fresh graph from EdgesFunc and runs Bellman-Ford
// from RefToken, returning every requested token's implied price where
// one could be derived.
func (s Source) GetPrices(_ context.Context, tokens []dextypes.TokenId) map[dextypes.TokenId]*big.Int {
	out := make(map[dextypes.TokenId]*big.Int)
	if s.EdgesFunc == nil {
		return out
	}

	g := New(s.EdgesFunc())
	paths := bellmanFord(g, s.RefToken)

	for _, t := range tokens {
		if t == s.RefToken {
			out[t] = big.NewInt(1_000_000_000_000_000_000)
			continue
		}
		price, ok := paths.Price(t)
		if !ok || price <= 0 {
			continue
		}
		// price is atoms of t per 1e18 of RefToken; PriceSource answers
		// atoms of RefToken per 1e18 of t.
		bi, _ := big.NewFloat(1e36 / price).Int(nil)
		if bi.Sign() > 0 {
			out[t] = bi
		}
	}
	return out
}
