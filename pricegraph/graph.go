// Package pricegraph derives implied token prices from the live
// orderbook by searching a weighted exchange-rate graph for negative
// cycles, the way original_source/pricegraph/src/orderbook/prices.rs
// does for the solver's own starting-point price estimates. It exposes
// itself as one more priceoracle.PriceSource.
//
// Edge weight is -log2(exchange_rate) so that a path's total weight is
// the negative log2 of its transitive exchange rate: summing weights
// along a path is equivalent to multiplying exchange rates, and a
// negative-weight cycle is an arbitrage loop (a chain of orders whose
// transitive rate is > 1, i.e. trading token A back to token A nets more
// than you started with). The original's Fixed24x104 integer weight
// representation existed to satisfy a Rust graph library's numeric
// trait; Go's bellman-ford here works directly in float64 log-space,
// which loses nothing the original's own tests didn't already treat as
// acceptable f64 precision (see that file's own log2-in-f64 comment).
package pricegraph

import (
	"math"

	"github.com/ChoSanghyuk/dexdriver/dextypes"
)

// Edge is a directed exchange-rate offer: selling 1 unit of From buys
// Rate units of To (atoms of To per atom of From, already scaled by the
// tokens' respective decimals upstream).
type Edge struct {
	From, To dextypes.TokenId
	Rate     float64
}

// Graph is an adjacency-list view over the live orderbook, one edge per
// best order for each traded pair.
type Graph struct {
	adj map[dextypes.TokenId][]Edge
}

// New builds a graph from the best (highest exchange rate) order for
// each (sell, buy) pair; ties keep the first one seen.
func New(edges []Edge) *Graph {
	g := &Graph{adj: make(map[dextypes.TokenId][]Edge)}
	best := make(map[[2]dextypes.TokenId]float64)
	for _, e := range edges {
		if e.Rate <= 0 {
			continue
		}
		key := [2]dextypes.TokenId{e.From, e.To}
		if cur, ok := best[key]; ok && cur >= e.Rate {
			continue
		}
		best[key] = e.Rate
	}
	for key, rate := range best {
		g.adj[key[0]] = append(g.adj[key[0]], Edge{From: key[0], To: key[1], Rate: rate})
	}
	return g
}

func weight(rate float64) float64 {
	return -math.Log2(rate)
}

// nodes returns every token that appears as either endpoint of an edge.
func (g *Graph) nodes() []dextypes.TokenId {
	seen := make(map[dextypes.TokenId]bool)
	for from, edges := range g.adj {
		seen[from] = true
		for _, e := range edges {
			seen[e.To] = true
		}
	}
	out := make([]dextypes.TokenId, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	return out
}
