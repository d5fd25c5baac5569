package pricegraph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ChoSanghyuk/dexdriver/dextypes"
)

func TestBellmanFordPricesDirectEdge(t *testing.T) {
	g := New([]Edge{
		{From: 0, To: 1, Rate: 2.0},
	})
	paths := bellmanFord(g, 0)

	price, ok := paths.Price(1)
	require := assert.New(t)
	require.True(ok)
	require.InDelta(2.0*1e18, price, 1e9)
}

func TestBellmanFordPricesTransitiveChain(t *testing.T) {
	g := New([]Edge{
		{From: 0, To: 1, Rate: 2.0},
		{From: 1, To: 2, Rate: 3.0},
	})
	paths := bellmanFord(g, 0)

	price, ok := paths.Price(2)
	assert.True(t, ok)
	assert.InDelta(t, 6.0*1e18, price, 1e9)
}

func TestBellmanFordSuppressesNegativeCycleTokens(t *testing.T) {
	// 0->1 at 2.0, 1->2 at 2.0, 2->0 at 1.0: the round trip nets 4x,
	// an arbitrage loop, so nothing on the cycle gets a price.
	g := New([]Edge{
		{From: 0, To: 1, Rate: 2.0},
		{From: 1, To: 2, Rate: 2.0},
		{From: 2, To: 0, Rate: 1.0},
	})
	paths := bellmanFord(g, 0)

	_, ok := paths.Price(1)
	assert.False(t, ok)
	_, ok = paths.Price(2)
	assert.False(t, ok)
}

func TestBellmanFordUnreachableTokenHasNoPrice(t *testing.T) {
	g := New([]Edge{
		{From: 0, To: 1, Rate: 2.0},
	})
	paths := bellmanFord(g, 0)

	_, ok := paths.Price(99)
	assert.False(t, ok)
}

func TestGraphKeepsBestRatePerPair(t *testing.T) {
	g := New([]Edge{
		{From: 0, To: 1, Rate: 1.5},
		{From: 0, To: 1, Rate: 2.0},
	})
	paths := bellmanFord(g, 0)

	price, ok := paths.Price(1)
	assert.True(t, ok)
	assert.InDelta(t, 2.0*1e18, price, 1e9)
}

func TestGraphSkipsNonPositiveRates(t *testing.T) {
	g := New([]Edge{
		{From: 0, To: 1, Rate: 0},
		{From: 0, To: 1, Rate: -1},
	})
	assert.Empty(t, g.adj[0])
}

func TestSourceAlwaysPricesReferenceTokenAtOneE18(t *testing.T) {
	src := Source{
		RefToken: dextypes.ReferenceToken,
		EdgesFunc: func() []Edge {
			return []Edge{{From: 0, To: 1, Rate: 2.0}}
		},
	}
	prices := src.GetPrices(context.Background(), []dextypes.TokenId{dextypes.ReferenceToken, 1})

	assert.Equal(t, int64(1_000_000_000_000_000_000), prices[dextypes.ReferenceToken].Int64())
	assert.NotNil(t, prices[1])
}

func TestSourceOmitsTokensOnNegativeCycleOrUnreachable(t *testing.T) {
	src := Source{
		RefToken: dextypes.ReferenceToken,
		EdgesFunc: func() []Edge {
			return []Edge{{From: 0, To: 1, Rate: 2.0}}
		},
	}
	prices := src.GetPrices(context.Background(), []dextypes.TokenId{7})

	_, present := prices[7]
	assert.False(t, present)
}

func TestSourceWithNilEdgesFuncReturnsEmpty(t *testing.T) {
	src := Source{RefToken: dextypes.ReferenceToken}
	prices := src.GetPrices(context.Background(), []dextypes.TokenId{1, 2})
	assert.Empty(t, prices)
}
