package priceoracle

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChoSanghyuk/dexdriver/dextypes"
)

type fixedSource struct {
	prices map[dextypes.TokenId]*big.Int
}

func (f fixedSource) GetPrices(_ context.Context, tokens []dextypes.TokenId) map[dextypes.TokenId]*big.Int {
	out := make(map[dextypes.TokenId]*big.Int)
	for _, t := range tokens {
		if p, ok := f.prices[t]; ok {
			out[t] = p
		}
	}
	return out
}

type panickingSource struct{}

func (panickingSource) GetPrices(_ context.Context, _ []dextypes.TokenId) map[dextypes.TokenId]*big.Int {
	panic("source exploded")
}

func TestOracleAlwaysIncludesReferenceToken(t *testing.T) {
	o := New(fixedSource{prices: map[dextypes.TokenId]*big.Int{1: big.NewInt(5)}})
	out := o.GetPrices(context.Background(), []dextypes.TokenId{1, 2})
	require.Contains(t, out, dextypes.ReferenceToken)
	assert.Equal(t, OneE18, out[dextypes.ReferenceToken])
	assert.Equal(t, big.NewInt(5), out[1])
	assert.NotContains(t, out, dextypes.TokenId(2))
}

func TestOracleWithNilSourceStillReturnsReferenceToken(t *testing.T) {
	o := New(nil)
	out := o.GetPrices(context.Background(), []dextypes.TokenId{1})
	assert.Equal(t, OneE18, out[dextypes.ReferenceToken])
}

func TestPriorityReturnsFirstSourceWithAnAnswer(t *testing.T) {
	p := Priority{Sources: []PriceSource{
		fixedSource{prices: map[dextypes.TokenId]*big.Int{1: big.NewInt(10)}},
		fixedSource{prices: map[dextypes.TokenId]*big.Int{1: big.NewInt(20), 2: big.NewInt(30)}},
	}}
	out := p.GetPrices(context.Background(), []dextypes.TokenId{1, 2})
	assert.Equal(t, big.NewInt(10), out[1]) // first source wins for token 1
	assert.Equal(t, big.NewInt(30), out[2]) // only second source answered for token 2
}

func TestAverageComputesMeanAcrossAnsweringSources(t *testing.T) {
	a := Average{Sources: []PriceSource{
		fixedSource{prices: map[dextypes.TokenId]*big.Int{1: big.NewInt(10)}},
		fixedSource{prices: map[dextypes.TokenId]*big.Int{1: big.NewInt(20)}},
	}}
	out := a.GetPrices(context.Background(), []dextypes.TokenId{1})
	assert.Equal(t, big.NewInt(15), out[1])
}

func TestThreadedRefresherServesLastGoodPriceWithoutBlocking(t *testing.T) {
	src := fixedSource{prices: map[dextypes.TokenId]*big.Int{1: big.NewInt(99)}}
	r := NewThreadedRefresher(src, func() []dextypes.TokenId { return []dextypes.TokenId{1} }, 20*time.Millisecond)
	defer r.Stop(context.Background())

	require.Eventually(t, func() bool {
		out := r.GetPrices(context.Background(), []dextypes.TokenId{1})
		return out[1] != nil && out[1].Cmp(big.NewInt(99)) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestThreadedRefresherClearsCacheOnPanic(t *testing.T) {
	r := NewThreadedRefresher(panickingSource{}, func() []dextypes.TokenId { return []dextypes.TokenId{1} }, 20*time.Millisecond)
	defer r.Stop(context.Background())

	require.Eventually(t, func() bool {
		out := r.GetPrices(context.Background(), []dextypes.TokenId{1})
		return len(out) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestThreadedRefresherStopReturnsPromptly(t *testing.T) {
	r := NewThreadedRefresher(fixedSource{}, func() []dextypes.TokenId { return nil }, 20*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, r.Stop(ctx))
}
