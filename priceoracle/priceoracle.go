// Package priceoracle aggregates multiple price sources into a best-effort
// price map. Each source answers "atoms of reference token per 10^18 of
// this token" for a requested set of tokens; a source that has no opinion
// on a token simply omits it from its answer.
package priceoracle

import (
	"context"
	"math/big"
	"sync"

	"github.com/ChoSanghyuk/dexdriver/dextypes"
)

// OneE18 is the identity price: one unit of the reference token per 10^18
// of itself.
var OneE18 = big.NewInt(1_000_000_000_000_000_000)

// PriceSource answers prices for a requested set of tokens, best effort.
// Implementations must not block for long; the threaded refresher is the
// only thing allowed to do I/O on a ticking interval.
type PriceSource interface {
	GetPrices(ctx context.Context, tokens []dextypes.TokenId) map[dextypes.TokenId]*big.Int
}

// Oracle combines one or more PriceSources and always guarantees the
// reference token is present in its answer.
type Oracle struct {
	Source PriceSource
}

// New wraps a PriceSource with the reference-token guarantee.
func New(source PriceSource) *Oracle {
	return &Oracle{Source: source}
}

// GetPrices returns source prices for tokens, with token 0 forced to 1e18
// regardless of what the wrapped source says.
func (o *Oracle) GetPrices(ctx context.Context, tokens []dextypes.TokenId) map[dextypes.TokenId]*big.Int {
	out := make(map[dextypes.TokenId]*big.Int)
	if o.Source != nil {
		for tok, price := range o.Source.GetPrices(ctx, tokens) {
			if price != nil && price.Sign() > 0 {
				out[tok] = price
			}
		}
	}
	out[dextypes.ReferenceToken] = new(big.Int).Set(OneE18)
	return out
}

// Hardcoded is a PriceSource seeded once from configuration; it never
// changes and never does I/O.
type Hardcoded struct {
	Prices map[dextypes.TokenId]*big.Int
}

func (h Hardcoded) GetPrices(_ context.Context, tokens []dextypes.TokenId) map[dextypes.TokenId]*big.Int {
	out := make(map[dextypes.TokenId]*big.Int)
	for _, t := range tokens {
		if p, ok := h.Prices[t]; ok {
			out[t] = p
		}
	}
	return out
}

// Priority returns, for each token, the first source in order that has an
// opinion on it. Order is config-driven, not latency-ordered (see
// DESIGN.md's Open Question decision).
type Priority struct {
	Sources []PriceSource
}

func (p Priority) GetPrices(ctx context.Context, tokens []dextypes.TokenId) map[dextypes.TokenId]*big.Int {
	remaining := make(map[dextypes.TokenId]bool, len(tokens))
	for _, t := range tokens {
		remaining[t] = true
	}
	out := make(map[dextypes.TokenId]*big.Int)
	for _, src := range p.Sources {
		if len(remaining) == 0 {
			break
		}
		need := make([]dextypes.TokenId, 0, len(remaining))
		for t := range remaining {
			need = append(need, t)
		}
		for tok, price := range src.GetPrices(ctx, need) {
			if !remaining[tok] {
				continue
			}
			out[tok] = price
			delete(remaining, tok)
		}
	}
	return out
}

// Average returns, for each token, the arithmetic mean of every source's
// answer that included it.
type Average struct {
	Sources []PriceSource
}

func (a Average) GetPrices(ctx context.Context, tokens []dextypes.TokenId) map[dextypes.TokenId]*big.Int {
	sums := make(map[dextypes.TokenId]*big.Int)
	counts := make(map[dextypes.TokenId]int)
	for _, src := range a.Sources {
		for tok, price := range src.GetPrices(ctx, tokens) {
			if price == nil {
				continue
			}
			if sums[tok] == nil {
				sums[tok] = new(big.Int)
			}
			sums[tok].Add(sums[tok], price)
			counts[tok]++
		}
	}
	out := make(map[dextypes.TokenId]*big.Int, len(sums))
	for tok, sum := range sums {
		if counts[tok] == 0 {
			continue
		}
		out[tok] = new(big.Int).Quo(sum, big.NewInt(int64(counts[tok])))
	}
	return out
}

// cachedPrices is the shared map a ThreadedRefresher publishes into and
// GetPrices reads from without blocking or doing I/O.
type cachedPrices struct {
	mu     sync.RWMutex
	prices map[dextypes.TokenId]*big.Int
}

func newCachedPrices() *cachedPrices {
	return &cachedPrices{prices: make(map[dextypes.TokenId]*big.Int)}
}

func (c *cachedPrices) set(prices map[dextypes.TokenId]*big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices = prices
}

func (c *cachedPrices) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices = make(map[dextypes.TokenId]*big.Int)
}

func (c *cachedPrices) get(tokens []dextypes.TokenId) map[dextypes.TokenId]*big.Int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[dextypes.TokenId]*big.Int, len(tokens))
	for _, t := range tokens {
		if p, ok := c.prices[t]; ok {
			out[t] = p
		}
	}
	return out
}
