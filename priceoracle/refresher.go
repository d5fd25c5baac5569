package priceoracle

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ChoSanghyuk/dexdriver/dextypes"
)

// UpdateInterval is how often a ThreadedRefresher re-queries its wrapped
// source.
const UpdateInterval = 30 * time.Second

// ThreadedRefresher owns a background goroutine that refreshes a wrapped
// PriceSource every UpdateInterval and publishes into a shared cache;
// GetPrices itself never blocks on I/O. If the refresh panics, the panic
// is recovered and logged and the cache is cleared, so a caller never sees
// prices that might already be stale relative to whatever the source
// choked on.
type ThreadedRefresher struct {
	source   PriceSource
	tokens   func() []dextypes.TokenId
	interval time.Duration
	cache    *cachedPrices

	stop     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// NewThreadedRefresher starts the background worker immediately. tokens is
// called on every tick to get the current set of tokens worth pricing
// (the caller's whitelist may grow over time). interval <= 0 falls back
// to UpdateInterval.
func NewThreadedRefresher(source PriceSource, tokens func() []dextypes.TokenId, interval time.Duration) *ThreadedRefresher {
	if interval <= 0 {
		interval = UpdateInterval
	}
	r := &ThreadedRefresher{
		source:   source,
		tokens:   tokens,
		interval: interval,
		cache:    newCachedPrices(),
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go r.loop()
	return r
}

func (r *ThreadedRefresher) loop() {
	defer close(r.stopped)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.refreshOnce()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.refreshOnce()
		}
	}
}

func (r *ThreadedRefresher) refreshOnce() {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("price source refresh panicked, clearing cache", "recover", rec)
			r.cache.clear()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), r.interval)
	defer cancel()

	prices := r.source.GetPrices(ctx, r.tokens())
	r.cache.set(prices)
}

// GetPrices reads the cache without blocking or doing I/O.
func (r *ThreadedRefresher) GetPrices(_ context.Context, tokens []dextypes.TokenId) map[dextypes.TokenId]*big.Int {
	return r.cache.get(tokens)
}

// Stop signals the worker to exit and waits for it to do so, bounding
// shutdown to the caller's context deadline if any.
func (r *ThreadedRefresher) Stop(ctx context.Context) error {
	r.stopOnce.Do(func() { close(r.stop) })
	select {
	case <-r.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
