package submitter

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// GasPriceEstimator supplies a fresh gas-price estimate, e.g. an RPC
// gas-price oracle call. Grounded on the sampling-based gas-price
// estimators in other_examples/.../eth-gasprice-scroll_gasprice.go.go and
// .../internal-api-gasprice.go.go: a single synchronous "give me a
// number" call, with rate limiting layered on top rather than baked in.
type GasPriceEstimator interface {
	Estimate(ctx context.Context) (float64, error)
}

// TickerGasPriceStream emits one value from the wrapped estimator every
// tickInterval (~15s per spec), rate-limited so a caller that polls more
// aggressively than the estimator's own budget still respects it.
// golang.org/x/time/rate is a transitive dependency
// (pulled in via go-ethereum), promoted to direct use here.
type TickerGasPriceStream struct {
	estimator GasPriceEstimator
	ticker    *time.Ticker
	limiter   *rate.Limiter
}

// NewTickerGasPriceStream builds a stream ticking every interval, never
// querying the estimator more than once per minInterval even if Next is
// called more often than the ticker fires.
func NewTickerGasPriceStream(estimator GasPriceEstimator, interval, minInterval time.Duration) *TickerGasPriceStream {
	return &TickerGasPriceStream{
		estimator: estimator,
		ticker:    time.NewTicker(interval),
		limiter:   rate.NewLimiter(rate.Every(minInterval), 1),
	}
}

// Next blocks until the next tick, waits for the rate limiter, then
// queries the estimator. Returns ok=false if ctx is done first.
func (s *TickerGasPriceStream) Next(ctx context.Context) (float64, bool) {
	select {
	case <-ctx.Done():
		return 0, false
	case <-s.ticker.C:
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return 0, false
	}

	v, err := s.estimator.Estimate(ctx)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Stop releases the underlying ticker.
func (s *TickerGasPriceStream) Stop() { s.ticker.Stop() }
