// Package submitter implements the adaptive-retry, racing-cancellation
// transaction submission algorithm: it sends a settlement transaction,
// resends at a bumped gas price every time a fresh estimate arrives, and
// races all in-flight submissions against a deadline-triggered no-op that
// pre-empts them if the window closes first.
//
// Grounded on the nonce-pinned resubmission loop in
// other_examples/.../go-batch-submitter-drivers-sequencer-driver.go.go
// and the event-loop/metrics shape of
// other_examples/.../go-batch-submitter-service.go.go: same nonce, rising
// gas price, first receipt wins.
package submitter

import (
	"context"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ChoSanghyuk/dexdriver/chaingateway"
	"github.com/ChoSanghyuk/dexdriver/dexerr"
	"github.com/ChoSanghyuk/dexdriver/dextypes"
)

// MinIncreaseFactor is the minimum fractional bump required between two
// gas prices used for the same pending submission, matching mempool
// replacement-transaction policy.
const MinIncreaseFactor = 1.125

// Sender binds a (batch, solution) pair to the gateway and submits at a
// given gas price.
type Sender interface {
	Submit(ctx context.Context, gasPrice *big.Int) (chaingateway.SubmitResult, error)
}

// solutionSender submits the real settlement transaction.
type solutionSender struct {
	gw       chaingateway.ChainGateway
	batch    dextypes.BatchId
	solution *dextypes.Solution
	claimed  dextypes.Objective
}

func (s solutionSender) Submit(ctx context.Context, gasPrice *big.Int) (chaingateway.SubmitResult, error) {
	return s.gw.SubmitSolution(ctx, s.batch, s.solution, s.claimed, gasPrice)
}

// noopSender submits a cancellation no-op at the given gas price.
type noopSender struct {
	gw chaingateway.ChainGateway
}

func (s noopSender) Submit(ctx context.Context, gasPrice *big.Int) (chaingateway.SubmitResult, error) {
	return s.gw.SubmitNoop(ctx, gasPrice)
}

// GasPriceStream yields successive candidate gas prices, already
// deadline-limited by the caller; Next blocks until a new value is ready
// or ctx is done.
type GasPriceStream interface {
	Next(ctx context.Context) (float64, bool)
}

// Outcome is the Submitter's terminal result for one (batch, solution).
type Outcome struct {
	Result   chaingateway.SubmitResult
	WasMined bool
}

// Submit runs the full adaptive-retry algorithm: spawn a new submission on
// every gas-price tick (bounded, monotonically increasing, capped), spawn
// a no-op once cancelAfter elapses and stop consuming the stream, and
// complete with the first was_mined=true result, or the last result if
// none were mined.
func Submit(ctx context.Context, gw chaingateway.ChainGateway, batch dextypes.BatchId, solution *dextypes.Solution, claimed dextypes.Objective, prices GasPriceStream, cap float64, cancelAfter time.Duration) (Outcome, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan submission, 8)
	group, gctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	lastUsed := 0.0
	var everEmitted bool

	sender := solutionSender{gw: gw, batch: batch, solution: solution, claimed: claimed}

	// A context.WithTimeout's Done channel is closed, not sent-once, so
	// both goroutines below can select on it independently without racing
	// each other for the single wakeup a raw time.Timer would deliver.
	deadlineCtx, deadlineCancel := context.WithTimeout(gctx, cancelAfter)
	defer deadlineCancel()

	group.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-deadlineCtx.Done():
				return nil
			default:
			}

			price, ok := prices.Next(deadlineCtx)
			if !ok {
				return nil
			}

			mu.Lock()
			bumped := applyGasPriceInvariants(price, lastUsed, cap, everEmitted)
			lastUsed = bumped
			everEmitted = true
			mu.Unlock()

			spawnSubmission(group, gctx, sender, bumped, results)
		}
	})

	group.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-deadlineCtx.Done():
		}
		if gctx.Err() != nil {
			return nil
		}

		mu.Lock()
		hadEmitted := everEmitted
		bumped := minimumIncrease(lastUsed, cap)
		lastUsed = bumped
		mu.Unlock()

		if !hadEmitted {
			// Nothing was ever submitted; there is nothing to cancel.
			return nil
		}
		spawnSubmission(group, gctx, noopSender{gw: gw}, bumped, results)
		return nil
	})

	var collected []submission
	done := make(chan struct{})
	go func() {
		defer close(done)
		for s := range results {
			collected = append(collected, s)
			if s.result.WasMined {
				cancel()
			}
		}
	}()

	waitErr := group.Wait()
	close(results)
	<-done

	if waitErr != nil {
		return Outcome{}, dexerr.Retry(waitErr)
	}

	for _, s := range collected {
		if s.result.WasMined {
			return Outcome{Result: s.result, WasMined: true}, nil
		}
	}
	if len(collected) == 0 {
		return Outcome{}, nil
	}
	last := collected[len(collected)-1]
	return Outcome{Result: last.result, WasMined: false}, classifySubmitError(last.err)
}

type submission struct {
	result chaingateway.SubmitResult
	err    error
}

func spawnSubmission(group *errgroup.Group, ctx context.Context, sender Sender, gasPrice float64, results chan<- submission) {
	group.Go(func() error {
		res, err := sender.Submit(ctx, gasPriceToWei(gasPrice))
		select {
		case results <- submission{result: res, err: err}:
		case <-ctx.Done():
		}
		return nil
	})
}

// applyGasPriceInvariants enforces the stream adapter's two invariants:
// never exceed cap, and always bump by at least MinIncreaseFactor over
// the last used price (once one has been used).
func applyGasPriceInvariants(candidate, lastUsed, cap float64, everEmitted bool) float64 {
	v := candidate
	if everEmitted {
		min := math.Ceil(lastUsed * MinIncreaseFactor)
		if v < min {
			v = min
		}
	}
	if v > cap {
		v = cap
	}
	return v
}

func minimumIncrease(lastUsed, cap float64) float64 {
	v := math.Ceil(lastUsed * MinIncreaseFactor)
	if v > cap {
		v = cap
	}
	return v
}

func gasPriceToWei(v float64) *big.Int {
	bi, _ := big.NewFloat(v).Int(nil)
	return bi
}

func classifySubmitError(err error) error {
	if err == nil {
		return nil
	}
	if isContractRejection(err) {
		return dexerr.Skip(err)
	}
	return dexerr.Retry(err)
}

// isContractRejection recognizes known revert reasons the contract uses
// to reject a solution outright (objective not beaten, batch closed):
// permanent for this batch, not worth retrying.
func isContractRejection(err error) bool {
	msg := err.Error()
	for _, s := range []string{"objective not beaten", "batch closed", "nonce already used"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
