package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ChoSanghyuk/dexdriver/dexerr"
	"github.com/ChoSanghyuk/dexdriver/dextypes"
)

// PollInterval is how often ChainScheduler refreshes its view of the
// current batch and its remaining time from the chain, both between
// decisions and while a solve is in flight.
const PollInterval = 5 * time.Second

// ChainBatchReader is the subset of chaingateway.ChainGateway the
// ChainScheduler needs to derive batch timing from chain state rather
// than the local wall clock.
type ChainBatchReader interface {
	CurrentBatch(ctx context.Context) (dextypes.BatchId, error)
	CurrentBatchRemainingTime(ctx context.Context) (time.Duration, error)
}

// ChainScheduler derives the currently solving batch from
// ChainGateway.CurrentBatch, polled on a fixed interval, rather than the
// node's own wall clock — useful when node time has drifted from the
// chain's own notion of batch boundaries.
type ChainScheduler struct {
	Config  Config
	Chain   ChainBatchReader
	Driver  Driver
	Breaker *CircuitBreaker

	// PollInterval overrides the package default, mainly so tests can
	// drive the watch loop without waiting out a real 5s tick.
	PollInterval time.Duration

	lastSolved *dextypes.BatchId
}

// NewChainScheduler wires a scheduler driven by chain-reported batch timing.
func NewChainScheduler(cfg Config, chain ChainBatchReader, driver Driver, breaker *CircuitBreaker) *ChainScheduler {
	return &ChainScheduler{Config: cfg, Chain: chain, Driver: driver, Breaker: breaker, PollInterval: PollInterval}
}

func (s *ChainScheduler) pollInterval() time.Duration {
	if s.PollInterval > 0 {
		return s.PollInterval
	}
	return PollInterval
}

// Run executes the main loop until ctx is cancelled, polling chain state
// every PollInterval to re-derive the decision function's inputs.
func (s *ChainScheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.pollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		current, remaining, err := s.pollChain(ctx)
		if err != nil {
			log.Warn("chain scheduler poll failed, retrying", "err", err)
			if err := s.wait(ctx, ticker); err != nil {
				return nil
			}
			continue
		}

		// currently_solving_batch from the chain's perspective is the
		// batch just closed, i.e. current-1.
		b := current - 1
		log.Debug("chain scheduler polled", "current_batch", current, "remaining_in_batch", remaining)

		action := s.decide(b, remaining)
		switch action.Kind {
		case Sleep:
			if err := s.wait(ctx, ticker); err != nil {
				return nil
			}
		case Skip:
			log.Warn("chain scheduler: no time remains for solver, skipping batch", "batch", b, "limit", action.Limit)
			bb := b
			s.lastSolved = &bb
			if err := s.wait(ctx, ticker); err != nil {
				return nil
			}
		case Solve:
			err := s.runWatched(ctx, action.Batch, action.Limit)
			if ctx.Err() != nil {
				return nil
			}
			bb := action.Batch
			switch {
			case err == nil:
				s.lastSolved = &bb
				if s.Breaker != nil {
					s.Breaker.Reset()
				}
			case errors.Is(err, context.Canceled):
				// The batch advanced while Driver.RunBatch was still
				// running; the solve is abandoned without submission, but
				// the batch is still marked handled so the main loop moves
				// on to the new current batch instead of retrying one the
				// chain has already left behind.
				log.Warn("chain scheduler: batch advanced mid-solve, abandoning", "batch", action.Batch)
				s.lastSolved = &bb
			case dexerr.IsSkip(err):
				s.lastSolved = &bb
			case dexerr.IsFatal(err):
				return err
			default:
				if s.Breaker != nil && s.Breaker.RecordError(err, false) {
					return fmt.Errorf("chain scheduler: circuit breaker tripped: %w", err)
				}
				if err := s.wait(ctx, ticker); err != nil {
					return nil
				}
			}
		}
	}
}

func (s *ChainScheduler) pollChain(ctx context.Context) (dextypes.BatchId, time.Duration, error) {
	current, err := s.Chain.CurrentBatch(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("chain scheduler: current batch: %w", err)
	}
	remaining, err := s.Chain.CurrentBatchRemainingTime(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("chain scheduler: remaining time: %w", err)
	}
	return current, remaining, nil
}

// solverTimeLimit derives the remaining solve budget from the chain's own
// remaining-time reading rather than wall-clock elapsed time: the batch
// closed BatchEpochSeconds-remaining ago, so that much of
// LatestSolutionSubmitTime is already spent.
func solverTimeLimit(cfg Config, remaining time.Duration) time.Duration {
	elapsed := time.Duration(dextypes.BatchEpochSeconds)*time.Second - remaining
	return cfg.LatestSolutionSubmitTime - elapsed
}

// decide mirrors DetermineAction but without a dependency on wall-clock
// "now": it uses the already-closed batch b and the chain's own
// remaining-time reading directly, since the chain poll already told us
// which batch is currently solving and how much of its submit window is
// already spent.
func (s *ChainScheduler) decide(b dextypes.BatchId, remaining time.Duration) Action {
	if s.lastSolved != nil && *s.lastSolved == b {
		return Action{Kind: Sleep}
	}

	limit := solverTimeLimit(s.Config, remaining)
	if limit <= 0 {
		return Action{Kind: Skip, Batch: b, Limit: limit}
	}

	return Action{Kind: Solve, Batch: b, Limit: limit}
}

// runWatched runs the driver against batch with a context that's
// cancelled the moment a concurrent poll observes the chain has moved on
// to a later batch, so a solve that's still running against stale state
// doesn't submit a pointless solution.
func (s *ChainScheduler) runWatched(ctx context.Context, batch dextypes.BatchId, limit time.Duration) error {
	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(s.pollInterval())
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				current, err := s.Chain.CurrentBatch(watchCtx)
				if err != nil {
					continue
				}
				if current-1 != batch {
					cancel()
					return
				}
			}
		}
	}()

	return s.Driver.RunBatch(watchCtx, batch, limit)
}

func (s *ChainScheduler) wait(ctx context.Context, ticker *time.Ticker) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ticker.C:
		return nil
	}
}
