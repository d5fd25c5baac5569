// Package scheduler decides, from wall-clock or chain time, which batch
// the driver should currently be solving and for how long, and drives the
// main loop that repeatedly asks that question and dispatches to a
// driver. The decision function and its state machine are grounded on the
// teacher's RunStrategy1 contract (specs/001-liquidity-repositioning/
// contracts/strategy_api.go): a context-cancellable loop reporting
// structured events over a channel, with a circuit breaker halting on
// sustained failure.
package scheduler

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ChoSanghyuk/dexdriver/dexerr"
	"github.com/ChoSanghyuk/dexdriver/dextypes"
	"github.com/ChoSanghyuk/dexdriver/metrics"
)

// RetryTimeout is how long the main loop waits after a retryable driver
// error before re-evaluating the decision function.
const RetryTimeout = 10 * time.Second

// Config holds the three offsets that shape the decision function.
type Config struct {
	// TargetStartSolveTime is the offset from a batch's open at which
	// solving should begin.
	TargetStartSolveTime time.Duration
	// LatestSolutionSubmitTime is the offset by which the solution must
	// have been submitted; past it the batch is abandoned.
	LatestSolutionSubmitTime time.Duration
	// EarliestSolutionSubmitTime is an optional lower bound on submission,
	// to avoid being front-run by a better solver. Zero disables it.
	EarliestSolutionSubmitTime time.Duration
}

// ActionKind tags an Action the way a StrategyPhase enum tags its
// state machine, down to the String() convention.
type ActionKind int

const (
	Sleep ActionKind = iota
	Solve
	// Skip marks a batch as permanently abandoned without ever invoking
	// the solver, e.g. ChainScheduler finding solver_time_limit already
	// non-positive at decision time.
	Skip
)

func (k ActionKind) String() string {
	switch k {
	case Sleep:
		return "Sleep"
	case Solve:
		return "Solve"
	case Skip:
		return "Skip"
	default:
		return "Unknown"
	}
}

// Action is the decision function's output: either sleep until a wall
// clock time, or solve a specific batch with a bounded time limit.
type Action struct {
	Kind  ActionKind
	Until time.Time          // valid when Kind == Sleep
	Batch dextypes.BatchId    // valid when Kind == Solve
	Limit time.Duration       // valid when Kind == Solve
}

// CurrentlySolvingBatch returns the batch whose solve window contains now:
// the batch that just closed for new orders.
func CurrentlySolvingBatch(now time.Time) dextypes.BatchId {
	b := dextypes.BatchIdFromTimestamp(now)
	if b == 0 {
		return 0
	}
	return b - 1
}

func solverTimeLimit(cfg Config, b dextypes.BatchId, now time.Time) time.Duration {
	elapsed := now.Sub(b.SolveStartTime())
	return cfg.LatestSolutionSubmitTime - elapsed
}

// DetermineAction implements spec's decision function: given the last
// successfully (or permanently-skipped) solved batch and the current
// time, decide whether to sleep or solve.
func DetermineAction(cfg Config, lastSolved *dextypes.BatchId, now time.Time) Action {
	b := CurrentlySolvingBatch(now)

	alreadyHandled := lastSolved != nil && *lastSolved == b
	overdue := now.Sub(b.SolveStartTime()) > cfg.LatestSolutionSubmitTime
	if alreadyHandled || overdue {
		next := b + 1
		return Action{Kind: Sleep, Until: next.SolveStartTime().Add(cfg.TargetStartSolveTime)}
	}

	targetStart := b.SolveStartTime().Add(cfg.TargetStartSolveTime)
	if now.Before(targetStart) {
		return Action{Kind: Sleep, Until: targetStart}
	}

	return Action{Kind: Solve, Batch: b, Limit: solverTimeLimit(cfg, b, now)}
}

// Driver is the capability the scheduler's main loop delegates Solve
// actions to. The concrete implementation lives in package driver; the
// interface here keeps scheduler free of driver's own dependencies.
type Driver interface {
	RunBatch(ctx context.Context, batch dextypes.BatchId, limit time.Duration) error
}

// Clock abstracts "now" so SystemScheduler and tests can be driven
// without real sleeps.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, until time.Time) error
}

// SystemScheduler derives the currently solving batch from the node's
// wall clock.
type SystemScheduler struct {
	Config Config
	Clock  Clock
	Driver Driver
	Breaker *CircuitBreaker

	lastSolved *dextypes.BatchId
}

// NewSystemScheduler wires a scheduler with a real wall clock.
func NewSystemScheduler(cfg Config, driver Driver, breaker *CircuitBreaker) *SystemScheduler {
	return &SystemScheduler{Config: cfg, Clock: realClock{}, Driver: driver, Breaker: breaker}
}

// Run executes the main loop until ctx is cancelled.
func (s *SystemScheduler) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		action := DetermineAction(s.Config, s.lastSolved, s.Clock.Now())
		switch action.Kind {
		case Sleep:
			log.Debug("scheduler sleeping", "until", action.Until)
			if err := s.Clock.Sleep(ctx, action.Until); err != nil {
				return nil
			}
		case Solve:
			log.Info("scheduler solving batch", "batch", action.Batch, "limit", action.Limit)
			solveStart := s.Clock.Now()
			metrics.Reset()
			metrics.RecordStage(metrics.StageStarted, solveStart)
			err := s.Driver.RunBatch(ctx, action.Batch, action.Limit)
			b := action.Batch
			switch {
			case err == nil:
				metrics.RecordStage(metrics.StageSubmitted, solveStart)
				s.lastSolved = &b
				if s.Breaker != nil {
					s.Breaker.Reset()
				}
			case dexerr.IsSkip(err):
				log.Warn("skipping batch", "batch", action.Batch, "err", err)
				metrics.RecordStage(metrics.StageSkipped, solveStart)
				s.lastSolved = &b
			case dexerr.IsFatal(err):
				log.Error("fatal scheduler error, halting", "batch", action.Batch, "err", err)
				return err
			default:
				log.Warn("retrying batch after error", "batch", action.Batch, "err", err)
				if s.Breaker != nil && s.Breaker.RecordError(err, false) {
					log.Error("circuit breaker tripped, halting scheduler", "err", err)
					return err
				}
				if slErr := s.Clock.Sleep(ctx, s.Clock.Now().Add(RetryTimeout)); slErr != nil {
					return nil
				}
			}
		}
	}
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, until time.Time) error {
	d := time.Until(until)
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
