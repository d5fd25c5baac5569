// Package driver implements the one-shot per-(batch, time budget)
// orchestration step: read auction state, price the tokens involved, ask
// for a fee floor, invoke the solver, and hand a non-trivial solution off
// to the submitter. It satisfies scheduler.Driver so either scheduler
// variant can drive it.
package driver

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ChoSanghyuk/dexdriver/chaingateway"
	"github.com/ChoSanghyuk/dexdriver/dexerr"
	"github.com/ChoSanghyuk/dexdriver/dextypes"
	"github.com/ChoSanghyuk/dexdriver/internal/db"
	"github.com/ChoSanghyuk/dexdriver/metrics"
	"github.com/ChoSanghyuk/dexdriver/solver"
	"github.com/ChoSanghyuk/dexdriver/submitter"
	"github.com/ChoSanghyuk/dexdriver/viability"
)

// Registry is the subset of eventregistry.Registry the driver needs.
type Registry interface {
	AuctionStateForBatch(b dextypes.BatchId) (*dextypes.AccountState, []*dextypes.Order)
}

// PriceOracle supplies a best-effort price map for a set of tokens.
type PriceOracle interface {
	GetPrices(ctx context.Context, tokens []dextypes.TokenId) map[dextypes.TokenId]*big.Int
}

// GasPriceOracle supplies the current network gas price estimate, used to
// build the viability strategy's market snapshot.
type GasPriceOracle interface {
	EstimateGasPrice(ctx context.Context) (*big.Int, error)
}

// Solver runs the external solver process against one instance and
// returns its solution, or an error solver.IsTimeoutNoSolution recognizes
// if the time limit elapsed with nothing produced.
type Solver interface {
	Run(ctx context.Context, in solver.Input, timeLimit time.Duration) (*dextypes.Solution, error)
}

// submitFunc matches submitter.Submit's signature; overridable in tests so
// the deadline-derived cancel window doesn't have to track real wall-clock
// time relative to a test batch id.
type submitFunc func(ctx context.Context, gw chaingateway.ChainGateway, batch dextypes.BatchId, solution *dextypes.Solution, claimed dextypes.Objective, prices submitter.GasPriceStream, cap float64, cancelAfter time.Duration) (submitter.Outcome, error)

// History records the outcome of every submission attempt, an audit trail
// behind the skipped/submitted counters. Nil is valid: a Driver without a
// History simply doesn't record anything.
type History interface {
	RecordSubmission(batch dextypes.BatchId, claimed dextypes.Objective, outcome submitter.Outcome, classified db.Outcome) error
}

// Driver wires together the per-batch pipeline's dependencies.
type Driver struct {
	Registry    Registry
	Oracle      PriceOracle
	GasOracle   GasPriceOracle
	NativeToken dextypes.TokenId // priced via Oracle, used for gas-cost conversion
	Strategy    viability.Strategy
	Solver      Solver
	Gateway     chaingateway.ChainGateway
	FeeRatio    *big.Rat
	History     History

	GasPriceStream submitter.GasPriceStream

	// LatestSolutionSubmitTime mirrors scheduler.Config so the deadline
	// handed to Submit can be derived without importing package scheduler
	// (which already imports this package's sibling, avoiding an import
	// cycle).
	LatestSolutionSubmitTime time.Duration

	// now and submit default to time.Now and submitter.Submit; overridden
	// only by tests.
	now    func() time.Time
	submit submitFunc
}

// New wires a Driver with its real clock and submitter.
func New(registry Registry, oracle PriceOracle, gasOracle GasPriceOracle, nativeToken dextypes.TokenId, strategy viability.Strategy, s Solver, gw chaingateway.ChainGateway, feeRatio *big.Rat, stream submitter.GasPriceStream, latestSubmit time.Duration) *Driver {
	return &Driver{
		Registry:                 registry,
		Oracle:                   oracle,
		GasOracle:                gasOracle,
		NativeToken:              nativeToken,
		Strategy:                 strategy,
		Solver:                   s,
		Gateway:                  gw,
		FeeRatio:                 feeRatio,
		GasPriceStream:           stream,
		LatestSolutionSubmitTime: latestSubmit,
		now:                      time.Now,
		submit:                   submitter.Submit,
	}
}

func (d *Driver) clockNow() time.Time {
	if d.now != nil {
		return d.now()
	}
	return time.Now()
}

func (d *Driver) doSubmit(ctx context.Context, batch dextypes.BatchId, sol *dextypes.Solution, claimed dextypes.Objective, cap float64, cancelAfter time.Duration) (submitter.Outcome, error) {
	if d.submit != nil {
		return d.submit(ctx, d.Gateway, batch, sol, claimed, d.GasPriceStream, cap, cancelAfter)
	}
	return submitter.Submit(ctx, d.Gateway, batch, sol, claimed, d.GasPriceStream, cap, cancelAfter)
}

// RunBatch implements scheduler.Driver.
func (d *Driver) RunBatch(ctx context.Context, batch dextypes.BatchId, limit time.Duration) error {
	solveStart := d.clockNow()
	state, orders := d.Registry.AuctionStateForBatch(batch)
	metrics.RecordStage(metrics.StageOrdersFetched, solveStart)

	tokens := tokensInOrders(orders)
	prices := d.Oracle.GetPrices(ctx, tokens)
	tokenInfo := make(map[dextypes.TokenId]dextypes.TokenInfo, len(tokens))
	for _, t := range tokens {
		tokenInfo[t] = dextypes.TokenInfo{ExternalPrice: prices[t]}
	}

	market, err := d.marketSnapshot(ctx, prices)
	if err != nil {
		return dexerr.Retry(fmt.Errorf("driver: market snapshot: %w", err))
	}

	minAvgFee, err := d.Strategy.MinAverageFee(market)
	if err != nil {
		return dexerr.Retry(fmt.Errorf("driver: min average fee: %w", err))
	}

	if limit <= 0 {
		log.Warn("driver: no time remains for solver, skipping batch", "batch", batch)
		d.recordSubmission(batch, big.NewInt(0), submitter.Outcome{}, db.OutcomeSkipped)
		return dexerr.Skip(fmt.Errorf("driver: batch %d had no remaining solve time", batch))
	}

	sol, err := d.Solver.Run(ctx, solver.Input{
		State:     state,
		Orders:    orders,
		TokenInfo: tokenInfo,
		FeeRatio:  d.FeeRatio,
		MinAvgFee: minAvgFee,
	}, limit)
	if err != nil {
		if solver.IsTimeoutNoSolution(err) {
			log.Info("driver: solver time limit exceeded with no solution, skipping batch", "batch", batch)
			d.recordSubmission(batch, big.NewInt(0), submitter.Outcome{}, db.OutcomeSkipped)
			return dexerr.Skip(err)
		}
		return dexerr.Retry(fmt.Errorf("driver: solver: %w", err))
	}

	if sol.Trivial() {
		log.Info("driver: solver returned a trivial solution, skipping batch", "batch", batch)
		d.recordSubmission(batch, big.NewInt(0), submitter.Outcome{}, db.OutcomeSkipped)
		return dexerr.Skip(fmt.Errorf("driver: batch %d has no viable solution", batch))
	}

	info := dextypes.ViabilityInfoFromSolution(sol, d.FeeRatio)
	maxGasPrice, err := d.Strategy.MaxGasPrice(market, info)
	if err != nil {
		return dexerr.Retry(fmt.Errorf("driver: max gas price: %w", err))
	}
	metrics.RecordStage(metrics.StageSolved, solveStart)
	metrics.RecordStage(metrics.StageVerified, solveStart)

	claimed := objectiveOf(sol, info)
	deadline := batch.SolveStartTime().Add(d.LatestSolutionSubmitTime)
	cancelAfter := deadline.Sub(d.clockNow())

	outcome, err := d.doSubmit(ctx, batch, sol, claimed, viability.Float64(maxGasPrice), cancelAfter)
	if err != nil {
		return err
	}

	classified := db.OutcomeSubmitted
	if !outcome.WasMined {
		classified = db.OutcomeCancelled
	}
	d.recordSubmission(batch, claimed, outcome, classified)

	if !outcome.WasMined {
		return dexerr.Skip(fmt.Errorf("driver: batch %d's solution never mined", batch))
	}

	return nil
}

// recordSubmission writes an audit entry if a History is configured. A
// recording failure is logged, never escalated: the audit trail is best
// effort and must not turn a mined submission into a retry.
func (d *Driver) recordSubmission(batch dextypes.BatchId, claimed dextypes.Objective, outcome submitter.Outcome, classified db.Outcome) {
	if d.History == nil {
		return
	}
	if err := d.History.RecordSubmission(batch, claimed, outcome, classified); err != nil {
		log.Warn("driver: failed to record submission history", "batch", batch, "err", err)
	}
}

func (d *Driver) marketSnapshot(ctx context.Context, prices map[dextypes.TokenId]*big.Int) (viability.MarketSnapshot, error) {
	gasPrice, err := d.GasOracle.EstimateGasPrice(ctx)
	if err != nil {
		return viability.MarketSnapshot{}, fmt.Errorf("gas price estimate: %w", err)
	}
	nativePrice := prices[d.NativeToken]
	return viability.MarketSnapshot{GasPrice: gasPrice, NativePrice: nativePrice}, nil
}

func tokensInOrders(orders []*dextypes.Order) []dextypes.TokenId {
	seen := map[dextypes.TokenId]bool{dextypes.ReferenceToken: true}
	out := []dextypes.TokenId{dextypes.ReferenceToken}
	for _, o := range orders {
		for _, t := range [2]dextypes.TokenId{o.BuyToken, o.SellToken} {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	return out
}

// objectiveOf computes the scalar the contract ranks this solution by:
// total earned fee, the simplest faithful objective given what the
// driver itself can observe (a real solver would report a richer
// objective alongside its result; this is the floor the contract checks
// against when nothing more specific is available).
func objectiveOf(sol *dextypes.Solution, info dextypes.EconomicViabilityInfo) dextypes.Objective {
	if info.EarnedFee == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(info.EarnedFee)
}
