package driver

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChoSanghyuk/dexdriver/chaingateway"
	"github.com/ChoSanghyuk/dexdriver/dexerr"
	"github.com/ChoSanghyuk/dexdriver/dextypes"
	"github.com/ChoSanghyuk/dexdriver/internal/db"
	"github.com/ChoSanghyuk/dexdriver/solver"
	"github.com/ChoSanghyuk/dexdriver/submitter"
	"github.com/ChoSanghyuk/dexdriver/viability"
)

type fakeHistory struct {
	calls []db.Outcome
}

func (h *fakeHistory) RecordSubmission(_ dextypes.BatchId, _ dextypes.Objective, _ submitter.Outcome, classified db.Outcome) error {
	h.calls = append(h.calls, classified)
	return nil
}

type fakeRegistry struct {
	state  *dextypes.AccountState
	orders []*dextypes.Order
}

func (f fakeRegistry) AuctionStateForBatch(dextypes.BatchId) (*dextypes.AccountState, []*dextypes.Order) {
	return f.state, f.orders
}

type fakeOracle struct{ prices map[dextypes.TokenId]*big.Int }

func (f fakeOracle) GetPrices(_ context.Context, tokens []dextypes.TokenId) map[dextypes.TokenId]*big.Int {
	out := make(map[dextypes.TokenId]*big.Int)
	for _, t := range tokens {
		if p, ok := f.prices[t]; ok {
			out[t] = p
		}
	}
	return out
}

type fakeGasOracle struct{ price *big.Int }

func (f fakeGasOracle) EstimateGasPrice(context.Context) (*big.Int, error) { return f.price, nil }

type fakeSolver struct {
	sol *dextypes.Solution
	err error
}

func (f fakeSolver) Run(context.Context, solver.Input, time.Duration) (*dextypes.Solution, error) {
	return f.sol, f.err
}

type fakeGateway struct {
	chaingateway.ChainGateway
	mined bool
}

func (g fakeGateway) SubmitSolution(_ context.Context, _ dextypes.BatchId, _ *dextypes.Solution, _ dextypes.Objective, gasPrice *big.Int) (chaingateway.SubmitResult, error) {
	return chaingateway.SubmitResult{WasMined: g.mined, GasPrice: gasPrice}, nil
}

func (g fakeGateway) SubmitNoop(_ context.Context, gasPrice *big.Int) (chaingateway.SubmitResult, error) {
	return chaingateway.SubmitResult{GasPrice: gasPrice}, nil
}

type onceStream struct {
	price float64
	sent  bool
}

func (s *onceStream) Next(ctx context.Context) (float64, bool) {
	if s.sent {
		<-ctx.Done()
		return 0, false
	}
	s.sent = true
	return s.price, true
}

func newDriver(t *testing.T, solver fakeSolver, mined bool) *Driver {
	t.Helper()
	acct := common.HexToAddress("0x2222222222222222222222222222222222222222")
	order := &dextypes.Order{ID: 1, Account: acct, SellToken: 1, BuyToken: 0, Remaining: big.NewInt(1000), Numerator: big.NewInt(1), Denominator: big.NewInt(1)}

	return &Driver{
		Registry:    fakeRegistry{state: dextypes.NewAccountState(), orders: []*dextypes.Order{order}},
		Oracle:      fakeOracle{prices: map[dextypes.TokenId]*big.Int{1: big.NewInt(2_000_000_000_000_000_000)}},
		GasOracle:   fakeGasOracle{price: big.NewInt(40_000_000_000)},
		NativeToken: 1,
		Strategy:    viability.Fixed{MinFee: big.NewInt(1), MaxGasPrice: big.NewInt(1_000_000_000_000)},
		Solver:      solver,
		Gateway:     fakeGateway{mined: mined},
		FeeRatio:    big.NewRat(1, 1000),

		GasPriceStream:           &onceStream{price: 50},
		LatestSolutionSubmitTime: 50 * time.Millisecond,
		now:                      func() time.Time { return dextypes.BatchId(1).SolveStartTime() },
		submit:                   submitter.Submit,
	}
}

func nonTrivialSolution() *dextypes.Solution {
	return &dextypes.Solution{
		Prices: map[dextypes.TokenId]*big.Int{0: big.NewInt(1), 1: big.NewInt(2)},
		ExecutedOrders: []dextypes.ExecutedOrder{
			{OrderID: 1, SellAmount: big.NewInt(1000), BuyAmount: big.NewInt(2000)},
		},
	}
}

func TestRunBatchSucceedsWhenMined(t *testing.T) {
	d := newDriver(t, fakeSolver{sol: nonTrivialSolution()}, true)
	err := d.RunBatch(context.Background(), 1, time.Second)
	assert.NoError(t, err)
}

func TestRunBatchSkipsWhenSolutionNeverMines(t *testing.T) {
	d := newDriver(t, fakeSolver{sol: nonTrivialSolution()}, false)
	err := d.RunBatch(context.Background(), 1, 50*time.Millisecond)
	require.Error(t, err)
	assert.True(t, dexerr.IsSkip(err))
}

func TestRunBatchSkipsOnTrivialSolution(t *testing.T) {
	d := newDriver(t, fakeSolver{sol: &dextypes.Solution{}}, false)
	err := d.RunBatch(context.Background(), 1, time.Second)
	require.Error(t, err)
	assert.True(t, dexerr.IsSkip(err))
}

func TestRunBatchSkipsOnSolverTimeoutWithNoSolution(t *testing.T) {
	d := newDriver(t, fakeSolver{err: solver.ErrTimeoutNoSolution}, false)
	err := d.RunBatch(context.Background(), 1, time.Second)
	require.Error(t, err)
	assert.True(t, dexerr.IsSkip(err))
}

func TestRunBatchRetriesOnSolverFailure(t *testing.T) {
	d := newDriver(t, fakeSolver{err: errors.New("solver crashed")}, false)
	err := d.RunBatch(context.Background(), 1, time.Second)
	require.Error(t, err)
	assert.True(t, dexerr.IsRetry(err))
}

func TestRunBatchSkipsWhenNoTimeRemains(t *testing.T) {
	d := newDriver(t, fakeSolver{sol: nonTrivialSolution()}, true)
	err := d.RunBatch(context.Background(), 1, 0)
	require.Error(t, err)
	assert.True(t, dexerr.IsSkip(err))
}

func TestRunBatchRecordsSubmittedOutcomeWhenMined(t *testing.T) {
	d := newDriver(t, fakeSolver{sol: nonTrivialSolution()}, true)
	h := &fakeHistory{}
	d.History = h

	err := d.RunBatch(context.Background(), 1, time.Second)
	require.NoError(t, err)
	require.Len(t, h.calls, 1)
	assert.Equal(t, db.OutcomeSubmitted, h.calls[0])
}

func TestRunBatchRecordsSkippedOutcomeOnTrivialSolution(t *testing.T) {
	d := newDriver(t, fakeSolver{sol: &dextypes.Solution{}}, false)
	h := &fakeHistory{}
	d.History = h

	err := d.RunBatch(context.Background(), 1, time.Second)
	require.Error(t, err)
	require.Len(t, h.calls, 1)
	assert.Equal(t, db.OutcomeSkipped, h.calls[0])
}

func TestRunBatchRecordsCancelledOutcomeWhenNeverMined(t *testing.T) {
	d := newDriver(t, fakeSolver{sol: nonTrivialSolution()}, false)
	h := &fakeHistory{}
	d.History = h

	err := d.RunBatch(context.Background(), 1, 50*time.Millisecond)
	require.Error(t, err)
	require.Len(t, h.calls, 1)
	assert.Equal(t, db.OutcomeCancelled, h.calls[0])
}

func TestTokensInOrdersAlwaysIncludesReferenceToken(t *testing.T) {
	acct := common.HexToAddress("0x3333333333333333333333333333333333333333")
	orders := []*dextypes.Order{{Account: acct, SellToken: 5, BuyToken: 0, Remaining: big.NewInt(1)}}
	toks := tokensInOrders(orders)
	assert.Contains(t, toks, dextypes.ReferenceToken)
	assert.Contains(t, toks, dextypes.TokenId(5))
}
