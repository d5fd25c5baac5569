package submitter

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChoSanghyuk/dexdriver/chaingateway"
	"github.com/ChoSanghyuk/dexdriver/dexerr"
	"github.com/ChoSanghyuk/dexdriver/dextypes"
)

// fakeGateway implements enough of chaingateway.ChainGateway for the
// submitter's own use (SubmitSolution/SubmitNoop); every other method
// panics if exercised, since the submitter never calls them.
type fakeGateway struct {
	chaingateway.ChainGateway

	mu             sync.Mutex
	minedAtOrAbove *big.Int // if set, any submission whose gas price >= this is "mined"
	noopMined      bool
	submissions    []*big.Int
	noops          int
}

func (f *fakeGateway) SubmitSolution(_ context.Context, _ dextypes.BatchId, _ *dextypes.Solution, _ dextypes.Objective, gasPrice *big.Int) (chaingateway.SubmitResult, error) {
	f.mu.Lock()
	f.submissions = append(f.submissions, gasPrice)
	f.mu.Unlock()

	mined := f.minedAtOrAbove != nil && gasPrice.Cmp(f.minedAtOrAbove) >= 0
	return chaingateway.SubmitResult{TxHash: common.Hash{}, WasMined: mined, GasPrice: gasPrice}, nil
}

func (f *fakeGateway) SubmitNoop(_ context.Context, gasPrice *big.Int) (chaingateway.SubmitResult, error) {
	f.mu.Lock()
	f.noops++
	f.mu.Unlock()
	return chaingateway.SubmitResult{WasMined: f.noopMined, GasPrice: gasPrice}, nil
}

// sliceStream replays a fixed sequence of prices, one per Next call, then
// blocks until ctx is cancelled.
type sliceStream struct {
	prices []float64
	idx    int32
}

func (s *sliceStream) Next(ctx context.Context) (float64, bool) {
	i := int(atomic.AddInt32(&s.idx, 1)) - 1
	if i >= len(s.prices) {
		<-ctx.Done()
		return 0, false
	}
	return s.prices[i], true
}

func TestSubmitCompletesOnFirstMined(t *testing.T) {
	gw := &fakeGateway{minedAtOrAbove: big.NewInt(20)}
	stream := &sliceStream{prices: []float64{10, 20, 30}}

	outcome, err := Submit(context.Background(), gw, 1, &dextypes.Solution{}, big.NewInt(1), stream, 1000, time.Hour)
	require.NoError(t, err)
	assert.True(t, outcome.WasMined)
}

func TestSubmitReturnsLastWhenNoneMined(t *testing.T) {
	gw := &fakeGateway{} // nothing ever mines
	stream := &sliceStream{prices: []float64{10, 20}}

	outcome, err := Submit(context.Background(), gw, 1, &dextypes.Solution{}, big.NewInt(1), stream, 1000, 200*time.Millisecond)
	assert.False(t, outcome.WasMined)
	_ = err // last result may carry a nil error (simply not mined), which is not itself a failure
}

func TestSubmitRespectsGasPriceCap(t *testing.T) {
	gw := &fakeGateway{}
	stream := &sliceStream{prices: []float64{10, 10000}}

	_, _ = Submit(context.Background(), gw, 1, &dextypes.Solution{}, big.NewInt(1), stream, 50, 200*time.Millisecond)

	gw.mu.Lock()
	defer gw.mu.Unlock()
	for _, p := range gw.submissions {
		assert.LessOrEqual(t, p.Int64(), int64(50))
	}
}

func TestSubmitEnforcesMinimumIncrease(t *testing.T) {
	gw := &fakeGateway{}
	stream := &sliceStream{prices: []float64{10, 11}} // second price is not a 12.5% bump over the first

	_, _ = Submit(context.Background(), gw, 1, &dextypes.Solution{}, big.NewInt(1), stream, 1000, 200*time.Millisecond)

	gw.mu.Lock()
	defer gw.mu.Unlock()
	require.GreaterOrEqual(t, len(gw.submissions), 2)
	assert.GreaterOrEqual(t, float64(gw.submissions[1].Int64()), float64(gw.submissions[0].Int64())*MinIncreaseFactor-1)
}

func TestSubmitNoopFiresAfterDeadlineOnceSomethingWasSubmitted(t *testing.T) {
	gw := &fakeGateway{}
	stream := &sliceStream{prices: []float64{10}}

	_, _ = Submit(context.Background(), gw, 1, &dextypes.Solution{}, big.NewInt(1), stream, 1000, 50*time.Millisecond)

	gw.mu.Lock()
	defer gw.mu.Unlock()
	assert.GreaterOrEqual(t, len(gw.submissions), 1)
	assert.Equal(t, 1, gw.noops)
}

func TestClassifySubmitErrorSkipsKnownContractRejections(t *testing.T) {
	err := classifySubmitError(errors.New("execution reverted: objective not beaten"))
	assert.True(t, dexerr.IsSkip(err))
}

func TestClassifySubmitErrorRetriesUnknownErrors(t *testing.T) {
	err := classifySubmitError(errors.New("connection reset by peer"))
	assert.True(t, dexerr.IsRetry(err))
}

func TestApplyGasPriceInvariantsCapsAndBumps(t *testing.T) {
	v := applyGasPriceInvariants(5, 100, 1000, true) // candidate below min bump
	assert.Equal(t, float64(113), v)                 // ceil(100*1.125) = 113

	v = applyGasPriceInvariants(9999, 0, 50, false)
	assert.Equal(t, float64(50), v) // capped
}
