// Package chaingateway defines the capability the core consumes to read
// and write exchange contract state. All RPC and ABI concerns live behind
// this interface; see ethgateway for the concrete go-ethereum-backed
// implementation, split the same way a contract-interaction struct is
// kept separate from its underlying contractclient.ContractClient.
package chaingateway

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ChoSanghyuk/dexdriver/dextypes"
)

// SubmitResult reports the outcome of a mined (or not-mined) transaction.
type SubmitResult struct {
	TxHash   common.Hash
	WasMined bool
	GasUsed  uint64
	GasPrice *big.Int
}

// ChainGateway is the capability set the scheduler/driver/submitter
// consume. Implementations own all RPC and ABI details.
type ChainGateway interface {
	// CurrentBatch returns the batch currently accepting orders; the batch
	// being solved is CurrentBatch()-1.
	CurrentBatch(ctx context.Context) (dextypes.BatchId, error)

	// CurrentBatchRemainingTime is the time left before the current batch
	// closes.
	CurrentBatchRemainingTime(ctx context.Context) (time.Duration, error)

	// LatestBlock returns the chain head height.
	LatestBlock(ctx context.Context) (uint64, error)

	// PastEvents streams decoded events in [fromBlock, toBlock], paginated
	// by pageSize, strictly increasing by EventKey.
	PastEvents(ctx context.Context, fromBlock, toBlock uint64, pageSize int) ([]dextypes.LoggedEvent, error)

	// SubmitSolution mines a settlement transaction. The contract accepts
	// it only if claimedObjective strictly beats the best previously
	// submitted objective for batch.
	SubmitSolution(ctx context.Context, batch dextypes.BatchId, solution *dextypes.Solution, claimedObjective dextypes.Objective, gasPrice *big.Int) (SubmitResult, error)

	// SubmitNoop sends a self-paying transaction at the same nonce as the
	// most recent SubmitSolution call, to cancel a pending submission.
	SubmitNoop(ctx context.Context, gasPrice *big.Int) (SubmitResult, error)
}
