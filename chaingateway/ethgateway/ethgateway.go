// Package ethgateway implements chaingateway.ChainGateway against a
// go-ethereum node: a thin gateway type layered over
// pkg/contractclient.ContractClient. The exchange contract's exact
// ABI is out of scope for this driver (only the capability set it exposes
// is specified); the ABI embedded in abi.go and the method names this
// file calls (currentBatchId, getSecondsRemainingInBatch, submitSolution)
// are this implementation's own naming convention, not an assertion about
// any real deployed contract.
package ethgateway

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/ChoSanghyuk/dexdriver/chaingateway"
	"github.com/ChoSanghyuk/dexdriver/dextypes"
	"github.com/ChoSanghyuk/dexdriver/eventregistry"
	"github.com/ChoSanghyuk/dexdriver/pkg/contractclient"
	"github.com/ChoSanghyuk/dexdriver/pkg/txlistener"
	"github.com/ChoSanghyuk/dexdriver/pkg/types"
)

// ConfirmationDepth is how many blocks behind the chain head a block
// must be before its timestamp is cached without expiry.
const ConfirmationDepth = 25

// Gateway implements chaingateway.ChainGateway on top of a contract
// client and a tx listener, keeping "talk to the contract" and "wait
// for my own transaction" as separate collaborators.
type Gateway struct {
	client     *ethclient.Client
	contract   contractclient.ContractClient
	listener   txlistener.TxListener
	privateKey *ecdsa.PrivateKey
	from       common.Address
	txType     types.TxType

	eventIDs map[common.Hash]dextypes.EventKind
	tsCache  *eventregistry.TimestampCache

	nonceMu     sync.Mutex
	pinnedBatch dextypes.BatchId
	pinnedNonce *uint64
}

// New wires a Gateway against an already-connected client, a contract at
// address using the embedded exchangeABI, and the key solutions are
// signed with.
func New(client *ethclient.Client, address common.Address, privateKey *ecdsa.PrivateKey, txType types.TxType) (*Gateway, error) {
	parsed, err := abi.JSON(strings.NewReader(exchangeABI))
	if err != nil {
		return nil, fmt.Errorf("ethgateway: parse embedded abi: %w", err)
	}

	cc := contractclient.NewContractClient(client, address, parsed)

	return &Gateway{
		client:     client,
		contract:   cc,
		listener:   txlistener.NewTxListener(client),
		privateKey: privateKey,
		from:       crypto.PubkeyToAddress(privateKey.PublicKey),
		txType:     txType,
		eventIDs:   eventKindsByID(parsed),
		tsCache:    eventregistry.NewTimestampCache(ConfirmationDepth),
	}, nil
}

// nonceForBatch returns the nonce every submission for batch must use.
// The first call for a given batch pins a fresh pending nonce; every
// later call for that same batch, including a SubmitNoop cancelling it,
// reuses the pinned value so they all compete for the same mempool slot
// instead of each claiming a slot of its own.
func (g *Gateway) nonceForBatch(ctx context.Context, batch dextypes.BatchId) (uint64, error) {
	g.nonceMu.Lock()
	defer g.nonceMu.Unlock()

	if g.pinnedNonce != nil && g.pinnedBatch == batch {
		return *g.pinnedNonce, nil
	}

	n, err := g.client.PendingNonceAt(ctx, g.from)
	if err != nil {
		return 0, fmt.Errorf("ethgateway: pending nonce: %w", err)
	}
	g.pinnedBatch = batch
	g.pinnedNonce = &n
	return n, nil
}

// pinnedNonceOrFetch returns the nonce currently pinned by the most
// recent SubmitSolution call, if any, since SubmitNoop has no batch of
// its own to key by. With nothing pinned yet there is no pending
// submission to cancel at a shared slot, so it falls back to a fresh
// pending nonce.
func (g *Gateway) pinnedNonceOrFetch(ctx context.Context) (uint64, error) {
	g.nonceMu.Lock()
	pinned := g.pinnedNonce
	g.nonceMu.Unlock()
	if pinned != nil {
		return *pinned, nil
	}

	n, err := g.client.PendingNonceAt(ctx, g.from)
	if err != nil {
		return 0, fmt.Errorf("ethgateway: pending nonce: %w", err)
	}
	return n, nil
}

func eventKindsByID(parsed abi.ABI) map[common.Hash]dextypes.EventKind {
	names := map[string]dextypes.EventKind{
		"TokenListing":       dextypes.EventTokenListing,
		"Deposit":            dextypes.EventDeposit,
		"WithdrawRequest":    dextypes.EventWithdrawRequest,
		"Withdraw":           dextypes.EventWithdraw,
		"OrderPlacement":     dextypes.EventOrderPlacement,
		"OrderCancellation":  dextypes.EventOrderCancellation,
		"Trade":              dextypes.EventTrade,
		"TradeReversion":     dextypes.EventTradeReversion,
		"SolutionSubmission": dextypes.EventSolutionSubmission,
	}
	out := make(map[common.Hash]dextypes.EventKind, len(names))
	for name, kind := range names {
		if ev, ok := parsed.Events[name]; ok {
			out[ev.ID] = kind
		}
	}
	return out
}

func (g *Gateway) CurrentBatch(ctx context.Context) (dextypes.BatchId, error) {
	out, err := g.contract.Call(nil, "currentBatchId")
	if err != nil {
		return 0, fmt.Errorf("ethgateway: current batch: %w", err)
	}
	if len(out) == 0 {
		return 0, fmt.Errorf("ethgateway: current batch: empty result")
	}
	id, ok := out[0].(uint32)
	if !ok {
		return 0, fmt.Errorf("ethgateway: current batch: unexpected return type %T", out[0])
	}
	return dextypes.BatchId(id), nil
}

func (g *Gateway) CurrentBatchRemainingTime(ctx context.Context) (time.Duration, error) {
	out, err := g.contract.Call(nil, "getSecondsRemainingInBatch")
	if err != nil {
		return 0, fmt.Errorf("ethgateway: remaining time: %w", err)
	}
	if len(out) == 0 {
		return 0, fmt.Errorf("ethgateway: remaining time: empty result")
	}
	secs, ok := out[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("ethgateway: remaining time: unexpected return type %T", out[0])
	}
	return time.Duration(secs.Int64()) * time.Second, nil
}

func (g *Gateway) LatestBlock(ctx context.Context) (uint64, error) {
	n, err := g.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("ethgateway: latest block: %w", err)
	}
	return n, nil
}

// EstimateGasPrice satisfies driver.GasPriceOracle, reading the node's
// own suggested gas price.
func (g *Gateway) EstimateGasPrice(ctx context.Context) (*big.Int, error) {
	price, err := g.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("ethgateway: suggest gas price: %w", err)
	}
	return price, nil
}

// Estimate satisfies submitter.GasPriceEstimator, the float64-denominated
// twin of EstimateGasPrice that the gas-price stream polls on its own
// ticking cadence.
func (g *Gateway) Estimate(ctx context.Context) (float64, error) {
	price, err := g.EstimateGasPrice(ctx)
	if err != nil {
		return 0, err
	}
	f := new(big.Float).SetInt(price)
	out, _ := f.Float64()
	return out, nil
}

// PastEvents filters logs from the contract in [fromBlock, toBlock],
// walking pageSize blocks at a time so a single request never spans a
// window a node's log-filter limit would reject, and resolves each
// surviving log's block timestamp to fold it into a batch id.
func (g *Gateway) PastEvents(ctx context.Context, fromBlock, toBlock uint64, pageSize int) ([]dextypes.LoggedEvent, error) {
	if pageSize <= 0 {
		pageSize = 2000
	}

	address := g.contract.ContractAddress()

	head, err := g.client.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("ethgateway: chain head for timestamp cache: %w", err)
	}
	g.tsCache.Refresh()

	var out []dextypes.LoggedEvent
	for start := fromBlock; start <= toBlock; start += uint64(pageSize) {
		end := start + uint64(pageSize) - 1
		if end > toBlock {
			end = toBlock
		}

		logs, err := g.client.FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(start),
			ToBlock:   new(big.Int).SetUint64(end),
			Addresses: []common.Address{address},
		})
		if err != nil {
			return nil, fmt.Errorf("ethgateway: filter logs [%d,%d]: %w", start, end, err)
		}

		for _, l := range logs {
			if len(l.Topics) == 0 {
				continue
			}
			kind, known := g.eventIDs[l.Topics[0]]
			if !known {
				continue
			}

			unixTS, ok := g.tsCache.Get(l.BlockHash)
			if !ok {
				header, err := g.client.HeaderByNumber(ctx, new(big.Int).SetUint64(l.BlockNumber))
				if err != nil {
					return nil, fmt.Errorf("ethgateway: header for block %d: %w", l.BlockNumber, err)
				}
				unixTS = int64(header.Time)
				g.tsCache.Put(l.BlockHash, l.BlockNumber, head, unixTS)
			}
			ts := time.Unix(unixTS, 0).UTC()

			event, err := decodeEvent(g.contract.Abi(), kind, l)
			if err != nil {
				return nil, fmt.Errorf("ethgateway: decode log at block %d index %d: %w", l.BlockNumber, l.Index, err)
			}

			out = append(out, dextypes.LoggedEvent{
				Key: dextypes.EventKey{
					BlockNumber: l.BlockNumber,
					BlockHash:   l.BlockHash,
					LogIndex:    l.Index,
				},
				BatchID: dextypes.BatchIdFromTimestamp(ts),
				Event:   event,
			})
		}
	}

	return out, nil
}

func (g *Gateway) SubmitSolution(ctx context.Context, batch dextypes.BatchId, solution *dextypes.Solution, claimedObjective dextypes.Objective, gasPrice *big.Int) (chaingateway.SubmitResult, error) {
	owners, orderIDs, volumes, tokenIDsForPrice, prices := encodeSolution(solution)

	nonce, err := g.nonceForBatch(ctx, batch)
	if err != nil {
		return chaingateway.SubmitResult{}, err
	}

	var gasLimit *uint64
	hash, err := g.contract.Send(g.txType, gasLimit, &nonce, nil, g.privateKey, "submitSolution",
		uint32(batch), claimedObjective, owners, orderIDs, volumes, prices, tokenIDsForPrice)
	if err != nil {
		return chaingateway.SubmitResult{}, fmt.Errorf("ethgateway: submit solution for batch %d: %w", batch, err)
	}

	return g.awaitReceipt(ctx, hash)
}

// SubmitNoop resends at the same nonce as the most recent SubmitSolution
// call with a higher gas price, the standard way to invalidate a
// transaction that's still sitting in the node's mempool once a better
// solution is found or the submission window closes. The transaction is a
// submitSolution call for batch 0 with a zero objective and empty order
// and price arrays; it is not a plain transfer without calldata.
func (g *Gateway) SubmitNoop(ctx context.Context, gasPrice *big.Int) (chaingateway.SubmitResult, error) {
	empty := &dextypes.Solution{}
	owners, orderIDs, volumes, tokenIDsForPrice, prices := encodeSolution(empty)

	nonce, err := g.pinnedNonceOrFetch(ctx)
	if err != nil {
		return chaingateway.SubmitResult{}, err
	}

	var gasLimit *uint64
	hash, err := g.contract.Send(g.txType, gasLimit, &nonce, nil, g.privateKey, "submitSolution",
		uint32(0), big.NewInt(0), owners, orderIDs, volumes, prices, tokenIDsForPrice)
	if err != nil {
		return chaingateway.SubmitResult{}, fmt.Errorf("ethgateway: submit noop: %w", err)
	}

	return g.awaitReceipt(ctx, hash)
}

func (g *Gateway) awaitReceipt(ctx context.Context, hash common.Hash) (chaingateway.SubmitResult, error) {
	receipt, err := g.listener.WaitForTransaction(hash)
	if err != nil {
		return chaingateway.SubmitResult{TxHash: hash, WasMined: false}, err
	}

	return chaingateway.SubmitResult{
		TxHash:   hash,
		WasMined: true,
		GasUsed:  hexToUint64(receipt.GasUsed),
		GasPrice: hexToBigInt(receipt.EffectiveGasPrice),
	}, nil
}

func hexToUint64(s string) uint64 {
	v := hexToBigInt(s)
	if v == nil {
		return 0
	}
	return v.Uint64()
}

func hexToBigInt(s string) *big.Int {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return big.NewInt(0)
	}
	v, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return big.NewInt(0)
	}
	return v
}

// encodeSolution flattens a Solution into the parallel arrays
// submitSolution takes: one entry per executed order for
// owners/orderIds/volumes, plus the clearing price vector addressed by
// token id.
func encodeSolution(solution *dextypes.Solution) (owners []common.Address, orderIDs []uint16, volumes []*big.Int, tokenIDsForPrice []uint16, prices []*big.Int) {
	for _, eo := range solution.ExecutedOrders {
		owners = append(owners, eo.Account)
		orderIDs = append(orderIDs, eo.OrderID)
		volumes = append(volumes, eo.SellAmount)
	}

	for token, price := range solution.Prices {
		tokenIDsForPrice = append(tokenIDsForPrice, uint16(token))
		prices = append(prices, price)
	}

	return owners, orderIDs, volumes, tokenIDsForPrice, prices
}
