package dextypes

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// EventKey orders log entries (block_number, block_hash, log_index), per
// spec: two events sharing block_number but differing block_hash belong to
// sibling histories and must never interleave for the same batch.
type EventKey struct {
	BlockNumber uint64
	BlockHash   common.Hash
	LogIndex    uint
}

// Less orders keys lexicographically by (BlockNumber, BlockHash, LogIndex).
func (k EventKey) Less(o EventKey) bool {
	if k.BlockNumber != o.BlockNumber {
		return k.BlockNumber < o.BlockNumber
	}
	if k.BlockHash != o.BlockHash {
		return k.BlockHash.Hex() < o.BlockHash.Hex()
	}
	return k.LogIndex < o.LogIndex
}

// EventKind tags the decoded contract event a log entry represents.
type EventKind int

const (
	EventTokenListing EventKind = iota
	EventDeposit
	EventWithdrawRequest
	EventWithdraw
	EventOrderPlacement
	EventOrderCancellation
	EventTrade
	EventTradeReversion
	EventSolutionSubmission
)

// Event is a decoded contract event, agnostic to ABI/log-topic details —
// the gateway is responsible for turning a raw log into one of these.
type Event struct {
	Kind EventKind

	// TokenListing
	Token     TokenId
	TokenAddr common.Address

	// Deposit / WithdrawRequest / Withdraw / Trade balance fields
	User         common.Address
	Amount       *big.Int
	CreditBatch  BatchId // Deposit: batch the deposit becomes spendable
	EarliestBatch BatchId // WithdrawRequest: batch the withdrawal may execute

	// OrderPlacement / OrderCancellation / Trade
	OrderID     uint16
	BuyToken    TokenId
	SellToken   TokenId
	ValidFrom   BatchId
	ValidUntil  BatchId
	Numerator   *big.Int
	Denominator *big.Int

	// Trade / TradeReversion
	ExecutedSell *big.Int
	ExecutedBuy  *big.Int

	// SolutionSubmission
	Submitter common.Address
	Utility   *big.Int
	Fee       *big.Int
}

// LoggedEvent pairs a decoded Event with the EventKey it was observed at
// and the batch id derived from its block's timestamp.
type LoggedEvent struct {
	Key     EventKey
	BatchID BatchId
	Event   Event
}
