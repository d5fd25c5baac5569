// Package eventregistry holds the reorg-safe, on-disk-snapshotted log of
// exchange contract events and the pure replay logic that folds it into
// account balances and orders at any batch. It is the single-writer store
// the driver's own goroutine owns, grounded on the pattern of a
// single mutated struct (Blackhole) driven from one goroutine in cmd/main.go.
package eventregistry

import (
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ChoSanghyuk/dexdriver/dextypes"
)

type entry struct {
	key     dextypes.EventKey
	batchID dextypes.BatchId
	event   dextypes.Event
}

// Registry is the ordered, deduplicated event log the rest of the driver
// reconstructs auction state from. Zero value is not usable; construct
// with New.
type Registry struct {
	mu sync.RWMutex

	// entries is kept sorted by EventKey; appends are rare enough (one RPC
	// page at a time) that an insertion sort against a sorted slice beats
	// the overhead of a tree for the sizes this process sees in practice.
	entries []entry
	index   map[dextypes.EventKey]int // key -> position in entries, for idempotent append

	lastHandled uint64
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		index: make(map[dextypes.EventKey]int),
	}
}

// Append inserts ev at the given key, deriving batch id from blockTimestamp.
// Re-appending an identical key is a no-op, matching spec's idempotence
// requirement for replay safety.
func (r *Registry) Append(key dextypes.EventKey, blockTimestampUnix int64, ev dextypes.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.index[key]; ok {
		return
	}

	bid := blockTimestampToBatch(blockTimestampUnix)

	e := entry{key: key, batchID: bid, event: ev}

	i := sort.Search(len(r.entries), func(i int) bool { return key.Less(r.entries[i].key) })
	r.entries = append(r.entries, entry{})
	copy(r.entries[i+1:], r.entries[i:])
	r.entries[i] = e
	r.reindexFrom(i)

	if key.BlockNumber > r.lastHandled {
		r.lastHandled = key.BlockNumber
	}
}

func blockTimestampToBatch(unixSec int64) dextypes.BatchId {
	secs := unixSec - dextypes.Epoch.Unix()
	if secs < 0 {
		return 0
	}
	return dextypes.BatchId(secs / dextypes.BatchEpochSeconds)
}

func (r *Registry) reindexFrom(i int) {
	for ; i < len(r.entries); i++ {
		r.index[r.entries[i].key] = i
	}
}

// DeleteFromBlock removes every entry with BlockNumber >= n, per the reorg
// protocol's first step: truncate before replaying the refetched range.
func (r *Registry) DeleteFromBlock(n uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cut := sort.Search(len(r.entries), func(i int) bool { return r.entries[i].key.BlockNumber >= n })
	removed := r.entries[cut:]
	r.entries = r.entries[:cut]
	for _, e := range removed {
		delete(r.index, e.key)
	}
	if n > 0 {
		r.lastHandled = n - 1
	} else {
		r.lastHandled = 0
	}
}

// LastHandled returns the last block the registry counts as caught up to:
// raised by Append and SetLastHandled, reset to n-1 by DeleteFromBlock(n).
func (r *Registry) LastHandled() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastHandled
}

// SetLastHandled advances last_handled to head, the final step of the
// reorg update protocol: the refreshed range is recorded as caught-up
// even if it produced no new events to Append.
func (r *Registry) SetLastHandled(head uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if head > r.lastHandled {
		r.lastHandled = head
	}
}

// EventsForBatch returns the entries with batchID <= b, in key order.
func (r *Registry) EventsForBatch(b dextypes.BatchId) []dextypes.LoggedEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]dextypes.LoggedEvent, 0, len(r.entries))
	for _, e := range r.entries {
		if e.batchID > b {
			continue
		}
		out = append(out, dextypes.LoggedEvent{Key: e.key, BatchID: e.batchID, Event: e.event})
	}
	return out
}

// AuctionStateForBatch folds events_for_batch(b+1) through the contract
// semantics (the solver consumes orders valid at the batch it solves) and
// returns the resulting orders and account balances. Balances are those
// effective at batch b: a deposit counts once b reaches its credit batch,
// a withdrawal request once b reaches its earliest batch. The orders are
// every order placed in the folded range, with cancellations and trades
// applied; orders that are not active at b are not removed from the result
// (ActiveOrders filters them).
func (r *Registry) AuctionStateForBatch(b dextypes.BatchId) (*dextypes.AccountState, []*dextypes.Order) {
	events := r.EventsForBatch(b + 1)
	return fold(events, b)
}

type pendingDeposit struct {
	token       dextypes.TokenId
	amount      *big.Int
	creditBatch dextypes.BatchId
}

type pendingWithdrawal struct {
	token         dextypes.TokenId
	amount        *big.Int
	earliestBatch dextypes.BatchId
}

func fold(events []dextypes.LoggedEvent, uptoBatch dextypes.BatchId) (*dextypes.AccountState, []*dextypes.Order) {
	state := dextypes.NewAccountState()
	orders := make(map[orderKey]*dextypes.Order)
	order := make([]orderKey, 0)

	deposits := make(map[acctToken][]pendingDeposit)
	withdrawals := make(map[acctToken][]pendingWithdrawal)
	tokens := make(map[dextypes.TokenId]common.Address)

	for _, le := range events {
		ev := le.Event
		switch ev.Kind {
		case dextypes.EventTokenListing:
			tokens[ev.Token] = ev.TokenAddr

		case dextypes.EventDeposit:
			at := acctToken{ev.User, ev.Token}
			deposits[at] = append(deposits[at], pendingDeposit{token: ev.Token, amount: ev.Amount, creditBatch: ev.CreditBatch})

		case dextypes.EventWithdrawRequest:
			at := acctToken{ev.User, ev.Token}
			withdrawals[at] = append(withdrawals[at], pendingWithdrawal{token: ev.Token, amount: ev.Amount, earliestBatch: ev.EarliestBatch})

		case dextypes.EventWithdraw:
			// Explicit withdraw completion: already accounted for when the
			// request matured below; nothing further to apply here.

		case dextypes.EventOrderPlacement:
			k := orderKey{ev.User, ev.OrderID}
			o := &dextypes.Order{
				ID:          ev.OrderID,
				Account:     ev.User,
				BuyToken:    ev.BuyToken,
				SellToken:   ev.SellToken,
				Numerator:   cloneBig(ev.Numerator),
				Denominator: cloneBig(ev.Denominator),
				Remaining:   cloneBig(ev.Denominator),
				ValidFrom:   ev.ValidFrom,
				ValidUntil:  ev.ValidUntil,
			}
			orders[k] = o
			order = append(order, k)

		case dextypes.EventOrderCancellation:
			k := orderKey{ev.User, ev.OrderID}
			if o, ok := orders[k]; ok && le.BatchID-1 < o.ValidUntil {
				o.ValidUntil = le.BatchID - 1
			}

		case dextypes.EventTrade:
			k := orderKey{ev.User, ev.OrderID}
			if o, ok := orders[k]; ok {
				o.Remaining = subNonNeg(o.Remaining, ev.ExecutedSell)
			}
			state.SubSaturating(ev.User, ev.SellToken, ev.ExecutedSell)
			state.Add(ev.User, ev.BuyToken, ev.ExecutedBuy)

		case dextypes.EventTradeReversion:
			k := orderKey{ev.User, ev.OrderID}
			if o, ok := orders[k]; ok {
				o.Remaining = addBig(o.Remaining, ev.ExecutedSell)
			}
			state.SubSaturating(ev.User, ev.BuyToken, ev.ExecutedBuy)
			state.Add(ev.User, ev.SellToken, ev.ExecutedSell)

		case dextypes.EventSolutionSubmission:
			// Settlement metadata only; balances are moved by Trade events.
		}

		// Mature any deposits/withdrawals whose effective batch has arrived
		// by this event's batch id (capped at uptoBatch), in FIFO order,
		// then drop them.
		matureAt := le.BatchID
		if matureAt > uptoBatch {
			matureAt = uptoBatch
		}
		maturePending(state, deposits, withdrawals, matureAt)
	}

	// Final pass at the requested horizon in case the last event's batch id
	// was behind uptoBatch (no events landed in the tail batches).
	maturePending(state, deposits, withdrawals, uptoBatch)

	out := make([]*dextypes.Order, 0, len(order))
	for _, k := range order {
		out = append(out, orders[k])
	}
	return state, out
}

type acctToken struct {
	account common.Address
	token   dextypes.TokenId
}

type orderKey struct {
	account common.Address
	orderID uint16
}

func maturePending(state *dextypes.AccountState, deposits map[acctToken][]pendingDeposit, withdrawals map[acctToken][]pendingWithdrawal, b dextypes.BatchId) {
	for at, ds := range deposits {
		rem := ds[:0]
		for _, d := range ds {
			if b >= d.creditBatch {
				state.Add(at.account, at.token, d.amount)
				continue
			}
			rem = append(rem, d)
		}
		if len(rem) == 0 {
			delete(deposits, at)
		} else {
			deposits[at] = rem
		}
	}
	for at, ws := range withdrawals {
		rem := ws[:0]
		for _, w := range ws {
			if b >= w.earliestBatch {
				state.SubSaturating(at.account, at.token, w.amount)
				continue
			}
			rem = append(rem, w)
		}
		if len(rem) == 0 {
			delete(withdrawals, at)
		} else {
			withdrawals[at] = rem
		}
	}
}

// ActiveOrders filters orders to those active at batch b.
func ActiveOrders(orders []*dextypes.Order, b dextypes.BatchId) []*dextypes.Order {
	out := make([]*dextypes.Order, 0, len(orders))
	for _, o := range orders {
		if o.ActiveInBatch(b) {
			out = append(out, o)
		}
	}
	return out
}

// logWarn is a small indirection so tests can assert on logged messages
// without capturing the global logger's output stream directly.
var logWarn = func(msg string, ctx ...interface{}) { log.Warn(msg, ctx...) }

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// subNonNeg returns max(0, a-b), mirroring AccountState's saturating
// subtraction so a Trade can never drive remaining_sell negative even if
// replay observes events slightly out of the expected order.
func subNonNeg(a, b *big.Int) *big.Int {
	if a == nil {
		a = big.NewInt(0)
	}
	if b == nil {
		return cloneBig(a)
	}
	r := new(big.Int).Sub(a, b)
	if r.Sign() < 0 {
		return big.NewInt(0)
	}
	return r
}

func addBig(a, b *big.Int) *big.Int {
	if a == nil {
		a = big.NewInt(0)
	}
	if b == nil {
		return cloneBig(a)
	}
	return new(big.Int).Add(a, b)
}
