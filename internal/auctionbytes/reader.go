package auctionbytes

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ChoSanghyuk/dexdriver/dextypes"
)

// Pagination carries the cursor the contract's paginated read expects on
// the next call: the last account seen and how many of its orders have
// already been returned.
type Pagination struct {
	PreviousPageUser       common.Address
	PreviousPageUserOffset uint64
}

// Reader accumulates pages from the legacy paginated order-retrieval path
// into an AccountState and an ordered list of active orders, the same
// role BatchedAuctionDataReader plays for the pagination loop.
type Reader struct {
	batch      dextypes.BatchId
	state      *dextypes.AccountState
	orders     []*dextypes.Order
	Pagination Pagination

	// decodedCounts is the total number of orders decoded per user across
	// every page so far, regardless of whether they passed the
	// active/remaining filter below. The contract's pagination cursor
	// indexes into a user's full order list, not the filtered subset, so
	// the offset handed back to it must come from this count.
	decodedCounts map[common.Address]uint64
}

// NewReader returns a reader that keeps only orders active at batch b.
func NewReader(b dextypes.BatchId) *Reader {
	return &Reader{
		batch:         b,
		state:         dextypes.NewAccountState(),
		decodedCounts: make(map[common.Address]uint64),
	}
}

// State returns the account balances accumulated so far.
func (r *Reader) State() *dextypes.AccountState { return r.state }

// Orders returns the active orders accumulated so far, in arrival order.
func (r *Reader) Orders() []*dextypes.Order { return r.orders }

// ApplyPage decodes one page and folds it into the reader's state,
// keeping only orders active at the reader's batch with a nonzero
// remaining-sell amount. It returns the number of orders the page added.
func (r *Reader) ApplyPage(page []byte) (int, error) {
	elements, err := DecodePage(page)
	if err != nil {
		return 0, err
	}

	added := 0
	var lastUser common.Address
	for _, el := range elements {
		// The contract reports the account's absolute balance, not a
		// delta, so replace whatever this reader has tracked so far.
		current := r.state.Balance(el.Order.Account, el.Order.SellToken)
		delta := new(big.Int).Sub(el.SellTokenBalance, current)
		r.state.Add(el.Order.Account, el.Order.SellToken, delta)

		lastUser = el.Order.Account
		r.decodedCounts[lastUser]++

		if !el.Order.ActiveInBatch(r.batch) || el.Order.Remaining == nil || el.Order.Remaining.Sign() <= 0 {
			continue
		}
		r.orders = append(r.orders, el.Order)
		added++
	}

	if len(elements) > 0 {
		r.Pagination.PreviousPageUser = lastUser
		r.Pagination.PreviousPageUserOffset = r.decodedCounts[lastUser]
	}
	return added, nil
}
