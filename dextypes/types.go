// Package dextypes holds the data model shared by every component of the
// driver: batch/token identifiers, orders, account balances and the
// solver's solution shape. Types that cross a process boundary (the
// solver's instance.json, the on-disk snapshot) carry json tags the same
// way a root-level types.go might tag its ABI-facing structs.
package dextypes

import (
	"bytes"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// BatchEpochSeconds is the length of a batch window.
const BatchEpochSeconds = 300

// BatchId indexes a 300-second window since Epoch.
type BatchId uint64

// Epoch is the fixed reference point BatchId is measured from.
var Epoch = time.Unix(0, 0).UTC()

// BatchIdFromTimestamp converts a wall-clock time into the batch it falls in.
func BatchIdFromTimestamp(ts time.Time) BatchId {
	secs := ts.Unix() - Epoch.Unix()
	if secs < 0 {
		return 0
	}
	return BatchId(secs / BatchEpochSeconds)
}

// StartTime returns when batch b opens for orders.
func (b BatchId) StartTime() time.Time {
	return Epoch.Add(time.Duration(int64(b)*BatchEpochSeconds) * time.Second)
}

// SolveStartTime returns when batch b closes and starts being solved,
// i.e. the start time of the following batch.
func (b BatchId) SolveStartTime() time.Time {
	return (b + 1).StartTime()
}

// TokenId is a 16-bit token identifier. Token 0 is the reference token.
type TokenId uint16

// ReferenceToken is the token prices, fees and objectives are denominated in.
const ReferenceToken TokenId = 0

// String renders a TokenId the way the solver's instance.json expects it:
// "T" followed by four zero-padded decimal digits.
func (t TokenId) String() string {
	return fmtTokenId(t)
}

func fmtTokenId(t TokenId) string {
	const digits = "0123456789"
	buf := [5]byte{'T', '0', '0', '0', '0'}
	v := t
	for i := 4; i >= 1; i-- {
		buf[i] = digits[v%10]
		v /= 10
	}
	return string(buf[:])
}

// Order is a single limit order as reconstructed from the event log.
type Order struct {
	ID          uint16         // per-user order id
	Account     common.Address
	BuyToken    TokenId
	SellToken   TokenId
	Numerator   *big.Int // buy limit
	Denominator *big.Int // sell limit
	Remaining   *big.Int // remaining_sell
	ValidFrom   BatchId
	ValidUntil  BatchId
}

// ActiveInBatch reports whether the order is still fillable at batch b.
func (o *Order) ActiveInBatch(b BatchId) bool {
	return o.ValidFrom <= b && b <= o.ValidUntil && o.Remaining != nil && o.Remaining.Sign() > 0
}

// AccountState maps (account, token) to the balance effective at the batch
// the registry folded up to.
type AccountState struct {
	balances map[common.Address]map[TokenId]*big.Int
}

// NewAccountState returns an empty account state.
func NewAccountState() *AccountState {
	return &AccountState{balances: make(map[common.Address]map[TokenId]*big.Int)}
}

// Balance returns the balance of account/token, zero if unknown.
func (a *AccountState) Balance(account common.Address, token TokenId) *big.Int {
	if m, ok := a.balances[account]; ok {
		if v, ok := m[token]; ok {
			return new(big.Int).Set(v)
		}
	}
	return big.NewInt(0)
}

// Add credits amount to account/token. amount may be negative internally
// via Sub; Add itself only ever receives non-negative deltas from replay.
func (a *AccountState) Add(account common.Address, token TokenId, amount *big.Int) {
	m, ok := a.balances[account]
	if !ok {
		m = make(map[TokenId]*big.Int)
		a.balances[account] = m
	}
	cur, ok := m[token]
	if !ok {
		cur = big.NewInt(0)
	}
	m[token] = new(big.Int).Add(cur, amount)
}

// SubSaturating subtracts min(balance, amount) from account/token and
// returns the amount actually subtracted. Balances never go negative.
func (a *AccountState) SubSaturating(account common.Address, token TokenId, amount *big.Int) *big.Int {
	m, ok := a.balances[account]
	if !ok {
		return big.NewInt(0)
	}
	cur, ok := m[token]
	if !ok || cur.Sign() <= 0 {
		return big.NewInt(0)
	}
	deducted := new(big.Int).Set(amount)
	if cur.Cmp(deducted) < 0 {
		deducted.Set(cur)
	}
	m[token] = new(big.Int).Sub(cur, deducted)
	return deducted
}

// Clone deep-copies the account state, used so replay can be re-run from a
// prior snapshot without mutating it.
func (a *AccountState) Clone() *AccountState {
	out := NewAccountState()
	for acc, toks := range a.balances {
		m := make(map[TokenId]*big.Int, len(toks))
		for t, v := range toks {
			m[t] = new(big.Int).Set(v)
		}
		out.balances[acc] = m
	}
	return out
}

// Accounts returns the accounts with at least one tracked token, for
// deterministic iteration in tests and snapshotting.
func (a *AccountState) Accounts() []common.Address {
	out := make([]common.Address, 0, len(a.balances))
	for acc := range a.balances {
		out = append(out, acc)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

// Tokens returns the tokens tracked for a given account.
func (a *AccountState) Tokens(account common.Address) []TokenId {
	m := a.balances[account]
	out := make([]TokenId, 0, len(m))
	for t := range m {
		out = append(out, t)
	}
	return out
}

// ExecutedOrder is one order's execution inside a Solution.
type ExecutedOrder struct {
	OrderID    uint16
	Account    common.Address
	BuyAmount  *big.Int
	SellAmount *big.Int
}

// Solution is a uniform clearing-price vector plus per-order fills,
// produced by the external solver.
type Solution struct {
	Prices         map[TokenId]*big.Int
	ExecutedOrders []ExecutedOrder
}

// Trivial reports whether the solution settles nothing.
func (s *Solution) Trivial() bool {
	for _, eo := range s.ExecutedOrders {
		if eo.SellAmount != nil && eo.SellAmount.Sign() != 0 {
			return false
		}
	}
	return true
}

// Objective is the scalar the contract ranks competing solutions by.
// The driver's solver is responsible for producing it; the core only
// needs to thread it through to submission.
type Objective = *big.Int

// EconomicViabilityInfo is extracted from a Solution to drive the
// max-gas-price cap.
type EconomicViabilityInfo struct {
	NumExecutedOrders int
	EarnedFee         *big.Int
}

// ViabilityInfoFromSolution extracts the fields EconomicViability needs.
func ViabilityInfoFromSolution(sol *Solution, feeRatio *big.Rat) EconomicViabilityInfo {
	info := EconomicViabilityInfo{EarnedFee: big.NewInt(0)}
	for _, eo := range sol.ExecutedOrders {
		if eo.SellAmount == nil || eo.SellAmount.Sign() == 0 {
			continue
		}
		info.NumExecutedOrders++
		fee := new(big.Rat).SetInt(eo.SellAmount)
		fee.Mul(fee, feeRatio)
		feeInt := new(big.Int).Quo(fee.Num(), fee.Denom())
		info.EarnedFee.Add(info.EarnedFee, feeInt)
	}
	return info
}

// TokenInfo describes a whitelisted token for the solver's instance.json.
type TokenInfo struct {
	Alias         string
	Decimals      uint8
	ExternalPrice *big.Int // atoms of reference token per 10^18, if known
}
