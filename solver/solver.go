// Package solver shells out to the external solver binary with a bounded
// time budget, writing the instance.json input contract and reading back
// its JSON result.
package solver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/ChoSanghyuk/dexdriver/dextypes"
)

// instanceTokenInfo is the optional per-token metadata block; an entry
// without externalPrice means the oracle had no price for that token.
type instanceTokenInfo struct {
	Alias         string `json:"alias,omitempty"`
	Decimals      uint8  `json:"decimals,omitempty"`
	ExternalPrice string `json:"externalPrice,omitempty"`
}

type instanceOrder struct {
	AccountID  string `json:"accountID"`
	SellToken  string `json:"sellToken"`
	BuyToken   string `json:"buyToken"`
	SellAmount string `json:"sellAmount"`
	BuyAmount  string `json:"buyAmount"`
}

type instanceFee struct {
	Token string  `json:"token"`
	Ratio float64 `json:"ratio"`
}

type instance struct {
	Tokens   map[string]*instanceTokenInfo  `json:"tokens"`
	RefToken string                         `json:"refToken"`
	Accounts map[string]map[string]string   `json:"accounts"`
	Orders   []instanceOrder                `json:"orders"`
	Fee      instanceFee                    `json:"fee"`
}

type result struct {
	Prices map[string]*string `json:"prices"`
	Orders []resultOrder      `json:"orders"`
}

type resultOrder struct {
	ExecSellAmount string `json:"execSellAmount"`
	ExecBuyAmount  string `json:"execBuyAmount"`
}

// Input is what the driver assembles before invoking the solver.
type Input struct {
	State        *dextypes.AccountState
	Orders       []*dextypes.Order
	TokenInfo    map[dextypes.TokenId]dextypes.TokenInfo
	FeeRatio     *big.Rat
	MinAvgFee    *big.Int // informational only; not part of the wire contract and not read by Run
}

// Runner invokes the external solver binary against one Input and parses
// its result back into a dextypes.Solution.
type Runner struct {
	BinaryPath string
	WorkDir    string // scratch directory for instance.json/result files; os.TempDir() if empty
}

// Run writes instance.json, invokes the binary bounded by timeLimit, and
// parses its result file. A context deadline exceeded with no result
// produced is reported distinctly from the binary returning a non-zero
// exit code, so the driver can tell "ran out of time" (skip) apart from
// "crashed" (retry).
func (r *Runner) Run(ctx context.Context, in Input, timeLimit time.Duration) (*dextypes.Solution, error) {
	workDir := r.WorkDir
	if workDir == "" {
		workDir = os.TempDir()
	}

	dir, err := os.MkdirTemp(workDir, "solver-run-*")
	if err != nil {
		return nil, fmt.Errorf("solver: create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	instancePath := filepath.Join(dir, "instance.json")
	resultPath := filepath.Join(dir, "result.json")

	if err := writeInstance(instancePath, in); err != nil {
		return nil, fmt.Errorf("solver: write instance: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, timeLimit)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.BinaryPath, "--instance", instancePath, "--result", resultPath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if runCtx.Err() != nil {
		if _, statErr := os.Stat(resultPath); statErr != nil {
			return nil, ErrTimeoutNoSolution
		}
		// A result landed right as the deadline hit; prefer using it.
	} else if runErr != nil {
		return nil, fmt.Errorf("solver: process failed: %w (stderr: %s)", runErr, stderr.String())
	}

	return readResult(resultPath, in.Orders)
}

// ErrTimeoutNoSolution is returned when the solver's deadline elapsed
// without it producing a result file; the driver treats this as a skip,
// not a retry, since the time budget for this batch is simply exhausted.
var ErrTimeoutNoSolution = fmt.Errorf("solver: time limit exceeded with no solution produced")

// IsTimeoutNoSolution reports whether err is the specific
// out-of-time-no-output condition Run can return.
func IsTimeoutNoSolution(err error) bool {
	return errors.Is(err, ErrTimeoutNoSolution)
}

func writeInstance(path string, in Input) error {
	ratio, _ := in.FeeRatio.Float64()
	inst := instance{
		Tokens:   make(map[string]*instanceTokenInfo),
		RefToken: dextypes.ReferenceToken.String(),
		Accounts: make(map[string]map[string]string),
		Fee:      instanceFee{Token: dextypes.ReferenceToken.String(), Ratio: ratio},
	}

	for id, ti := range in.TokenInfo {
		entry := &instanceTokenInfo{Alias: ti.Alias, Decimals: ti.Decimals}
		if ti.ExternalPrice != nil {
			entry.ExternalPrice = ti.ExternalPrice.String()
		}
		inst.Tokens[id.String()] = entry
	}

	if in.State != nil {
		for _, acct := range in.State.Accounts() {
			balances := make(map[string]string)
			for _, tok := range in.State.Tokens(acct) {
				balances[tok.String()] = in.State.Balance(acct, tok).String()
			}
			inst.Accounts[acct.Hex()] = balances
		}
	}

	for _, o := range in.Orders {
		buyAmount := new(big.Int).Mul(o.Remaining, o.Numerator)
		buyAmount.Quo(buyAmount, o.Denominator)
		inst.Orders = append(inst.Orders, instanceOrder{
			AccountID:  o.Account.Hex(),
			SellToken:  o.SellToken.String(),
			BuyToken:   o.BuyToken.String(),
			SellAmount: o.Remaining.String(),
			BuyAmount:  buyAmount.String(),
		})
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(inst)
}

func readResult(path string, orders []*dextypes.Order) (*dextypes.Solution, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("solver: open result: %w", err)
	}
	defer f.Close()

	var res result
	if err := json.NewDecoder(f).Decode(&res); err != nil {
		return nil, fmt.Errorf("solver: decode result: %w", err)
	}

	sol := &dextypes.Solution{Prices: make(map[dextypes.TokenId]*big.Int)}
	for tok, priceStr := range res.Prices {
		if priceStr == nil {
			continue
		}
		id, err := parseTokenId(tok)
		if err != nil {
			return nil, err
		}
		price, ok := new(big.Int).SetString(*priceStr, 10)
		if !ok {
			return nil, fmt.Errorf("solver: invalid price %q for token %s", *priceStr, tok)
		}
		sol.Prices[id] = price
	}

	if len(res.Orders) != len(orders) {
		return nil, fmt.Errorf("solver: result has %d orders, expected %d (input order matched positionally)", len(res.Orders), len(orders))
	}
	for i, ro := range res.Orders {
		sell, ok := new(big.Int).SetString(ro.ExecSellAmount, 10)
		if !ok {
			return nil, fmt.Errorf("solver: invalid execSellAmount %q", ro.ExecSellAmount)
		}
		buy, ok := new(big.Int).SetString(ro.ExecBuyAmount, 10)
		if !ok {
			return nil, fmt.Errorf("solver: invalid execBuyAmount %q", ro.ExecBuyAmount)
		}
		sol.ExecutedOrders = append(sol.ExecutedOrders, dextypes.ExecutedOrder{
			OrderID:    orders[i].ID,
			Account:    orders[i].Account,
			SellAmount: sell,
			BuyAmount:  buy,
		})
	}

	return sol, nil
}

func parseTokenId(s string) (dextypes.TokenId, error) {
	var n uint16
	if _, err := fmt.Sscanf(s, "T%04d", &n); err != nil {
		return 0, fmt.Errorf("solver: malformed token id %q: %w", s, err)
	}
	return dextypes.TokenId(n), nil
}
