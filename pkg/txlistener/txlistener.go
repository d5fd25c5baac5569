// Package txlistener waits for a submitted transaction to be mined and
// renders its receipt, the "wait for my own transaction" capability a
// caller reaches through a small TxListener interface.
package txlistener

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/ChoSanghyuk/dexdriver/pkg/types"
)

// TxListener waits for a transaction hash to be mined.
type TxListener interface {
	WaitForTransaction(hash common.Hash) (*types.TxReceipt, error)
}

// EthTxListener polls a node for a transaction receipt at PollInterval
// until it appears or Timeout elapses. go-ethereum's own
// accounts/abi/bind.WaitMined takes a *types.Transaction rather than a
// hash, so this client polls TransactionReceipt directly instead.
type EthTxListener struct {
	Client       *ethclient.Client
	PollInterval time.Duration
	Timeout      time.Duration
}

// NewTxListener wires a listener with a 3s/2min polling cadence, a
// reasonable default for an unconfigured caller.
func NewTxListener(client *ethclient.Client) *EthTxListener {
	return &EthTxListener{Client: client, PollInterval: 3 * time.Second, Timeout: 2 * time.Minute}
}

func (l *EthTxListener) WaitForTransaction(hash common.Hash) (*types.TxReceipt, error) {
	ctx, cancel := context.WithTimeout(context.Background(), l.Timeout)
	defer cancel()

	ticker := time.NewTicker(l.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := l.Client.TransactionReceipt(ctx, hash)
		if err == nil {
			return toTxReceipt(receipt), nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("txlistener: fetch receipt for %s: %w", hash, err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("txlistener: %s not mined within %s", hash, l.Timeout)
		case <-ticker.C:
		}
	}
}

func toTxReceipt(r *gethtypes.Receipt) *types.TxReceipt {
	logs := make([]types.Log, 0, len(r.Logs))
	for _, l := range r.Logs {
		topics := make([]string, len(l.Topics))
		for i, t := range l.Topics {
			topics[i] = t.Hex()
		}
		logs = append(logs, types.Log{
			Address: l.Address.Hex(),
			Topics:  topics,
			Data:    "0x" + common.Bytes2Hex(l.Data),
		})
	}

	return &types.TxReceipt{
		TxHash:            r.TxHash.Hex(),
		BlockNumber:       fmt.Sprintf("0x%x", r.BlockNumber),
		GasUsed:           fmt.Sprintf("0x%x", r.GasUsed),
		EffectiveGasPrice: fmt.Sprintf("0x%x", r.EffectiveGasPrice),
		Status:            fmt.Sprintf("0x%x", r.Status),
		Logs:              logs,
	}
}
