package txlistener

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
)

func TestToTxReceiptRendersHexFieldsAndLogs(t *testing.T) {
	addr := common.HexToAddress("0x3333333333333333333333333333333333333333")
	topic := common.HexToHash("0xaaaa")

	receipt := &gethtypes.Receipt{
		TxHash:            common.HexToHash("0xbbbb"),
		BlockNumber:       big.NewInt(100),
		GasUsed:           21000,
		EffectiveGasPrice: big.NewInt(1_000_000_000),
		Status:            1,
		Logs: []*gethtypes.Log{
			{Address: addr, Topics: []common.Hash{topic}, Data: []byte{0xde, 0xad}},
		},
	}

	out := toTxReceipt(receipt)

	assert.Equal(t, "0x64", out.BlockNumber)
	assert.Equal(t, "0x5208", out.GasUsed)
	assert.Equal(t, "0x3b9aca00", out.EffectiveGasPrice)
	assert.Equal(t, "0x1", out.Status)
	assert.Len(t, out.Logs, 1)
	assert.Equal(t, addr.Hex(), out.Logs[0].Address)
	assert.Equal(t, topic.Hex(), out.Logs[0].Topics[0])
	assert.Equal(t, "0xdead", out.Logs[0].Data)
}

func TestToTxReceiptHandlesNoLogs(t *testing.T) {
	receipt := &gethtypes.Receipt{
		TxHash:            common.HexToHash("0xcccc"),
		BlockNumber:       big.NewInt(1),
		GasUsed:           0,
		EffectiveGasPrice: big.NewInt(0),
		Status:            0,
	}

	out := toTxReceipt(receipt)
	assert.Empty(t, out.Logs)
	assert.Equal(t, "0x0", out.Status)
}
