// Package types holds the small value types pkg/contractclient and
// pkg/txlistener exchange with their callers (types.Standard,
// types.TxReceipt).
package types

// TxType selects how a transaction is built before signing.
type TxType int

const (
	// Standard lets the client estimate gas and use the node's suggested
	// gas price/tip, the default used throughout Send calls.
	Standard TxType = iota
	// Legacy forces a pre-EIP-1559 transaction.
	Legacy
)

// TxReceipt is a minimal, JSON/log-friendly transaction receipt view.
// Numeric fields are kept as hex strings ("0x1", "0x5208") the way
// go-ethereum's RPC layer renders them, so a receipt.Status check
// against the "0x1" literal works without decoding first.
type TxReceipt struct {
	TxHash            string `json:"transactionHash"`
	BlockNumber       string `json:"blockNumber"`
	GasUsed           string `json:"gasUsed"`
	EffectiveGasPrice string `json:"effectiveGasPrice"`
	Status            string `json:"status"`
	Logs              []Log  `json:"logs"`
}

// Log is a single event log entry from a receipt, kept close to
// go-ethereum's own types.Log shape so a ContractClient can hand its raw
// topics/data straight to an abi.ABI for decoding.
type Log struct {
	Address string   `json:"address"`
	Topics  []string `json:"topics"`
	Data    string   `json:"data"`
}
