// Package util holds the small ABI-loading and gas-accounting helpers
// pkg/contractclient and chaingateway/ethgateway share, the way the
// teacher's own internal/util backs pkg/contractclient.
package util

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/ChoSanghyuk/dexdriver/pkg/types"
)

// hardhatArtifact is the subset of a Hardhat compilation artifact this
// loader cares about: the ABI array, ignoring bytecode and source maps.
type hardhatArtifact struct {
	ABI json.RawMessage `json:"abi"`
}

// LoadABI reads a contract ABI from path. It accepts either a bare ABI
// JSON array (what solc emits with --abi) or a Hardhat artifact JSON
// object with an "abi" field, auto-detected from the leading byte.
func LoadABI(path string) (abi.ABI, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("util: read abi file %s: %w", path, err)
	}

	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return abi.ABI{}, fmt.Errorf("util: abi file %s is empty", path)
	}

	if trimmed[0] == '[' {
		parsed, err := abi.JSON(strings.NewReader(trimmed))
		if err != nil {
			return abi.ABI{}, fmt.Errorf("util: parse abi array in %s: %w", path, err)
		}
		return parsed, nil
	}

	var artifact hardhatArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return abi.ABI{}, fmt.Errorf("util: parse artifact %s: %w", path, err)
	}
	if len(artifact.ABI) == 0 {
		return abi.ABI{}, fmt.Errorf("util: artifact %s has no abi field", path)
	}
	parsed, err := abi.JSON(strings.NewReader(string(artifact.ABI)))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("util: parse artifact abi in %s: %w", path, err)
	}
	return parsed, nil
}

// Hex2Bytes decodes a hex string, accepting an optional "0x" prefix.
func Hex2Bytes(s string) []byte {
	s = strings.TrimPrefix(s, "0x")
	if len(s)%2 != 0 {
		s = "0" + s
	}
	out := make([]byte, len(s)/2)
	for i := 0; i < len(out); i++ {
		b, err := strconv.ParseUint(s[i*2:i*2+2], 16, 8)
		if err != nil {
			return nil
		}
		out[i] = byte(b)
	}
	return out
}

// ExtractGasCost returns gasUsed * effectiveGasPrice in wei, parsing the
// receipt's hex-string numeric fields the way go-ethereum's RPC layer
// renders them ("0x5208", "0x1").
func ExtractGasCost(receipt *types.TxReceipt) (*big.Int, error) {
	gasUsed, err := parseHexQuantity(receipt.GasUsed)
	if err != nil {
		return nil, fmt.Errorf("util: parse gasUsed %q: %w", receipt.GasUsed, err)
	}
	gasPrice, err := parseHexQuantity(receipt.EffectiveGasPrice)
	if err != nil {
		return nil, fmt.Errorf("util: parse effectiveGasPrice %q: %w", receipt.EffectiveGasPrice, err)
	}
	return new(big.Int).Mul(gasUsed, gasPrice), nil
}

func parseHexQuantity(s string) (*big.Int, error) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		s = "0"
	}
	v, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return nil, fmt.Errorf("not a hex quantity")
	}
	return v, nil
}
