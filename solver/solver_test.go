package solver

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChoSanghyuk/dexdriver/dextypes"
)

// writeFakeBinary drops a tiny shell script standing in for the external
// solver process: it copies a canned result (or sleeps past the deadline,
// or exits non-zero) depending on mode.
func writeFakeBinary(t *testing.T, mode string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-solver.sh")

	var body string
	switch mode {
	case "ok":
		body = `#!/bin/sh
while [ "$1" != "--result" ]; do shift; done
shift
cat > "$1" <<'EOF'
{"prices":{"T0000":"1000000000000000000","T0001":"2000000000000000000"},"orders":[{"execSellAmount":"100","execBuyAmount":"50"}]}
EOF
exit 0
`
	case "timeout":
		body = "#!/bin/sh\nsleep 5\n"
	case "crash":
		body = "#!/bin/sh\nexit 1\n"
	default:
		t.Fatalf("unknown mode %q", mode)
	}

	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

func sampleInput() Input {
	acct := common.HexToAddress("0x1111111111111111111111111111111111111111")
	state := dextypes.NewAccountState()
	state.Add(acct, 1, big.NewInt(100))

	return Input{
		State: state,
		Orders: []*dextypes.Order{
			{ID: 7, Account: acct, SellToken: 1, BuyToken: 0, Remaining: big.NewInt(100)},
		},
		TokenInfo: map[dextypes.TokenId]dextypes.TokenInfo{
			1: {Alias: "WETH", Decimals: 18, ExternalPrice: big.NewInt(2000000000000000000)},
		},
		FeeRatio: big.NewRat(1, 1000),
	}
}

func TestRunParsesResult(t *testing.T) {
	bin := writeFakeBinary(t, "ok")
	r := &Runner{BinaryPath: bin}

	sol, err := r.Run(context.Background(), sampleInput(), time.Second)
	require.NoError(t, err)
	require.Len(t, sol.ExecutedOrders, 1)
	assert.Equal(t, uint16(7), sol.ExecutedOrders[0].OrderID)
	assert.Equal(t, big.NewInt(100), sol.ExecutedOrders[0].SellAmount)
	assert.Equal(t, big.NewInt(50), sol.ExecutedOrders[0].BuyAmount)
	assert.Equal(t, big.NewInt(1000000000000000000), sol.Prices[0])
	assert.Equal(t, big.NewInt(2000000000000000000), sol.Prices[1])
}

func TestRunTimeoutWithNoResultIsSkippable(t *testing.T) {
	bin := writeFakeBinary(t, "timeout")
	r := &Runner{BinaryPath: bin}

	_, err := r.Run(context.Background(), sampleInput(), 50*time.Millisecond)
	require.Error(t, err)
	assert.True(t, IsTimeoutNoSolution(err))
}

func TestRunCrashIsNotTimeoutNoSolution(t *testing.T) {
	bin := writeFakeBinary(t, "crash")
	r := &Runner{BinaryPath: bin}

	_, err := r.Run(context.Background(), sampleInput(), time.Second)
	require.Error(t, err)
	assert.False(t, IsTimeoutNoSolution(err))
}

func TestWriteInstanceShapesTokenIdsAndAmounts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "instance.json")
	require.NoError(t, writeInstance(path, sampleInput()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, "T0000", decoded["refToken"])

	tokens := decoded["tokens"].(map[string]interface{})
	_, ok := tokens["T0001"]
	assert.True(t, ok, "expected T0001 key, got %v", fmt.Sprintf("%v", tokens))

	orders := decoded["orders"].([]interface{})
	require.Len(t, orders, 1)
	order := orders[0].(map[string]interface{})
	assert.Equal(t, "T0001", order["sellToken"])
	assert.Equal(t, "T0000", order["buyToken"])
	assert.Equal(t, "100", order["sellAmount"])

	// the fee ratio is a bare float on the wire, unlike the u128 amount
	// fields above which need string encoding to survive JSON's float64
	// precision limits.
	fee := decoded["fee"].(map[string]interface{})
	assert.Equal(t, 0.001, fee["ratio"])
}

func TestParseTokenIdRoundTrips(t *testing.T) {
	id, err := parseTokenId("T0042")
	require.NoError(t, err)
	assert.Equal(t, dextypes.TokenId(42), id)
	assert.Equal(t, "T0042", id.String())
}
