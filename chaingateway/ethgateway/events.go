package ethgateway

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/ChoSanghyuk/dexdriver/dextypes"
)

// decodeEvent unpacks a single log against the event kind eventIDs
// already matched it to, filling in only the dextypes.Event fields that
// event kind carries.
func decodeEvent(contractABI abi.ABI, kind dextypes.EventKind, l gethtypes.Log) (dextypes.Event, error) {
	name := eventName(kind)
	event, ok := contractABI.Events[name]
	if !ok {
		return dextypes.Event{}, fmt.Errorf("abi has no event named %s", name)
	}

	params := make(map[string]interface{})
	if len(event.Inputs.NonIndexed()) > 0 {
		if err := event.Inputs.UnpackIntoMap(params, l.Data); err != nil {
			return dextypes.Event{}, fmt.Errorf("unpack non-indexed fields: %w", err)
		}
	}

	topicIdx := 1 // topics[0] is the event signature
	for _, input := range event.Inputs {
		if !input.Indexed {
			continue
		}
		if topicIdx >= len(l.Topics) {
			break
		}
		params[input.Name] = topicToValue(input, l.Topics[topicIdx])
		topicIdx++
	}

	out := dextypes.Event{Kind: kind}

	switch kind {
	case dextypes.EventTokenListing:
		out.Token = dextypes.TokenId(mustUint16(params["id"]))
		out.TokenAddr = mustAddress(params["token"])
	case dextypes.EventDeposit:
		out.User = mustAddress(params["user"])
		out.Token = dextypes.TokenId(mustUint16(params["token"]))
		out.Amount = mustBigInt(params["amount"])
		out.CreditBatch = dextypes.BatchId(mustUint32(params["creditBatch"]))
	case dextypes.EventWithdrawRequest:
		out.User = mustAddress(params["user"])
		out.Token = dextypes.TokenId(mustUint16(params["token"]))
		out.Amount = mustBigInt(params["amount"])
		out.EarliestBatch = dextypes.BatchId(mustUint32(params["earliestBatch"]))
	case dextypes.EventWithdraw:
		out.User = mustAddress(params["user"])
		out.Token = dextypes.TokenId(mustUint16(params["token"]))
		out.Amount = mustBigInt(params["amount"])
	case dextypes.EventOrderPlacement:
		out.User = mustAddress(params["user"])
		out.OrderID = mustUint16(params["orderId"])
		out.BuyToken = dextypes.TokenId(mustUint16(params["buyToken"]))
		out.SellToken = dextypes.TokenId(mustUint16(params["sellToken"]))
		out.ValidFrom = dextypes.BatchId(mustUint32(params["validFrom"]))
		out.ValidUntil = dextypes.BatchId(mustUint32(params["validUntil"]))
		out.Numerator = mustBigInt(params["numerator"])
		out.Denominator = mustBigInt(params["denominator"])
	case dextypes.EventOrderCancellation:
		out.User = mustAddress(params["user"])
		out.OrderID = mustUint16(params["orderId"])
	case dextypes.EventTrade, dextypes.EventTradeReversion:
		out.User = mustAddress(params["user"])
		out.OrderID = mustUint16(params["orderId"])
		out.SellToken = dextypes.TokenId(mustUint16(params["sellToken"]))
		out.BuyToken = dextypes.TokenId(mustUint16(params["buyToken"]))
		out.ExecutedSell = mustBigInt(params["executedSellAmount"])
		out.ExecutedBuy = mustBigInt(params["executedBuyAmount"])
	case dextypes.EventSolutionSubmission:
		out.Submitter = mustAddress(params["submitter"])
		out.Utility = mustBigInt(params["utility"])
		out.Fee = mustBigInt(params["fee"])
	}

	return out, nil
}

func eventName(kind dextypes.EventKind) string {
	switch kind {
	case dextypes.EventTokenListing:
		return "TokenListing"
	case dextypes.EventDeposit:
		return "Deposit"
	case dextypes.EventWithdrawRequest:
		return "WithdrawRequest"
	case dextypes.EventWithdraw:
		return "Withdraw"
	case dextypes.EventOrderPlacement:
		return "OrderPlacement"
	case dextypes.EventOrderCancellation:
		return "OrderCancellation"
	case dextypes.EventTrade:
		return "Trade"
	case dextypes.EventTradeReversion:
		return "TradeReversion"
	case dextypes.EventSolutionSubmission:
		return "SolutionSubmission"
	default:
		return ""
	}
}

// topicToValue renders an indexed event parameter from its 32-byte topic,
// mirroring pkg/contractclient's own unexported helper of the same name
// since log topics decode the same way regardless of which package reads
// them.
func topicToValue(arg abi.Argument, topic common.Hash) interface{} {
	switch arg.Type.T {
	case abi.AddressTy:
		return common.BytesToAddress(topic.Bytes())
	case abi.BoolTy:
		return topic.Big().Sign() != 0
	case abi.IntTy, abi.UintTy:
		return new(big.Int).Set(topic.Big())
	default:
		return topic.Hex()
	}
}

func mustAddress(v interface{}) common.Address {
	if a, ok := v.(common.Address); ok {
		return a
	}
	return common.Address{}
}

func mustBigInt(v interface{}) *big.Int {
	if b, ok := v.(*big.Int); ok {
		return b
	}
	return big.NewInt(0)
}

func mustUint16(v interface{}) uint16 {
	if n, ok := v.(uint16); ok {
		return n
	}
	return 0
}

func mustUint32(v interface{}) uint32 {
	if n, ok := v.(uint32); ok {
		return n
	}
	return 0
}
