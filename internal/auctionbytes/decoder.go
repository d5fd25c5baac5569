// Package auctionbytes decodes the legacy fixed-width auction-element
// encoding used by the contract's paginated order-retrieval path
// (getEncodedOrdersPaginated and friends). Each order is packed into a
// 114-byte record; a page is any concatenation of records.
package auctionbytes

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ChoSanghyuk/dexdriver/dextypes"
)

// ElementWidth is the size in bytes of one packed auction element.
const ElementWidth = 114

// Element is one decoded auction record: the order plus the sell-token
// balance the contract reported for its owner at the time of encoding.
type Element struct {
	Order            *dextypes.Order
	SellTokenBalance *big.Int
}

// Decode parses a single 114-byte record. It returns an error if the
// balance field's high 16 bytes (positions 20..36) are non-zero, which
// would mean the account holds more than a uint128 can represent --
// a balance the rest of the system isn't built to carry.
func Decode(record []byte) (Element, error) {
	if len(record) != ElementWidth {
		return Element{}, fmt.Errorf("auctionbytes: record is %d bytes, want %d", len(record), ElementWidth)
	}

	account := common.BytesToAddress(record[0:20])

	balancePadding := new(big.Int).SetBytes(record[20:36])
	if balancePadding.Sign() != 0 {
		return Element{}, fmt.Errorf("auctionbytes: account %s balance exceeds uint128", account)
	}
	balance := new(big.Int).SetBytes(record[36:52])

	buyToken := dextypes.TokenId(binary.BigEndian.Uint16(record[52:54]))
	sellToken := dextypes.TokenId(binary.BigEndian.Uint16(record[54:56]))
	// valid_from/valid_until are the two little-endian fields in an
	// otherwise big-endian record.
	validFrom := dextypes.BatchId(binary.LittleEndian.Uint32(record[56:60]))
	validUntil := dextypes.BatchId(binary.LittleEndian.Uint32(record[60:64]))

	numerator := new(big.Int).SetBytes(record[64:80])
	denominator := new(big.Int).SetBytes(record[80:96])
	remaining := new(big.Int).SetBytes(record[96:112])
	orderID := binary.BigEndian.Uint16(record[112:114])

	order := &dextypes.Order{
		ID:          orderID,
		Account:     account,
		BuyToken:    buyToken,
		SellToken:   sellToken,
		Numerator:   numerator,
		Denominator: denominator,
		Remaining:   remaining,
		ValidFrom:   validFrom,
		ValidUntil:  validUntil,
	}

	return Element{Order: order, SellTokenBalance: balance}, nil
}

// DecodePage splits a page into its constituent records and decodes each
// one. len(page) must be a multiple of ElementWidth.
func DecodePage(page []byte) ([]Element, error) {
	if len(page)%ElementWidth != 0 {
		return nil, fmt.Errorf("auctionbytes: page length %d is not a multiple of %d", len(page), ElementWidth)
	}

	out := make([]Element, 0, len(page)/ElementWidth)
	for offset := 0; offset < len(page); offset += ElementWidth {
		el, err := Decode(page[offset : offset+ElementWidth])
		if err != nil {
			return nil, err
		}
		out = append(out, el)
	}
	return out, nil
}
