package eventregistry

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestTimestampCacheConfirmedNeverEvicted(t *testing.T) {
	c := NewTimestampCache(25)
	h := common.BigToHash(big.NewInt(1))

	c.Put(h, 100, 200, 12345) // 100 blocks behind head 200, depth 25 -> confirmed
	c.Refresh()

	ts, ok := c.Get(h)
	assert.True(t, ok)
	assert.Equal(t, int64(12345), ts)
}

func TestTimestampCacheRecentEvictedOnRefresh(t *testing.T) {
	c := NewTimestampCache(25)
	h := common.BigToHash(big.NewInt(2))

	c.Put(h, 199, 200, 999) // only 1 block behind head -> recent tier
	c.Refresh()

	_, ok := c.Get(h)
	assert.False(t, ok)
}

func TestTimestampCachePromoteMovesAgedEntries(t *testing.T) {
	c := NewTimestampCache(25)
	h := common.BigToHash(big.NewInt(2))

	c.Put(h, 180, 190, 555) // 10 blocks behind head 190 -> still recent
	c.Promote(210, map[common.Hash]uint64{h: 180}) // head advances to 210, now 30 behind -> confirmed

	c.Refresh()
	ts, ok := c.Get(h)
	assert.True(t, ok)
	assert.Equal(t, int64(555), ts)
}
