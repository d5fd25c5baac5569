package eventregistry

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// TimestampCache caches block timestamps indexed by block hash. Blocks
// older than confirmationDepth below the chain head are assumed final and
// cached without expiry; younger entries are evicted wholesale on every
// Refresh call, since a reorg can still replace them.
//
// Grounded on original_source's streamed block-timestamp reader, which
// keeps exactly this two-tier split rather than a single fixed-size LRU:
// finality, not recency, is what makes a timestamp safe to keep forever.
type TimestampCache struct {
	mu sync.Mutex

	confirmationDepth uint64

	confirmed map[common.Hash]int64 // block hash -> unix seconds, never evicted
	recent    map[common.Hash]int64 // evicted on every Refresh
}

// NewTimestampCache returns a cache that treats blocks more than
// confirmationDepth behind the chain head as confirmed.
func NewTimestampCache(confirmationDepth uint64) *TimestampCache {
	return &TimestampCache{
		confirmationDepth: confirmationDepth,
		confirmed:         make(map[common.Hash]int64),
		recent:            make(map[common.Hash]int64),
	}
}

// Get returns the cached timestamp for hash, if any.
func (c *TimestampCache) Get(hash common.Hash) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ts, ok := c.confirmed[hash]; ok {
		return ts, true
	}
	ts, ok := c.recent[hash]
	return ts, ok
}

// Put records a block's timestamp. headNumber is the chain head height at
// observation time; blockNumber further than confirmationDepth behind it
// goes straight into the unevicted tier.
func (c *TimestampCache) Put(hash common.Hash, blockNumber, headNumber uint64, unixTimestamp int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if headNumber >= c.confirmationDepth && blockNumber <= headNumber-c.confirmationDepth {
		c.confirmed[hash] = unixTimestamp
		delete(c.recent, hash)
		return
	}
	c.recent[hash] = unixTimestamp
}

// Refresh discards the evictable tier, called once per reorg-update cycle
// before refetching the range near the chain head.
func (c *TimestampCache) Refresh() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recent = make(map[common.Hash]int64)
}

// Promote moves any recent entries that have aged past confirmationDepth
// into the unevicted tier, given the current chain head.
func (c *TimestampCache) Promote(headNumber uint64, blockNumberOf map[common.Hash]uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for hash, ts := range c.recent {
		bn, ok := blockNumberOf[hash]
		if !ok {
			continue
		}
		if headNumber >= c.confirmationDepth && bn <= headNumber-c.confirmationDepth {
			c.confirmed[hash] = ts
			delete(c.recent, hash)
		}
	}
}
