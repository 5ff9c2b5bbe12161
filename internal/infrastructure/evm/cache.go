package evm

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// snapshotCache holds recent balance and allowance reads so status displays
// do not hammer the RPC endpoint. Entries expire after the configured TTL;
// write paths bypass the cache entirely.
type snapshotCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[snapshotKey]snapshotEntry
	now     func() time.Time
}

type snapshotKey struct {
	chainID uint64
	kind    string
	account common.Address
	spender common.Address
}

type snapshotEntry struct {
	value    decimal.Decimal
	storedAt time.Time
}

func newSnapshotCache(ttl time.Duration) *snapshotCache {
	return &snapshotCache{
		ttl:     ttl,
		entries: make(map[snapshotKey]snapshotEntry),
		now:     time.Now,
	}
}

func (c *snapshotCache) get(key snapshotKey) (decimal.Decimal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return decimal.Zero, false
	}
	if c.now().Sub(entry.storedAt) > c.ttl {
		delete(c.entries, key)
		return decimal.Zero, false
	}
	return entry.value, true
}

func (c *snapshotCache) put(key snapshotKey, value decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = snapshotEntry{value: value, storedAt: c.now()}
}

func (c *snapshotCache) invalidate(chainID uint64, account common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if key.chainID == chainID && key.account == account {
			delete(c.entries, key)
		}
	}
}

func balanceKey(chainID uint64, account common.Address) snapshotKey {
	return snapshotKey{chainID: chainID, kind: "balance", account: account}
}

func allowanceKey(chainID uint64, owner, spender common.Address) snapshotKey {
	return snapshotKey{chainID: chainID, kind: "allowance", account: owner, spender: spender}
}
