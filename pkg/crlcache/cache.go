// Package crlcache manages the CRL lifecycle: a bounded cache of parsed
// lists, the updater that refreshes them, and the validator that uses
// them to classify certificates.
package crlcache

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/effective-security/xrevoke/pkg/crl"
	lru "github.com/hashicorp/golang-lru/v2"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/xrevoke/pkg", "crlcache")

// NowFunc allows to override default time
var NowFunc = time.Now

const (
	// DefaultMaxEntries bounds the number of cached CRLs
	DefaultMaxEntries = 100
	// DefaultSoftTTL forces a refresh even when nextUpdate is still in the future
	DefaultSoftTTL = time.Hour
)

type entry struct {
	crl        *crl.CRL
	insertedAt time.Time
}

// Cache is a bounded mapping from issuer DN to the latest parsed CRL.
// Eviction is deterministic on insertion order: reads do not promote
// an entry. Safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries *lru.Cache[string, *entry]
	softTTL time.Duration
}

// NewCache creates a cache bounded to maxEntries with the given soft TTL
func NewCache(maxEntries int, softTTL time.Duration) (*Cache, error) {
	if maxEntries == 0 {
		maxEntries = DefaultMaxEntries
	}
	if softTTL == 0 {
		softTTL = DefaultSoftTTL
	}
	entries, err := lru.New[string, *entry](maxEntries)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &Cache{
		entries: entries,
		softTTL: softTTL,
	}, nil
}

// Put installs the CRL for the issuer DN, evicting the
// least-recently-inserted entry when the cache is full.
// Put is idempotent on key.
func (c *Cache) Put(issuerDER []byte, list *crl.CRL) {
	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := c.entries.Add(string(issuerDER), &entry{
		crl:        list,
		insertedAt: NowFunc(),
	})
	if evicted {
		logger.KV(xlog.DEBUG,
			"reason", "evicted",
			"issuer", list.Issuer,
			"count", c.entries.Len(),
		)
	}
}

// Get returns the cached CRL for the issuer DN, or nil if absent or if
// the soft TTL elapsed. A soft-expired entry is removed.
func (c *Cache) Get(issuerDER []byte) *crl.CRL {
	key := string(issuerDER)

	c.mu.Lock()
	defer c.mu.Unlock()

	ent, ok := c.entries.Peek(key)
	if !ok {
		return nil
	}
	if NowFunc().After(ent.insertedAt.Add(c.softTTL)) {
		c.entries.Remove(key)
		logger.KV(xlog.DEBUG,
			"reason", "soft_expired",
			"issuer", ent.crl.Issuer,
		)
		return nil
	}
	return ent.crl
}

// ExpiringSoon returns true if the issuer has no cached CRL, the CRL has
// no nextUpdate, or its nextUpdate falls within the threshold from now.
func (c *Cache) ExpiringSoon(issuerDER []byte, threshold time.Duration) bool {
	c.mu.RLock()
	ent, ok := c.entries.Peek(string(issuerDER))
	c.mu.RUnlock()

	if !ok {
		return true
	}
	return ent.crl.ExpiresWithin(NowFunc(), threshold)
}

// RemoveExpired evicts every entry that is past nextUpdate or lacks one,
// and returns the eviction count.
func (c *Cache) RemoveExpired() int {
	now := NowFunc()

	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for _, key := range c.entries.Keys() {
		ent, ok := c.entries.Peek(key)
		if !ok {
			continue
		}
		if ent.crl.IsExpired(now) {
			c.entries.Remove(key)
			count++
		}
	}
	return count
}

// Clear removes all entries
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
}

// Issuers returns the displayable issuer names of the cached CRLs,
// oldest insertion first.
func (c *Cache) Issuers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var list []string
	for _, key := range c.entries.Keys() {
		if ent, ok := c.entries.Peek(key); ok {
			list = append(list, ent.crl.Issuer)
		}
	}
	return list
}

// issuerKeys returns the raw issuer DN keys, oldest insertion first
func (c *Cache) issuerKeys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries.Keys()
}

// Size returns the number of cached CRLs
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries.Len()
}
