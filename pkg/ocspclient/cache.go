package ocspclient

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	lru "github.com/hashicorp/golang-lru/v2"
)

// NowFunc allows to override default time
var NowFunc = time.Now

// DefaultCacheEntries bounds the number of cached responses
const DefaultCacheEntries = 1000

// responseCache keeps successful responses by CertID, usable only
// while now is before nextUpdate.
type responseCache struct {
	mu      sync.Mutex
	entries *lru.Cache[string, *Response]
}

func newResponseCache(maxEntries int) (*responseCache, error) {
	if maxEntries == 0 {
		maxEntries = DefaultCacheEntries
	}
	entries, err := lru.New[string, *Response](maxEntries)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &responseCache{
		entries: entries,
	}, nil
}

// Get returns a cached response that is still within its validity
// window, removing one that is not.
func (c *responseCache) Get(key string) *Response {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, ok := c.entries.Peek(key)
	if !ok {
		return nil
	}
	if res.NextUpdate.IsZero() || !NowFunc().Before(res.NextUpdate) {
		c.entries.Remove(key)
		return nil
	}
	return res
}

// Put caches a response when it carries a future nextUpdate bound
func (c *responseCache) Put(key string, res *Response) {
	if res.NextUpdate.IsZero() || !NowFunc().Before(res.NextUpdate) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Add(key, res)
}
