package rpc

import (
	"encoding/json"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultCacheSize = 256

// DefaultCachePolicy maps cacheable methods to their TTL. Methods that are
// absent are never cached: sends, receipts, logs and anything with side
// effects.
var DefaultCachePolicy = map[string]time.Duration{
	"eth_chainId":     time.Hour,
	"net_version":     time.Hour,
	"eth_blockNumber": 2 * time.Second,
	"eth_gasPrice":    5 * time.Second,
	"eth_getCode":     5 * time.Minute,
}

type cachedResponse struct {
	value     json.RawMessage
	expiresAt time.Time
}

// responseCache is a size bounded LRU whose entries also expire by TTL.
type responseCache struct {
	mu      sync.Mutex
	entries *lru.Cache[string, cachedResponse]
	policy  map[string]time.Duration
	now     func() time.Time
}

func newResponseCache(size int, policy map[string]time.Duration, now func() time.Time) (*responseCache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, err := lru.New[string, cachedResponse](size)
	if err != nil {
		return nil, err
	}
	return &responseCache{entries: entries, policy: policy, now: now}, nil
}

func (c *responseCache) ttl(method string) time.Duration {
	return c.policy[method]
}

func (c *responseCache) get(key string) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expiresAt) {
		c.entries.Remove(key)
		return nil, false
	}
	return append(json.RawMessage(nil), e.value...), true
}

func (c *responseCache) put(key string, value json.RawMessage, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries.Add(key, cachedResponse{
		value:     append(json.RawMessage(nil), value...),
		expiresAt: c.now().Add(ttl),
	})
}

func (c *responseCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

func (c *responseCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
}

func cacheKey(method string, params json.RawMessage) string {
	return method + ":" + string(params)
}
