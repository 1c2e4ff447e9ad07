package gateway

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// cacheKey builds the §4.5 cache key: (method, full-url, sorted-params, body-hash).
func cacheKey(method, fullURL string, params map[string]string, body []byte) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(method)
	b.WriteByte('|')
	b.WriteString(fullURL)
	b.WriteByte('|')
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
		b.WriteByte('&')
	}
	b.WriteByte('|')
	h := sha256.Sum256(body)
	b.WriteString(hex.EncodeToString(h[:]))
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// responseCache is the gateway's (method,url,params,body)-keyed cache. It
// prefers a shared Redis instance so the cache survives process restarts
// and is visible to every gateway instance; when Redis is unset it falls
// back to an in-memory LRU of bounded size, matching §5's "concurrent-safe
// map with LRU eviction" shared-resource note.
type responseCache struct {
	ttl time.Duration
	rdb *redis.Client

	mu      sync.Mutex
	maxLen  int
	ll      *list.List
	entries map[string]*list.Element
}

type cacheEntry struct {
	key     string
	body    []byte
	expires time.Time
}

func newResponseCache(rdb *redis.Client, ttlSeconds, maxEntries int) *responseCache {
	if ttlSeconds <= 0 {
		ttlSeconds = 300
	}
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &responseCache{
		ttl:     time.Duration(ttlSeconds) * time.Second,
		rdb:     rdb,
		maxLen:  maxEntries,
		ll:      list.New(),
		entries: make(map[string]*list.Element),
	}
}

func (c *responseCache) get(ctx context.Context, key string) ([]byte, bool) {
	if c.rdb != nil {
		v, err := c.rdb.Get(ctx, redisCacheNS+key).Bytes()
		if err == nil {
			return v, true
		}
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		if time.Now().After(el.Value.(*cacheEntry).expires) {
			c.ll.Remove(el)
			delete(c.entries, key)
			return nil, false
		}
		c.ll.MoveToFront(el)
		return el.Value.(*cacheEntry).body, true
	}
	return nil, false
}

func (c *responseCache) set(ctx context.Context, key string, body []byte) {
	if c.rdb != nil {
		_ = c.rdb.Set(ctx, redisCacheNS+key, body, c.ttl).Err()
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheEntry).body = body
		el.Value.(*cacheEntry).expires = time.Now().Add(c.ttl)
		c.ll.MoveToFront(el)
		return
	}
	el := c.ll.PushFront(&cacheEntry{key: key, body: body, expires: time.Now().Add(c.ttl)})
	c.entries[key] = el
	for c.ll.Len() > c.maxLen {
		back := c.ll.Back()
		if back == nil {
			break
		}
		c.ll.Remove(back)
		delete(c.entries, back.Value.(*cacheEntry).key)
	}
}

const redisCacheNS = "thoth:gw:cache:"
