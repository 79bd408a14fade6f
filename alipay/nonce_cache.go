package alipay

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/allegro/bigcache/v3"
)

const defaultReplayTTL = 10 * time.Minute

// nonceReplayCache remembers V3 callback nonces for a TTL so a captured
// callback cannot be delivered twice. Entries live in memory only.
type nonceReplayCache struct {
	mu    sync.Mutex
	cache *bigcache.BigCache
}

func newNonceReplayCache(ttl time.Duration) (*nonceReplayCache, error) {
	if ttl <= 0 {
		ttl = defaultReplayTTL
	}
	config := bigcache.DefaultConfig(ttl)
	config.Shards = 64
	config.MaxEntriesInWindow = 10_000
	config.MaxEntrySize = 64
	config.CleanWindow = min(ttl, time.Minute)
	config.Verbose = false
	cache, err := bigcache.New(context.Background(), config)
	if err != nil {
		return nil, err
	}
	return &nonceReplayCache{cache: cache}, nil
}

// Seen records nonce under namespace and reports whether it was already
// present. Blank values are never recorded.
func (c *nonceReplayCache) Seen(namespace string, nonce string) (bool, error) {
	namespace = strings.TrimSpace(namespace)
	nonce = strings.TrimSpace(nonce)
	if namespace == "" || nonce == "" {
		return false, nil
	}
	key := namespace + "\x00" + nonce

	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.cache.Get(key)
	switch {
	case err == nil:
		return true, nil
	case !errors.Is(err, bigcache.ErrEntryNotFound):
		return false, err
	}
	return false, c.cache.Set(key, []byte{1})
}

func (c *nonceReplayCache) Close() error {
	return c.cache.Close()
}
