package numbercache

import (
	"context"
	"sync"
	"time"

	"github.com/VictoriaMetrics/fastcache"
)

// Cache is a TTL set of keys already pushed downstream, used to deduplicate
// label writes. The whole cache resets every TTL instead of tracking
// per-entry expiry.
type Cache[K comparable] struct {
	v      *fastcache.Cache
	mtx    sync.Mutex
	keyer  func(K) []byte
	cancel context.CancelFunc
}

func NewCache[K comparable](ttl time.Duration, keyer func(K) []byte) *Cache[K] {
	ctx, cancel := context.WithCancel(context.Background())
	res := &Cache[K]{
		v:      fastcache.New(100 * 1024 * 1024),
		keyer:  keyer,
		cancel: cancel,
	}
	go func() {
		ticker := time.NewTicker(ttl)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				res.mtx.Lock()
				res.v.Reset()
				res.mtx.Unlock()
			}
		}
	}()
	return res
}

// CheckAndSet reports whether the key was already present, marking it either
// way.
func (c *Cache[K]) CheckAndSet(key K) bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	k := c.keyer(key)
	if c.v.Has(k) {
		return true
	}
	c.v.Set(k, []byte{1})
	return false
}

func (c *Cache[K]) Stop() {
	c.cancel()
}
