// package cache is a TTL response cache with single-flight de-duplication.
// Concurrent callers for the same key attach to one in-flight fetch instead
// of issuing redundant upstream calls. Expired entries are evicted lazily on
// access; there is no background sweeper.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// FetchFunc loads a value from upstream. It receives the flight context,
// which outlives any single caller and is cancelled only when no caller is
// still waiting on the flight.
type FetchFunc[V any] func(ctx context.Context) (V, error)

type entry[V any] struct {
	value    V
	err      error // non-nil only for negative-cached failures
	expireAt time.Time
}

// flight tracks one in-flight fetch and the number of callers attached to it.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// Cache is a keyed TTL cache. Safe for concurrent use.
type Cache[V any] struct {
	mu      sync.Mutex
	entries map[string]entry[V]
	flights map[string]*flight
	group   singleflight.Group

	// NegativeTTL, when positive, caches fetch failures for that duration.
	// Zero (the default) means failures are never cached.
	NegativeTTL time.Duration

	now func() time.Time // injectable for tests
}

// New creates an empty cache.
func New[V any]() *Cache[V] {
	return &Cache[V]{
		entries: make(map[string]entry[V]),
		flights: make(map[string]*flight),
		now:     time.Now,
	}
}

// GetOrFetch returns the cached value for key, or runs fetch to populate it.
// At most one fetch per key is in flight at any time; concurrent callers
// receive the same result. Successful values are stored for ttl. Failures
// propagate to every attached caller and are not stored unless NegativeTTL
// is set.
//
// If ctx expires while waiting, the caller detaches with ctx.Err(); the
// fetch itself keeps running as long as any other caller is still attached.
func (c *Cache[V]) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch FetchFunc[V]) (V, error) {
	var zero V

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		if c.now().Before(e.expireAt) {
			c.mu.Unlock()
			return e.value, e.err
		}
		delete(c.entries, key) // lazy eviction
	}

	fl, ok := c.flights[key]
	if !ok {
		fctx, cancel := context.WithCancel(context.Background())
		fl = &flight{ctx: fctx, cancel: cancel}
		c.flights[key] = fl
	}
	fl.waiters++
	c.mu.Unlock()

	defer c.release(key, fl)

	ch := c.group.DoChan(key, func() (any, error) {
		v, err := fetch(fl.ctx)
		c.mu.Lock()
		defer c.mu.Unlock()
		if err == nil {
			c.entries[key] = entry[V]{value: v, expireAt: c.now().Add(ttl)}
		} else if c.NegativeTTL > 0 && !errors.Is(err, context.Canceled) {
			c.entries[key] = entry[V]{err: err, expireAt: c.now().Add(c.NegativeTTL)}
		}
		return v, err
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(V), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// release detaches one waiter from a flight. When the last waiter leaves a
// flight that has not finished, the flight context is cancelled so the
// upstream call can stop.
func (c *Cache[V]) release(key string, fl *flight) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fl.waiters--
	if fl.waiters <= 0 && c.flights[key] == fl {
		fl.cancel()
		delete(c.flights, key)
		c.group.Forget(key)
	}
}

// Invalidate drops the cached entry for key, forcing the next GetOrFetch to
// hit upstream. Used for user-initiated refreshes.
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len reports the number of stored entries, counting expired ones that have
// not been lazily evicted yet.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
