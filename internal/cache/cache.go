// Package cache provides the two in-memory caches shared by the addon:
// a single-flight query cache for upstream responses and a bounded TTL
// store for identifier and artwork memoization.
package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Store is a bounded TTL cache for cheap lookups (id mappings, logo URLs).
// Misses are tolerable here, so there is no in-flight deduplication.
type Store[V any] struct {
	lru *expirable.LRU[string, V]
}

// NewStore creates a bounded store whose entries expire after ttl.
func NewStore[V any](size int, ttl time.Duration) *Store[V] {
	return &Store[V]{lru: expirable.NewLRU[string, V](size, nil, ttl)}
}

func (s *Store[V]) Get(key string) (V, bool) { return s.lru.Get(key) }
func (s *Store[V]) Set(key string, value V)  { s.lru.Add(key, value) }
func (s *Store[V]) Has(key string) bool      { return s.lru.Contains(key) }
func (s *Store[V]) Purge()                   { s.lru.Purge() }

type queryEntry struct {
	value     any
	expiresAt time.Time
}

type inflightCall struct {
	done  chan struct{}
	value any
	err   error
}

// QueryCache memoizes upstream query results. A key being computed holds the
// pending computation, so concurrent callers for the same key share one
// upstream call. Failures are never cached; a resolved value is covered by
// the TTL remaining from when the computation began.
type QueryCache struct {
	mu       sync.Mutex
	entries  *lru.Cache[string, queryEntry]
	inflight map[string]*inflightCall
	ttl      time.Duration
}

// NewQueryCache creates a query cache bounded to size entries with the given TTL.
func NewQueryCache(size int, ttl time.Duration) (*QueryCache, error) {
	entries, err := lru.New[string, queryEntry](size)
	if err != nil {
		return nil, err
	}
	return &QueryCache{
		entries:  entries,
		inflight: make(map[string]*inflightCall),
		ttl:      ttl,
	}, nil
}

// GetOrCompute returns the cached value for key, or invokes compute exactly
// once no matter how many callers arrive concurrently. The context only
// bounds this caller's wait; the shared computation itself runs to completion
// so other waiters still get its result.
func (c *QueryCache) GetOrCompute(ctx context.Context, key string, compute func() (any, error)) (any, error) {
	c.mu.Lock()
	if entry, ok := c.entries.Get(key); ok {
		if time.Now().Before(entry.expiresAt) {
			c.mu.Unlock()
			return entry.value, nil
		}
		c.entries.Remove(key)
	}
	if call, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		select {
		case <-call.done:
			return call.value, call.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	call := &inflightCall{done: make(chan struct{})}
	c.inflight[key] = call
	startedAt := time.Now()
	c.mu.Unlock()

	call.value, call.err = compute()

	c.mu.Lock()
	delete(c.inflight, key)
	if call.err == nil {
		c.entries.Add(key, queryEntry{value: call.value, expiresAt: startedAt.Add(c.ttl)})
	}
	c.mu.Unlock()
	close(call.done)

	return call.value, call.err
}

// Flush drops every cached entry. Called after any successful upstream
// mutation; blanket invalidation is cheap at this read volume and avoids
// stale-progress bugs.
func (c *QueryCache) Flush() {
	c.mu.Lock()
	c.entries.Purge()
	c.mu.Unlock()
}

// Len reports the number of resolved entries currently cached.
func (c *QueryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Key derives a deterministic cache key from an operation name and its
// parameters. Parameters are serialized with sorted keys so logically
// identical requests with differently ordered fields collide.
func Key(op string, params any) string {
	canonical := map[string]any{}
	if params != nil {
		raw, err := json.Marshal(params)
		if err == nil {
			// Round-trip through a map: encoding/json writes map keys sorted.
			_ = json.Unmarshal(raw, &canonical)
		}
	}
	buf, _ := json.Marshal(canonical)
	h := sha1.Sum([]byte(fmt.Sprintf("%s:%s", op, buf)))
	return op + ":" + hex.EncodeToString(h[:])
}
