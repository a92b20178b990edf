package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Maintainer is the maintenance surface the scheduler drives.
type Maintainer interface {
	Cleanup(ctx context.Context) (int, error)
	Stats(ctx context.Context) Stats
}

// Stats is a point-in-time snapshot of cache effectiveness.
type Stats struct {
	Hits           uint64
	Misses         uint64
	Evictions      uint64
	HitRate        float64 // 0.0 ~ 1.0
	MemoryEntries  int
	StoreEntries   int
	OldestEntryAge time.Duration
}

// TieredCache layers a bounded LRU memory tier over an optional persistent
// store. Values cross the store boundary as JSON; an entry that fails to
// decode, or whose payload carries no value, is dropped and read as a miss.
type TieredCache[V any] struct {
	mem   *memoryTier[V]
	store Store // nil for memory-only caches
	group singleflight.Group
	wg    sync.WaitGroup

	hits   atomic.Uint64
	misses atomic.Uint64
}

// New creates a TieredCache holding at most capacity entries in memory.
// store may be nil for a memory-only cache.
func New[V any](capacity int, store Store) *TieredCache[V] {
	return &TieredCache[V]{
		mem:   newMemoryTier[V](capacity),
		store: store,
	}
}

// Get returns the cached value for key. Memory is consulted first; a
// persistent hit is promoted into memory with its remaining lifetime.
func (c *TieredCache[V]) Get(ctx context.Context, key string) (V, bool) {
	v, ok := c.lookup(ctx, key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// lookup is Get without counter updates.
func (c *TieredCache[V]) lookup(ctx context.Context, key string) (V, bool) {
	now := time.Now()
	if v, ok := c.mem.get(key, now); ok {
		return v, true
	}
	var zero V
	if c.store == nil {
		return zero, false
	}
	entry, err := c.store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return zero, false
	}
	if err != nil {
		log.Printf("[WARN] cache: store read for %s failed: %v", key, err)
		return zero, false
	}
	if now.After(entry.ExpiresAt) {
		c.deleteFromStore(ctx, key)
		return zero, false
	}
	if isNullPayload(entry.Payload) {
		log.Printf("[WARN] cache: null payload for %s dropped", key)
		c.deleteFromStore(ctx, key)
		return zero, false
	}
	var v V
	if err := json.Unmarshal(entry.Payload, &v); err != nil {
		log.Printf("[WARN] cache: corrupt entry for %s dropped: %v", key, err)
		c.deleteFromStore(ctx, key)
		return zero, false
	}
	c.mem.put(key, v, entry.StoredAt, entry.ExpiresAt)
	return v, true
}

// Set stores value under key for ttl. The memory write is synchronous;
// the store write happens in the background and failures only log.
func (c *TieredCache[V]) Set(key string, value V, ttl time.Duration) {
	now := time.Now()
	expiresAt := now.Add(ttl)
	c.mem.put(key, value, now, expiresAt)
	if c.store == nil {
		return
	}
	payload, err := json.Marshal(value)
	if err != nil {
		log.Printf("[WARN] cache: encode %s for store failed: %v", key, err)
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		entry := StoredEntry{Payload: payload, StoredAt: now, ExpiresAt: expiresAt}
		if err := c.store.Put(ctx, key, entry); err != nil {
			log.Printf("[WARN] cache: store write for %s failed: %v", key, err)
		}
	}()
}

// GetOrFetch returns the cached value or runs fetch to produce it. All
// concurrent callers for one key share a single fetch; its result
// populates both tiers before anyone returns.
func (c *TieredCache[V]) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch func(context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(ctx, key); ok {
		return v, nil
	}
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if v, ok := c.lookup(ctx, key); ok {
			return v, nil
		}
		value, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(key, value, ttl)
		return value, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

// Invalidate removes key from both tiers. An in-flight fetch for the key
// is forgotten so the next caller refetches.
func (c *TieredCache[V]) Invalidate(ctx context.Context, key string) {
	c.group.Forget(key)
	c.mem.delete(key)
	if c.store != nil {
		c.deleteFromStore(ctx, key)
	}
}

// Cleanup purges expired entries from both tiers, returning how many went.
func (c *TieredCache[V]) Cleanup(ctx context.Context) (int, error) {
	now := time.Now()
	removed := c.mem.purge(now)
	if c.store != nil {
		n, err := c.store.Purge(ctx, now)
		removed += n
		if err != nil {
			return removed, fmt.Errorf("purge store: %w", err)
		}
	}
	return removed, nil
}

// Stats reports counters and tier sizes. Store probes that fail leave
// their fields zero.
func (c *TieredCache[V]) Stats(ctx context.Context) Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	s := Stats{
		Hits:          hits,
		Misses:        misses,
		Evictions:     c.mem.evictionCount(),
		MemoryEntries: c.mem.size(),
	}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}
	now := time.Now()
	s.OldestEntryAge = c.mem.oldestAge(now)
	if c.store != nil {
		if n, err := c.store.Len(ctx); err == nil {
			s.StoreEntries = n
		}
		if age, err := c.store.OldestAge(ctx, now); err == nil && age > s.OldestEntryAge {
			s.OldestEntryAge = age
		}
	}
	return s
}

// Flush blocks until queued store writes finish.
func (c *TieredCache[V]) Flush() { c.wg.Wait() }

// Close drains queued store writes and closes the store.
func (c *TieredCache[V]) Close() error {
	c.wg.Wait()
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}

func (c *TieredCache[V]) deleteFromStore(ctx context.Context, key string) {
	if err := c.store.Delete(ctx, key); err != nil {
		log.Printf("[WARN] cache: delete %s from store failed: %v", key, err)
	}
}

// isNullPayload reports whether a stored payload carries no value. A
// literal null decodes without error into a nil pointer, which callers
// must never see as a hit.
func isNullPayload(p []byte) bool {
	s := bytes.TrimSpace(p)
	return len(s) == 0 || bytes.Equal(s, []byte("null"))
}
